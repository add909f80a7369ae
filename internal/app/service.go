// Package app wires the dxm services together for the CLI.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"dxm/internal/audit"
	"dxm/internal/channel"
	"dxm/internal/config"
	"dxm/internal/doctor"
	"dxm/internal/errs"
	"dxm/internal/github"
	"dxm/internal/installer"
	"dxm/internal/platform"
	"dxm/internal/scaffold"
	"dxm/internal/source"
	"dxm/internal/store"
	syncsvc "dxm/internal/sync"
)

// HTTPTimeout bounds every outgoing request.
const HTTPTimeout = 60 * time.Second

// Environment variables that redirect dxm to mirrors or test servers.
const (
	EnvGitHubAPI    = "DXM_GITHUB_API"
	EnvGitHubWeb    = "DXM_GITHUB_WEB"
	EnvChangelogURL = "DXM_CHANGELOG_URL"
	EnvIndexURL     = "DXM_INDEX_URL"
	EnvRuntimeURL   = "DXM_RUNTIME_URL"
	EnvGitHubToken  = "GITHUB_TOKEN"
)

type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Platform defaults to the running OS.
	Platform *platform.Platform
}

type Service struct {
	Platform  platform.Platform
	GitHub    *github.Client
	Channels  *channel.Resolver
	Resources *source.Resolver
	Installer *installer.Installer
	Logger    *slog.Logger

	runtimeURL string
	audits     map[string]*audit.Logger
}

func New(opts Options) (*Service, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: HTTPTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := platform.Default()
	if opts.Platform != nil {
		p = *opts.Platform
	}
	ua := config.UserAgent()

	gh := &github.Client{
		BaseURL:    env(EnvGitHubAPI, github.DefaultBaseURL),
		HTTPClient: httpClient,
		UserAgent:  ua,
		Token:      strings.TrimSpace(os.Getenv(EnvGitHubToken)),
		Logger:     logger,
	}
	channels := &channel.Resolver{
		ChangelogURL: env(EnvChangelogURL, channel.DefaultChangelogURL),
		IndexURL:     env(EnvIndexURL, channel.DefaultIndexURL),
		HTTPClient:   httpClient,
		UserAgent:    ua,
		Logger:       logger,
	}
	resources := &source.Resolver{
		API:    gh,
		WebURL: env(EnvGitHubWeb, github.DefaultWebURL),
		Logger: logger,
	}
	inst := &installer.Installer{
		Downloader: &installer.Downloader{HTTPClient: httpClient, UserAgent: ua, Logger: logger},
		Logger:     logger,
	}
	return &Service{
		Platform:   p,
		GitHub:     gh,
		Channels:   channels,
		Resources:  resources,
		Installer:  inst,
		Logger:     logger,
		runtimeURL: env(EnvRuntimeURL, platform.DefaultRuntimeURL),
		audits:     map[string]*audit.Logger{},
	}, nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Root locates the server root at or above dir.
func (s *Service) Root(dir string) (string, error) {
	start, err := config.ResolveDir(dir)
	if err != nil {
		return "", err
	}
	return config.Find(start)
}

// Engine returns a sync engine that audits into root's log.
func (s *Service) Engine(root string) *syncsvc.Engine {
	return &syncsvc.Engine{
		Channels:   s.Channels,
		References: s.Resources,
		Commits:    s.GitHub,
		Installer:  s.Installer,
		Platform:   s.Platform,
		RuntimeURL: s.runtimeURL,
		Audit:      s.audit(root),
		Logger:     s.Logger,
	}
}

func (s *Service) audit(root string) *audit.Logger {
	if l, ok := s.audits[root]; ok {
		return l
	}
	l := audit.New(store.AuditPath(root))
	s.audits[root] = l
	return l
}

func (s *Service) Install(ctx context.Context, dir string) (syncsvc.Report, error) {
	root, err := s.Root(dir)
	if err != nil {
		return syncsvc.Report{}, err
	}
	return s.Engine(root).InstallAll(ctx, root)
}

// UpdateTarget selects what Update touches.
type UpdateTarget struct {
	All      bool
	Artifact bool
	Resource string
}

func (s *Service) Update(ctx context.Context, dir string, target UpdateTarget) (syncsvc.Report, error) {
	root, err := s.Root(dir)
	if err != nil {
		return syncsvc.Report{}, err
	}
	e := s.Engine(root)
	switch {
	case target.All:
		return e.UpdateAll(ctx, root)
	case target.Resource != "":
		return e.UpdateResource(ctx, root, target.Resource)
	case target.Artifact:
		return e.UpdateArtifact(ctx, root, syncsvc.ArtifactOptions{})
	}
	return syncsvc.Report{}, errs.Errorf(errs.Unknown, "APP_UPDATE_TARGET", "nothing selected to update")
}

func (s *Service) Add(ctx context.Context, dir, name string, rc config.ResourceConfig) (syncsvc.Report, error) {
	root, err := s.Root(dir)
	if err != nil {
		return syncsvc.Report{}, err
	}
	return s.Engine(root).AddResource(ctx, root, name, rc)
}

func (s *Service) Remove(ctx context.Context, dir, name string) (syncsvc.Report, error) {
	root, err := s.Root(dir)
	if err != nil {
		return syncsvc.Report{}, err
	}
	return s.Engine(root).RemoveResource(ctx, root, name)
}

func (s *Service) ArtifactInstall(ctx context.Context, dir string, opts syncsvc.ArtifactOptions) (syncsvc.Report, error) {
	root, err := s.Root(dir)
	if err != nil {
		return syncsvc.Report{}, err
	}
	return s.Engine(root).InstallArtifact(ctx, root, opts)
}

func (s *Service) ArtifactUpdate(ctx context.Context, dir string, opts syncsvc.ArtifactOptions) (syncsvc.Report, error) {
	root, err := s.Root(dir)
	if err != nil {
		return syncsvc.Report{}, err
	}
	return s.Engine(root).UpdateArtifact(ctx, root, opts)
}

// ArtifactList resolves every update channel for p.
func (s *Service) ArtifactList(ctx context.Context, p platform.Platform) ([]channel.Entry, error) {
	return s.Channels.List(ctx, p)
}

func (s *Service) Status(dir string) ([]syncsvc.EntityStatus, error) {
	root, err := s.Root(dir)
	if err != nil {
		return nil, err
	}
	return syncsvc.Status(root)
}

// Doctor diagnoses the server at or above dir. Without a manifest the
// report still carries host information.
func (s *Service) Doctor(ctx context.Context, dir string) doctor.Report {
	root, err := s.Root(dir)
	if err != nil {
		root = dir
	}
	svc := &doctor.Service{Root: root, Platform: s.Platform, Channels: s.Channels}
	return svc.Run(ctx)
}

func (s *Service) Init(ctx context.Context, dir string, opts scaffold.Options) (scaffold.Result, error) {
	abs, err := config.ResolveDir(dir)
	if err != nil {
		return scaffold.Result{}, err
	}
	return scaffold.Init(ctx, abs, opts)
}

func (s *Service) NewServer(ctx context.Context, dir string, opts scaffold.Options) (scaffold.Result, error) {
	abs, err := config.ResolveDir(dir)
	if err != nil {
		return scaffold.Result{}, err
	}
	return scaffold.New(ctx, abs, opts)
}
