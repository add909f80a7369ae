package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"dxm/internal/errs"
	"dxm/internal/platform"
)

const (
	DefaultChangelogURL = "https://changelogs-live.fivem.net/api/changelog/versions"
	DefaultIndexURL     = "https://artifacts.jgscripts.com/json"
)

// Versions is the changelog feed record for one platform.
type Versions struct {
	Critical           string `json:"critical"`
	Recommended        string `json:"recommended"`
	Optional           string `json:"optional"`
	Latest             string `json:"latest"`
	CriticalTxAdmin    string `json:"critical_txadmin,omitempty"`
	RecommendedTxAdmin string `json:"recommended_txadmin,omitempty"`
	OptionalTxAdmin    string `json:"optional_txadmin,omitempty"`
	LatestTxAdmin      string `json:"latest_txadmin,omitempty"`
}

// Version selects the build for c. LatestJg is not part of the changelog
// feed and must be resolved through Resolver.Recommended.
func (v Versions) Version(c Channel) (string, error) {
	switch c {
	case Critical:
		return v.Critical, nil
	case Recommended:
		return v.Recommended, nil
	case Optional:
		return v.Optional, nil
	case Latest:
		return v.Latest, nil
	case LatestJg:
		return "", fmt.Errorf("CHN_UNSUPPORTED: channel %s is not served by the changelog feed", c)
	default:
		return "", fmt.Errorf("CHN_UNSUPPORTED: unknown channel %q", c)
	}
}

type indexRecord struct {
	RecommendedArtifact string `json:"recommendedArtifact"`
}

// Entry pairs a channel with the build it currently points at.
type Entry struct {
	Channel Channel `json:"channel"`
	Version string  `json:"version"`
}

// Resolver fetches the changelog feed and the community index.
type Resolver struct {
	ChangelogURL string
	IndexURL     string
	HTTPClient   *http.Client
	UserAgent    string
	Logger       *slog.Logger
}

// Resolve maps c to a concrete build number for p.
func (r *Resolver) Resolve(ctx context.Context, p platform.Platform, c Channel) (string, error) {
	if c == LatestJg {
		return r.Recommended(ctx)
	}
	versions, err := r.Versions(ctx, p)
	if err != nil {
		return "", err
	}
	v, err := versions.Version(c)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", errs.Errorf(errs.Decode, "CHN_EMPTY", "changelog feed has no build for channel %s", c)
	}
	return v, nil
}

// Versions fetches the changelog record for p.
func (r *Resolver) Versions(ctx context.Context, p platform.Platform) (Versions, error) {
	base := strings.TrimRight(r.changelogURL(), "/")
	url := base + "/" + p.ChangelogName() + "/server"
	var out Versions
	if err := r.getJSON(ctx, url, &out); err != nil {
		return Versions{}, err
	}
	return out, nil
}

// Recommended fetches the build recommended by the community index.
func (r *Resolver) Recommended(ctx context.Context) (string, error) {
	var out indexRecord
	if err := r.getJSON(ctx, r.indexURL(), &out); err != nil {
		return "", err
	}
	if out.RecommendedArtifact == "" {
		return "", errs.Errorf(errs.Decode, "CHN_EMPTY", "index feed has no recommended artifact")
	}
	return out.RecommendedArtifact, nil
}

// List resolves every channel for p.
func (r *Resolver) List(ctx context.Context, p platform.Platform) ([]Entry, error) {
	versions, err := r.Versions(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(All()))
	for _, c := range All() {
		if c == LatestJg {
			continue
		}
		v, _ := versions.Version(c)
		out = append(out, Entry{Channel: c, Version: v})
	}
	jg, err := r.Recommended(ctx)
	if err != nil {
		return nil, err
	}
	return append(out, Entry{Channel: LatestJg, Version: jg}), nil
}

func (r *Resolver) getJSON(ctx context.Context, url string, out any) error {
	r.logger().Debug("fetching channel feed", "url", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.New(errs.Network, "CHN_REQUEST", err)
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.httpClient().Do(req)
	if err != nil {
		return errs.New(errs.Network, "CHN_HTTP", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.Errorf(errs.Network, "CHN_HTTP", "GET %s: status %d", url, resp.StatusCode)
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.Network, "CHN_HTTP", err)
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return errs.New(errs.Decode, "CHN_DECODE", err)
	}
	return nil
}

func (r *Resolver) changelogURL() string {
	if r.ChangelogURL != "" {
		return r.ChangelogURL
	}
	return DefaultChangelogURL
}

func (r *Resolver) indexURL() string {
	if r.IndexURL != "" {
		return r.IndexURL
	}
	return DefaultIndexURL
}

func (r *Resolver) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
