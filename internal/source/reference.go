// Package source turns free-form resource links into concrete archive URLs.
package source

import (
	"context"
	"log/slog"
	"strings"

	"dxm/internal/github"
)

const hostMarker = "github.com/"

// API is the slice of the hosting API the resolver needs.
type API interface {
	LatestRelease(ctx context.Context, owner, repo string) (github.Release, error)
	ReleaseByTag(ctx context.Context, owner, repo, tag string) (github.Release, error)
	Repository(ctx context.Context, owner, repo string) (github.Repository, error)
	BranchExists(ctx context.Context, owner, repo, branch string) (bool, error)
}

// Resolver maps repository links to archive download URLs.
type Resolver struct {
	API API
	// WebURL is the host archive URLs are built against.
	WebURL string
	Logger *slog.Logger
}

// Link is a parsed repository reference.
type Link struct {
	Owner    string
	Repo     string
	Type     string
	Selector string
	Release  string
	File     string
}

// IsRelease reports whether the link points below /releases.
func (l Link) IsRelease() bool { return l.Type == "releases" }

// ParseLink splits a repository URL. ok is false when raw is not a
// repository link at all.
func ParseLink(raw string) (link Link, ok bool, err error) {
	prefix, rest, found := strings.Cut(raw, hostMarker)
	if !found {
		return Link{}, false, nil
	}
	if prefix != "" && !strings.HasSuffix(prefix, "//") {
		return Link{}, true, &InvalidReferenceError{Reason: InvalidLink, Ref: raw}
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	parts := strings.Split(rest, "/")
	at := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	link = Link{
		Owner:    at(0),
		Repo:     strings.TrimSuffix(at(1), ".git"),
		Type:     at(2),
		Selector: at(3),
		Release:  at(4),
		File:     at(5),
	}
	if link.Owner == "" {
		return Link{}, true, &InvalidReferenceError{Reason: NoAuthor, Ref: raw}
	}
	if link.Repo == "" {
		return Link{}, true, &InvalidReferenceError{Reason: NoName, Ref: raw}
	}
	return link, true, nil
}

// Resolve returns the archive URL for raw, or raw itself when it is not a
// repository link.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	link, ok, err := ParseLink(raw)
	if err != nil {
		return "", err
	}
	if !ok {
		return raw, nil
	}
	log := r.logger().With("owner", link.Owner, "repo", link.Repo)

	switch {
	case link.Type == "archive":
		return raw, nil
	case link.IsRelease() && link.Selector == "download" && link.Release != "" && link.File != "":
		return raw, nil
	case link.Type == "" || link.Selector == "" || (link.IsRelease() && link.Release == ""):
		log.Debug("resolving default reference")
		return r.resolveDefault(ctx, link, raw)
	case link.IsRelease():
		log.Debug("resolving release", "tag", link.Release)
		release, err := r.API.ReleaseByTag(ctx, link.Owner, link.Repo, link.Release)
		if github.IsNotFound(err) {
			return "", &InvalidReferenceError{Reason: ReleaseFailed, Ref: raw, Err: err}
		}
		if err != nil {
			return "", err
		}
		return r.releaseURL(link, release), nil
	default:
		exists, err := r.API.BranchExists(ctx, link.Owner, link.Repo, link.Selector)
		if err != nil {
			return "", err
		}
		if exists {
			return r.archiveURL(link, "refs/heads/"+link.Selector), nil
		}
		log.Debug("no such branch, treating selector as commit", "selector", link.Selector)
		return r.archiveURL(link, link.Selector), nil
	}
}

func (r *Resolver) resolveDefault(ctx context.Context, link Link, raw string) (string, error) {
	release, err := r.API.LatestRelease(ctx, link.Owner, link.Repo)
	if err == nil {
		return r.releaseURL(link, release), nil
	}
	// Only a repository without any release falls back to its default branch.
	if !github.IsNotFound(err) {
		return "", err
	}
	r.logger().Debug("no latest release, falling back to default branch", "owner", link.Owner, "repo", link.Repo)
	repo, err := r.API.Repository(ctx, link.Owner, link.Repo)
	if github.IsNotFound(err) {
		return "", &InvalidReferenceError{Reason: DefaultFailed, Ref: raw, Err: err}
	}
	if err != nil {
		return "", err
	}
	if repo.DefaultBranch == "" {
		return "", &InvalidReferenceError{Reason: DefaultFailed, Ref: raw}
	}
	return r.archiveURL(link, "refs/heads/"+repo.DefaultBranch), nil
}

func (r *Resolver) releaseURL(link Link, release github.Release) string {
	if len(release.Assets) > 0 && release.Assets[0].BrowserDownloadURL != "" {
		return release.Assets[0].BrowserDownloadURL
	}
	return r.archiveURL(link, "refs/tags/"+release.TagName)
}

func (r *Resolver) archiveURL(link Link, ref string) string {
	base := r.WebURL
	if base == "" {
		base = github.DefaultWebURL
	}
	return strings.TrimRight(base, "/") + "/" + link.Owner + "/" + link.Repo + "/archive/" + ref + ".zip"
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
