// Package github is a small typed client for the GitHub REST endpoints dxm
// needs to resolve repository links and artifact commits.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"dxm/internal/errs"
)

const (
	apiVersion = "2022-11-28"
	// DefaultBaseURL is the public GitHub API.
	DefaultBaseURL = "https://api.github.com"
	// DefaultWebURL is the host archive URLs are built against.
	DefaultWebURL = "https://github.com"
)

// Client issues GitHub REST API requests.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	// Token is sent as a bearer token when set.
	Token  string
	Logger *slog.Logger
}

// Release is the subset of a GitHub release dxm reads.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset is a file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Repository is the subset of repository metadata dxm reads.
type Repository struct {
	DefaultBranch string `json:"default_branch"`
}

type gitRef struct {
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"object"`
}

// LatestRelease fetches the newest published release of owner/repo.
func (c *Client) LatestRelease(ctx context.Context, owner, repo string) (Release, error) {
	var out Release
	err := c.getJSON(ctx, c.repoPath(owner, repo)+"/releases/latest", &out)
	return out, err
}

// ReleaseByTag fetches the release of owner/repo tagged tag.
func (c *Client) ReleaseByTag(ctx context.Context, owner, repo, tag string) (Release, error) {
	var out Release
	err := c.getJSON(ctx, c.repoPath(owner, repo)+"/releases/tags/"+tag, &out)
	return out, err
}

// Repository fetches repository metadata.
func (c *Client) Repository(ctx context.Context, owner, repo string) (Repository, error) {
	var out Repository
	err := c.getJSON(ctx, c.repoPath(owner, repo), &out)
	return out, err
}

// BranchExists probes the branch ref with a HEAD request. Any non-2xx answer
// counts as absent; only transport failures are errors.
func (c *Client) BranchExists(ctx context.Context, owner, repo, branch string) (bool, error) {
	resp, err := c.do(ctx, http.MethodHead, c.url(c.repoPath(owner, repo)+"/git/refs/heads/"+branch))
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// TagCommitSHA resolves an annotated or lightweight tag to its commit SHA by
// following the ref's object URL.
func (c *Client) TagCommitSHA(ctx context.Context, owner, repo, tag string) (string, error) {
	var ref gitRef
	if err := c.getJSON(ctx, c.repoPath(owner, repo)+"/git/ref/tags/"+tag, &ref); err != nil {
		return "", err
	}
	if ref.Object.Type == "commit" && ref.Object.SHA != "" {
		return ref.Object.SHA, nil
	}
	if ref.Object.URL == "" {
		return "", errs.Errorf(errs.Decode, "GH_DECODE", "tag %s has no object url", tag)
	}
	var obj gitRef
	if err := c.getJSONURL(ctx, ref.Object.URL, &obj); err != nil {
		return "", err
	}
	if obj.Object.SHA == "" {
		return "", errs.Errorf(errs.Decode, "GH_DECODE", "tag %s object has no sha", tag)
	}
	return obj.Object.SHA, nil
}

func (c *Client) repoPath(owner, repo string) string {
	return "/repos/" + owner + "/" + repo
}

func (c *Client) url(path string) string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + path
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.getJSONURL(ctx, c.url(path), out)
}

func (c *Client) getJSONURL(ctx context.Context, url string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.New(errs.Network, "GH_HTTP", fmt.Errorf("reading response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.New(errs.Network, "GH_HTTP", newAPIError(resp.StatusCode, body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.New(errs.Decode, "GH_DECODE", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errs.New(errs.Network, "GH_REQUEST", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	c.logger().Debug("github request", "method", method, "url", url)
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.New(errs.Network, "GH_HTTP", err)
	}
	return resp, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
