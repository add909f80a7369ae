package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dxm/internal/errs"
	"dxm/internal/github"
)

func notFound() error {
	return errs.New(errs.Network, "GH_HTTP", &github.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"})
}

type fakeAPI struct {
	latest    map[string]github.Release
	tagged    map[string]github.Release
	branches  map[string]bool
	defaults  map[string]string
	branchErr error
	apiErr    error
	calls     int
}

func (f *fakeAPI) LatestRelease(_ context.Context, owner, repo string) (github.Release, error) {
	f.calls++
	if rel, ok := f.latest[owner+"/"+repo]; ok {
		return rel, nil
	}
	if f.apiErr != nil {
		return github.Release{}, f.apiErr
	}
	return github.Release{}, notFound()
}

func (f *fakeAPI) ReleaseByTag(_ context.Context, owner, repo, tag string) (github.Release, error) {
	f.calls++
	if rel, ok := f.tagged[owner+"/"+repo+"@"+tag]; ok {
		return rel, nil
	}
	if f.apiErr != nil {
		return github.Release{}, f.apiErr
	}
	return github.Release{}, notFound()
}

func (f *fakeAPI) Repository(_ context.Context, owner, repo string) (github.Repository, error) {
	f.calls++
	if b, ok := f.defaults[owner+"/"+repo]; ok {
		return github.Repository{DefaultBranch: b}, nil
	}
	return github.Repository{}, notFound()
}

func (f *fakeAPI) BranchExists(_ context.Context, owner, repo, branch string) (bool, error) {
	f.calls++
	if f.branchErr != nil {
		return false, f.branchErr
	}
	return f.branches[owner+"/"+repo+"@"+branch], nil
}

func newFake() *fakeAPI {
	return &fakeAPI{
		latest: map[string]github.Release{
			"overextended/oxmysql": {TagName: "v2.11.2", Assets: []github.Asset{{Name: "oxmysql.zip", BrowserDownloadURL: "https://github.com/overextended/oxmysql/releases/download/v2.11.2/oxmysql.zip"}}},
			"o/tagonly":            {TagName: "v3.0.0"},
		},
		tagged: map[string]github.Release{
			"o/r@v1.2.3": {TagName: "v1.2.3"},
			"o/r@v1.3.0": {TagName: "v1.3.0", Assets: []github.Asset{{BrowserDownloadURL: "https://cdn.test/r-1.3.0.zip"}}},
		},
		branches: map[string]bool{"o/r@main": true},
		defaults: map[string]string{
			"citizenfx/cfx-server-data": "master",
			"o/r":                       "main",
		},
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"latest release asset", "https://github.com/overextended/oxmysql", "https://github.com/overextended/oxmysql/releases/download/v2.11.2/oxmysql.zip"},
		{"latest release without assets", "https://github.com/o/tagonly", "https://github.com/o/tagonly/archive/refs/tags/v3.0.0.zip"},
		{"no releases falls back to default branch", "https://github.com/citizenfx/cfx-server-data", "https://github.com/citizenfx/cfx-server-data/archive/refs/heads/master.zip"},
		{"git suffix", "https://github.com/citizenfx/cfx-server-data.git", "https://github.com/citizenfx/cfx-server-data/archive/refs/heads/master.zip"},
		{"scheme-less", "github.com/citizenfx/cfx-server-data", "https://github.com/citizenfx/cfx-server-data/archive/refs/heads/master.zip"},
		{"tagged release without assets", "https://github.com/o/r/releases/tag/v1.2.3", "https://github.com/o/r/archive/refs/tags/v1.2.3.zip"},
		{"tagged release asset", "https://github.com/o/r/releases/tag/v1.3.0", "https://cdn.test/r-1.3.0.zip"},
		{"bare releases page", "https://github.com/o/r/releases", "https://github.com/o/r/archive/refs/heads/main.zip"},
		{"branch", "https://github.com/o/r/tree/main", "https://github.com/o/r/archive/refs/heads/main.zip"},
		{"commit", "https://github.com/o/r/tree/0a1b2c3", "https://github.com/o/r/archive/0a1b2c3.zip"},
		{"query and fragment dropped", "https://github.com/o/r/tree/main?tab=readme#top", "https://github.com/o/r/archive/refs/heads/main.zip"},
		{"archive link kept", "https://github.com/o/r/archive/refs/heads/main.zip", "https://github.com/o/r/archive/refs/heads/main.zip"},
		{"release asset link kept", "https://github.com/o/r/releases/download/v1.0.0/r.zip", "https://github.com/o/r/releases/download/v1.0.0/r.zip"},
		{"other host unchanged", "https://example.test/resource.zip", "https://example.test/resource.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{API: newFake()}
			got, err := r.Resolve(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveNonRepositoryMakesNoCalls(t *testing.T) {
	api := newFake()
	r := &Resolver{API: api}
	if _, err := r.Resolve(context.Background(), "https://example.test/a.zip"); err != nil {
		t.Fatal(err)
	}
	if api.calls != 0 {
		t.Fatalf("expected no API calls, got %d", api.calls)
	}
}

func TestResolveInvalidReferences(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		reason Reason
	}{
		{"no author", "https://github.com/", NoAuthor},
		{"no author with slash", "https://github.com//r", NoAuthor},
		{"no name", "https://github.com/o", NoName},
		{"no name trailing slash", "https://github.com/o/", NoName},
		{"bad prefix", "https://notgithub.com/o/r", InvalidLink},
		{"missing tag", "https://github.com/o/r/releases/tag/v9.9.9", ReleaseFailed},
		{"no release no default", "https://github.com/o/missing", DefaultFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{API: newFake()}
			_, err := r.Resolve(context.Background(), tt.in)
			var ref *InvalidReferenceError
			if !errors.As(err, &ref) {
				t.Fatalf("Resolve(%q) expected invalid reference, got %v", tt.in, err)
			}
			if ref.Reason != tt.reason {
				t.Fatalf("Resolve(%q) reason = %s, want %s", tt.in, ref.Reason, tt.reason)
			}
			if !errs.IsKind(err, errs.InvalidReference) {
				t.Fatalf("expected invalid reference kind, got %s", errs.KindOf(err))
			}
		})
	}
}

func TestResolveBranchLookupErrorPropagates(t *testing.T) {
	api := newFake()
	api.branchErr = errs.Errorf(errs.Network, "GH_HTTP", "connection reset")
	r := &Resolver{API: api}
	_, err := r.Resolve(context.Background(), "https://github.com/o/r/tree/main")
	if !errs.IsKind(err, errs.Network) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestResolveLookupFailuresKeepTheirKind(t *testing.T) {
	for _, in := range []string{"https://github.com/o/missing", "https://github.com/o/r/releases/tag/v9.9.9"} {
		api := newFake()
		api.apiErr = errs.Errorf(errs.Network, "GH_HTTP", "connection reset")
		r := &Resolver{API: api}
		_, err := r.Resolve(context.Background(), in)
		var ref *InvalidReferenceError
		if errors.As(err, &ref) {
			t.Fatalf("Resolve(%q) reported invalid reference for a transport failure: %v", in, err)
		}
		if !errs.IsKind(err, errs.Network) {
			t.Fatalf("Resolve(%q) expected network error, got %v", in, err)
		}
	}
}

func TestResolveAgainstAPIServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/citizenfx/cfx-server-data/releases/latest":
			http.NotFound(w, r)
		case "/repos/citizenfx/cfx-server-data", "/repos/o/r":
			fmt.Fprint(w, `{"default_branch":"master"}`)
		case "/repos/o/r/releases/latest":
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"message":"Bad Gateway"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client := &github.Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	r := &Resolver{API: client, WebURL: "https://mirror.test/"}
	got, err := r.Resolve(context.Background(), "https://github.com/citizenfx/cfx-server-data")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := "https://mirror.test/citizenfx/cfx-server-data/archive/refs/heads/master.zip"; got != want {
		t.Fatalf("Resolve = %q, want %q", got, want)
	}

	got, err = r.Resolve(context.Background(), "https://github.com/o/r")
	if err == nil {
		t.Fatalf("expected upstream failure to propagate, resolved to %q", got)
	}
	if !errs.IsKind(err, errs.Network) {
		t.Fatalf("expected network error, got %v", err)
	}
}
