package installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"dxm/internal/errs"
)

// Downloader streams archives to disk.
type Downloader struct {
	HTTPClient *http.Client
	UserAgent  string
	Logger     *slog.Logger
}

// Fetch downloads url into a new temporary file under dir and returns its
// path and size. The file is removed again on failure.
func (d *Downloader) Fetch(ctx context.Context, url, dir string) (string, int64, error) {
	d.logger().Debug("downloading archive", "url", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, errs.New(errs.Network, "INS_DOWNLOAD", err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, errs.New(errs.Network, "INS_DOWNLOAD", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, errs.Errorf(errs.Network, "INS_DOWNLOAD", "GET %s: status %d", url, resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "archive-*")
	if err != nil {
		return "", 0, errs.New(errs.IO, "INS_DOWNLOAD", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", 0, errs.New(errs.Network, "INS_DOWNLOAD", fmt.Errorf("read body of %s: %w", url, err))
	}
	d.logger().Debug("downloaded archive", "url", url, "bytes", n)
	return f.Name(), n, nil
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
