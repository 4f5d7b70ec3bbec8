// Package fetch downloads the executables relayctl launches.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"relayctl/pkg/logging"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"
)

const subsystem = "Fetch"

// DownloadFailure reports a binary that could not be acquired.
type DownloadFailure struct {
	Name string
	URL  string
	Err  error
}

func (e *DownloadFailure) Error() string {
	return fmt.Sprintf("download %s from %s failed: %v", e.Name, e.URL, e.Err)
}

func (e *DownloadFailure) Unwrap() error { return e.Err }

// Item is one binary to download.
type Item struct {
	Name string // logical name, e.g. "relay"
	URL  string
	Path string // destination file
}

// Downloader fetches binaries over HTTP with retries.
type Downloader struct {
	client *retryablehttp.Client
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithRetries sets the number of retries per download.
func WithRetries(n int) Option {
	return func(d *Downloader) { d.client.RetryMax = n }
}

// New returns a Downloader logging through the application logger.
func New(opts ...Option) *Downloader {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 2 * time.Minute
	client.Logger = logging.Logger()

	d := &Downloader{client: client}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads url to dest. The file appears at dest only once complete.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// FetchAll downloads every item in parallel and marks each executable. The
// first failure cancels the remaining downloads.
func (d *Downloader) FetchAll(ctx context.Context, items []Item) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := d.Fetch(gctx, item.URL, item.Path); err != nil {
				return &DownloadFailure{Name: item.Name, URL: item.URL, Err: err}
			}
			if err := MarkExecutable(item.Path); err != nil {
				return &DownloadFailure{Name: item.Name, URL: item.URL, Err: err}
			}
			logging.Info(subsystem, "Downloaded %s as %s", item.Name, filepath.Base(item.Path))
			return nil
		})
	}
	return g.Wait()
}

// MarkExecutable sets the executable bits on path.
func MarkExecutable(path string) error {
	if err := os.Chmod(path, 0o775); err != nil {
		return fmt.Errorf("failed to mark %s executable: %w", filepath.Base(path), err)
	}
	return nil
}

// Arch maps a GOARCH value onto the download family, "arm" or "amd".
func Arch(goarch string) string {
	switch goarch {
	case "arm", "arm64", "aarch64":
		return "arm"
	default:
		return "amd"
	}
}

const letters = "abcdefghijklmnopqrstuvwxyz"

// RandomName returns a random 6-letter lowercase file name.
func RandomName() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}

// RandomNames returns n distinct random names.
func RandomNames(n int) []string {
	seen := make(map[string]bool, n)
	names := make([]string, 0, n)
	for len(names) < n {
		name := RandomName()
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
