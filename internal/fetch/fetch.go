// Package fetch produces a local path to the dataset archive, either by
// validating a user-supplied path, reusing a cached download, or fetching
// the archive from upstream.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrArchiveNotFound means an explicitly supplied archive path does
	// not exist.
	ErrArchiveNotFound = errors.New("archive not found")
	// ErrDownloadFailed wraps any transport failure during download. Any
	// partially written cache file has been removed by the time it is
	// returned.
	ErrDownloadFailed = errors.New("download failed")
)

// Archive is an acquired archive on local disk. UserSupplied archives are
// never deleted by the provisioner.
type Archive struct {
	Path         string
	UserSupplied bool
}

type Acquirer struct {
	url       string
	cachePath string
	client    *http.Client
}

func NewAcquirer(url, cachePath string, timeout time.Duration) (*Acquirer, error) {
	if url == "" {
		return nil, errors.New("need download url")
	}
	if cachePath == "" {
		return nil, errors.New("need cache path")
	}
	return &Acquirer{
		url:       url,
		cachePath: cachePath,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// Acquire returns a usable archive. An explicit override path wins and is
// only validated, never copied or refreshed. Otherwise the cached archive
// is reused unless force is set or no cache exists, in which case the
// archive is downloaded to the cache path.
func (a *Acquirer) Acquire(ctx context.Context, override string, force bool) (*Archive, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return nil, fmt.Errorf("error resolving archive path: %w", err)
		}
		if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrArchiveNotFound, abs)
		} else if err != nil {
			return nil, err
		}
		log.Infof("using provided archive at %v", abs)
		return &Archive{Path: abs, UserSupplied: true}, nil
	}

	if !force {
		if _, err := os.Stat(a.cachePath); err == nil {
			log.Infof("using cached archive at %v", a.cachePath)
			return &Archive{Path: a.cachePath}, nil
		}
	}
	if err := a.download(ctx); err != nil {
		return nil, err
	}
	return &Archive{Path: a.cachePath}, nil
}

func (a *Acquirer) download(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(a.cachePath), 0o755); err != nil {
		return fmt.Errorf("error creating cache directory: %w", err)
	}
	log.Infof("downloading archive from %v -> %v", a.url, a.cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return a.failed(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return a.failed(fmt.Errorf("unexpected status %v", resp.Status))
	}

	out, err := os.Create(a.cachePath)
	if err != nil {
		return a.failed(err)
	}
	written, err := io.Copy(out, resp.Body)
	if err != nil {
		_ = out.Close()
		return a.failed(err)
	}
	if err := out.Close(); err != nil {
		return a.failed(err)
	}
	log.Debugf("downloaded %v bytes", written)
	return nil
}

// failed removes any partial cache file before wrapping the cause.
func (a *Acquirer) failed(cause error) error {
	if _, err := os.Stat(a.cachePath); err == nil {
		if rmErr := os.Remove(a.cachePath); rmErr != nil {
			log.Warnf("error removing partial download: %v", rmErr)
		}
	}
	return fmt.Errorf("%w: %w", ErrDownloadFailed, cause)
}
