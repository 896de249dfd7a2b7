// Package payload retrieves the secondary encoded payload from the
// command-and-control infrastructure and recovers the embedded archive
// via the family's two-pass decode protocol.
package payload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a fetch; a timeout fails the stage, there is
// no retry.
const DefaultTimeout = 30 * time.Second

const maxRedirects = 10

var (
	// ErrFetchTimeout reports an elapsed fetch deadline.
	ErrFetchTimeout = errors.New("fetch timed out")
	// ErrTooManyRedirects reports a redirect loop.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrFetchFailed reports any other transport failure.
	ErrFetchFailed = errors.New("fetch failed")
)

// Fetcher issues GETs with a configurable client identity.
type Fetcher struct {
	UserAgent string
	Timeout   time.Duration
	log       *zap.Logger
}

// NewFetcher returns a Fetcher with the default timeout.
func NewFetcher(userAgent string, log *zap.Logger) *Fetcher {
	return &Fetcher{UserAgent: userAgent, Timeout: DefaultTimeout, log: log}
}

// Fetch downloads rawURL and persists the raw response body verbatim
// under destDir, returning the saved path.
func (f *Fetcher) Fetch(rawURL, destDir string) (string, error) {
	client := &http.Client{
		Timeout: f.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	f.log.Info("downloading secondary payload", zap.String("url", rawURL))
	resp, err := client.Do(req)
	if err != nil {
		return "", classifyFetchError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %s", ErrFetchFailed, resp.Status)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(destDir, fetchFilename(rawURL))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return "", classifyFetchError(err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	f.log.Info("saved secondary payload", zap.String("path", dst))
	return dst, nil
}

func classifyFetchError(err error) error {
	if errors.Is(err, ErrTooManyRedirects) {
		return ErrTooManyRedirects
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return ErrFetchTimeout
	}
	if os.IsTimeout(err) {
		return ErrFetchTimeout
	}
	return fmt.Errorf("%w: %v", ErrFetchFailed, err)
}

func fetchFilename(rawURL string) string {
	name := rawURL
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = "payload.bin"
	}
	return name
}
