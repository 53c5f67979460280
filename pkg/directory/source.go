package directory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/m-lab/oosp/internal/persistence"
	"github.com/m-lab/oosp/pkg/transfer/spec"
)

// Source describes where the directory is read from.
type Source struct {
	// Location is a file path or an http(s) URL. If empty, the directory is
	// fetched from DefaultURL and cached in CacheFile.
	Location string

	// DefaultURL is the URL used when Location is empty. Defaults to
	// spec.DefaultDirectoryURL.
	DefaultURL string

	// CacheFile is where the default directory is cached. Defaults to
	// spec.DefaultCacheName in the system's temporary directory.
	CacheFile string

	// CacheTTL is the maximum age of a cache file that can be reused. Zero
	// means the directory is always fetched again.
	CacheTTL time.Duration

	// HTTPClient is used to fetch the directory. It should follow redirects.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// UserAgent is the User-Agent header value. Defaults to spec.UserAgent.
	UserAgent string
}

// DefaultCacheFile returns the default location of the directory cache.
func DefaultCacheFile() string {
	return filepath.Join(os.TempDir(), spec.DefaultCacheName)
}

// Load reads and parses the directory described by src.
func Load(ctx context.Context, src Source) (*Directory, error) {
	switch {
	case isURL(src.Location):
		data, err := src.fetch(ctx, src.Location)
		if err != nil {
			return nil, err
		}
		return Parse(bytes.NewReader(data))
	case src.Location != "":
		return ParseFile(src.Location)
	default:
		return src.loadDefault(ctx)
	}
}

func (src Source) loadDefault(ctx context.Context) (*Directory, error) {
	cache := src.CacheFile
	if cache == "" {
		cache = DefaultCacheFile()
	}
	if fresh, age := persistence.IsFresh(cache, src.CacheTTL); fresh {
		log.Debug("using cached server list", "path", cache, "age", age.Round(time.Second))
		d, err := ParseFile(cache)
		if err == nil {
			return d, nil
		}
		log.Warn("cached server list is unusable", "path", cache, "error", err)
	}

	u := src.DefaultURL
	if u == "" {
		u = spec.DefaultDirectoryURL
	}
	log.Info("server list source not given, using default", "url", u, "cache", cache)
	data, err := src.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	if _, err := persistence.WriteDataFile(cache, bytes.NewReader(data)); err != nil {
		// The list can still be used for this run.
		log.Warn("cannot write server list cache", "path", cache, "error", err)
	}
	return Parse(bytes.NewReader(data))
}

// fetch downloads the document at u, following redirects and decoding any
// content encoding.
func (src Source) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	ua := src.UserAgent
	if ua == "" {
		ua = spec.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Encoding", "gzip, br, zstd")

	client := src.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: unexpected status %s", ErrSourceUnavailable, u, resp.Status)
	}

	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	log.Debug("server list fetched", "url", u, "bytes", len(data))
	return data, nil
}

// decodeBody returns a reader decoding body according to encoding.
func decodeBody(body io.Reader, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		return gzip.NewReader(body)
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	case "deflate":
		return flate.NewReader(body), nil
	case "zstd":
		zr, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case "", "identity":
		return io.NopCloser(body), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
