package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/m-lab/oosp/pkg/directory"
	"github.com/m-lab/oosp/pkg/transfer/spec"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a Config cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the configuration for a Client.
type Config struct {
	// Source is a file path or an http(s) URL of the server directory. If
	// empty, the public directory is fetched and cached locally.
	Source string `yaml:"source"`

	// Criteria narrows the directory down to one server. With no criteria,
	// the usable servers are listed and no measurement runs.
	directory.Criteria `yaml:",inline"`

	// UploadSize is the size of the upload payload, in bytes.
	UploadSize int `yaml:"ul_size"`

	// UserAgent is sent with every request. Defaults to spec.UserAgent.
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds each of the download and upload legs. Zero means no
	// timeout.
	Timeout time.Duration `yaml:"timeout"`

	// CacheFile and CacheTTL control the cache of the public directory.
	CacheFile string        `yaml:"cache_file"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	// Emitter is the interface used to emit the results of the test. It can
	// be overridden to provide a custom output.
	Emitter Emitter `yaml:"-"`

	// HTTPClient runs the transfers. It must not follow redirects. If nil,
	// transfer.NewHTTPClient is used.
	HTTPClient *http.Client `yaml:"-"`

	// DirectoryClient fetches the directory. If nil, http.DefaultClient is
	// used.
	DirectoryClient *http.Client `yaml:"-"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		UploadSize: spec.DefaultUploadSize,
		UserAgent:  spec.UserAgent,
		CacheFile:  directory.DefaultCacheFile(),
		CacheTTL:   spec.DefaultCacheTTL,
	}
}

// LoadConfigFile reads a YAML configuration file on top of DefaultConfig.
// Unknown keys are rejected.
func LoadConfigFile(path string) (Config, error) {
	config := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// An empty file is a valid configuration.
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return config, nil
}

// Validate checks that the configuration can be used to run a measurement.
func (c Config) Validate() error {
	if c.UploadSize < 0 {
		return fmt.Errorf("%w: negative upload size %d", ErrInvalidConfig, c.UploadSize)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidConfig, c.Timeout)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%w: negative cache TTL %v", ErrInvalidConfig, c.CacheTTL)
	}
	return nil
}
