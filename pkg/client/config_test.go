package client

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/m-lab/go/testingx"
	"github.com/m-lab/oosp/pkg/directory"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oosp.yaml")
	testingx.Must(t, os.WriteFile(path, []byte(content), 0644), "cannot write config")
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
source: /tmp/servers.xml
country: LV
city: Riga
id: "42"
ul_size: 1000
timeout: 30s
cache_ttl: 10m
`)
	got, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	want := DefaultConfig()
	want.Source = "/tmp/servers.xml"
	want.Criteria = directory.Criteria{Country: "LV", City: "Riga", ID: "42"}
	want.UploadSize = 1000
	want.Timeout = 30 * time.Second
	want.CacheTTL = 10 * time.Minute
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadConfigFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	_, err := LoadConfigFile(writeConfig(t, "contry: LV\n"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadConfigFile() error = %v, want ErrInvalidConfig", err)
	}
	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfigFile() error = %v, want ErrNotExist", err)
	}
}

func TestLoadConfigFile_Empty(t *testing.T) {
	got, err := LoadConfigFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	if got.UploadSize != DefaultConfig().UploadSize {
		t.Errorf("UploadSize = %d, want default", got.UploadSize)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "default", modify: func(*Config) {}},
		{name: "zero-upload", modify: func(c *Config) { c.UploadSize = 0 }},
		{name: "negative-upload", modify: func(c *Config) { c.UploadSize = -1 }, wantErr: true},
		{name: "negative-timeout", modify: func(c *Config) { c.Timeout = -time.Second }, wantErr: true},
		{name: "negative-ttl", modify: func(c *Config) { c.CacheTTL = -time.Second }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
