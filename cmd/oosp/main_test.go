package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-lab/go/rtx"
	"github.com/m-lab/oosp/internal/handler"
	"github.com/m-lab/oosp/pkg/directory"
)

func setupTestServer() *httptest.Server {
	h := handler.New(handler.Config{
		ProbeSize: 5000,
		ID:        "7",
		Country:   "LV",
		City:      "Riga",
		Provider:  "ExampleISP",
	})
	mux := http.NewServeMux()
	h.Register(mux)
	return httptest.NewServer(mux)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd(out)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	err := cmd.Execute()
	return out.String(), err
}

func TestRoot_Measure(t *testing.T) {
	srv := setupTestServer()
	defer srv.Close()

	out, err := execute(t, "-s", srv.URL+"/speedtest-servers-static.php", "-C", "LV", "-u", "1000")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{
		"Found server: LV, Riga (ExampleISP)",
		"DL: 5000 of 5000, done: 100%",
		"UL: 1000 of 1000, done: 100%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output does not contain %q:\n%s", want, out)
		}
	}
}

func TestRoot_List(t *testing.T) {
	srv := setupTestServer()
	defer srv.Close()

	out, err := execute(t, "--source", srv.URL+"/speedtest-servers-static.php")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "LV, Riga (ExampleISP)\n" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRoot_Errors(t *testing.T) {
	srv := setupTestServer()
	defer srv.Close()
	source := srv.URL + "/speedtest-servers-static.php"

	tests := []struct {
		name string
		args []string
		want error
	}{
		{
			name: "no-match",
			args: []string{"-s", source, "-i", "8"},
			want: directory.ErrNoUsableServer,
		},
		{
			name: "missing-source",
			args: []string{"-s", filepath.Join(t.TempDir(), "missing.xml"), "-C", "LV"},
			want: directory.ErrSourceUnavailable,
		},
		{
			name: "upload-refused",
			args: []string{"-s", writeDirectory(t, srv.URL+"/speedtest/missing/upload.php"), "-C", "LV"},
			want: errLegFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("Execute() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := execute(t, "-u", "-5"); err == nil {
		t.Errorf("Execute() accepted a negative upload size")
	}
	if _, err := execute(t, "extra"); err == nil {
		t.Errorf("Execute() accepted a positional argument")
	}
}

// writeDirectory writes a one-server directory with the given upload URL.
func writeDirectory(t *testing.T, uploadURL string) string {
	t.Helper()
	var buf bytes.Buffer
	rtx.Must(directory.Encode(&buf, []directory.ServerRecord{
		{ID: "1", Country: "LV", City: "Riga", Provider: "A", URL: uploadURL},
	}), "cannot encode directory")
	path := filepath.Join(t.TempDir(), "servers.xml")
	rtx.Must(os.WriteFile(path, buf.Bytes(), 0644), "cannot write directory")
	return path
}

func TestConfigFromFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oosp.yaml")
	rtx.Must(os.WriteFile(path, []byte("country: EE\ncity: Tallinn\nul_size: 10\ntimeout: 1m\n"), 0644),
		"cannot write config")

	cmd := newRootCmd(&bytes.Buffer{})
	rtx.Must(cmd.ParseFlags([]string{"--config", path, "-C", "LV", "--cache-ttl", "0s"}),
		"cannot parse flags")
	config, err := configFromFlags(cmd.Flags())
	if err != nil {
		t.Fatalf("configFromFlags() error = %v", err)
	}
	// Flags that were set override the file, the others keep its values.
	if config.Country != "LV" || config.City != "Tallinn" {
		t.Errorf("criteria = %v", config.Criteria)
	}
	if config.UploadSize != 10 || config.Timeout != time.Minute || config.CacheTTL != 0 {
		t.Errorf("config = %+v", config)
	}
}

func TestRoot_Help(t *testing.T) {
	out, err := execute(t, "-h")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, flag := range []string{"--country", "--city", "--provider", "--source", "--id", "--ul-size"} {
		if !strings.Contains(out, flag) {
			t.Errorf("usage does not mention %s", flag)
		}
	}
}
