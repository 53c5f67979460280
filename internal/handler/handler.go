// Package handler implements the HTTP resources of a speedtest-compatible
// endpoint: the download probe, the upload sink and a one-entry directory.
package handler

import (
	"bytes"
	"crypto/rand"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/oosp/internal/netx"
	"github.com/m-lab/oosp/pkg/directory"
	"github.com/m-lab/oosp/pkg/transfer/spec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultProbeSize is the default size of the download probe, in bytes.
const DefaultProbeSize = 10 * 1000 * 1000

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oosp_requests_total",
			Help: "Number of requests served, by resource and status code.",
		},
		[]string{"resource", "code"},
	)
	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oosp_transfer_bytes_total",
			Help: "Application-level bytes sent or received, by direction.",
		},
		[]string{"direction"},
	)
	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oosp_transfer_duration_seconds",
			Help:    "Duration of completed transfers, by direction.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"direction"},
	)
)

// Config is the configuration of a Handler.
type Config struct {
	// ProbeSize is the size of the download probe. Defaults to
	// DefaultProbeSize.
	ProbeSize int

	// ID, Country, City and Provider describe this server in the published
	// directory.
	ID       string
	Country  string
	City     string
	Provider string
}

// Handler serves the probe, upload and directory resources.
type Handler struct {
	config Config
	probe  []byte
}

// New returns a Handler. The probe payload is generated once and reused for
// every download.
func New(config Config) *Handler {
	if config.ProbeSize <= 0 {
		config.ProbeSize = DefaultProbeSize
	}
	probe := make([]byte, config.ProbeSize)
	// crypto/rand.Read never returns an error on supported platforms.
	rand.Read(probe)
	return &Handler{
		config: config,
		probe:  probe,
	}
}

// Register adds the handler's resources to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(spec.EndpointPrefix+"/"+spec.ProbeFile, h.Download)
	mux.HandleFunc(spec.EndpointPrefix+"/"+spec.UploadFile, h.Upload)
	mux.HandleFunc(spec.DirectoryPath, h.Directory)
}

// Download sends the probe payload with its Content-Length.
func (h *Handler) Download(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		h.methodNotAllowed(rw, "download", http.MethodGet, http.MethodHead)
		return
	}
	rw.Header().Set("Content-Type", "image/jpeg")
	rw.Header().Set("Content-Length", strconv.Itoa(len(h.probe)))
	rw.Header().Set("Cache-Control", "no-store")
	requestsTotal.WithLabelValues("download", "200").Inc()
	if req.Method == http.MethodHead {
		return
	}

	start := time.Now()
	n, err := io.Copy(rw, bytes.NewReader(h.probe))
	bytesTotal.WithLabelValues(string(spec.DirectionDownload)).Add(float64(n))
	if err != nil {
		log.Info("download interrupted", "source", req.RemoteAddr, "sent", n, "error", err)
		return
	}
	transferDuration.WithLabelValues(string(spec.DirectionDownload)).Observe(time.Since(start).Seconds())
	logConn(req, "download complete", n)
}

// Upload reads and discards the request body, then replies with the number
// of bytes received as "size=N".
func (h *Handler) Upload(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut && req.Method != http.MethodPost {
		h.methodNotAllowed(rw, "upload", http.MethodPut, http.MethodPost)
		return
	}
	start := time.Now()
	n, err := io.Copy(io.Discard, req.Body)
	bytesTotal.WithLabelValues(string(spec.DirectionUpload)).Add(float64(n))
	if err != nil {
		log.Info("upload interrupted", "source", req.RemoteAddr, "received", n, "error", err)
		requestsTotal.WithLabelValues("upload", "400").Inc()
		rw.Header().Set("Connection", "Close")
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	transferDuration.WithLabelValues(string(spec.DirectionUpload)).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues("upload", "200").Inc()
	rw.Header().Set("Content-Type", "text/plain")
	rw.Write([]byte("size=" + strconv.FormatInt(n, 10)))
	logConn(req, "upload complete", n)
}

// Directory publishes a directory listing this server only. The upload URL
// is built from the request's Host header.
func (h *Handler) Directory(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		h.methodNotAllowed(rw, "directory", http.MethodGet)
		return
	}
	rw.Header().Set("Content-Type", "text/xml; charset=utf-8")
	err := directory.Encode(rw, []directory.ServerRecord{h.Record(req)})
	if err != nil {
		log.Error("failed to write directory", "source", req.RemoteAddr, "error", err)
		requestsTotal.WithLabelValues("directory", "500").Inc()
		return
	}
	requestsTotal.WithLabelValues("directory", "200").Inc()
}

// Record returns the directory entry of this server as seen by req.
func (h *Handler) Record(req *http.Request) directory.ServerRecord {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	return directory.ServerRecord{
		ID:       h.config.ID,
		Country:  h.config.Country,
		City:     h.config.City,
		Provider: h.config.Provider,
		URL:      scheme + "://" + req.Host + spec.EndpointPrefix + "/" + spec.UploadFile,
	}
}

func (h *Handler) methodNotAllowed(rw http.ResponseWriter, resource string, allowed ...string) {
	requestsTotal.WithLabelValues(resource, "405").Inc()
	for _, m := range allowed {
		rw.Header().Add("Allow", m)
	}
	rw.WriteHeader(http.StatusMethodNotAllowed)
}

// logConn logs a completed transfer with the connection's identifier and
// counters, when the server was set up with a netx.Listener.
func logConn(req *http.Request, msg string, n int64) {
	ci, ok := netx.FromContext(req.Context())
	if !ok {
		log.Debug(msg, "source", req.RemoteAddr, "bytes", n)
		return
	}
	read, written := ci.ByteCounters()
	log.Debug(msg, "source", req.RemoteAddr, "bytes", n, "uuid", ci.UUID(),
		"conn_read", read, "conn_written", written,
		"conn_age", time.Since(ci.AcceptTime()).Round(time.Millisecond))
}
