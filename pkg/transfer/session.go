// Package transfer implements the HTTP download and upload sessions used to
// measure throughput against a server.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/m-lab/oosp/pkg/transfer/model"
	"github.com/m-lab/oosp/pkg/transfer/spec"
)

var (
	// ErrTransferFailure is returned when a session does not complete: the
	// request failed, the server answered with a non-2xx status or the
	// payload was not fully transferred.
	ErrTransferFailure = errors.New("transfer failed")

	// ErrSessionUsed is returned by Run when the session already ran.
	ErrSessionUsed = errors.New("session already used")
)

// Observer receives progress reports from a session. Observe is called
// synchronously from the transfer path, possibly from the HTTP transport's
// own goroutine, and must not block.
type Observer interface {
	Observe(transferred, total int64)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(transferred, total int64)

// Observe calls f.
func (f ObserverFunc) Observe(transferred, total int64) {
	f(transferred, total)
}

// Config is the configuration shared by transfer sessions.
type Config struct {
	// HTTPClient is the client used to run the request. If nil, a client
	// returned by NewHTTPClient is used.
	HTTPClient *http.Client

	// UserAgent is the User-Agent header value. Defaults to spec.UserAgent.
	UserAgent string
}

// NewHTTPClient returns an *http.Client that does not follow redirects: a
// measurement must hit the URL it was given. Responses are never decompressed
// by the transport, so byte counts are the bytes received from the network.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:              http.ProxyFromEnvironment,
			DisableCompression: true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Session is a single HTTP transfer: a GET whose body is discarded, or a PUT
// whose body is read from a Buffer.
type Session struct {
	direction spec.Direction
	url       string
	client    *http.Client
	userAgent string
	buffer    *Buffer
	observer  Observer

	transferred atomic.Int64
	total       atomic.Int64
	started     atomic.Bool
}

func newSession(cfg Config, direction spec.Direction, url string, observer Observer) *Session {
	s := &Session{
		direction: direction,
		url:       url,
		client:    cfg.HTTPClient,
		userAgent: cfg.UserAgent,
		observer:  observer,
	}
	if s.client == nil {
		s.client = NewHTTPClient()
	}
	if s.userAgent == "" {
		s.userAgent = spec.UserAgent
	}
	return s
}

// NewDownload returns a download session for url. The expected total is
// unknown until the server answers.
func NewDownload(cfg Config, url string, observer Observer) *Session {
	s := newSession(cfg, spec.DirectionDownload, url, observer)
	s.total.Store(-1)
	return s
}

// NewUpload returns an upload session sending the unread part of buf to url.
// The session owns buf until Run returns.
func NewUpload(cfg Config, url string, buf *Buffer, observer Observer) *Session {
	s := newSession(cfg, spec.DirectionUpload, url, observer)
	s.buffer = buf
	s.total.Store(int64(buf.Len()))
	return s
}

// URL returns the target URL of this session.
func (s *Session) URL() string {
	return s.url
}

// Progress returns the number of bytes transferred so far and the expected
// total. The total is negative while unknown.
func (s *Session) Progress() (transferred, total int64) {
	return s.transferred.Load(), s.total.Load()
}

// Run executes the transfer. It blocks until the transfer completes, fails or
// ctx is done. On success, the observer has seen the final (total, total)
// report exactly once.
func (s *Session) Run(ctx context.Context) (model.Result, error) {
	result := model.Result{
		Direction: s.direction,
		URL:       s.url,
	}
	if !s.started.CompareAndSwap(false, true) {
		return result, ErrSessionUsed
	}

	start := time.Now()
	var err error
	switch s.direction {
	case spec.DirectionDownload:
		err = s.download(ctx)
	case spec.DirectionUpload:
		err = s.upload(ctx)
	default:
		err = fmt.Errorf("invalid direction: %q", s.direction)
	}
	result.Elapsed = time.Since(start)
	result.Bytes, result.Total = s.Progress()
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrTransferFailure, err)
	}

	result.Completed = true
	if s.observer != nil && result.Total > 0 {
		s.observer.Observe(result.Total, result.Total)
	}
	return result, nil
}

func (s *Session) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.userAgent)
	// An explicit Accept-Encoding also keeps a caller-provided client from
	// decompressing the body behind the counter.
	req.Header.Set("Accept-Encoding", "identity")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	s.total.Store(resp.ContentLength)

	if _, err := io.Copy(counter{s}, resp.Body); err != nil {
		return err
	}
	transferred := s.transferred.Load()
	if total := s.total.Load(); total < 0 {
		s.total.Store(transferred)
	} else if transferred != total {
		return fmt.Errorf("received %d of %d bytes", transferred, total)
	}
	return nil
}

func (s *Session) upload(ctx context.Context) error {
	var body io.Reader = http.NoBody
	size := int64(s.buffer.Len())
	if size > 0 {
		body = &progressReader{r: s.buffer, s: s}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("User-Agent", s.userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// The response body carries nothing of interest.
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	if sent := s.transferred.Load(); sent != size {
		return fmt.Errorf("sent %d of %d bytes", sent, size)
	}
	return nil
}

// add records n transferred bytes. Reaching the total is not reported here:
// Run reports it once the request has succeeded.
func (s *Session) add(n int) {
	if n <= 0 {
		return
	}
	transferred := s.transferred.Add(int64(n))
	total := s.total.Load()
	if total >= 0 && transferred >= total {
		return
	}
	if s.observer != nil {
		s.observer.Observe(transferred, total)
	}
}

// counter is the sink downloaded bytes are counted into and discarded.
type counter struct {
	s *Session
}

func (c counter) Write(p []byte) (int, error) {
	c.s.add(len(p))
	return len(p), nil
}

// progressReader counts the bytes the transport reads from the upload body.
type progressReader struct {
	r io.Reader
	s *Session
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.s.add(n)
	return n, err
}
