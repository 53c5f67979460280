// Package client picks a server from a directory and measures the download
// and upload throughput against it.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-lab/oosp/internal/sampler"
	"github.com/m-lab/oosp/pkg/directory"
	"github.com/m-lab/oosp/pkg/transfer"
	"github.com/m-lab/oosp/pkg/transfer/model"
	"github.com/m-lab/oosp/pkg/transfer/spec"
)

// legs are the transfers of a measurement, in the order they run.
var legs = []spec.Direction{spec.DirectionDownload, spec.DirectionUpload}

// Summary is the outcome of Client.Run.
type Summary struct {
	// MeasurementID identifies this run in logs.
	MeasurementID string
	// Server is the chosen server. It is nil when the directory was only
	// listed.
	Server *directory.ServerRecord
	// Candidates holds the usable servers when no criteria were given.
	Candidates []directory.ServerRecord

	Results map[spec.Direction]model.Result
	Errors  map[spec.Direction]error
}

// Failed reports whether any leg failed.
func (s *Summary) Failed() bool {
	return len(s.Errors) > 0
}

// Client runs a measurement as described by its Config.
type Client struct {
	config Config
}

// New returns a new Client with the provided config. A nil Emitter is
// replaced with a HumanReadable one.
func New(config Config) *Client {
	if config.Emitter == nil {
		config.Emitter = HumanReadable{}
	}
	return &Client{config: config}
}

// Run loads the directory and selects a server. With no criteria, it emits
// the candidates and returns. Otherwise it downloads the probe file from the
// chosen server, then uploads UploadSize bytes to it.
//
// Directory, selection and URL errors are returned. Transfer failures are
// emitted, recorded in the Summary, and do not prevent the next leg from
// running.
func (c *Client) Run(ctx context.Context) (*Summary, error) {
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	summary := &Summary{
		MeasurementID: uuid.NewString(),
		Results:       map[spec.Direction]model.Result{},
		Errors:        map[spec.Direction]error{},
	}

	d, err := directory.Load(ctx, directory.Source{
		Location:   c.config.Source,
		CacheFile:  c.config.CacheFile,
		CacheTTL:   c.config.CacheTTL,
		HTTPClient: c.config.DirectoryClient,
		UserAgent:  c.config.UserAgent,
	})
	if err != nil {
		return summary, err
	}
	log.Debug("server list loaded", "mid", summary.MeasurementID, "servers", d.Len())

	sel := directory.Select(d.Records(), c.config.Criteria)
	if sel.Listed {
		summary.Candidates = sel.Candidates
		for _, r := range sel.Candidates {
			c.config.Emitter.OnCandidate(r)
		}
		return summary, nil
	}
	if sel.Server == nil {
		return summary, fmt.Errorf("%w matching %s", directory.ErrNoUsableServer, c.config.Criteria)
	}
	summary.Server = sel.Server
	c.config.Emitter.OnServerFound(*sel.Server)
	log.Debug("server selected", "mid", summary.MeasurementID, "id", sel.Server.ID,
		"url", sel.Server.URL)

	downloadURL, err := directory.DownloadURL(sel.Server.URL)
	if err != nil {
		return summary, fmt.Errorf("%w: %q", err, sel.Server.URL)
	}

	c.runLeg(ctx, summary, spec.DirectionDownload, func(tc transfer.Config, obs transfer.Observer) *transfer.Session {
		return transfer.NewDownload(tc, downloadURL, obs)
	})
	// The payload only exists once a server has been chosen.
	buf := transfer.NewBuffer(c.config.UploadSize, spec.FillerByte)
	c.runLeg(ctx, summary, spec.DirectionUpload, func(tc transfer.Config, obs transfer.Observer) *transfer.Session {
		return transfer.NewUpload(tc, sel.Server.URL, buf, obs)
	})

	c.config.Emitter.OnSummary(summary)
	return summary, nil
}

func (c *Client) runLeg(ctx context.Context, summary *Summary, direction spec.Direction,
	newSession func(transfer.Config, transfer.Observer) *transfer.Session) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	tc := transfer.Config{
		HTTPClient: c.config.HTTPClient,
		UserAgent:  c.config.UserAgent,
	}
	smp := sampler.New(direction, c.config.Emitter.OnProgress)
	session := newSession(tc, smp)

	c.config.Emitter.OnStart(direction, session.URL())
	result, err := session.Run(ctx)
	summary.Results[direction] = result
	if err != nil {
		log.Debug("transfer failed", "mid", summary.MeasurementID, "direction", direction,
			"bytes", result.Bytes, "error", err)
		summary.Errors[direction] = err
		c.config.Emitter.OnError(err)
		return
	}
	log.Debug("transfer complete", "mid", summary.MeasurementID, "direction", direction,
		"bytes", result.Bytes, "elapsed", result.Elapsed.Round(time.Millisecond),
		"progress_shown", smp.Completed())
	c.config.Emitter.OnComplete(result)
}
