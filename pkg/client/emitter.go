package client

import (
	"fmt"
	"io"
	"os"

	"github.com/m-lab/oosp/pkg/directory"
	"github.com/m-lab/oosp/pkg/transfer/model"
	"github.com/m-lab/oosp/pkg/transfer/spec"
)

// Emitter is an interface for emitting results.
type Emitter interface {
	// OnCandidate is called for every usable server when no criteria were
	// given.
	OnCandidate(r directory.ServerRecord)
	// OnServerFound is called when a server matching the criteria is chosen.
	OnServerFound(r directory.ServerRecord)
	// OnStart is called when a transfer starts.
	OnStart(direction spec.Direction, url string)
	// OnProgress is called on every sample of a transfer.
	OnProgress(s model.Sample)
	// OnError is called on errors.
	OnError(err error)
	// OnComplete is called after a transfer completes successfully.
	OnComplete(r model.Result)
	// OnDebug is called to print debug information.
	OnDebug(msg string)
	// OnSummary is called to print summary information.
	OnSummary(s *Summary)
}

// HumanReadable prints human-readable output to Out, or stdout if Out is nil.
// It can be configured to include debug output, too.
type HumanReadable struct {
	Debug bool
	Out   io.Writer
}

func (e HumanReadable) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

// OnCandidate prints the server as "country, city (provider)".
func (e HumanReadable) OnCandidate(r directory.ServerRecord) {
	fmt.Fprintln(e.out(), r.String())
}

// OnServerFound prints the chosen server.
func (e HumanReadable) OnServerFound(r directory.ServerRecord) {
	fmt.Fprintf(e.out(), "Found server: %s\n", r.String())
}

// OnStart prints the transfer URL in debug mode.
func (e HumanReadable) OnStart(direction spec.Direction, url string) {
	e.OnDebug(fmt.Sprintf("starting %s from %s", direction, url))
}

// OnProgress rewrites the current progress line. The final sample ends the
// line.
func (e HumanReadable) OnProgress(s model.Sample) {
	fmt.Fprint(e.out(), s.String()+"\r")
	if s.Final {
		fmt.Fprint(e.out(), "\n")
	}
}

// OnError prints err on its own line.
func (e HumanReadable) OnError(err error) {
	fmt.Fprintln(e.out(), err)
}

// OnComplete is called after a transfer completes.
func (e HumanReadable) OnComplete(r model.Result) {
	e.OnDebug(fmt.Sprintf("%s complete: %d bytes in %v", r.Direction, r.Bytes, r.Elapsed))
}

// OnDebug is called to print debug information.
func (e HumanReadable) OnDebug(msg string) {
	if e.Debug {
		fmt.Fprintf(e.out(), "DEBUG: %s\n", msg)
	}
}

// OnSummary prints the average rate of each leg that ran.
func (e HumanReadable) OnSummary(s *Summary) {
	if s.Server == nil {
		return
	}
	out := e.out()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Test results (server: %s):\n", s.Server.String())
	for _, direction := range legs {
		r, ok := s.Results[direction]
		if !ok {
			continue
		}
		if err := s.Errors[direction]; err != nil {
			fmt.Fprintf(out, "  %s: failed after %d bytes: %v\n", direction, r.Bytes, err)
			continue
		}
		fmt.Fprintf(out, "  %s: %d bytes in %.2fs, average: %.2f Mbps\n",
			direction, r.Bytes, r.Elapsed.Seconds(), r.AverageMbps())
	}
}

// Checks that HumanReadable implements Emitter.
var _ Emitter = &HumanReadable{}
