package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/oosp/internal/handler"
	"github.com/m-lab/oosp/internal/netx"
	"github.com/m-lab/oosp/pkg/version"
	"golang.org/x/sync/errgroup"
)

var (
	flagCertFile          = flag.String("cert", "", "The file with server certificates in PEM format.")
	flagKeyFile           = flag.String("key", "", "The file with server key in PEM format.")
	flagEndpoint          = flag.String("https_addr", ":4443", "Listen address/port for TLS connections")
	flagEndpointCleartext = flag.String("http_addr", ":8080", "Listen address/port for cleartext connections")
	flagProbeSize         = flag.Int("probe.size", handler.DefaultProbeSize, "Size of the download probe in bytes")
	flagID                = flag.String("server.id", "1", "Server id published in the directory")
	flagCountry           = flag.String("server.country", "", "Server country published in the directory")
	flagCity              = flag.String("server.city", "", "Server city published in the directory")
	flagProvider          = flag.String("server.provider", "", "Server provider published in the directory")
)

// httpServer creates a new *http.Server with explicit Read and Write
// timeouts, the provided address and handler, and an empty TLS configuration.
//
// This server can only be used with a net.Listener that returns netx.ConnInfo
// after accepting a new connection.
func httpServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:      addr,
		Handler:   handler,
		TLSConfig: &tls.Config{},
		// NOTE: set absolute read and write timeouts for server connections.
		// This prevents clients, or middleboxes, from opening a connection and
		// holding it open indefinitely. This applies equally to TLS and non-TLS
		// servers.
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		ConnContext:  netx.ConnContext,
	}
}

// listen returns a netx.Listener bound to addr.
func listen(addr string) (*netx.Listener, error) {
	tcpl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return netx.NewListener(tcpl.(*net.TCPListener)), nil
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	// Initialize logging and metrics.
	log.SetReportTimestamp(true)
	log.SetLevel(log.DebugLevel)

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mux := http.NewServeMux()
	handler.New(handler.Config{
		ProbeSize: *flagProbeSize,
		ID:        *flagID,
		Country:   *flagCountry,
		City:      *flagCity,
		Provider:  *flagProvider,
	}).Register(mux)

	servers := []*http.Server{httpServer(*flagEndpointCleartext, mux)}
	// Only start TLS-based services if certs and keys are provided
	withTLS := *flagCertFile != "" && *flagKeyFile != ""
	if withTLS {
		servers = append(servers, httpServer(*flagEndpoint, mux))
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		l, err := listen(srv.Addr)
		rtx.Must(err, "failed to create listener")
		defer l.Close()

		tlsEnabled := i > 0
		log.Info("About to listen for speedtest clients", "endpoint", srv.Addr, "tls", tlsEnabled,
			"version", version.Version)
		g.Go(func() error {
			var err error
			if tlsEnabled {
				err = srv.ServeTLS(l, *flagCertFile, *flagKeyFile)
			} else {
				err = srv.Serve(l)
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		for _, srv := range servers {
			srv.Close()
		}
		return nil
	})

	err := g.Wait()
	rtx.Must(err, "Could not serve")
}
