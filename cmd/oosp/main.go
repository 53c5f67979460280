package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/m-lab/oosp/pkg/client"
	"github.com/m-lab/oosp/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// errLegFailed is returned when a transfer failed. The failure has already
// been printed by the emitter.
var errLegFailed = errors.New("measurement failed")

// newRootCmd returns the oosp command. Measurement output is written to out.
func newRootCmd(out io.Writer) *cobra.Command {
	defaults := client.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "oosp",
		Short: "Measure download and upload throughput against a speedtest server",
		Long: "oosp picks a server from a speedtest server directory and measures the\n" +
			"download and upload throughput against it. Without criteria, the usable\n" +
			"servers are listed instead.",
		Args:          cobra.NoArgs,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := configFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				log.SetLevel(log.DebugLevel)
			}
			config.Emitter = client.HumanReadable{Debug: debug, Out: out}

			summary, err := client.New(config).Run(cmd.Context())
			if err != nil {
				return err
			}
			if summary.Failed() {
				return errLegFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringP("country", "C", "", "Select a server in this country")
	flags.StringP("city", "c", "", "Select a server in this city")
	flags.StringP("provider", "p", "", "Select a server run by this provider")
	flags.StringP("id", "i", "", "Select the server with this id")
	flags.StringP("source", "s", "", "Server list file or http(s) URL (default: cached public list)")
	flags.IntP("ul-size", "u", defaults.UploadSize, "Upload size in bytes")
	flags.String("config", "", "YAML file providing defaults for the flags above")
	flags.Duration("timeout", 0, "Timeout of each transfer (0 means none)")
	flags.String("cache-file", defaults.CacheFile, "Cache of the public server list")
	flags.Duration("cache-ttl", defaults.CacheTTL, "Reuse a cached server list younger than this (0 always fetches)")
	flags.String("user-agent", defaults.UserAgent, "User-Agent header")
	flags.Bool("debug", false, "Print debug information")
	return cmd
}

// configFromFlags builds the client configuration. Values come from the
// --config file if given, then from the flags that were set explicitly.
func configFromFlags(flags *pflag.FlagSet) (client.Config, error) {
	config := client.DefaultConfig()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if config, err = client.LoadConfigFile(path); err != nil {
			return config, err
		}
	}

	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "country":
			config.Country = f.Value.String()
		case "city":
			config.City = f.Value.String()
		case "provider":
			config.Provider = f.Value.String()
		case "id":
			config.ID = f.Value.String()
		case "source":
			config.Source = f.Value.String()
		case "ul-size":
			config.UploadSize, err = flags.GetInt(f.Name)
		case "timeout":
			config.Timeout, err = flags.GetDuration(f.Name)
		case "cache-file":
			config.CacheFile = f.Value.String()
		case "cache-ttl":
			config.CacheTTL, err = flags.GetDuration(f.Name)
		case "user-agent":
			config.UserAgent = f.Value.String()
		}
	})
	if err != nil {
		return config, err
	}
	return config, config.Validate()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errLegFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
