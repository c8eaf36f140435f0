package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is set at build time via -ldflags.
var version = "dev"

type globalFlags struct {
	server   string
	grpcAddr string
	natsURL  string
	verbose  bool

	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{log: zap.NewNop()}

	root := &cobra.Command{
		Use:           "vinctl",
		Short:         "Request and inspect VIN reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !g.verbose {
				return nil
			}
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			g.log = log
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&g.server, "server", envOr("VINCTL_SERVER", "http://localhost:3000"), "vinreport HTTP base URL")
	f.StringVar(&g.grpcAddr, "grpc", os.Getenv("VINCTL_GRPC"), "use gRPC at this address instead of HTTP")
	f.StringVar(&g.natsURL, "nats", envOr("VINREPORT_NATS_URL", "nats://localhost:4222"), "NATS URL for watch")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(newReportCmd(g))
	root.AddCommand(newGetCmd(g))
	root.AddCommand(newListCmd(g))
	root.AddCommand(newWatchCmd(g))
	root.Version = version
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
