package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	natsclient "github.com/devghori1264/vinreport/internal/nats"
	"github.com/devghori1264/vinreport/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream report outcome events from NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "watching %s on %s\n", pipeline.EventsSubject, g.natsURL)
			return natsclient.Subscribe(ctx, g.natsURL, pipeline.EventsSubject, g.log, func(_ string, data []byte) {
				var ev pipeline.Event
				if err := json.Unmarshal(data, &ev); err != nil {
					g.log.Warn("skipping malformed event", zap.Error(err))
					return
				}
				writeEvent(w, ev)
			})
		},
	}
}

func writeEvent(w io.Writer, ev pipeline.Event) {
	ts := time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s  %-17s  %-16s  %-13s", ts, ev.VIN, ev.Event, ev.State)
	if ev.Download != "" {
		line += "  " + ev.Download
	}
	if ev.Emailed != nil {
		line += fmt.Sprintf("  emailed=%t", *ev.Emailed)
	}
	if ev.Error != "" {
		line += "  error=" + ev.Error
	}
	fmt.Fprintln(w, line)
}
