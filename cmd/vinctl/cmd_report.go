package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devghori1264/vinreport/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var errReportFailed = errors.New("report failed")

func newReportCmd(g *globalFlags) *cobra.Command {
	var email string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "report <vin>",
		Short: "Generate the PDF report for a VIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var (
				out map[string]any
				err error
			)
			if g.grpcAddr != "" {
				out, err = reportGRPC(ctx, g, args[0], email)
			} else {
				out, err = reportHTTP(ctx, g, args[0], email)
			}
			if err != nil {
				return err
			}
			writeOutcome(cmd.OutOrStdout(), out)
			if out["success"] != true {
				return errReportFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "also email the report to this address")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")
	return cmd
}

func reportHTTP(ctx context.Context, g *globalFlags, vin, email string) (map[string]any, error) {
	u := strings.TrimRight(g.server, "/") + "/api/vin/" + url.PathEscape(vin)
	if email != "" {
		u += "?" + url.Values{"email": {email}}.Encode()
	}
	return getJSON(ctx, g, u)
}

func reportGRPC(ctx context.Context, g *globalFlags, vin, email string) (map[string]any, error) {
	client, closeConn, err := dialGRPC(g)
	if err != nil {
		return nil, err
	}
	defer closeConn()
	res, err := client.Generate(ctx, vin, email)
	if err != nil {
		return nil, fmt.Errorf("grpc generate: %w", err)
	}
	return res.AsMap(), nil
}

func dialGRPC(g *globalFlags) (*server.Client, func(), error) {
	cc, err := grpc.NewClient(g.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("grpc dial %s: %w", g.grpcAddr, err)
	}
	return server.NewClient(cc), func() { _ = cc.Close() }, nil
}

// getJSON decodes any JSON object body; non-2xx statuses with a JSON body
// are returned as data so the caller can show the failure.
func getJSON(ctx context.Context, g *globalFlags, u string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	g.log.Debug("http request", zap.String("url", u))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("http %d: unreadable body: %w", resp.StatusCode, err)
	}
	g.log.Debug("http response", zap.Int("status", resp.StatusCode))
	return out, nil
}
