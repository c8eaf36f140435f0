package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <vin>",
		Short: "Show the stored report for a VIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var out map[string]any

			if g.grpcAddr != "" {
				client, closeConn, err := dialGRPC(g)
				if err != nil {
					return err
				}
				defer closeConn()
				res, err := client.Lookup(ctx, args[0])
				if err != nil {
					return fmt.Errorf("grpc lookup: %w", err)
				}
				out = res.AsMap()
			} else {
				u := strings.TrimRight(g.server, "/") + "/api/reports/" + url.PathEscape(args[0])
				res, err := getJSON(ctx, g, u)
				if err != nil {
					return err
				}
				if _, ok := res["vin"]; !ok {
					return fmt.Errorf("%v", res["message"])
				}
				out = res
			}

			writeArtifact(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every stored report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := getJSON(cmd.Context(), g, strings.TrimRight(g.server, "/")+"/api/reports")
			if err != nil {
				return err
			}
			reports, _ := res["reports"].([]any)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"VIN", "Size", "Created", "Download"})
			for _, r := range reports {
				m, ok := r.(map[string]any)
				if !ok {
					continue
				}
				t.AppendRow(table.Row{m["vin"], sizeValue(m), m["created_at"], m["download"]})
			}
			t.AppendFooter(table.Row{"", "", "Total", len(reports)})
			t.Render()
			return nil
		},
	}
}
