package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// field is one table row: a label and how to pull its value from a response.
type field struct {
	label string
	value func(map[string]any) any
}

// outcomeRows lists report fields in display order.
var outcomeRows = []field{
	{"Success", key("success")},
	{"Message", key("message")},
	{"State", key("state")},
	{"Download", key("download")},
	{"Email", func(m map[string]any) any {
		email, ok := m["email"].(map[string]any)
		if !ok {
			return nil
		}
		if email["ok"] == true {
			return "sent"
		}
		return fmt.Sprintf("failed: %v", email["message"])
	}},
	{"Error", key("error")},
}

var artifactRows = []field{
	{"VIN", key("vin")},
	{"Download", key("download")},
	{"Content type", key("content_type")},
	{"Size", sizeValue},
	{"Digest", key("digest")},
	{"Created", key("created_at")},
}

func sizeValue(m map[string]any) any {
	if n, ok := m["size"].(float64); ok {
		return fmt.Sprintf("%.0f bytes", n)
	}
	return nil
}

func key(k string) func(map[string]any) any {
	return func(m map[string]any) any { return m[k] }
}

func writeOutcome(w io.Writer, m map[string]any) {
	writeTable(w, m, outcomeRows)
}

func writeArtifact(w io.Writer, m map[string]any) {
	writeTable(w, m, artifactRows)
}

func writeTable(w io.Writer, m map[string]any, rows []field) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Field", "Value"})
	for _, r := range rows {
		v := r.value(m)
		if v == nil {
			continue
		}
		t.AppendRow(table.Row{r.label, v})
	}
	t.Render()
}
