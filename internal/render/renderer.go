// Package render lays a decoded vehicle record out as a two-page PDF report.
//
// Rendering is a pure transformation. Output depends only on the record and
// the generatedAt timestamp, so two calls with the same inputs produce
// byte-identical documents.
package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/devghori1264/vinreport/internal/models"
	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ContentType is the MIME type of rendered reports.
const ContentType = "application/pdf"

// Extension is the file extension of rendered reports.
const Extension = ".pdf"

// Renderer is implemented by report renderers.
type Renderer interface {
	Render(record models.VehicleRecord, generatedAt time.Time) ([]byte, error)
}

// PDFRenderer renders reports with fpdf's core fonts.
type PDFRenderer struct {
	// Source is printed in the footer; defaults to the NHTSA vPIC name.
	Source string
	// Uncompressed leaves page streams readable, mostly for inspection.
	Uncompressed bool
}

// New returns a PDFRenderer with default settings.
func New() *PDFRenderer {
	return &PDFRenderer{Source: "NHTSA vPIC"}
}

const (
	lineHeight  = 7.0
	labelWidth  = 55.0
	footerLabel = "VIN Reports"
)

// Render builds the document. It only fails for an empty record or when the
// document cannot be written.
func (r *PDFRenderer) Render(record models.VehicleRecord, generatedAt time.Time) ([]byte, error) {
	if record.Empty() {
		return nil, &RenderError{Kind: KindMalformed, Err: fmt.Errorf("record has no VIN and no attributes")}
	}
	generatedAt = generatedAt.UTC()

	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	tr := func(s string) string {
		out, err := enc.String(s)
		if err != nil {
			return s
		}
		return out
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(generatedAt)
	pdf.SetModificationDate(generatedAt)
	pdf.SetCatalogSort(true)
	pdf.SetCompression(!r.Uncompressed)
	pdf.SetTitle("Vehicle Report "+record.VIN(), true)
	pdf.SetAuthor(footerLabel, false)
	pdf.SetCreator("vinreport", false)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 22)
	pdf.AliasNbPages("")

	source := r.Source
	if source == "" {
		source = "NHTSA vPIC"
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(110, 110, 110)
		left := tr(fmt.Sprintf("%s - generated %s - source: %s", footerLabel, generatedAt.Format(time.RFC3339), source))
		pdf.CellFormat(0, 5, left, "T", 0, "L", false, 0, "")
		pdf.SetX(-40)
		pdf.CellFormat(22, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	writeTitle(pdf, tr, record, generatedAt)
	writeSummary(pdf, tr, record)
	writeDetails(pdf, tr, record)

	pdf.AddPage()
	writeRaw(pdf, tr, record)

	if err := pdf.Error(); err != nil {
		return nil, &RenderError{Kind: KindWrite, Err: err}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{Kind: KindWrite, Err: fmt.Errorf("output: %w", err)}
	}
	return buf.Bytes(), nil
}

func writeTitle(pdf *fpdf.Fpdf, tr func(string) string, record models.VehicleRecord, generatedAt time.Time) {
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 12, "Vehicle Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, lineHeight, tr("VIN "+valueOrPlaceholder(record, models.FieldVIN)), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 6, "Generated "+generatedAt.Format("2006-01-02 15:04:05 UTC"), "", 1, "C", false, 0, "")
	pdf.Ln(6)
}

func writeSummary(pdf *fpdf.Fpdf, tr func(string) string, record models.VehicleRecord) {
	sectionHeading(pdf, "Summary")
	pdf.SetDrawColor(180, 180, 180)
	for i, f := range summaryFields {
		fill := i%2 == 0
		pdf.SetFillColor(242, 242, 242)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(40, 40, 40)
		pdf.CellFormat(labelWidth, lineHeight+1, tr(f.Label), "1", 0, "L", fill, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, lineHeight+1, tr(f.Value(record)), "1", 1, "L", fill, 0, "")
	}
	pdf.Ln(6)
}

func writeDetails(pdf *fpdf.Fpdf, tr func(string) string, record models.VehicleRecord) {
	sectionHeading(pdf, "Vehicle Details")
	for _, f := range detailFields {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(labelWidth, 6, tr(f.Label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 6, tr(f.Value(record)), "", "L", false)
	}
}

// writeRaw lists every attribute in the record. Blank decode values never
// reach the record, so they are not shown.
func writeRaw(pdf *fpdf.Fpdf, tr func(string) string, record models.VehicleRecord) {
	sectionHeading(pdf, "Raw Decode Data")
	keys := record.Keys()
	if len(keys) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, 6, "No attributes returned.", "", 1, "L", false, 0, "")
		return
	}
	for _, k := range keys {
		v, _ := record.Field(k)
		pdf.SetFont("Courier", "B", 8)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(labelWidth, 4.5, tr(k), "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 8)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 4.5, tr(v), "", "L", false)
	}
}

func sectionHeading(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 9, title, "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}
