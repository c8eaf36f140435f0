package render

import (
	"strings"

	"github.com/devghori1264/vinreport/internal/models"
)

// Placeholder is printed wherever a field has no value.
const Placeholder = "-"

// field is one labelled row of the report. Every row has a designated
// default, so a missing attribute never removes a row from the layout.
type field struct {
	Label   string
	Default string
	value   func(models.VehicleRecord) (string, bool)
}

// row builds a field whose default is Placeholder.
func row(label string, value func(models.VehicleRecord) (string, bool)) field {
	return field{Label: label, Default: Placeholder, value: value}
}

func (f field) Value(r models.VehicleRecord) string {
	if v, ok := f.value(r); ok && v != "" {
		return v
	}
	return f.Default
}

func attr(name string) func(models.VehicleRecord) (string, bool) {
	return func(r models.VehicleRecord) (string, bool) { return r.Field(name) }
}

// engine combines cylinder count and displacement, e.g. "6 cyl / 3.0 L".
func engine(r models.VehicleRecord) (string, bool) {
	var parts []string
	if cyl, ok := r.EngineCylinders(); ok {
		parts = append(parts, cyl+" cyl")
	}
	if disp, ok := r.Field("DisplacementL"); ok {
		parts = append(parts, disp+" L")
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " / "), true
}

var summaryFields = []field{
	row("VIN", attr(models.FieldVIN)),
	row("Year", attr(models.FieldModelYear)),
	row("Make", attr(models.FieldMake)),
	row("Model", attr(models.FieldModel)),
	row("Engine", engine),
	row("Body", attr(models.FieldBodyClass)),
	row("Country", attr(models.FieldPlantCountry)),
}

var detailFields = []field{
	row("VIN", attr(models.FieldVIN)),
	row("Make", attr(models.FieldMake)),
	row("Model", attr(models.FieldModel)),
	row("Model Year", attr(models.FieldModelYear)),
	row("Trim", attr("Trim")),
	row("Manufacturer", attr(models.FieldManufacturer)),
	row("Vehicle Type", attr(models.FieldVehicleType)),
	row("Body Class", attr(models.FieldBodyClass)),
	row("Doors", attr("Doors")),
	row("Engine", engine),
	row("Engine Cylinders", attr(models.FieldEngineCylinders)),
	row("Displacement (L)", attr("DisplacementL")),
	row("Fuel Type", attr("FuelTypePrimary")),
	row("Drive Type", attr("DriveType")),
	row("Transmission", attr("TransmissionStyle")),
	row("Plant City", attr("PlantCity")),
	row("Plant State", attr("PlantState")),
	row("Plant Country", attr(models.FieldPlantCountry)),
}

// SummaryLabels lists the summary rows in layout order.
func SummaryLabels() []string {
	out := make([]string, len(summaryFields))
	for i, f := range summaryFields {
		out[i] = f.Label
	}
	return out
}

// Summary returns the summary rows as label/value pairs, defaults applied.
func Summary(r models.VehicleRecord) [][2]string {
	out := make([][2]string, len(summaryFields))
	for i, f := range summaryFields {
		out[i] = [2]string{f.Label, f.Value(r)}
	}
	return out
}

func valueOrPlaceholder(r models.VehicleRecord, name string) string {
	return row(name, attr(name)).Value(r)
}
