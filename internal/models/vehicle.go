package models

import (
	"sort"
	"strings"
)

// Field names of the decode service that the report treats as first-class.
const (
	FieldVIN             = "VIN"
	FieldMake            = "Make"
	FieldModel           = "Model"
	FieldModelYear       = "ModelYear"
	FieldBodyClass       = "BodyClass"
	FieldManufacturer    = "Manufacturer"
	FieldEngineCylinders = "EngineCylinders"
	FieldPlantCountry    = "PlantCountry"
	FieldVehicleType     = "VehicleType"
)

// VehicleRecord is the decoded attribute set for one VIN.
// It is immutable: the attribute map is copied on construction and on read.
type VehicleRecord struct {
	vin   string
	attrs map[string]string
}

// NewVehicleRecord builds a record from the raw decode result. Values are
// trimmed; keys with empty values are kept out of the record so that an
// absent field is never confused with a blank one. The raw data page
// therefore lists only the fields the decode service actually filled in.
func NewVehicleRecord(vin string, attrs map[string]string) VehicleRecord {
	cp := make(map[string]string, len(attrs))
	for k, v := range attrs {
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		cp[k] = v
	}
	if vin == "" {
		vin = cp[FieldVIN]
	}
	return VehicleRecord{vin: vin, attrs: cp}
}

// VIN returns the VIN the record was decoded for.
func (r VehicleRecord) VIN() string {
	if r.vin != "" {
		return r.vin
	}
	return r.attrs[FieldVIN]
}

// Field returns the named attribute and whether it was present.
func (r VehicleRecord) Field(name string) (string, bool) {
	if name == FieldVIN {
		v := r.VIN()
		return v, v != ""
	}
	v, ok := r.attrs[name]
	return v, ok
}

func (r VehicleRecord) Make() (string, bool)            { return r.Field(FieldMake) }
func (r VehicleRecord) Model() (string, bool)           { return r.Field(FieldModel) }
func (r VehicleRecord) ModelYear() (string, bool)       { return r.Field(FieldModelYear) }
func (r VehicleRecord) BodyClass() (string, bool)       { return r.Field(FieldBodyClass) }
func (r VehicleRecord) Manufacturer() (string, bool)    { return r.Field(FieldManufacturer) }
func (r VehicleRecord) EngineCylinders() (string, bool) { return r.Field(FieldEngineCylinders) }
func (r VehicleRecord) PlantCountry() (string, bool)    { return r.Field(FieldPlantCountry) }
func (r VehicleRecord) VehicleType() (string, bool)     { return r.Field(FieldVehicleType) }

// Attributes returns a copy of every attribute the service returned.
func (r VehicleRecord) Attributes() map[string]string {
	cp := make(map[string]string, len(r.attrs))
	for k, v := range r.attrs {
		cp[k] = v
	}
	return cp
}

// Keys returns the attribute names in sorted order.
func (r VehicleRecord) Keys() []string {
	keys := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Empty reports whether the record carries neither a VIN nor attributes.
func (r VehicleRecord) Empty() bool {
	return r.VIN() == "" && len(r.attrs) == 0
}
