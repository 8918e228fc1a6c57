/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sensors

import (
	"context"

	"github.com/friendsincode/oceancam/internal/models"
)

// Field names one value of a sensor reading.
type Field string

const (
	FieldPressure         Field = "pressure"
	FieldTemperature      Field = "temperature"
	FieldDepth            Field = "depth"
	FieldLuminosity       Field = "luminosity"
	FieldConductivity     Field = "conductivity"
	FieldTotalDissolved   Field = "total_dissolved_solids"
	FieldSalinity         Field = "salinity"
	FieldSpecificGravity  Field = "specific_gravity"
	FieldDissolvedOxygen  Field = "dissolved_oxygen"
	FieldPercentageOxygen Field = "percentage_oxygen"
	FieldPH               Field = "ph"
	FieldLatitude         Field = "latitude"
	FieldLongitude        Field = "longitude"
)

// AllFields lists every field a reading carries.
var AllFields = []Field{
	FieldPressure, FieldTemperature, FieldDepth, FieldLuminosity,
	FieldConductivity, FieldTotalDissolved, FieldSalinity, FieldSpecificGravity,
	FieldDissolvedOxygen, FieldPercentageOxygen, FieldPH,
	FieldLatitude, FieldLongitude,
}

// ParseField maps a config name to a Field.
func ParseField(name string) (Field, bool) {
	for _, f := range AllFields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

func (f Field) target(r *models.SensorReading) *float64 {
	switch f {
	case FieldPressure:
		return &r.Pressure
	case FieldTemperature:
		return &r.Temperature
	case FieldDepth:
		return &r.Depth
	case FieldLuminosity:
		return &r.Luminosity
	case FieldConductivity:
		return &r.Conductivity
	case FieldTotalDissolved:
		return &r.TotalDissolved
	case FieldSalinity:
		return &r.Salinity
	case FieldSpecificGravity:
		return &r.SpecificGravity
	case FieldDissolvedOxygen:
		return &r.DissolvedOxygen
	case FieldPercentageOxygen:
		return &r.PercentageOxygen
	case FieldPH:
		return &r.PH
	case FieldLatitude:
		return &r.GPS.Lat
	case FieldLongitude:
		return &r.GPS.Lng
	}
	return nil
}

// Values carries the fields produced by one source read.
type Values map[Field]float64

// Source is one physical device (or bundle of devices read together). Every
// field it reports is derived from a single Read.
type Source interface {
	Name() string
	Fields() []Field
	Read(ctx context.Context) (Values, error)
}

// Reader yields a best-effort reading. It never fails; missing values carry
// models.Sentinel.
type Reader interface {
	ReadAll(ctx context.Context) models.SensorReading
}
