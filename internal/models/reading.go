/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Sentinel marks a sensor value that could not be read.
const Sentinel = -1.0

// GPS is a position fix. (Sentinel, Sentinel) means no fix.
type GPS struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both coordinates are present.
func (g GPS) Valid() bool {
	return g.Lat != Sentinel && g.Lng != Sentinel
}

// SensorReading is one best-effort snapshot of every environmental sensor.
type SensorReading struct {
	Timestamp        time.Time `json:"timestamp"`
	Pressure         float64   `json:"pressure"`
	Temperature      float64   `json:"temperature"`
	Depth            float64   `json:"depth"`
	Luminosity       float64   `json:"luminosity"`
	Conductivity     float64   `json:"conductivity"`
	TotalDissolved   float64   `json:"total_dissolved_solids"`
	Salinity         float64   `json:"salinity"`
	SpecificGravity  float64   `json:"specific_gravity"`
	DissolvedOxygen  float64   `json:"dissolved_oxygen"`
	PercentageOxygen float64   `json:"percentage_oxygen"`
	PH               float64   `json:"ph"`
	GPS              GPS       `json:"gps"`
}

// NewSensorReading returns a reading with every field marked unavailable.
func NewSensorReading(ts time.Time) SensorReading {
	return SensorReading{
		Timestamp:        ts,
		Pressure:         Sentinel,
		Temperature:      Sentinel,
		Depth:            Sentinel,
		Luminosity:       Sentinel,
		Conductivity:     Sentinel,
		TotalDissolved:   Sentinel,
		Salinity:         Sentinel,
		SpecificGravity:  Sentinel,
		DissolvedOxygen:  Sentinel,
		PercentageOxygen: Sentinel,
		PH:               Sentinel,
		GPS:              GPS{Lat: Sentinel, Lng: Sentinel},
	}
}

// SensorRecord is the persisted row of a sensor reading.
type SensorRecord struct {
	ID               uint      `gorm:"primaryKey"`
	CameraUID        string    `gorm:"type:varchar(64);index"`
	RecordedAt       time.Time `gorm:"index"`
	Pressure         float64
	Temperature      float64
	Depth            float64
	Luminosity       float64
	Conductivity     float64
	TotalDissolved   float64
	Salinity         float64
	SpecificGravity  float64
	DissolvedOxygen  float64
	PercentageOxygen float64
	PH               float64
	Latitude         float64
	Longitude        float64
}

// TableName pins the table name.
func (SensorRecord) TableName() string { return "sensor_readings" }

// NewSensorRecord flattens a reading into a row.
func NewSensorRecord(cameraUID string, r SensorReading) SensorRecord {
	return SensorRecord{
		CameraUID:        cameraUID,
		RecordedAt:       r.Timestamp,
		Pressure:         r.Pressure,
		Temperature:      r.Temperature,
		Depth:            r.Depth,
		Luminosity:       r.Luminosity,
		Conductivity:     r.Conductivity,
		TotalDissolved:   r.TotalDissolved,
		Salinity:         r.Salinity,
		SpecificGravity:  r.SpecificGravity,
		DissolvedOxygen:  r.DissolvedOxygen,
		PercentageOxygen: r.PercentageOxygen,
		PH:               r.PH,
		Latitude:         r.GPS.Lat,
		Longitude:        r.GPS.Lng,
	}
}

// Reading restores the reading a row was built from.
func (s SensorRecord) Reading() SensorReading {
	return SensorReading{
		Timestamp:        s.RecordedAt,
		Pressure:         s.Pressure,
		Temperature:      s.Temperature,
		Depth:            s.Depth,
		Luminosity:       s.Luminosity,
		Conductivity:     s.Conductivity,
		TotalDissolved:   s.TotalDissolved,
		Salinity:         s.Salinity,
		SpecificGravity:  s.SpecificGravity,
		DissolvedOxygen:  s.DissolvedOxygen,
		PercentageOxygen: s.PercentageOxygen,
		PH:               s.PH,
		GPS:              GPS{Lat: s.Latitude, Lng: s.Longitude},
	}
}
