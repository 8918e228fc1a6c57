/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sensorlog

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/oceancam/internal/models"
)

// DBRecorder writes readings to the sensor_readings table.
type DBRecorder struct {
	db        *gorm.DB
	cameraUID string
}

// NewDBRecorder records readings for cameraUID. The table must exist.
func NewDBRecorder(db *gorm.DB, cameraUID string) *DBRecorder {
	return &DBRecorder{db: db, cameraUID: cameraUID}
}

// Record implements Recorder.
func (d *DBRecorder) Record(ctx context.Context, r models.SensorReading) error {
	rec := models.NewSensorRecord(d.cameraUID, r)
	if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert sensor reading: %w", err)
	}
	return nil
}

// Since returns readings recorded at or after t, oldest first, capped at limit.
func (d *DBRecorder) Since(ctx context.Context, t time.Time, limit int) ([]models.SensorRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.SensorRecord
	err := d.db.WithContext(ctx).
		Where("camera_uid = ? AND recorded_at >= ?", d.cameraUID, t).
		Order("recorded_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query sensor readings: %w", err)
	}
	return out, nil
}
