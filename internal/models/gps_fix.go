package models

import (
	"time"

	"gorm.io/datatypes"
)

// GPSFix is one telemetry sample reported by a tracker. Rows are only ever
// appended; CreatedAt is assigned by the server and is the ordering key.
type GPSFix struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	DeviceID     string            `gorm:"type:varchar(64);not null;index:idx_gps_device_created,priority:1" json:"device_id"`
	Latitude     float64           `gorm:"not null" json:"latitude"`
	Longitude    float64           `gorm:"not null" json:"longitude"`
	Altitude     *float64          `json:"altitude"`
	Speed        *float64          `json:"speed"`
	Satellites   *int              `json:"satellites"`
	HDOP         *float64          `gorm:"column:hdop" json:"hdop"`
	Battery      *float64          `json:"battery"`
	GPSTimestamp *float64          `gorm:"column:gps_timestamp" json:"gps_timestamp"`
	GPSDate      *int              `gorm:"column:gps_date" json:"gps_date"`
	Extra        datatypes.JSONMap `json:"extra,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;index:idx_gps_device_created,priority:2;index:idx_gps_created" json:"created_at"`
}

func (GPSFix) TableName() string {
	return "gps_data"
}

// SpeedKmh converts the raw m/s speed reading.
func (f GPSFix) SpeedKmh() (float64, bool) {
	if f.Speed == nil {
		return 0, false
	}
	return *f.Speed * 3.6, true
}

// DeviceSummary is derived from gps_data by grouping on device_id.
type DeviceSummary struct {
	DeviceID     string    `json:"device_id"`
	TotalRecords int64     `json:"total_records"`
	FirstRecord  time.Time `json:"first_record"`
	LastRecord   time.Time `json:"last_record"`
	Active       bool      `json:"active"`
}
