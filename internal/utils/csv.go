package utils

import (
	"encoding/csv"
	"io"
	"strconv"

	"fleetwatch/internal/models"
	"fleetwatch/internal/tracking"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var exportHeaders = []string{
	"id", "device_id", "latitude", "longitude", "altitude_m", "speed_ms", "speed_kmh",
	"satellites", "hdop", "battery_pct", "device_time", "created_at",
}

// WriteFixesCSV writes one header line then one line per fix. Missing
// optional readings are empty cells.
func WriteFixesCSV(w io.Writer, fixes []models.GPSFix) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportHeaders); err != nil {
		return err
	}

	for _, fix := range fixes {
		kmh := ""
		if v, ok := fix.SpeedKmh(); ok {
			kmh = formatFloat(v, 2)
		}
		satellites := ""
		if fix.Satellites != nil {
			satellites = strconv.Itoa(*fix.Satellites)
		}

		row := []string{
			strconv.FormatUint(uint64(fix.ID), 10),
			fix.DeviceID,
			formatFloat(fix.Latitude, 6),
			formatFloat(fix.Longitude, 6),
			formatOptional(fix.Altitude, 1),
			formatOptional(fix.Speed, 2),
			kmh,
			satellites,
			formatOptional(fix.HDOP, 2),
			formatOptional(fix.Battery, 1),
			deviceTime(fix),
			fix.CreatedAt.UTC().Format(exportTimeLayout),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func formatOptional(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v, prec)
}

func deviceTime(fix models.GPSFix) string {
	if t, ok := tracking.DecodeDeviceClock(fix.GPSTimestamp, fix.GPSDate); ok {
		return t.Format(exportTimeLayout)
	}
	return ""
}

func orBlank(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func intOrBlank(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func speedKmhOrBlank(fix models.GPSFix) interface{} {
	if v, ok := fix.SpeedKmh(); ok {
		return v
	}
	return ""
}
