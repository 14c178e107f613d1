package tracking

import (
	"math"
	"time"
)

// DecodeDeviceClock rebuilds the tracker's own clock from the packed
// HHMMSS.ss time and DDMMYY date. It reports false when either field is
// missing or does not describe a real instant.
func DecodeDeviceClock(timestamp *float64, date *int) (time.Time, bool) {
	if timestamp == nil || date == nil || *timestamp <= 0 || *date <= 0 {
		return time.Time{}, false
	}

	d := *date
	day := d / 10000
	month := (d % 10000) / 100
	year := 2000 + d%100

	ts := *timestamp
	hour := int(ts / 10000)
	minute := int(math.Mod(ts, 10000) / 100)
	secs := math.Mod(ts, 100)
	sec := int(secs)
	nsec := int(math.Round((secs - float64(sec)) * 1e9))

	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, nsec, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
