package tracking

import (
	"fmt"
	"time"

	"fleetwatch/internal/models"
)

const popupTimeLayout = "02/01/2006 15:04"

// Scene is everything needed to draw the map from scratch. Consumers replace
// the previous scene wholesale.
type Scene struct {
	Markers     []Marker   `json:"markers"`
	Polylines   []Polyline `json:"polylines"`
	Bounds      *Bounds    `json:"bounds,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`
}

type Marker struct {
	FixID     uint     `json:"fix_id"`
	DeviceID  string   `json:"device_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Color     Color    `json:"color"`
	Label     string   `json:"label"`
	Latest    bool     `json:"latest"`
	Active    bool     `json:"active"`
	Tracked   bool     `json:"tracked"`
	Popup     []string `json:"popup"`
}

type Polyline struct {
	DeviceID string       `json:"device_id"`
	Color    Color        `json:"color"`
	Points   [][2]float64 `json:"points"`
}

type Bounds struct {
	MinLatitude  float64 `json:"min_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MaxLongitude float64 `json:"max_longitude"`
}

func (b *Bounds) extend(lat, lng float64) {
	b.MinLatitude = min(b.MinLatitude, lat)
	b.MaxLatitude = max(b.MaxLatitude, lat)
	b.MinLongitude = min(b.MinLongitude, lng)
	b.MaxLongitude = max(b.MaxLongitude, lng)
}

// Render turns per-device paths (oldest first) into map primitives. Devices
// are emitted in id order, points in path order. A nil view falls back to
// hashed colours and treats no device as tracked.
func Render(display map[string][]models.GPSFix, view *ViewState, now time.Time) Scene {
	scene := Scene{
		Markers:     []Marker{},
		Polylines:   []Polyline{},
		GeneratedAt: now.UTC(),
	}

	for _, id := range DeviceIDs(display) {
		path := display[id]
		if len(path) == 0 {
			continue
		}

		color := DeviceColor(id)
		tracked := false
		if view != nil {
			color = view.Color(id)
			tracked = view.IsTracked(id)
		}
		active := IsActive(path[len(path)-1].CreatedAt, now)

		if len(path) >= 2 {
			points := make([][2]float64, len(path))
			for i, fix := range path {
				points[i] = [2]float64{fix.Latitude, fix.Longitude}
			}
			scene.Polylines = append(scene.Polylines, Polyline{DeviceID: id, Color: color, Points: points})
		}

		for i, fix := range path {
			latest := i == len(path)-1
			label := fmt.Sprintf("%d", i+1)
			if latest {
				label = id
			}
			scene.Markers = append(scene.Markers, Marker{
				FixID:     fix.ID,
				DeviceID:  id,
				Latitude:  fix.Latitude,
				Longitude: fix.Longitude,
				Color:     color,
				Label:     label,
				Latest:    latest,
				Active:    active,
				Tracked:   tracked,
				Popup:     PopupLines(fix),
			})

			if scene.Bounds == nil {
				scene.Bounds = &Bounds{
					MinLatitude: fix.Latitude, MaxLatitude: fix.Latitude,
					MinLongitude: fix.Longitude, MaxLongitude: fix.Longitude,
				}
			} else {
				scene.Bounds.extend(fix.Latitude, fix.Longitude)
			}
		}
	}
	return scene
}

// PopupLines formats the details shown when a marker is opened. Absent
// optional readings are left out.
func PopupLines(fix models.GPSFix) []string {
	lines := []string{
		fix.DeviceID,
		fmt.Sprintf("Coordinates: %.6f, %.6f", fix.Latitude, fix.Longitude),
	}
	if fix.Altitude != nil {
		lines = append(lines, fmt.Sprintf("Altitude: %.1f m", *fix.Altitude))
	}
	if kmh, ok := fix.SpeedKmh(); ok {
		lines = append(lines, fmt.Sprintf("Speed: %.1f km/h", kmh))
	}
	if fix.Battery != nil {
		lines = append(lines, fmt.Sprintf("Battery: %.1f%%", *fix.Battery))
	}
	if fix.Satellites != nil {
		lines = append(lines, fmt.Sprintf("Satellites: %d", *fix.Satellites))
	}
	if clock, ok := DecodeDeviceClock(fix.GPSTimestamp, fix.GPSDate); ok {
		lines = append(lines, "Device time: "+clock.Format(popupTimeLayout+":05"))
	}
	lines = append(lines, "Received: "+fix.CreatedAt.UTC().Format(popupTimeLayout))
	return lines
}
