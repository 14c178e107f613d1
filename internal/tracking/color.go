package tracking

import (
	"fmt"
	"unicode/utf16"
)

const (
	colorSaturation = 70
	colorLightness  = 50
)

type Color struct {
	Hue int
}

// CSS renders the colour as an hsl() value.
func (c Color) CSS() string {
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", c.Hue, colorSaturation, colorLightness)
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.CSS()), nil
}

// DeviceColor derives a stable hue from the device id. The hash runs over
// UTF-16 code units; only the shifted operand wraps to 32 bits, the running
// sum does not, so browsers computing the same hash agree on every id.
func DeviceColor(deviceID string) Color {
	var hash int64
	for _, unit := range utf16.Encode([]rune(deviceID)) {
		hash = int64(unit) + int64(int32(uint32(hash)<<5)) - hash
	}
	hue := int(hash % 360)
	if hue < 0 {
		hue += 360
	}
	return Color{Hue: hue}
}
