package tracking

import "time"

// ActiveWindow is how recent a device's last fix must be for it to count as active.
const ActiveWindow = 24 * time.Hour

func IsActive(last, now time.Time) bool {
	return now.Sub(last) <= ActiveWindow
}
