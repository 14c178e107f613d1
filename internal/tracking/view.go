package tracking

import (
	"sort"
	"sync"

	"fleetwatch/internal/models"
)

// ViewState is the per-session state behind one map view: which devices are
// followed, their colours and the most recently loaded dataset.
type ViewState struct {
	mu      sync.RWMutex
	tracked map[string]bool
	colors  map[string]Color
	last    []models.GPSFix
}

func NewViewState(tracked ...string) *ViewState {
	v := &ViewState{
		tracked: make(map[string]bool),
		colors:  make(map[string]Color),
	}
	for _, id := range tracked {
		if id != "" {
			v.tracked[id] = true
		}
	}
	return v
}

// Toggle flips follow mode for a device and returns the new value.
func (v *ViewState) Toggle(deviceID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.tracked[deviceID] {
		delete(v.tracked, deviceID)
		return false
	}
	v.tracked[deviceID] = true
	return true
}

func (v *ViewState) IsTracked(deviceID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tracked[deviceID]
}

// Tracked lists followed devices in ascending order.
func (v *ViewState) Tracked() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ids := make([]string, 0, len(v.tracked))
	for id := range v.tracked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (v *ViewState) Color(deviceID string) Color {
	v.mu.RLock()
	c, ok := v.colors[deviceID]
	v.mu.RUnlock()
	if ok {
		return c
	}

	c = DeviceColor(deviceID)
	v.mu.Lock()
	v.colors[deviceID] = c
	v.mu.Unlock()
	return c
}

func (v *ViewState) SetDataset(fixes []models.GPSFix) {
	v.mu.Lock()
	v.last = fixes
	v.mu.Unlock()
}

func (v *ViewState) Dataset() []models.GPSFix {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

// Display groups fixes and trims untracked devices to their newest point.
func (v *ViewState) Display(fixes []models.GPSFix) map[string][]models.GPSFix {
	return BuildDisplay(GroupByDevice(fixes), v.IsTracked)
}
