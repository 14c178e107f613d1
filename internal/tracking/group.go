package tracking

import (
	"sort"

	"fleetwatch/internal/models"
)

// GroupByDevice buckets fixes by device and orders each bucket oldest first.
// Equal timestamps fall back to id, then input order. The input is not modified.
func GroupByDevice(fixes []models.GPSFix) map[string][]models.GPSFix {
	groups := make(map[string][]models.GPSFix)
	for _, fix := range fixes {
		groups[fix.DeviceID] = append(groups[fix.DeviceID], fix)
	}

	for _, path := range groups {
		sort.SliceStable(path, func(i, j int) bool {
			if !path[i].CreatedAt.Equal(path[j].CreatedAt) {
				return path[i].CreatedAt.Before(path[j].CreatedAt)
			}
			return path[i].ID < path[j].ID
		})
	}
	return groups
}

// DeviceIDs returns the group keys in ascending order.
func DeviceIDs(groups map[string][]models.GPSFix) []string {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BuildDisplay keeps the whole path of tracked devices and only the newest
// point of every other device.
func BuildDisplay(groups map[string][]models.GPSFix, tracked func(string) bool) map[string][]models.GPSFix {
	display := make(map[string][]models.GPSFix, len(groups))
	for id, path := range groups {
		if len(path) == 0 {
			continue
		}
		if tracked != nil && tracked(id) {
			display[id] = path
			continue
		}
		display[id] = path[len(path)-1:]
	}
	return display
}

// Merge combines several fix lists, dropping duplicate ids.
func Merge(lists ...[]models.GPSFix) []models.GPSFix {
	seen := make(map[uint]struct{})
	var merged []models.GPSFix
	for _, list := range lists {
		for _, fix := range list {
			if fix.ID != 0 {
				if _, dup := seen[fix.ID]; dup {
					continue
				}
				seen[fix.ID] = struct{}{}
			}
			merged = append(merged, fix)
		}
	}
	return merged
}
