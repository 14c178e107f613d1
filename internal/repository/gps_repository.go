package repository

import (
	"context"
	"fmt"
	"time"

	"fleetwatch/internal/models"

	"gorm.io/gorm"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 5000
)

// GPSFilter selects fixes for the dashboard list. Start and End are calendar
// days compared against the server-side creation time; both are inclusive.
type GPSFilter struct {
	DeviceID string
	Start    *time.Time
	End      *time.Time
	Limit    int
}

func (f GPSFilter) normalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

type GPSRepository interface {
	Create(ctx context.Context, fix *models.GPSFix) error
	List(ctx context.Context, filter GPSFilter) ([]models.GPSFix, error)
	LatestPerDevice(ctx context.Context) ([]models.GPSFix, error)
	DeviceSummaries(ctx context.Context) ([]models.DeviceSummary, error)
	Count(ctx context.Context) (int64, error)
}

type gpsRepository struct {
	db *gorm.DB
}

func NewGPSRepository(db *gorm.DB) GPSRepository {
	return &gpsRepository{db: db}
}

func (r *gpsRepository) Create(ctx context.Context, fix *models.GPSFix) error {
	if err := r.db.WithContext(ctx).Create(fix).Error; err != nil {
		return fmt.Errorf("insert gps fix: %w", err)
	}
	return nil
}

func (r *gpsRepository) List(ctx context.Context, filter GPSFilter) ([]models.GPSFix, error) {
	q := r.db.WithContext(ctx).Model(&models.GPSFix{})

	if filter.DeviceID != "" {
		q = q.Where("device_id = ?", filter.DeviceID)
	}
	if filter.Start != nil {
		q = q.Where("created_at >= ?", startOfDay(*filter.Start))
	}
	if filter.End != nil {
		q = q.Where("created_at < ?", startOfDay(*filter.End).AddDate(0, 0, 1))
	}

	fixes := []models.GPSFix{}
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(filter.normalizedLimit()).
		Find(&fixes).
		Error
	if err != nil {
		return nil, fmt.Errorf("list gps fixes: %w", err)
	}
	return nonNil(fixes), nil
}

// LatestPerDevice returns one row per device: the fix with the greatest
// created_at, ties broken by the highest id.
func (r *gpsRepository) LatestPerDevice(ctx context.Context) ([]models.GPSFix, error) {
	fixes := []models.GPSFix{}
	err := r.db.WithContext(ctx).Raw(`
		SELECT g.* FROM gps_data g
		WHERE g.id = (
			SELECT g2.id FROM gps_data g2
			WHERE g2.device_id = g.device_id
			ORDER BY g2.created_at DESC, g2.id DESC
			LIMIT 1
		)
		ORDER BY g.created_at DESC, g.id DESC`).
		Scan(&fixes).
		Error
	if err != nil {
		return nil, fmt.Errorf("latest gps fix per device: %w", err)
	}
	return nonNil(fixes), nil
}

type summaryRow struct {
	DeviceID     string
	TotalRecords int64
	FirstRecord  dbTime
	LastRecord   dbTime
}

func (r *gpsRepository) DeviceSummaries(ctx context.Context) ([]models.DeviceSummary, error) {
	var rows []summaryRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT device_id,
			COUNT(*) AS total_records,
			MIN(created_at) AS first_record,
			MAX(created_at) AS last_record
		FROM gps_data
		GROUP BY device_id
		ORDER BY last_record DESC, device_id`).
		Scan(&rows).
		Error
	if err != nil {
		return nil, fmt.Errorf("device summaries: %w", err)
	}

	summaries := make([]models.DeviceSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, models.DeviceSummary{
			DeviceID:     row.DeviceID,
			TotalRecords: row.TotalRecords,
			FirstRecord:  row.FirstRecord.Time,
			LastRecord:   row.LastRecord.Time,
		})
	}
	return summaries, nil
}

func (r *gpsRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.GPSFix{}).
		Count(&count).
		Error
	return count, err
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nonNil(fixes []models.GPSFix) []models.GPSFix {
	if fixes == nil {
		return []models.GPSFix{}
	}
	return fixes
}
