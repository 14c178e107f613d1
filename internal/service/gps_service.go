package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fleetwatch/internal/cache"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
	"fleetwatch/internal/repository"
	"fleetwatch/internal/tracking"
	"fleetwatch/internal/utils"

	"github.com/rs/zerolog/log"
)

// TrackedHistoryLimit is how many fixes are loaded for each followed device.
const TrackedHistoryLimit = 100

// IngestRequest is the body a tracker posts for one fix. Coordinates are
// pointers so that 0 is accepted while absence is not. Optional readings are
// stored as reported; trackers use values such as speed -1 for "no fix".
type IngestRequest struct {
	DeviceID   string                 `json:"device_id" binding:"required,max=64"`
	Latitude   *float64               `json:"latitude" binding:"required,gte=-90,lte=90"`
	Longitude  *float64               `json:"longitude" binding:"required,gte=-180,lte=180"`
	Altitude   *float64               `json:"altitude"`
	Speed      *float64               `json:"speed"`
	Satellites *int                   `json:"satellites"`
	HDOP       *float64               `json:"hdop"`
	Battery    *float64               `json:"battery"`
	Timestamp  *float64               `json:"timestamp"`
	Date       *int                   `json:"date"`
	Extra      map[string]interface{} `json:"-"`
}

func (r IngestRequest) toModel() *models.GPSFix {
	return &models.GPSFix{
		DeviceID:     r.DeviceID,
		Latitude:     *r.Latitude,
		Longitude:    *r.Longitude,
		Altitude:     r.Altitude,
		Speed:        r.Speed,
		Satellites:   r.Satellites,
		HDOP:         r.HDOP,
		Battery:      r.Battery,
		GPSTimestamp: r.Timestamp,
		GPSDate:      r.Date,
		Extra:        r.Extra,
	}
}

// MapQuery selects the fixes to draw and which devices show their full path.
type MapQuery struct {
	Filter  repository.GPSFilter
	Tracked []string
}

type ExportFile struct {
	Filename    string
	ContentType string
	Rows        int
	Data        []byte
}

type GPSService interface {
	Ingest(ctx context.Context, req IngestRequest) (*models.GPSFix, error)
	List(ctx context.Context, filter repository.GPSFilter) ([]models.GPSFix, error)
	Latest(ctx context.Context) ([]models.GPSFix, error)
	Devices(ctx context.Context, now time.Time) ([]models.DeviceSummary, error)
	RefreshDevices(ctx context.Context, now time.Time) ([]models.DeviceSummary, error)
	MapScene(ctx context.Context, query MapQuery, now time.Time) (*tracking.Scene, error)
	Export(ctx context.Context, format string, filter repository.GPSFilter) (*ExportFile, error)
	Count(ctx context.Context) (int64, error)
}

type GPSServiceConfig struct {
	CacheTTL      time.Duration
	ExportMaxRows int
}

type gpsService struct {
	repo  repository.GPSRepository
	cache cache.Cache
	cfg   GPSServiceConfig
	now   func() time.Time

	// generation counts stored fixes. A read only fills the cache if no
	// ingest committed while it ran; cacheMu orders fills against ingest
	// invalidation.
	cacheMu    sync.Mutex
	generation uint64
}

func NewGPSService(repo repository.GPSRepository, c cache.Cache, cfg GPSServiceConfig) GPSService {
	if c == nil {
		c = cache.Noop{}
	}
	if cfg.ExportMaxRows <= 0 || cfg.ExportMaxRows > repository.MaxListLimit {
		cfg.ExportMaxRows = repository.MaxListLimit
	}
	return &gpsService{
		repo:  repo,
		cache: c,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *gpsService) Ingest(ctx context.Context, req IngestRequest) (*models.GPSFix, error) {
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if err := validateStruct(&req); err != nil {
		metrics.FixesRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	fix := req.toModel()
	fix.CreatedAt = s.now().UTC()

	if err := s.repo.Create(ctx, fix); err != nil {
		metrics.FixesRejected.WithLabelValues("storage").Inc()
		return nil, err
	}
	metrics.FixesIngested.Inc()

	s.cacheMu.Lock()
	s.generation++
	if err := s.cache.Delete(ctx, cache.KeyLatest, cache.KeyDevices); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate gps cache")
	}
	s.cacheMu.Unlock()

	log.Debug().
		Str("device_id", fix.DeviceID).
		Uint("id", fix.ID).
		Msg("gps fix stored")
	return fix, nil
}

func (s *gpsService) List(ctx context.Context, filter repository.GPSFilter) ([]models.GPSFix, error) {
	return s.repo.List(ctx, filter)
}

func (s *gpsService) Latest(ctx context.Context) ([]models.GPSFix, error) {
	var fixes []models.GPSFix
	if s.fromCache(ctx, cache.KeyLatest, &fixes) {
		return fixes, nil
	}

	gen := s.currentGeneration()
	fixes, err := s.repo.LatestPerDevice(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, cache.KeyLatest, fixes, gen)
	return fixes, nil
}

func (s *gpsService) Devices(ctx context.Context, now time.Time) ([]models.DeviceSummary, error) {
	var summaries []models.DeviceSummary
	if s.fromCache(ctx, cache.KeyDevices, &summaries) {
		return markActive(summaries, now), nil
	}
	return s.RefreshDevices(ctx, now)
}

// RefreshDevices reloads summaries from the store and rewrites the cache.
func (s *gpsService) RefreshDevices(ctx context.Context, now time.Time) ([]models.DeviceSummary, error) {
	gen := s.currentGeneration()
	summaries, err := s.repo.DeviceSummaries(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, cache.KeyDevices, summaries, gen)
	return markActive(summaries, now), nil
}

func markActive(summaries []models.DeviceSummary, now time.Time) []models.DeviceSummary {
	if summaries == nil {
		return []models.DeviceSummary{}
	}
	for i := range summaries {
		summaries[i].Active = tracking.IsActive(summaries[i].LastRecord, now)
	}
	return summaries
}

func (s *gpsService) fromCache(ctx context.Context, key string, dest interface{}) bool {
	hit, err := s.cache.GetJSON(ctx, key, dest)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		hit = false
	}
	metrics.ObserveCache(key, hit)
	return hit
}

func (s *gpsService) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// toCache stores a read taken at generation gen, unless a fix was ingested
// since then.
func (s *gpsService) toCache(ctx context.Context, key string, value interface{}, gen uint64) {
	if s.cfg.CacheTTL <= 0 {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != gen {
		log.Debug().Str("key", key).Msg("skipping cache fill, data changed during read")
		return
	}
	if err := s.cache.SetJSON(ctx, key, value, s.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// MapScene renders the filtered fixes. Followed devices get their recent
// history merged in and drawn as full paths; others show their newest point.
func (s *gpsService) MapScene(ctx context.Context, query MapQuery, now time.Time) (*tracking.Scene, error) {
	fixes, err := s.repo.List(ctx, query.Filter)
	if err != nil {
		return nil, err
	}

	view := tracking.NewViewState(query.Tracked...)
	for _, id := range view.Tracked() {
		if query.Filter.DeviceID != "" && query.Filter.DeviceID != id {
			continue
		}
		history, err := s.repo.List(ctx, repository.GPSFilter{
			DeviceID: id,
			Start:    query.Filter.Start,
			End:      query.Filter.End,
			Limit:    TrackedHistoryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("history for %s: %w", id, err)
		}
		fixes = tracking.Merge(fixes, history)
	}

	scene := tracking.Render(view.Display(fixes), view, now)
	return &scene, nil
}

func (s *gpsService) Export(ctx context.Context, format string, filter repository.GPSFilter) (*ExportFile, error) {
	format = strings.ToLower(format)
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" && format != "excel" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	filter.Limit = s.cfg.ExportMaxRows
	fixes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get gps data: %w", err)
	}

	var buf bytes.Buffer
	timestamp := s.now().UTC().Format("20060102_150405")
	file := &ExportFile{Rows: len(fixes)}

	switch format {
	case "csv":
		file.Filename = fmt.Sprintf("gps_export_%s.csv", timestamp)
		file.ContentType = "text/csv"
		err = utils.WriteFixesCSV(&buf, fixes)
	default:
		file.Filename = fmt.Sprintf("gps_export_%s.xlsx", timestamp)
		file.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = utils.WriteFixesExcel(&buf, fixes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build %s export: %w", format, err)
	}

	file.Data = buf.Bytes()
	log.Info().Str("format", format).Int("rows", file.Rows).Msg("gps export generated")
	return file, nil
}

func (s *gpsService) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
