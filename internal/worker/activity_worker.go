package worker

import (
	"context"
	"sync"
	"time"

	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"

	"github.com/rs/zerolog/log"
)

// DeviceSummarizer reloads per-device summaries from the store.
type DeviceSummarizer interface {
	RefreshDevices(ctx context.Context, now time.Time) ([]models.DeviceSummary, error)
}

// DeviceActivityWorker periodically recomputes the active/inactive split of
// the fleet and publishes it as gauges.
type DeviceActivityWorker struct {
	service  DeviceSummarizer
	interval time.Duration
	tasks    TaskFactory
	now      func() time.Time

	mu      sync.Mutex
	task    Task
	running bool
}

func NewDeviceActivityWorker(service DeviceSummarizer, interval time.Duration) *DeviceActivityWorker {
	return &DeviceActivityWorker{
		service:  service,
		interval: interval,
		tasks:    TickerFactory{},
		now:      time.Now,
	}
}

func (w *DeviceActivityWorker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	log.Info().Dur("interval", w.interval).Msg("device activity worker started")

	w.refresh()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.task = w.tasks.Every(w.interval, w.refresh)
	}
}

func (w *DeviceActivityWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	if w.task != nil {
		w.task.Stop()
		w.task = nil
	}
	log.Info().Msg("device activity worker stopped")
}

func (w *DeviceActivityWorker) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summaries, err := w.service.RefreshDevices(ctx, w.now())
	if err != nil {
		log.Error().Err(err).Msg("device activity refresh failed")
		return
	}

	active := 0
	for _, s := range summaries {
		if s.Active {
			active++
		}
	}
	metrics.SetDeviceActivity(active, len(summaries)-active)
	log.Debug().Int("active", active).Int("total", len(summaries)).Msg("device activity refreshed")
}
