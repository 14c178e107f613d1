package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleetwatch/internal/clients"
	"fleetwatch/internal/models"
	"fleetwatch/internal/tracking"
	"fleetwatch/internal/worker"

	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval       = 10 * time.Second
	DeviceRefreshInterval = 2 * time.Minute

	// OverviewLimit bounds the fixes fetched for the whole fleet per refresh.
	OverviewLimit = 500
	// FollowLimit bounds the history fetched for each followed device.
	FollowLimit = 100
)

var ErrInvalidInterval = errors.New("interval must be positive")

type State int

const (
	Idle State = iota
	AutoUpdating
)

func (s State) String() string {
	if s == AutoUpdating {
		return "auto-updating"
	}
	return "idle"
}

// Source is the read side of the fleet API.
type Source interface {
	ListFixes(ctx context.Context, query clients.FixQuery) ([]models.GPSFix, error)
	Devices(ctx context.Context) ([]models.DeviceSummary, error)
}

// SceneSink receives every applied refresh. Calls are serialised.
type SceneSink interface {
	ShowScene(seq uint64, scene tracking.Scene)
	ShowDevices(devices []models.DeviceSummary)
}

type Options struct {
	// Interval of the primary refresh timer; DefaultInterval when zero.
	Interval time.Duration
	// Filter narrows the overview fetch. Its Limit is ignored.
	Filter clients.FixQuery
	Follow []string
	Tasks  worker.TaskFactory
	Status *StatusBoard
	Now    func() time.Time
}

// Controller drives periodic map refreshes. It is Idle until Start; while
// AutoUpdating one timer refreshes fixes and another reloads the device list.
type Controller struct {
	source Source
	sink   SceneSink
	view   *tracking.ViewState
	tasks  worker.TaskFactory
	status *StatusBoard
	now    func() time.Time
	filter clients.FixQuery

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	interval time.Duration
	primary  worker.Task
	devices  worker.Task
	issued   uint64

	applyMu sync.Mutex
	applied uint64
}

func NewController(source Source, sink SceneSink, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Tasks == nil {
		opts.Tasks = worker.TickerFactory{}
	}
	if opts.Status == nil {
		opts.Status = NewStatusBoard(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		source:   source,
		sink:     sink,
		view:     tracking.NewViewState(opts.Follow...),
		tasks:    opts.Tasks,
		status:   opts.Status,
		now:      opts.Now,
		filter:   opts.Filter,
		ctx:      ctx,
		cancel:   cancel,
		interval: opts.Interval,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Start arms both timers and refreshes once. Starting twice is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.state == AutoUpdating || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.state = AutoUpdating
	c.primary = c.tasks.Every(c.interval, c.tick)
	c.devices = c.tasks.Every(DeviceRefreshInterval, c.deviceTick)
	c.mu.Unlock()

	log.Info().Dur("interval", c.Interval()).Msg("auto update started")
	c.tick()
}

// Stop cancels both timers. Manual refreshes keep working.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Idle {
		return
	}
	c.state = Idle
	c.primary.Stop()
	c.devices.Stop()
	c.primary, c.devices = nil, nil
	log.Info().Msg("auto update stopped")
}

// Toggle flips between Idle and AutoUpdating and returns the new state.
func (c *Controller) Toggle() State {
	if c.State() == AutoUpdating {
		c.Stop()
	} else {
		c.Start()
	}
	return c.State()
}

// SetInterval changes the primary period. While AutoUpdating the primary
// timer is re-armed; the device timer is left alone.
func (c *Controller) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.interval = d
	if c.state == AutoUpdating {
		c.primary.Reset(d)
	}
	return nil
}

// ToggleFollow flips whether a device shows its full path. The change is
// picked up by the next refresh.
func (c *Controller) ToggleFollow(deviceID string) bool {
	return c.view.Toggle(deviceID)
}

func (c *Controller) Following() []string {
	return c.view.Tracked()
}

// Close stops the timers and cancels in-flight timer-driven refreshes.
func (c *Controller) Close() {
	c.Stop()
	c.cancel()
	c.status.Clear()
}

func (c *Controller) tick() {
	if err := c.Refresh(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("scheduled refresh failed")
	}
}

func (c *Controller) deviceTick() {
	if _, err := c.RefreshDevices(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("device list refresh failed")
	}
}

// Refresh fetches the overview plus the history of every followed device,
// renders it and hands the scene to the sink. A refresh that completes after
// a newer one has been applied is dropped.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	c.status.Show(StatusLoading, "Loading GPS data...")

	overview := c.filter
	overview.Limit = OverviewLimit
	fixes, err := c.source.ListFixes(ctx, overview)
	if err != nil {
		c.status.Show(StatusError, "Failed to load GPS data")
		return fmt.Errorf("load overview: %w", err)
	}

	for _, id := range c.view.Tracked() {
		history, err := c.source.ListFixes(ctx, clients.FixQuery{DeviceID: id, Limit: FollowLimit})
		if err != nil {
			c.status.Show(StatusError, "Failed to load history for "+id)
			return fmt.Errorf("load history for %s: %w", id, err)
		}
		fixes = tracking.Merge(fixes, history)
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	if seq < c.applied {
		log.Debug().Uint64("seq", seq).Uint64("applied", c.applied).Msg("stale refresh dropped")
		return nil
	}
	c.applied = seq

	c.view.SetDataset(fixes)
	scene := tracking.Render(c.view.Display(fixes), c.view, c.now())
	c.sink.ShowScene(seq, scene)
	c.status.Show(StatusSuccess, fmt.Sprintf("Loaded %d GPS points", len(fixes)))
	return nil
}

func (c *Controller) RefreshDevices(ctx context.Context) ([]models.DeviceSummary, error) {
	devices, err := c.source.Devices(ctx)
	if err != nil {
		c.status.Show(StatusError, "Failed to load devices")
		return nil, fmt.Errorf("load devices: %w", err)
	}

	c.applyMu.Lock()
	c.sink.ShowDevices(devices)
	c.applyMu.Unlock()
	return devices, nil
}
