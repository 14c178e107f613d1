package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fleetwatch/internal/clients"
	"fleetwatch/internal/models"
	"fleetwatch/internal/tracking"
	"fleetwatch/internal/worker"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	fixes   []models.GPSFix
	queries []clients.FixQuery
	devices int
	err     error
	onList  func()
}

func (s *fakeSource) ListFixes(_ context.Context, q clients.FixQuery) ([]models.GPSFix, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	hook := s.onList
	s.onList = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if s.err != nil {
		return nil, s.err
	}

	var out []models.GPSFix
	for i := len(s.fixes) - 1; i >= 0 && len(out) < q.Limit; i-- {
		if q.DeviceID == "" || s.fixes[i].DeviceID == q.DeviceID {
			out = append(out, s.fixes[i])
		}
	}
	return out, nil
}

func (s *fakeSource) Devices(context.Context) ([]models.DeviceSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices++
	return []models.DeviceSummary{{DeviceID: "A"}, {DeviceID: "B"}}, nil
}

func (s *fakeSource) Queries() []clients.FixQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]clients.FixQuery(nil), s.queries...)
}

type recordingSink struct {
	mu      sync.Mutex
	seqs    []uint64
	scenes  []tracking.Scene
	devices [][]models.DeviceSummary
}

func (s *recordingSink) ShowScene(seq uint64, scene tracking.Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs = append(s.seqs, seq)
	s.scenes = append(s.scenes, scene)
}

func (s *recordingSink) ShowDevices(devices []models.DeviceSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, devices)
}

func (s *recordingSink) last() tracking.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenes[len(s.scenes)-1]
}

// fleet has three fixes for A and one for B, oldest first.
func fleet() []models.GPSFix {
	return []models.GPSFix{
		{ID: 1, DeviceID: "A", Latitude: 1, Longitude: 1, CreatedAt: base},
		{ID: 2, DeviceID: "A", Latitude: 2, Longitude: 2, CreatedAt: base.Add(time.Minute)},
		{ID: 3, DeviceID: "B", Latitude: 5, Longitude: 5, CreatedAt: base.Add(2 * time.Minute)},
		{ID: 4, DeviceID: "A", Latitude: 3, Longitude: 3, CreatedAt: base.Add(3 * time.Minute)},
	}
}

func newController(src Source, sink SceneSink, tasks *worker.ManualFactory, follow ...string) *Controller {
	return NewController(src, sink, Options{
		Tasks:  tasks,
		Follow: follow,
		Now:    func() time.Time { return base.Add(time.Hour) },
	})
}

func TestStartRefreshesAndArmsTimers(t *testing.T) {
	src := &fakeSource{fixes: fleet()}
	sink := &recordingSink{}
	tasks := &worker.ManualFactory{}
	c := newController(src, sink, tasks)

	c.Start()
	if c.State() != AutoUpdating {
		t.Fatalf("state = %v", c.State())
	}
	if len(sink.scenes) != 1 {
		t.Fatalf("expected one immediate refresh, got %d", len(sink.scenes))
	}

	live := tasks.Live()
	if len(live) != 2 || live[0].Interval() != DefaultInterval || live[1].Interval() != DeviceRefreshInterval {
		t.Fatalf("unexpected timers: %d", len(live))
	}
	if q := src.Queries()[0]; q.Limit != OverviewLimit || q.DeviceID != "" {
		t.Fatalf("overview query = %+v", q)
	}

	live[0].Fire()
	if len(sink.scenes) != 2 {
		t.Fatalf("tick should refresh, scenes = %d", len(sink.scenes))
	}
	live[1].Fire()
	if src.devices != 1 || len(sink.devices) != 1 {
		t.Fatal("device timer should reload the device list")
	}

	c.Start()
	if len(tasks.Tasks()) != 2 {
		t.Fatal("second Start must not arm more timers")
	}
}

func TestStopCancelsBothTimers(t *testing.T) {
	src := &fakeSource{fixes: fleet()}
	sink := &recordingSink{}
	tasks := &worker.ManualFactory{}
	c := newController(src, sink, tasks)

	if got := c.Toggle(); got != AutoUpdating {
		t.Fatalf("toggle from idle = %v", got)
	}
	if got := c.Toggle(); got != Idle {
		t.Fatalf("toggle from auto = %v", got)
	}
	if len(tasks.Live()) != 0 {
		t.Fatal("timers still armed after stop")
	}
	for _, task := range tasks.Tasks() {
		if task.Fire() {
			t.Fatal("stopped task fired")
		}
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("manual refresh while idle: %v", err)
	}
	if len(sink.scenes) != 2 {
		t.Fatalf("scenes = %d", len(sink.scenes))
	}
}

func TestSetIntervalRearmsPrimaryOnly(t *testing.T) {
	tasks := &worker.ManualFactory{}
	c := newController(&fakeSource{}, &recordingSink{}, tasks)

	if err := c.SetInterval(0); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("zero interval: %v", err)
	}
	if err := c.SetInterval(30 * time.Second); err != nil || len(tasks.Tasks()) != 0 {
		t.Fatal("idle interval change must not arm timers")
	}

	c.Start()
	first := tasks.Live()
	if first[0].Interval() != 30*time.Second {
		t.Fatalf("primary interval = %v", first[0].Interval())
	}

	if err := c.SetInterval(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if c.State() != AutoUpdating {
		t.Fatal("interval change left auto update")
	}
	if len(tasks.Tasks()) != 2 || first[0].Stopped() || first[1].Stopped() {
		t.Fatal("interval change should re-arm in place")
	}
	if first[0].Resets() != 1 || first[0].Interval() != 5*time.Second {
		t.Fatalf("primary not re-armed: resets=%d interval=%v", first[0].Resets(), first[0].Interval())
	}
	if first[1].Resets() != 0 || first[1].Interval() != DeviceRefreshInterval {
		t.Fatal("device timer must keep its period")
	}
}

func TestFollowTakesEffectOnNextRefresh(t *testing.T) {
	src := &fakeSource{fixes: fleet()}
	sink := &recordingSink{}
	c := newController(src, sink, &worker.ManualFactory{})
	ctx := context.Background()

	if err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(sink.last().Polylines); n != 0 {
		t.Fatalf("untracked devices should not draw paths, got %d", n)
	}

	if !c.ToggleFollow("A") {
		t.Fatal("follow A should report tracked")
	}
	if len(sink.scenes) != 1 {
		t.Fatal("toggling follow must not render by itself")
	}

	if err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	queries := src.Queries()
	if q := queries[len(queries)-1]; q.DeviceID != "A" || q.Limit != FollowLimit {
		t.Fatalf("history query = %+v", q)
	}
	scene := sink.last()
	if len(scene.Polylines) != 1 || len(scene.Polylines[0].Points) != 3 {
		t.Fatalf("expected A's full path, got %+v", scene.Polylines)
	}
	if len(scene.Markers) != 4 {
		t.Fatalf("markers = %d, want 3 for A and 1 for B", len(scene.Markers))
	}
}

func TestStaleRefreshIsDropped(t *testing.T) {
	src := &fakeSource{fixes: fleet()}
	sink := &recordingSink{}
	c := newController(src, sink, &worker.ManualFactory{})
	ctx := context.Background()

	// A second refresh starts and finishes while the first is in flight.
	src.onList = func() {
		if err := c.Refresh(ctx); err != nil {
			t.Errorf("inner refresh: %v", err)
		}
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	if len(sink.seqs) != 1 || sink.seqs[0] != 2 {
		t.Fatalf("applied seqs = %v, want [2]", sink.seqs)
	}
}

func TestRefreshErrorShowsStatus(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	sink := &recordingSink{}
	var shown []Status
	board := NewStatusBoard(func(s Status) { shown = append(shown, s) })
	c := NewController(src, sink, Options{Tasks: &worker.ManualFactory{}, Status: board})

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(sink.scenes) != 0 {
		t.Fatal("failed refresh must not render")
	}
	if len(shown) != 2 || shown[0].Kind != StatusLoading || shown[1].Kind != StatusError {
		t.Fatalf("statuses = %+v", shown)
	}
}

func TestCloseStopsTimersAndPreventsRestart(t *testing.T) {
	tasks := &worker.ManualFactory{}
	c := newController(&fakeSource{}, &recordingSink{}, tasks)
	c.Start()
	c.Close()

	if len(tasks.Live()) != 0 {
		t.Fatal("close left timers armed")
	}
	c.Start()
	if c.State() != Idle || len(tasks.Tasks()) != 2 {
		t.Fatal("closed controller must not restart")
	}
}

func TestStatusBoardAutoDismiss(t *testing.T) {
	now := base
	board := NewStatusBoard(nil)
	board.now = func() time.Time { return now }

	board.Show(StatusSuccess, "Loaded 4 GPS points")
	now = now.Add(StatusTTL - time.Millisecond)
	if s, ok := board.Current(); !ok || s.Message != "Loaded 4 GPS points" {
		t.Fatalf("status dismissed early: %+v %v", s, ok)
	}

	board.Show(StatusError, "Failed to load devices")
	now = now.Add(StatusTTL - time.Millisecond)
	if s, ok := board.Current(); !ok || s.Kind != StatusError {
		t.Fatal("newer message should restart the timer")
	}

	now = now.Add(time.Millisecond)
	if _, ok := board.Current(); ok {
		t.Fatal("status should be dismissed after the ttl")
	}
}

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" || AutoUpdating.String() != "auto-updating" {
		t.Fatal("unexpected state names")
	}
}

func TestExecCommands(t *testing.T) {
	src := &fakeSource{fixes: fleet()}
	sink := &recordingSink{}
	tasks := &worker.ManualFactory{}
	c := newController(src, sink, tasks)
	ctx := context.Background()

	cases := []struct {
		line string
		want string
	}{
		{"", ""},
		{"follow A", "following A"},
		{"toggle", "now auto-updating"},
		{"interval 30s", "interval set to 30s"},
		{"refresh", "refreshed"},
		{"devices", "2 devices"},
		{"follow A", "stopped following A"},
		{"TOGGLE", "now idle"},
	}
	for _, tc := range cases {
		got, err := c.Exec(ctx, tc.line)
		if err != nil || got != tc.want {
			t.Fatalf("Exec(%q) = %q, %v; want %q", tc.line, got, err, tc.want)
		}
	}
	if primary := tasks.Tasks()[0]; primary.Interval() != 30*time.Second || primary.Resets() != 1 {
		t.Fatalf("interval command did not re-arm the primary timer")
	}

	for _, bad := range []string{"interval soon", "interval -1s", "follow", "jump"} {
		if _, err := c.Exec(ctx, bad); err == nil {
			t.Fatalf("Exec(%q) should fail", bad)
		}
	}
	if _, err := c.Exec(ctx, "jump"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("unknown command error = %v", err)
	}
}
