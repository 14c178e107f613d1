package worker

import (
	"sync"
	"time"
)

// ManualFactory hands out tasks that only run when fired explicitly. It lets
// timer-driven components be stepped deterministically.
type ManualFactory struct {
	mu    sync.Mutex
	tasks []*ManualTask
}

func (f *ManualFactory) Every(interval time.Duration, fn func()) Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &ManualTask{interval: interval, fn: fn}
	f.tasks = append(f.tasks, t)
	return t
}

// Tasks returns every task armed so far, stopped ones included.
func (f *ManualFactory) Tasks() []*ManualTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*ManualTask(nil), f.tasks...)
}

// Live returns the tasks that have not been stopped.
func (f *ManualFactory) Live() []*ManualTask {
	var live []*ManualTask
	for _, t := range f.Tasks() {
		if !t.Stopped() {
			live = append(live, t)
		}
	}
	return live
}

type ManualTask struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	stopped  bool
	resets   int
}

// Fire runs the task once unless it has been stopped.
func (t *ManualTask) Fire() bool {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return false
	}
	t.fn()
	return true
}

func (t *ManualTask) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *ManualTask) Reset(interval time.Duration) {
	t.mu.Lock()
	t.interval = interval
	t.resets++
	t.mu.Unlock()
}

func (t *ManualTask) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *ManualTask) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *ManualTask) Resets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}
