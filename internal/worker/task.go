package worker

import (
	"sync"
	"time"
)

// Task is a handle on a repeating job.
type Task interface {
	// Stop cancels future runs. It is safe to call more than once.
	Stop()
	// Reset changes the period; the next run is one full period away.
	Reset(interval time.Duration)
}

// TaskFactory arms repeating tasks. Tests substitute a manual factory.
type TaskFactory interface {
	Every(interval time.Duration, fn func()) Task
}

// TickerFactory arms tasks backed by time.Ticker.
type TickerFactory struct{}

func (TickerFactory) Every(interval time.Duration, fn func()) Task {
	return NewRepeatingTask(interval, fn)
}

type RepeatingTask struct {
	ticker   *time.Ticker
	fn       func()
	stopChan chan struct{}
	once     sync.Once
	mu       sync.Mutex
}

// NewRepeatingTask runs fn every interval on its own goroutine until Stop.
// Runs never overlap; a slow run delays the next one.
func NewRepeatingTask(interval time.Duration, fn func()) *RepeatingTask {
	t := &RepeatingTask{
		ticker:   time.NewTicker(interval),
		fn:       fn,
		stopChan: make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *RepeatingTask) run() {
	for {
		select {
		case <-t.ticker.C:
			select {
			case <-t.stopChan:
				return
			default:
			}
			t.fn()
		case <-t.stopChan:
			return
		}
	}
}

func (t *RepeatingTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stopChan)
	})
}

func (t *RepeatingTask) Reset(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.stopChan:
		return
	default:
	}
	t.ticker.Reset(interval)
}
