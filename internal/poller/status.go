package poller

import (
	"sync"
	"time"
)

// StatusTTL is how long a status message stays visible.
const StatusTTL = 5 * time.Second

type StatusKind string

const (
	StatusLoading StatusKind = "loading"
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

type Status struct {
	Kind    StatusKind
	Message string
	At      time.Time
}

// StatusBoard holds the single transient status line. A newer message
// replaces the older one; any message expires StatusTTL after it was shown.
type StatusBoard struct {
	mu       sync.Mutex
	current  *Status
	ttl      time.Duration
	now      func() time.Time
	listener func(Status)
}

func NewStatusBoard(listener func(Status)) *StatusBoard {
	return &StatusBoard{ttl: StatusTTL, now: time.Now, listener: listener}
}

func (b *StatusBoard) Show(kind StatusKind, message string) {
	s := Status{Kind: kind, Message: message, At: b.now()}

	b.mu.Lock()
	b.current = &s
	listener := b.listener
	b.mu.Unlock()

	if listener != nil {
		listener(s)
	}
}

// Current returns the visible status, or false once it has been dismissed.
func (b *StatusBoard) Current() (Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return Status{}, false
	}
	if b.now().Sub(b.current.At) >= b.ttl {
		b.current = nil
		return Status{}, false
	}
	return *b.current, true
}

func (b *StatusBoard) Clear() {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
}
