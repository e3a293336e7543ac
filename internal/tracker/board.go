package tracker

import (
	"slices"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// Notification lifetimes.
const (
	SuccessTTL = 3 * time.Second
	ErrorTTL   = 5 * time.Second
)

// Kind classifies a notification.
type Kind int

const (
	KindNone Kind = iota
	KindSuccess
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return "none"
	}
}

// Notification is a transient banner. It is visible until ExpiresAt.
type Notification struct {
	Kind      Kind
	Message   string
	ExpiresAt time.Time
}

// Visible reports whether n should be shown at now.
func (n Notification) Visible(now time.Time) bool {
	return n.Kind != KindNone && now.Before(n.ExpiresAt)
}

// Board holds at most one notification. Setting a new one replaces the old
// one and cancels its auto-clear.
type Board struct {
	clock clock.Clock

	mu      sync.Mutex
	current Notification
	timer   *clock.Timer
	gen     uint64
	subs    []func(Notification)
}

// NewBoard creates a board on the given clock; nil means the wall clock.
func NewBoard(c clock.Clock) *Board {
	if c == nil {
		c = clock.New()
	}
	return &Board{clock: c}
}

// Subscribe registers fn to be called after every change, including the
// timed clear. fn runs without the board lock held.
func (b *Board) Subscribe(fn func(Notification)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Success shows msg for SuccessTTL.
func (b *Board) Success(msg string) {
	b.set(KindSuccess, msg, SuccessTTL)
}

// Error shows msg for ErrorTTL.
func (b *Board) Error(msg string) {
	b.set(KindError, msg, ErrorTTL)
}

// Clear removes the current notification.
func (b *Board) Clear() {
	b.mu.Lock()
	if b.current.Kind == KindNone {
		b.mu.Unlock()
		return
	}
	b.stopTimerLocked()
	b.current = Notification{}
	n, subs := b.current, b.subscribersLocked()
	b.mu.Unlock()

	notify(subs, n)
}

// Current returns the visible notification, or the zero Notification.
func (b *Board) Current() Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.current.Visible(b.clock.Now()) {
		return Notification{}
	}
	return b.current
}

func (b *Board) set(kind Kind, msg string, ttl time.Duration) {
	b.mu.Lock()
	b.stopTimerLocked()
	b.gen++
	gen := b.gen
	b.current = Notification{Kind: kind, Message: msg, ExpiresAt: b.clock.Now().Add(ttl)}
	b.timer = b.clock.AfterFunc(ttl, func() { b.expire(gen) })
	n, subs := b.current, b.subscribersLocked()
	b.mu.Unlock()

	notify(subs, n)
}

// expire clears the notification set in generation gen, unless it has
// since been replaced.
func (b *Board) expire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.current.Kind == KindNone {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.current = Notification{}
	n, subs := b.current, b.subscribersLocked()
	b.mu.Unlock()

	notify(subs, n)
}

func (b *Board) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Board) subscribersLocked() []func(Notification) {
	return slices.Clone(b.subs)
}

func notify(subs []func(Notification), n Notification) {
	for _, fn := range subs {
		fn(n)
	}
}
