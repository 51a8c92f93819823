package scanning

import (
	"strings"
	"sync"
	"time"
)

const (
	// DefaultSilenceThreshold is the largest gap between characters still
	// considered part of the same scan. A handheld scanner emits characters
	// a few milliseconds apart; anything slower is a new scan or a human.
	DefaultSilenceThreshold = 300 * time.Millisecond

	// DefaultQuietTimeout is how long after the last character the buffer is
	// force-flushed when no terminator arrives. Some scanners are configured
	// without a trailing Enter, so silence is the only end-of-scan signal.
	DefaultQuietTimeout = 250 * time.Millisecond
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Sink receives completed scan candidates: trimmed, non-empty strings
// reconstructed from the key-event stream. It is called from the classifier's
// serialized timeline, including from the quiet-timeout goroutine.
type Sink func(serial string)

// Config holds the classifier timing knobs.
type Config struct {
	// SilenceThreshold is the max inter-character gap within one scan.
	SilenceThreshold time.Duration

	// QuietTimeout is the delay after the last character before an implicit
	// flush, for scanners that omit the terminator.
	QuietTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.QuietTimeout <= 0 {
		c.QuietTimeout = DefaultQuietTimeout
	}
	return c
}

// Classifier turns a raw stream of key events into discrete scan candidates.
//
// The only structural signals in the stream are inter-character timing and an
// optional Enter terminator. A gap longer than the silence threshold starts a
// fresh candidate (the stale buffer is dropped before the new character is
// appended - a tunable heuristic, not a hardware guarantee). A terminator
// flushes immediately; otherwise the quiet timeout flushes after a genuine
// pause. A human typing at normal speed therefore fragments into short
// candidates that trim or dedup away; that tradeoff is accepted because
// scanner hardware dominates the expected input.
//
// The classifier also owns the session gate: while disabled, events have no
// observable effect and any partial scan is discarded.
type Classifier struct {
	mu      sync.Mutex
	cfg     Config
	sink    Sink
	clock   TimeSource
	enabled bool
	pending pendingScan

	// timer is the single-slot quiet-timeout timer; re-arming replaces it,
	// never stacks. gen invalidates callbacks from a replaced or cancelled
	// timer that already fired.
	timer *time.Timer
	gen   uint64
}

// NewClassifier creates a Classifier with the default clock. The classifier
// starts disabled; call Enable to begin accepting events.
func NewClassifier(cfg Config, sink Sink) *Classifier {
	return NewClassifierWithClock(cfg, sink, &defaultTimeSource{})
}

// NewClassifierWithClock creates a Classifier with a custom time source for
// testing.
func NewClassifierWithClock(cfg Config, sink Sink, clock TimeSource) *Classifier {
	return &Classifier{
		cfg:   cfg.withDefaults(),
		sink:  sink,
		clock: clock,
	}
}

// HandleKey processes one key event. Events are ignored while the session is
// disabled, as are chorded keys and non-character keys. A terminator flushes
// the pending scan synchronously; a printable character is appended, starting
// a fresh candidate first when the gap since the previous character exceeds
// the silence threshold.
func (c *Classifier) HandleKey(ev KeyEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	if ev.Terminator {
		c.stopTimerLocked()
		c.flushLocked()
		return
	}

	if !ev.printable() {
		return
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = c.clock.Now()
	}

	// A long gap means the previous buffer content belongs to an abandoned
	// or already-completed scan; drop it before accepting the new character.
	if !c.pending.empty() && at.Sub(c.pending.lastKeyAt) > c.cfg.SilenceThreshold {
		c.pending.reset()
	}

	c.pending.append(ev.Char, at)
	c.armTimerLocked()
}

// Enable opens the session gate. Nothing is replayed; only events arriving
// after the call are classified.
func (c *Classifier) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Disable closes the session gate, discarding any partial scan and cancelling
// the pending quiet-timeout. Partial scans never reach the sink.
func (c *Classifier) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	c.pending.reset()
	c.stopTimerLocked()
}

// Toggle flips the session gate and returns the new state.
func (c *Classifier) Toggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		c.enabled = false
		c.pending.reset()
		c.stopTimerLocked()
	} else {
		c.enabled = true
	}
	return c.enabled
}

// Enabled reports the session gate state.
func (c *Classifier) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Close cancels any outstanding timer. The classifier must not be used after
// Close.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	c.pending.reset()
	c.stopTimerLocked()
}

// flushLocked hands the trimmed buffer content to the sink. An empty or
// all-whitespace buffer is discarded silently: flushing an empty buffer is a
// no-op, not an error.
func (c *Classifier) flushLocked() {
	serial := strings.TrimSpace(c.pending.take())
	if serial == "" {
		return
	}
	c.sink(serial)
}

// armTimerLocked (re)arms the quiet-timeout timer. Any previously armed timer
// is replaced, so the timeout only fires after a genuine pause.
func (c *Classifier) armTimerLocked() {
	c.stopTimerLocked()
	gen := c.gen
	c.timer = time.AfterFunc(c.cfg.QuietTimeout, func() {
		c.quietExpired(gen)
	})
}

// stopTimerLocked cancels the pending timer and invalidates any callback that
// already escaped Stop.
func (c *Classifier) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

// quietExpired runs on the timer goroutine when the quiet timeout elapses
// without a further character or terminator.
func (c *Classifier) quietExpired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.enabled {
		return
	}
	c.timer = nil
	c.gen++
	c.flushLocked()
}
