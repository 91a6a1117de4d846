// Package progress manages the "thinking" placeholder shown while an
// agent run is in flight: delayed or immediate display, throttled
// streaming updates, and finalization.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// updateTimeout bounds each streaming edit of the placeholder.
const updateTimeout = 10 * time.Second

// Notifier is the narrow channel surface the tracker needs.
type Notifier interface {
	SendPlaceholder(ctx context.Context, chatID string) (messageID string, err error)
	UpdatePlaceholder(ctx context.Context, messageID, text string) error
}

// State of one tracker. Terminal states are Skipped (never shown,
// run finished first or display disabled) and Finalized.
type State int

const (
	StateIdle State = iota
	StatePending
	StateShown
	StateSkipped
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateShown:
		return "shown"
	case StateSkipped:
		return "skipped"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Config controls placeholder behavior for one tracker.
type Config struct {
	Enabled       bool
	Immediate     bool
	Delay         time.Duration
	UpdateEvery   time.Duration
	UpdateInPlace bool
}

// Tracker owns the placeholder lifecycle for a single run. All methods
// are safe for concurrent use; timers fire on their own goroutines and
// no-op once the run is done.
type Tracker struct {
	cfg    Config
	send   Notifier
	chatID string
	log    *slog.Logger

	mu        sync.Mutex
	state     State
	done      bool
	messageID string
	buf       string
	pushed    string
	updater   bool
	stop      chan struct{}
}

// NewTracker builds a tracker for one run. logger may be nil.
func NewTracker(cfg Config, send Notifier, chatID string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:    cfg,
		send:   send,
		chatID: chatID,
		log:    logger.With("component", "progress", "chat_id", chatID),
	}
}

// Start moves the tracker out of Idle. In immediate mode the
// placeholder is sent right away; otherwise a delay timer is armed
// that checks the done flag when it fires.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return
	}
	if !t.cfg.Enabled {
		t.state = StateSkipped
		t.mu.Unlock()
		return
	}
	t.state = StatePending
	immediate := t.cfg.Immediate
	t.mu.Unlock()

	if immediate {
		t.show(ctx)
		return
	}
	time.AfterFunc(t.cfg.Delay, func() {
		t.mu.Lock()
		if t.done || t.state != StatePending {
			if t.state == StatePending {
				t.state = StateSkipped
			}
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
		t.show(context.Background())
	})
}

// show sends the placeholder and records its message id.
func (t *Tracker) show(ctx context.Context) {
	id, err := t.send.SendPlaceholder(ctx, t.chatID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.log.Warn("placeholder send failed", "error", err)
		t.state = StateSkipped
		return
	}
	t.messageID = id
	if t.done {
		// Run finished while the send was in flight; keep the id
		// for cleanup but leave the terminal state alone.
		return
	}
	t.state = StateShown
}

// OnDelta records the accumulated text and lazily starts the interval
// updater the first time it is called while the placeholder is shown.
func (t *Tracker) OnDelta(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.buf = text
	if t.state != StateShown || t.cfg.UpdateEvery <= 0 || t.updater {
		return
	}
	t.updater = true
	t.stop = make(chan struct{})
	go t.updateLoop(t.stop)
}

// updateLoop pushes the latest buffer into the placeholder at most
// once per interval, skipping ticks where nothing changed.
func (t *Tracker) updateLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(t.cfg.UpdateEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		if t.done || t.state != StateShown || t.buf == t.pushed || t.buf == "" {
			t.mu.Unlock()
			continue
		}
		id, text := t.messageID, t.buf
		t.pushed = text
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		if err := t.send.UpdatePlaceholder(ctx, id, text); err != nil {
			t.log.Debug("placeholder update failed", "error", err)
		}
		cancel()
	}
}

// Finish marks the run done and clears the interval updater. It
// returns the placeholder message id to overwrite with the final
// reply, or "" when the caller should send a fresh message (not
// shown, or update-in-place disabled).
func (t *Tracker) Finish() (messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		if t.state == StateFinalized && t.cfg.UpdateInPlace {
			return t.messageID
		}
		return ""
	}
	t.done = true
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	shown := t.state == StateShown
	t.state = StateFinalized
	if shown && t.cfg.UpdateInPlace {
		return t.messageID
	}
	return ""
}

// MessageID returns the placeholder's message id, or "" if never shown.
func (t *Tracker) MessageID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messageID
}

// Snapshot returns the current state, for logging and tests.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
