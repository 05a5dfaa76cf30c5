package generation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResultApplier applies a completed pitch to session state at most once
type ResultApplier interface {
	ApplyGenerationResult(ctx context.Context, token, content string) (bool, error)
}

// WatcherConfig fixes the poll cadence. These are deployment configuration,
// not user-tunable.
type WatcherConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// Watcher tracks one outstanding generation job. It polls the persisted
// session record at a fixed interval for a bounded number of attempts and,
// in parallel, listens for a push notification keyed by the correlation
// token. The first signal bearing content wins; everything after the watcher
// resolves is ignored.
type Watcher struct {
	sessionID uuid.UUID
	token     string
	config    WatcherConfig
	reader    SessionReader
	applier   ResultApplier
	notifier  Notifier
	logger    *slog.Logger
	onResolve func(final WatchState)

	mu       sync.Mutex
	state    WatchState
	attempts int
	resolved bool

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

// NewWatcher creates a watcher in the Idle state. onResolve runs exactly
// once when the watcher reaches a terminal state; the owning service uses it
// to release the duplicate-submission guard.
func NewWatcher(sessionID uuid.UUID, token string, config WatcherConfig,
	reader SessionReader, applier ResultApplier, notifier Notifier,
	logger *slog.Logger, onResolve func(final WatchState)) *Watcher {

	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		sessionID: sessionID,
		token:     token,
		config:    config,
		reader:    reader,
		applier:   applier,
		notifier:  notifier,
		logger:    logger,
		onResolve: onResolve,
		state:     WatchIdle,
		cancelCh:  make(chan struct{}),
	}
}

// State returns the current watcher state
func (w *Watcher) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Attempts returns how many polls have run
func (w *Watcher) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

// Token returns the correlation token being watched
func (w *Watcher) Token() string {
	return w.token
}

// Start begins polling in a background goroutine
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.state != WatchIdle {
		w.mu.Unlock()
		return
	}
	w.state = WatchPolling
	w.mu.Unlock()

	go w.run(ctx)
}

// Cancel resolves the watcher as Cancelled. The session-side cleanup (token,
// lock) is the owning service's job; the external job itself may keep
// running, we just stop waiting on it.
func (w *Watcher) Cancel() {
	w.cancelOnce.Do(func() {
		close(w.cancelCh)
	})
}

func (w *Watcher) run(ctx context.Context) {
	var push <-chan string
	if w.notifier != nil {
		ch, unsubscribe, err := w.notifier.SubscribePitchDone(ctx, w.token)
		if err != nil {
			// Poll-only is fine; push is an optimization
			w.logger.Warn("push subscription unavailable, polling only",
				slog.String("correlation_token", w.token),
				"error", err)
		} else {
			push = ch
			defer unsubscribe()
		}
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.resolve(ctx, WatchFailed, "")
			return

		case <-w.cancelCh:
			w.resolve(ctx, WatchCancelled, "")
			return

		case content, ok := <-push:
			if ok && content != "" {
				w.resolve(ctx, WatchCompleted, content)
				return
			}
			// Closed or empty push: fall back to polling
			push = nil

		case <-ticker.C:
			done, state, content := w.poll(ctx)
			if done {
				w.resolve(ctx, state, content)
				return
			}
		}
	}
}

// poll reads the session record once. Returns done=true with the terminal
// state when the job resolved or the attempt budget ran out.
func (w *Watcher) poll(ctx context.Context) (bool, WatchState, string) {
	w.mu.Lock()
	w.attempts++
	attempts := w.attempts
	w.mu.Unlock()

	pollCtx, cancel := context.WithTimeout(ctx, w.config.Interval)
	session, err := w.reader.FindByCorrelationToken(pollCtx, w.token)
	cancel()

	if err != nil {
		// Transient read failures do not clear the lock and count against
		// the attempt budget like any other unproductive poll
		w.logger.Debug("poll failed",
			slog.String("correlation_token", w.token),
			slog.Int("attempt", attempts),
			"error", err)
	} else if session.GeneratedPitch != "" {
		return true, WatchCompleted, session.GeneratedPitch
	}

	if attempts >= w.config.MaxAttempts {
		return true, WatchTimedOut, ""
	}
	return false, "", ""
}

// resolve transitions to a terminal state exactly once. A Completed
// resolution applies the content through the applier, whose conditional
// write makes the application at-most-once even if another process raced us.
func (w *Watcher) resolve(ctx context.Context, state WatchState, content string) {
	w.mu.Lock()
	if w.resolved {
		w.mu.Unlock()
		return
	}
	w.resolved = true
	w.state = state
	w.mu.Unlock()

	if state == WatchCompleted {
		applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		applied, err := w.applier.ApplyGenerationResult(applyCtx, w.token, content)
		cancel()
		if err != nil {
			w.logger.Error("failed to apply generation result",
				slog.String("correlation_token", w.token),
				"error", err)
		} else if !applied {
			w.logger.Debug("generation result already applied elsewhere",
				slog.String("correlation_token", w.token))
		}
	}

	w.logger.Info("generation watcher resolved",
		slog.String("session_id", w.sessionID.String()),
		slog.String("correlation_token", w.token),
		slog.String("state", string(state)))

	if w.onResolve != nil {
		w.onResolve(state)
	}
}
