package flow

import (
	"context"
	"log/slog"
	"time"
)

// markDirtyLocked flags the entry for persistence and (re)arms its debounce
// timer. Must be called with the entry lock held. Consecutive mutations
// within the debounce window coalesce into one save, and because the save
// snapshots the entry at fire time the last-queued save always reflects the
// most recent state.
func (m *Manager) markDirtyLocked(e *entry) {
	e.dirty = true

	if e.saveTimer != nil {
		e.saveTimer.Reset(m.config.AutosaveDebounce)
		return
	}
	e.saveTimer = time.AfterFunc(m.config.AutosaveDebounce, func() {
		m.autosave(e)
	})
}

// autosave persists the entry's current state, retrying transient failures
// with backoff. Autosave failures never surface to the user; save-and-exit
// is the loud path. Holding saveMu across the store write keeps a slow
// autosave from landing after a newer synchronous save.
func (m *Manager) autosave(e *entry) {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	e.saveTimer = nil
	if !e.dirty {
		e.mu.Unlock()
		return
	}
	snapshot := cloneSession(e.session)
	e.dirty = false
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= m.config.SaveRetryMaxAttempts; attempt++ {
		if err = m.store.Save(ctx, snapshot); err == nil {
			m.logger.Debug("session autosaved",
				slog.String("session_id", snapshot.ID.String()),
				slog.Int("attempt", attempt))
			return
		}
		// Exponential backoff: 200ms, 400ms, 800ms, ...
		time.Sleep(time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond)
	}

	m.logger.Error("autosave failed after retries",
		slog.String("session_id", snapshot.ID.String()),
		slog.Int("attempts", m.config.SaveRetryMaxAttempts),
		"error", err)

	// Leave the entry dirty so the next mutation or flush retries
	e.mu.Lock()
	e.dirty = true
	e.mu.Unlock()
}
