package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/validation"
	apperrors "github.com/pitchforge/pitch-builder-service/internal/pkg/errors"
)

// RequestGuidance starts (or refreshes) the advisory guidance cycle for a
// session. Guidance is non-blocking and low stakes: it never locks the
// session, and a refresh supersedes any in-flight request — the newest
// sequence is the only one whose result gets applied.
func (s *Service) RequestGuidance(ctx context.Context, sessionID uuid.UUID, refresh bool) (*domain.PitchSession, error) {
	snapshot, err := s.manager.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if validation.IsBlank(snapshot.RoleName) || validation.IsBlank(snapshot.RoleDescription) {
		return nil, apperrors.BadRequest("complete the role details before requesting guidance")
	}

	s.guidanceMu.Lock()
	if _, outstanding := s.guidanceInflight[sessionID]; outstanding && !refresh {
		// Duplicate request while one is outstanding: keep waiting on it
		s.guidanceMu.Unlock()
		return snapshot, nil
	}
	s.guidanceMu.Unlock()

	// Allocating a new sequence invalidates any in-flight request's result
	seq, err := s.manager.BumpGuidanceSeq(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	req := BuildGuidanceRequest(snapshot)
	key := GuidanceCacheKey(req)

	// Identical role details reuse the cached suggestion without a round trip
	if s.cache != nil {
		if text, hit, cerr := s.cache.GetGuidance(ctx, key); cerr == nil && hit {
			if _, err := s.manager.SetGuidanceResult(ctx, sessionID, seq, text); err != nil {
				return nil, err
			}
			return s.manager.Get(ctx, sessionID)
		}
	}

	s.guidanceMu.Lock()
	s.guidanceInflight[sessionID] = seq
	s.guidanceMu.Unlock()

	// The subscription must be live before the task is enqueued; a worker
	// finishing in the enqueue-to-subscribe window would otherwise publish
	// into the void, and there is no poll leg to catch the result later.
	waitCtx := context.WithoutCancel(ctx)
	var (
		events      <-chan GuidanceEvent
		unsubscribe func()
	)
	if s.notifier != nil {
		var serr error
		events, unsubscribe, serr = s.notifier.SubscribeGuidanceDone(waitCtx, sessionID)
		if serr != nil {
			s.logger.Warn("guidance subscription unavailable",
				slog.String("session_id", sessionID.String()),
				"error", serr)
			events, unsubscribe = nil, nil
		}
	}

	task := GuidanceTask{SessionID: sessionID, Seq: seq, CacheKey: key, Request: req}
	if err := s.queue.EnqueueGuidance(ctx, task); err != nil {
		if unsubscribe != nil {
			unsubscribe()
		}
		s.clearGuidance(sessionID, seq)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeQueueError,
			"failed to queue guidance request", 500)
	}

	go s.awaitGuidance(waitCtx, sessionID, seq, events, unsubscribe)

	s.logger.Info("guidance requested",
		slog.String("session_id", sessionID.String()),
		slog.Int64("seq", seq),
		slog.Bool("refresh", refresh))

	return snapshot, nil
}

// awaitGuidance listens for the push event carrying a finished guidance
// request and applies it if its sequence is still the current one. The
// subscription was opened by the caller, before the task was enqueued.
func (s *Service) awaitGuidance(ctx context.Context, sessionID uuid.UUID, seq int64,
	events <-chan GuidanceEvent, unsubscribe func()) {

	defer s.clearGuidance(sessionID, seq)

	if events == nil {
		return
	}
	defer unsubscribe()

	timeout := time.NewTimer(s.watchCfg.Interval * time.Duration(s.watchCfg.MaxAttempts))
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timeout.C:
			// Guidance failure is recoverable; the user can simply refresh
			s.logger.Warn("guidance request timed out",
				slog.String("session_id", sessionID.String()),
				slog.Int64("seq", seq))
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Seq != seq {
				// A superseding request owns the newer sequence
				continue
			}
			applyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			applied, err := s.manager.SetGuidanceResult(applyCtx, sessionID, event.Seq, event.Text)
			cancel()
			if err != nil {
				s.logger.Error("failed to apply guidance",
					slog.String("session_id", sessionID.String()),
					"error", err)
			} else if applied {
				s.logger.Info("guidance applied",
					slog.String("session_id", sessionID.String()),
					slog.Int64("seq", seq))
			}
			return
		}
	}
}

func (s *Service) clearGuidance(sessionID uuid.UUID, seq int64) {
	s.guidanceMu.Lock()
	if current, ok := s.guidanceInflight[sessionID]; ok && current == seq {
		delete(s.guidanceInflight, sessionID)
	}
	s.guidanceMu.Unlock()
}
