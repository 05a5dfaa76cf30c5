// Package generation orchestrates the asynchronous pitch job: submission
// with duplicate guarding, watching for completion over poll and push, and
// the lighter advisory guidance cycle.
package generation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/flow"
	apperrors "github.com/pitchforge/pitch-builder-service/internal/pkg/errors"
)

// Service coordinates job submission and watching for one process.
//
// The duplicate-submission guard is process-local: it protects against
// double-clicks and rapid repeated confirms hitting the same instance. Under
// horizontal scaling the conditional status write in the session store is
// the real arbiter; a second instance racing past this guard loses there.
type Service struct {
	manager  *flow.Manager
	reader   SessionReader
	agent    AgentClient
	notifier Notifier
	queue    Enqueuer
	cache    GuidanceCache
	watchCfg WatcherConfig
	logger   *slog.Logger

	// watcherRetention bounds how long a resolved watcher stays visible to
	// status reads before it is evicted from the map
	watcherRetention time.Duration

	mu       sync.Mutex
	inflight map[uuid.UUID]*submission
	watchers map[string]*Watcher

	guidanceMu       sync.Mutex
	guidanceInflight map[uuid.UUID]int64 // session id -> outstanding seq
}

// submission is one in-progress confirm; later confirms for the same session
// wait on it and share its outcome.
type submission struct {
	done  chan struct{}
	token string
	err   error
}

// NewService creates the generation orchestrator
func NewService(manager *flow.Manager, reader SessionReader, agent AgentClient,
	notifier Notifier, queue Enqueuer, cache GuidanceCache,
	watchCfg WatcherConfig, logger *slog.Logger) *Service {

	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		manager:          manager,
		reader:           reader,
		agent:            agent,
		notifier:         notifier,
		queue:            queue,
		cache:            cache,
		watchCfg:         watchCfg,
		logger:           logger,
		watcherRetention: time.Minute,
		inflight:         make(map[uuid.UUID]*submission),
		watchers:         make(map[string]*Watcher),
		guidanceInflight: make(map[uuid.UUID]int64),
	}
}

// ConfirmAndSubmit is the confirmation gate: it validates the whole draft,
// submits the generation job, locks the session, and starts a watcher.
// Concurrent calls for the same session coalesce onto one job and one token.
func (s *Service) ConfirmAndSubmit(ctx context.Context, sessionID uuid.UUID) (*domain.PitchSession, error) {
	s.mu.Lock()
	if existing, ok := s.inflight[sessionID]; ok {
		s.mu.Unlock()
		// Second rapid confirm: wait for the first and share its outcome
		select {
		case <-existing.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if existing.err != nil {
			return nil, existing.err
		}
		return s.manager.Get(ctx, sessionID)
	}
	sub := &submission{done: make(chan struct{})}
	s.inflight[sessionID] = sub
	s.mu.Unlock()

	snapshot, err := s.submit(ctx, sessionID)
	sub.err = err
	if err == nil && snapshot.CorrelationToken != nil {
		sub.token = *snapshot.CorrelationToken
	}
	close(sub.done)

	if err != nil {
		// Failed submissions release the guard immediately so a retry is
		// permitted; successful ones hold it until the watcher resolves
		s.release(sessionID)
		return nil, err
	}
	return snapshot, nil
}

func (s *Service) submit(ctx context.Context, sessionID uuid.UUID) (*domain.PitchSession, error) {
	if err := s.manager.ValidateForSubmit(ctx, sessionID); err != nil {
		return nil, err
	}

	snapshot, err := s.manager.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snapshot.Locked {
		return nil, apperrors.SessionLocked()
	}

	token, err := s.agent.SubmitPitch(ctx, BuildPitchRequest(snapshot))
	if err != nil {
		// No token was stored; the session stays editable and unlocked
		return nil, apperrors.AgentRequestFailed(err)
	}

	// Lock + token + generating status hit the store before we return
	snapshot, err = s.manager.BeginGeneration(ctx, sessionID, token)
	if err != nil {
		return nil, err
	}

	if err := s.queue.EnqueuePitchPoll(ctx, PitchPollTask{SessionID: sessionID, Token: token}); err != nil {
		// The job is already submitted and persisted; the watcher will time
		// out and offer cancel-and-retry if the worker never picks it up
		s.logger.Error("failed to enqueue pitch poll task",
			slog.String("session_id", sessionID.String()),
			"error", err)
	}

	s.startWatcher(ctx, sessionID, token)

	s.logger.Info("pitch generation submitted",
		slog.String("session_id", sessionID.String()),
		slog.String("correlation_token", token))

	return snapshot, nil
}

// Resume restarts watching after a reload: a session persisted as generating
// with a token gets a fresh watcher and re-arms the duplicate guard.
func (s *Service) Resume(ctx context.Context, session *domain.PitchSession) {
	if session.Status != domain.StatusGenerating || session.CorrelationToken == nil {
		return
	}
	token := *session.CorrelationToken

	s.mu.Lock()
	if _, ok := s.watchers[token]; ok {
		s.mu.Unlock()
		return
	}
	if _, ok := s.inflight[session.ID]; !ok {
		sub := &submission{done: make(chan struct{}), token: token}
		close(sub.done)
		s.inflight[session.ID] = sub
	}
	s.mu.Unlock()

	s.startWatcher(ctx, session.ID, token)

	s.logger.Info("resumed watching outstanding generation",
		slog.String("session_id", session.ID.String()),
		slog.String("correlation_token", token))
}

// Cancel abandons the outstanding job for a session and unlocks it
func (s *Service) Cancel(ctx context.Context, sessionID uuid.UUID) (*domain.PitchSession, error) {
	snapshot, err := s.manager.CancelGeneration(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	var watcher *Watcher
	if sub, ok := s.inflight[sessionID]; ok && sub.token != "" {
		watcher = s.watchers[sub.token]
	}
	s.mu.Unlock()

	if watcher != nil {
		watcher.Cancel()
	} else {
		// No live watcher (e.g. cancel after a restart); release directly
		s.release(sessionID)
	}

	return snapshot, nil
}

// Status reports the watcher state for a session's outstanding job
func (s *Service) Status(ctx context.Context, sessionID uuid.UUID) (WatchState, int, error) {
	session, err := s.manager.Get(ctx, sessionID)
	if err != nil {
		return "", 0, err
	}

	switch session.Status {
	case domain.StatusFinal, domain.StatusSubmitted:
		return WatchCompleted, 0, nil
	case domain.StatusGenerating:
		// fall through to the live watcher if we have one
	default:
		return WatchIdle, 0, nil
	}

	if session.CorrelationToken != nil {
		s.mu.Lock()
		w := s.watchers[*session.CorrelationToken]
		s.mu.Unlock()
		if w != nil {
			return w.State(), w.Attempts(), nil
		}
	}
	return WatchPolling, 0, nil
}

func (s *Service) startWatcher(ctx context.Context, sessionID uuid.UUID, token string) {
	w := NewWatcher(sessionID, token, s.watchCfg, s.reader, s.manager, s.notifier,
		s.logger, func(final WatchState) {
			s.finishWatch(sessionID, token, final)
		})

	s.mu.Lock()
	s.watchers[token] = w
	s.mu.Unlock()

	// The watcher outlives the request that started it
	w.Start(context.WithoutCancel(ctx))
}

// finishWatch releases the duplicate-submission guard once the watcher
// resolves. The terminal watcher stays visible to late status reads for the
// retention window, then gets evicted so the map cannot grow unbounded.
func (s *Service) finishWatch(sessionID uuid.UUID, token string, final WatchState) {
	s.release(sessionID)

	time.AfterFunc(s.watcherRetention, func() {
		s.mu.Lock()
		delete(s.watchers, token)
		s.mu.Unlock()
	})
}

func (s *Service) release(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.inflight, sessionID)
	s.mu.Unlock()
}
