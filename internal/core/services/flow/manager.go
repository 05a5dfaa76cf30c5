// Package flow owns the in-memory session state: wizard navigation, field
// mutations, the confirmation-gate lock, and debounced persistence through
// the session store. The manager is the single logical owner of a session;
// every mutation serializes on a per-session mutex.
package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/stepindex"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/validation"
	apperrors "github.com/pitchforge/pitch-builder-service/internal/pkg/errors"
)

// Config tunes the manager's persistence behavior
type Config struct {
	AutosaveDebounce     time.Duration
	SaveRetryMaxAttempts int
}

// DefaultConfig returns the stock manager tuning
func DefaultConfig() Config {
	return Config{
		AutosaveDebounce:     750 * time.Millisecond,
		SaveRetryMaxAttempts: 3,
	}
}

// Manager coordinates all session mutations
type Manager struct {
	store  SessionStore
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

// entry is one live session plus its autosave bookkeeping. All access to
// session goes through mu.
type entry struct {
	mu        sync.Mutex
	session   *domain.PitchSession
	dirty     bool
	saveTimer *time.Timer

	// saveMu serializes store writes for this entry: a stale in-flight
	// autosave must not land after a newer synchronous save. Lock order is
	// saveMu before mu.
	saveMu sync.Mutex
}

// NewManager creates a session flow manager
func NewManager(store SessionStore, config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.AutosaveDebounce <= 0 {
		config.AutosaveDebounce = DefaultConfig().AutosaveDebounce
	}
	if config.SaveRetryMaxAttempts <= 0 {
		config.SaveRetryMaxAttempts = DefaultConfig().SaveRetryMaxAttempts
	}

	return &Manager{
		store:   store,
		config:  config,
		logger:  logger,
		entries: make(map[uuid.UUID]*entry),
	}
}

// CreateParams carries the initial fields for a new session
type CreateParams struct {
	RoleName        string
	RoleLevel       string
	RoleDescription string
	YearsExperience int
	WordLimit       int
	BlockCount      int
}

// Create starts a new draft session for an owner and persists it immediately
// so it has an id.
func (m *Manager) Create(ctx context.Context, ownerID string, params CreateParams) (*domain.PitchSession, error) {
	if ownerID == "" {
		return nil, apperrors.BadRequest("owner id is required")
	}

	blockCount := params.BlockCount
	if blockCount == 0 {
		blockCount = 2
	}
	if !domain.IsValidBlockCount(blockCount) {
		return nil, apperrors.BadRequest("blockCount must be between 1 and 10")
	}

	wordLimit := params.WordLimit
	if wordLimit == 0 {
		wordLimit = domain.DefaultWordLimit
	}
	if wordLimit < domain.MinWordLimit || wordLimit > domain.MaxWordLimit {
		return nil, apperrors.BadRequest("wordLimit must be between 400 and 1000")
	}

	session := &domain.PitchSession{
		OwnerID:         ownerID,
		RoleName:        params.RoleName,
		RoleLevel:       params.RoleLevel,
		RoleDescription: params.RoleDescription,
		YearsExperience: params.YearsExperience,
		WordLimit:       wordLimit,
		BlockCount:      blockCount,
		Blocks:          domain.NewBlockEnvelope(blockCount),
		CurrentStep:     1,
		Status:          domain.StatusDraft,
	}

	if err := m.store.Create(ctx, session); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	m.mu.Lock()
	m.entries[session.ID] = &entry{session: session}
	m.mu.Unlock()

	m.logger.Info("session created",
		slog.String("session_id", session.ID.String()),
		slog.String("owner_id", ownerID),
		slog.Int("block_count", blockCount))

	return cloneSession(session), nil
}

// Get returns a read-only snapshot of the session
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*domain.PitchSession, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(e.session), nil
}

// Advance validates the current step and moves forward one step. Validation
// failure attaches field annotations to the draft and leaves the step
// unchanged. The step before review requires the explicit confirmation gate
// instead.
func (m *Manager) Advance(ctx context.Context, id uuid.UUID) (*domain.PitchSession, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if s.Locked {
		return nil, apperrors.SessionLocked()
	}

	result := validation.ValidateStep(s.CurrentStep, s.BlockCount, s)
	if !result.Valid {
		s.FieldErrors = fieldErrorsToJSONB(result.Fields)
		return nil, apperrors.ValidationFailed(result.Fields)
	}
	s.FieldErrors = nil

	if s.Status == domain.StatusDraft && s.CurrentStep == stepindex.LastExampleStep(s.BlockCount) {
		return nil, apperrors.InvalidStep("the last example step requires explicit confirmation to submit")
	}

	total := stepindex.TotalSteps(s.BlockCount)
	if s.CurrentStep < total {
		s.CurrentStep++
		m.markDirtyLocked(e)
	}

	return cloneSession(s), nil
}

// Retreat moves back one step. Refused while locked.
func (m *Manager) Retreat(ctx context.Context, id uuid.UUID) (*domain.PitchSession, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if s.Locked {
		return nil, apperrors.SessionLocked()
	}

	if s.CurrentStep > 1 {
		s.CurrentStep--
		m.markDirtyLocked(e)
	}

	return cloneSession(s), nil
}

// JumpTo navigates to the first step of a section. Only backward jumps (to
// already-visited sections) are permitted; while locked every non-terminal
// target is refused.
func (m *Manager) JumpTo(ctx context.Context, id uuid.UUID, section stepindex.Section) (*domain.PitchSession, error) {
	if !stepindex.IsValidSection(section) {
		return nil, apperrors.BadRequest("unknown section: " + string(section))
	}

	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if s.Locked && section != stepindex.SectionReview {
		return nil, apperrors.SessionLocked()
	}

	target, err := stepindex.FirstStepOfSection(section, s.BlockCount)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}

	// The review section is reachable forward while a job is outstanding or
	// done; everything else only backward.
	if section != stepindex.SectionReview && target > s.CurrentStep {
		return nil, apperrors.InvalidStep("cannot jump forward to an unvisited section")
	}
	if section == stepindex.SectionReview && !s.Locked &&
		s.Status == domain.StatusDraft && target > s.CurrentStep {
		return nil, apperrors.InvalidStep("cannot jump forward to an unvisited section")
	}

	if s.CurrentStep != target {
		s.CurrentStep = target
		m.markDirtyLocked(e)
	}

	return cloneSession(s), nil
}

// SetField applies one field mutation. While locked all mutations are
// refused; once the pitch is final only the generated text stays editable,
// and a submitted session is immutable.
func (m *Manager) SetField(ctx context.Context, id uuid.UUID, path, value string) (*domain.PitchSession, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if s.Locked {
		return nil, apperrors.SessionLocked()
	}
	switch s.Status {
	case domain.StatusSubmitted:
		return nil, apperrors.Conflict("session has already been submitted")
	case domain.StatusFinal:
		if path != "generatedPitch" {
			return nil, apperrors.Conflict("only the generated pitch can be edited after generation")
		}
	}

	if err := setField(s, path, value); err != nil {
		return nil, err
	}

	// A corrected field clears its stale annotation
	if s.FieldErrors != nil {
		delete(s.FieldErrors, path)
	}

	m.markDirtyLocked(e)
	return cloneSession(s), nil
}

// SetBlockCount resizes the example blocks, preserving content by index, and
// clamps the current step to the new total.
func (m *Manager) SetBlockCount(ctx context.Context, id uuid.UUID, blockCount int) (*domain.PitchSession, error) {
	if !domain.IsValidBlockCount(blockCount) {
		return nil, apperrors.BadRequest("blockCount must be between 1 and 10")
	}

	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if s.Locked {
		return nil, apperrors.SessionLocked()
	}
	if s.Status == domain.StatusFinal || s.Status == domain.StatusSubmitted {
		return nil, apperrors.Conflict("cannot change the example count after generation")
	}

	if s.BlockCount != blockCount {
		s.BlockCount = blockCount
		s.Blocks.Resize(blockCount)

		total := stepindex.TotalSteps(blockCount)
		if s.CurrentStep > total {
			s.CurrentStep = total
		}
		m.markDirtyLocked(e)
	}

	return cloneSession(s), nil
}

// SaveAndExit flushes the session synchronously. Unlike autosave, a failure
// here is surfaced to the caller.
func (m *Manager) SaveAndExit(ctx context.Context, id uuid.UUID) (*domain.PitchSession, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	if e.saveTimer != nil {
		e.saveTimer.Stop()
		e.saveTimer = nil
	}
	snapshot := cloneSession(e.session)
	e.mu.Unlock()

	if err := m.store.Save(ctx, snapshot); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	e.mu.Lock()
	e.dirty = false
	e.mu.Unlock()

	return snapshot, nil
}

// ValidateForSubmit re-runs validation over every input step; the
// confirmation gate calls this before submitting a generation job.
func (m *Manager) ValidateForSubmit(ctx context.Context, id uuid.UUID) error {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	result := validation.ValidateAll(s.BlockCount, s)
	if !result.Valid {
		s.FieldErrors = fieldErrorsToJSONB(result.Fields)
		return apperrors.ValidationFailed(result.Fields)
	}
	s.FieldErrors = nil
	return nil
}

// BeginGeneration engages the confirmation gate: the lock, the generating
// status, and the correlation token are persisted synchronously before
// control returns, so a reload cannot lose the in-flight job. On persistence
// failure the in-memory state is rolled back and no lock is taken.
func (m *Manager) BeginGeneration(ctx context.Context, id uuid.UUID, token string) (*domain.PitchSession, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if s.Locked {
		if s.CorrelationToken != nil && *s.CorrelationToken == token {
			return cloneSession(s), nil
		}
		return nil, apperrors.DuplicateSubmission(id.String())
	}

	prevStatus := s.Status
	prevToken := s.CorrelationToken

	s.Locked = true
	s.Status = domain.StatusGenerating
	s.CorrelationToken = &token
	s.FieldErrors = nil

	if e.saveTimer != nil {
		e.saveTimer.Stop()
		e.saveTimer = nil
	}

	if err := m.store.Save(ctx, s); err != nil {
		s.Locked = false
		s.Status = prevStatus
		s.CorrelationToken = prevToken
		return nil, apperrors.DatabaseError(err)
	}
	e.dirty = false

	m.logger.Info("generation started, session locked",
		slog.String("session_id", id.String()),
		slog.String("correlation_token", token))

	return cloneSession(s), nil
}

// ApplyGenerationResult applies a completed pitch exactly once per token.
// Returns false when the job was already resolved (by this process or
// another); the second signal is a no-op.
func (m *Manager) ApplyGenerationResult(ctx context.Context, token, content string) (bool, error) {
	session, err := m.store.FindByCorrelationToken(ctx, token)
	if err != nil {
		return false, err
	}

	e, err := m.getEntry(ctx, session.ID)
	if err != nil {
		return false, err
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if s.Status != domain.StatusGenerating || s.CorrelationToken == nil || *s.CorrelationToken != token {
		return false, nil
	}

	applied, err := m.store.CompleteGeneration(ctx, token, content)
	if err != nil {
		return false, err
	}
	if !applied {
		// Another writer resolved the job; refresh our copy
		if fresh, ferr := m.store.FindByCorrelationToken(ctx, token); ferr == nil {
			e.session = fresh
		}
		return false, nil
	}

	s.GeneratedPitch = content
	s.Locked = false
	s.Status = domain.StatusFinal
	s.CurrentStep = stepindex.TotalSteps(s.BlockCount)
	e.dirty = false

	m.logger.Info("generation result applied",
		slog.String("session_id", s.ID.String()),
		slog.String("correlation_token", token))

	return true, nil
}

// CancelGeneration abandons an outstanding job: the token and lock are
// cleared and the session becomes editable again. The external job may still
// finish out-of-band; its late result will no longer match and is dropped.
func (m *Manager) CancelGeneration(ctx context.Context, id uuid.UUID) (*domain.PitchSession, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if s.Status != domain.StatusGenerating || s.CorrelationToken == nil {
		return nil, apperrors.NoOutstandingJob()
	}

	prevToken := s.CorrelationToken
	s.CorrelationToken = nil
	s.Locked = false
	s.Status = domain.StatusDraft

	if err := m.store.Save(ctx, s); err != nil {
		s.CorrelationToken = prevToken
		s.Locked = true
		s.Status = domain.StatusGenerating
		return nil, apperrors.DatabaseError(err)
	}
	e.dirty = false

	m.logger.Info("generation cancelled",
		slog.String("session_id", id.String()),
		slog.String("correlation_token", *prevToken))

	return cloneSession(s), nil
}

// Finalize moves a generated session to submitted. Review-step action.
func (m *Manager) Finalize(ctx context.Context, id uuid.UUID) (*domain.PitchSession, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if s.Status != domain.StatusFinal {
		return nil, apperrors.Conflict("only a generated session can be finalized")
	}

	now := time.Now().UTC()
	s.Status = domain.StatusSubmitted
	s.CompletedAt = &now

	if err := m.store.Save(ctx, s); err != nil {
		s.Status = domain.StatusFinal
		s.CompletedAt = nil
		return nil, apperrors.DatabaseError(err)
	}
	e.dirty = false

	return cloneSession(s), nil
}

// BumpGuidanceSeq allocates the next guidance request sequence and persists
// it. A guidance result is applied only while its sequence is still current,
// so a manual refresh supersedes any in-flight request (last-applied-wins).
func (m *Manager) BumpGuidanceSeq(ctx context.Context, id uuid.UUID) (int64, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return 0, err
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	s.GuidanceSeq++
	if err := m.store.Save(ctx, s); err != nil {
		s.GuidanceSeq--
		return 0, apperrors.DatabaseError(err)
	}
	e.dirty = false
	return s.GuidanceSeq, nil
}

// SetGuidanceResult applies an advisory guidance text if its sequence is
// still current. Stale results report false and change nothing.
func (m *Manager) SetGuidanceResult(ctx context.Context, id uuid.UUID, seq int64, text string) (bool, error) {
	e, err := m.getEntry(ctx, id)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session

	if seq != s.GuidanceSeq {
		return false, nil
	}
	s.GuidanceText = text
	m.markDirtyLocked(e)
	return true, nil
}

// Flush synchronously saves every dirty session; called on shutdown
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	var lastErr error
	for _, e := range entries {
		e.saveMu.Lock()
		e.mu.Lock()
		if e.saveTimer != nil {
			e.saveTimer.Stop()
			e.saveTimer = nil
		}
		if !e.dirty {
			e.mu.Unlock()
			e.saveMu.Unlock()
			continue
		}
		snapshot := cloneSession(e.session)
		e.dirty = false
		e.mu.Unlock()

		if err := m.store.Save(ctx, snapshot); err != nil {
			lastErr = err
			m.logger.Error("flush save failed",
				slog.String("session_id", snapshot.ID.String()),
				"error", err)
		}
		e.saveMu.Unlock()
	}
	return lastErr
}

// getEntry returns the live entry for a session, loading it from the store
// on first access. Loading runs the legacy blocks migration as a side effect
// of the envelope scan.
func (m *Manager) getEntry(ctx context.Context, id uuid.UUID) (*entry, error) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	session, err := m.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have loaded it while we were reading
	if e, ok := m.entries[id]; ok {
		return e, nil
	}
	e := &entry{session: session}
	m.entries[id] = e
	return e, nil
}

func fieldErrorsToJSONB(fields map[string]string) domain.JSONB {
	if len(fields) == 0 {
		return nil
	}
	out := make(domain.JSONB, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// cloneSession returns a snapshot safe to hand outside the entry lock
func cloneSession(s *domain.PitchSession) *domain.PitchSession {
	clone := *s

	clone.Blocks.Blocks = make([]domain.StarBlock, len(s.Blocks.Blocks))
	for i, b := range s.Blocks.Blocks {
		nb := b
		nb.Action.Steps = append([]domain.ActionStep(nil), b.Action.Steps...)
		clone.Blocks.Blocks[i] = nb
	}

	if s.FieldErrors != nil {
		clone.FieldErrors = make(domain.JSONB, len(s.FieldErrors))
		for k, v := range s.FieldErrors {
			clone.FieldErrors[k] = v
		}
	}
	if s.CorrelationToken != nil {
		token := *s.CorrelationToken
		clone.CorrelationToken = &token
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		clone.CompletedAt = &at
	}

	return &clone
}
