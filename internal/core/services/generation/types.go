package generation

import (
	"context"

	"github.com/google/uuid"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
)

// WatchState is the lifecycle of one job watcher
type WatchState string

const (
	WatchIdle      WatchState = "idle"
	WatchPolling   WatchState = "polling"
	WatchCompleted WatchState = "completed"
	WatchFailed    WatchState = "failed"
	WatchTimedOut  WatchState = "timed_out"
	WatchCancelled WatchState = "cancelled"
)

// PitchRequest is the payload handed to the external generation agent
type PitchRequest struct {
	RoleName           string             `json:"roleName"`
	RoleLevel          string             `json:"roleLevel"`
	RoleDescription    string             `json:"roleDescription"`
	YearsExperience    int                `json:"yearsExperience"`
	PitchWordLimit     int                `json:"pitchWordLimit"`
	RelevantExperience string             `json:"relevantExperience"`
	StarExamples       []domain.StarBlock `json:"starExamples"`
	AgentVersion       string             `json:"version"`
}

// GuidanceRequest is the smaller advisory payload
type GuidanceRequest struct {
	RoleName        string `json:"roleName"`
	RoleLevel       string `json:"roleLevel"`
	RoleDescription string `json:"roleDescription"`
	YearsExperience int    `json:"yearsExperience"`
}

// PollResult is one status read from the external agent
type PollResult struct {
	Done    bool
	Content string
}

// AgentClient talks to the external generation service
type AgentClient interface {
	// SubmitPitch starts a generation job and returns its correlation token
	SubmitPitch(ctx context.Context, req PitchRequest) (string, error)
	// PollPitch reads job status; idempotent
	PollPitch(ctx context.Context, token string) (PollResult, error)
	// GenerateGuidance runs the advisory agent to completion
	GenerateGuidance(ctx context.Context, req GuidanceRequest) (string, error)
}

// SessionReader is the poll leg of the watcher: it re-reads the persisted
// session record for a correlation token.
type SessionReader interface {
	FindByCorrelationToken(ctx context.Context, token string) (*domain.PitchSession, error)
}

// Notifier is the push leg: completion events fan out over a channel keyed
// by correlation token (pitch) or session id (guidance).
type Notifier interface {
	SubscribePitchDone(ctx context.Context, token string) (<-chan string, func(), error)
	SubscribeGuidanceDone(ctx context.Context, sessionID uuid.UUID) (<-chan GuidanceEvent, func(), error)
}

// GuidanceEvent is a completed guidance request
type GuidanceEvent struct {
	Seq  int64  `json:"seq"`
	Text string `json:"text"`
}

// PitchPollTask drives the worker-side agent poll loop for one job
type PitchPollTask struct {
	SessionID uuid.UUID `json:"session_id"`
	Token     string    `json:"token"`
}

// GuidanceTask runs the advisory agent for one request
type GuidanceTask struct {
	SessionID uuid.UUID       `json:"session_id"`
	Seq       int64           `json:"seq"`
	CacheKey  string          `json:"cache_key"`
	Request   GuidanceRequest `json:"request"`
}

// Enqueuer hands generation work to the background worker
type Enqueuer interface {
	EnqueuePitchPoll(ctx context.Context, task PitchPollTask) error
	EnqueueGuidance(ctx context.Context, task GuidanceTask) error
}

// GuidanceCache caches advisory guidance by role-field fingerprint
type GuidanceCache interface {
	GetGuidance(ctx context.Context, key string) (string, bool, error)
	SetGuidance(ctx context.Context, key, text string) error
}
