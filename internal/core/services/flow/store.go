package flow

import (
	"context"

	"github.com/google/uuid"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
)

// SessionStore is the persistence gateway for pitch sessions. All operations
// are atomic at the single-record level.
type SessionStore interface {
	Create(ctx context.Context, session *domain.PitchSession) error
	Save(ctx context.Context, session *domain.PitchSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.PitchSession, error)
	FindByCorrelationToken(ctx context.Context, token string) (*domain.PitchSession, error)

	// CompleteGeneration applies a generated pitch to the session holding the
	// token, guarded by a conditional write on (status, correlation_token) so
	// the result is applied at most once even across processes. Returns false
	// when another writer already resolved the job.
	CompleteGeneration(ctx context.Context, token string, content string) (bool, error)
}
