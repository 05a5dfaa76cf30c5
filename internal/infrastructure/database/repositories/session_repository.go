package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/stepindex"
	apperrors "github.com/pitchforge/pitch-builder-service/internal/pkg/errors"
)

// SessionRepository persists pitch sessions using GORM. It implements
// flow.SessionStore and the generation watcher's SessionReader.
type SessionRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSessionRepository creates a new repository instance
func NewSessionRepository(db *gorm.DB, logger *slog.Logger) *SessionRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, session *domain.PitchSession) error {
	err := r.db.WithContext(ctx).Create(session).Error
	if err != nil {
		r.logger.Error("failed to create session",
			slog.String("owner_id", session.OwnerID),
			"error", err)
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Save writes the full session record
func (r *SessionRepository) Save(ctx context.Context, session *domain.PitchSession) error {
	err := r.db.WithContext(ctx).Save(session).Error
	if err != nil {
		r.logger.Error("failed to save session",
			slog.String("session_id", session.ID.String()),
			"error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FindByID loads one session
func (r *SessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.PitchSession, error) {
	var session domain.PitchSession

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.RecordNotFound("session")
		}
		r.logger.Error("failed to find session",
			slog.String("session_id", id.String()),
			"error", err)
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return &session, nil
}

// FindByOwner lists an owner's sessions, newest first
func (r *SessionRepository) FindByOwner(ctx context.Context, ownerID string) ([]domain.PitchSession, error) {
	var sessions []domain.PitchSession

	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&sessions).
		Error

	if err != nil {
		r.logger.Error("failed to list sessions",
			slog.String("owner_id", ownerID),
			"error", err)
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return sessions, nil
}

// FindByCorrelationToken loads the session holding a correlation token
func (r *SessionRepository) FindByCorrelationToken(ctx context.Context, token string) (*domain.PitchSession, error) {
	var session domain.PitchSession

	err := r.db.WithContext(ctx).
		Where("correlation_token = ?", token).
		First(&session).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.RecordNotFound("session")
		}
		r.logger.Error("failed to find session by token",
			slog.String("correlation_token", token),
			"error", err)
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return &session, nil
}

// CompleteGeneration resolves an outstanding job with a conditional write:
// the update only lands while the row still carries the token with status
// generating, so two racing writers cannot both apply a result. Returns
// false when the condition no longer holds.
func (r *SessionRepository) CompleteGeneration(ctx context.Context, token, content string) (bool, error) {
	var applied bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session domain.PitchSession
		if err := tx.Where("correlation_token = ? AND status = ?", token, domain.StatusGenerating).
			First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		result := tx.Model(&domain.PitchSession{}).
			Where("correlation_token = ? AND status = ?", token, domain.StatusGenerating).
			Updates(map[string]interface{}{
				"generated_pitch": content,
				"status":          domain.StatusFinal,
				"locked":          false,
				"current_step":    stepindex.TotalSteps(session.BlockCount),
				"updated_at":      time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}

		applied = result.RowsAffected == 1
		return nil
	})

	if err != nil {
		r.logger.Error("failed to complete generation",
			slog.String("correlation_token", token),
			"error", err)
		return false, fmt.Errorf("failed to complete generation: %w", err)
	}

	if applied {
		r.logger.Info("generation result persisted",
			slog.String("correlation_token", token))
	}

	return applied, nil
}

// ApplyGuidance persists a guidance result only while its sequence is still
// the current one. A stale result (superseded by a refresh) changes nothing.
func (r *SessionRepository) ApplyGuidance(ctx context.Context, sessionID uuid.UUID, seq int64, text string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.PitchSession{}).
		Where("id = ? AND guidance_seq = ?", sessionID, seq).
		Updates(map[string]interface{}{
			"guidance_text": text,
			"updated_at":    time.Now().UTC(),
		})

	if result.Error != nil {
		r.logger.Error("failed to apply guidance",
			slog.String("session_id", sessionID.String()),
			slog.Int64("seq", seq),
			"error", result.Error)
		return false, fmt.Errorf("failed to apply guidance: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

// Delete removes a session permanently
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.PitchSession{}).
		Error

	if err != nil {
		r.logger.Error("failed to delete session",
			slog.String("session_id", id.String()),
			"error", err)
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
