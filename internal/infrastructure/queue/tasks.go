package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/generation"
	apperrors "github.com/pitchforge/pitch-builder-service/internal/pkg/errors"
)

// JobStore is the persistence surface the worker needs: the conditional
// completion write and the token lookup that detects cancellation.
type JobStore interface {
	FindByCorrelationToken(ctx context.Context, token string) (*domain.PitchSession, error)
	CompleteGeneration(ctx context.Context, token, content string) (bool, error)
	ApplyGuidance(ctx context.Context, sessionID uuid.UUID, seq int64, text string) (bool, error)
}

// Publisher announces resolved jobs to watching processes
type Publisher interface {
	PublishPitchDone(ctx context.Context, token, content string) error
	PublishGuidanceDone(ctx context.Context, sessionID uuid.UUID, event generation.GuidanceEvent) error
}

// TaskHandlers processes generation tasks in the worker process
type TaskHandlers struct {
	store     JobStore
	agent     generation.AgentClient
	publisher Publisher
	cache     generation.GuidanceCache
	interval  time.Duration
	logger    *slog.Logger
}

// NewTaskHandlers creates the worker-side task handlers. interval is the
// cadence for polling the external agent.
func NewTaskHandlers(store JobStore, agent generation.AgentClient, publisher Publisher,
	cache generation.GuidanceCache, interval time.Duration, logger *slog.Logger) *TaskHandlers {

	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandlers{
		store:     store,
		agent:     agent,
		publisher: publisher,
		cache:     cache,
		interval:  interval,
		logger:    logger,
	}
}

// Register attaches the handlers to an Asynq server
func (h *TaskHandlers) Register(server *AsynqServer) {
	server.HandleFunc(TaskTypePitchPoll, h.HandlePitchPoll)
	server.HandleFunc(TaskTypeGuidance, h.HandleGuidance)
}

// HandlePitchPoll drives one pitch job to completion: it polls the external
// agent until the result is ready, lands it with the conditional write, and
// publishes the push notification. The task's Timeout option bounds the loop.
func (h *TaskHandlers) HandlePitchPoll(ctx context.Context, task *asynq.Task) error {
	var payload generation.PitchPollTask
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid pitch poll payload: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("polling pitch job",
		slog.String("session_id", payload.SessionID.String()),
		slog.String("correlation_token", payload.Token))

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pitch poll aborted for %s: %w", payload.Token, ctx.Err())
		case <-ticker.C:
		}

		// A cleared token means the user cancelled; stop without retrying
		if _, err := h.store.FindByCorrelationToken(ctx, payload.Token); err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeRecordNotFound) {
				h.logger.Info("pitch job abandoned, stopping poll",
					slog.String("correlation_token", payload.Token))
				return nil
			}
			h.logger.Warn("token lookup failed during poll",
				slog.String("correlation_token", payload.Token),
				"error", err)
			continue
		}

		result, err := h.agent.PollPitch(ctx, payload.Token)
		if err != nil {
			h.logger.Warn("agent poll failed",
				slog.String("correlation_token", payload.Token),
				"error", err)
			continue
		}
		if !result.Done {
			continue
		}
		if result.Content == "" {
			return fmt.Errorf("agent returned an empty result for %s", payload.Token)
		}

		applied, err := h.store.CompleteGeneration(ctx, payload.Token, result.Content)
		if err != nil {
			return fmt.Errorf("failed to persist pitch result: %w", err)
		}
		if !applied {
			h.logger.Info("pitch result already applied elsewhere",
				slog.String("correlation_token", payload.Token))
			return nil
		}

		if err := h.publisher.PublishPitchDone(ctx, payload.Token, result.Content); err != nil {
			// The result is persisted; watchers will pick it up on poll
			h.logger.Warn("failed to publish pitch completion",
				slog.String("correlation_token", payload.Token),
				"error", err)
		}

		h.logger.Info("pitch job completed",
			slog.String("session_id", payload.SessionID.String()),
			slog.String("correlation_token", payload.Token))
		return nil
	}
}

// HandleGuidance runs the advisory agent for one request and applies the
// result if its sequence is still current. The text is cached either way,
// since it stays valid for identical role details.
func (h *TaskHandlers) HandleGuidance(ctx context.Context, task *asynq.Task) error {
	var payload generation.GuidanceTask
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid guidance payload: %v: %w", err, asynq.SkipRetry)
	}

	text, err := h.agent.GenerateGuidance(ctx, payload.Request)
	if err != nil {
		return fmt.Errorf("guidance agent failed: %w", err)
	}

	if payload.CacheKey != "" && h.cache != nil {
		if err := h.cache.SetGuidance(ctx, payload.CacheKey, text); err != nil {
			h.logger.Warn("failed to cache guidance",
				slog.String("cache_key", payload.CacheKey),
				"error", err)
		}
	}

	applied, err := h.store.ApplyGuidance(ctx, payload.SessionID, payload.Seq, text)
	if err != nil {
		return fmt.Errorf("failed to persist guidance: %w", err)
	}
	if !applied {
		h.logger.Info("guidance superseded before completion",
			slog.String("session_id", payload.SessionID.String()),
			slog.Int64("seq", payload.Seq))
		return nil
	}

	event := generation.GuidanceEvent{Seq: payload.Seq, Text: text}
	if err := h.publisher.PublishGuidanceDone(ctx, payload.SessionID, event); err != nil {
		h.logger.Warn("failed to publish guidance completion",
			slog.String("session_id", payload.SessionID.String()),
			"error", err)
	}

	return nil
}
