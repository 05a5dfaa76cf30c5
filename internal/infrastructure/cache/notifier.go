package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pitchforge/pitch-builder-service/internal/core/services/generation"
)

const (
	pitchDoneChannelPrefix    = "pitch:done:"
	guidanceDoneChannelPrefix = "guidance:done:"
)

// Notifier fans completion events out over Redis pub/sub. The worker process
// publishes when a job resolves; watchers in the API process subscribe so a
// finished pitch lands without waiting for the next poll tick.
type Notifier struct {
	cache  *RedisCache
	logger *slog.Logger
}

// NewNotifier creates a pub/sub notifier on an existing Redis connection
func NewNotifier(cache *RedisCache, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{cache: cache, logger: logger}
}

// SubscribePitchDone delivers the generated pitch content for a correlation
// token. The returned func unsubscribes and closes the channel.
func (n *Notifier) SubscribePitchDone(ctx context.Context, token string) (<-chan string, func(), error) {
	channel := pitchDoneChannelPrefix + token
	sub := n.cache.client.Subscribe(ctx, channel)

	// Force the subscription onto the wire before we report success
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan string, 1)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg.Payload:
			default:
			}
		}
	}()

	unsubscribe := func() {
		if err := sub.Close(); err != nil {
			n.logger.Debug("pitch subscription close failed",
				slog.String("channel", channel),
				"error", err)
		}
	}
	return out, unsubscribe, nil
}

// SubscribeGuidanceDone delivers finished guidance requests for a session
func (n *Notifier) SubscribeGuidanceDone(ctx context.Context, sessionID uuid.UUID) (<-chan generation.GuidanceEvent, func(), error) {
	channel := guidanceDoneChannelPrefix + sessionID.String()
	sub := n.cache.client.Subscribe(ctx, channel)

	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan generation.GuidanceEvent, 1)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var event generation.GuidanceEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				n.logger.Warn("malformed guidance event",
					slog.String("channel", channel),
					"error", err)
				continue
			}
			select {
			case out <- event:
			default:
			}
		}
	}()

	unsubscribe := func() {
		if err := sub.Close(); err != nil {
			n.logger.Debug("guidance subscription close failed",
				slog.String("channel", channel),
				"error", err)
		}
	}
	return out, unsubscribe, nil
}

// PublishPitchDone announces a completed pitch to any watching process
func (n *Notifier) PublishPitchDone(ctx context.Context, token, content string) error {
	return n.cache.client.Publish(ctx, pitchDoneChannelPrefix+token, content).Err()
}

// PublishGuidanceDone announces a finished guidance request
func (n *Notifier) PublishGuidanceDone(ctx context.Context, sessionID uuid.UUID, event generation.GuidanceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal guidance event: %w", err)
	}
	return n.cache.client.Publish(ctx, guidanceDoneChannelPrefix+sessionID.String(), payload).Err()
}
