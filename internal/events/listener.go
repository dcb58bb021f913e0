// Package events provides a Kafka listener for review lifecycle events that
// keeps the restaurant and cohort counters in step with the review store.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/tastemap/listing-service/internal/domain"
	"github.com/tastemap/listing-service/internal/observability"
)

// Review event types.
const (
	TypeReviewCreated       = "review.created"
	TypeReviewRatingChanged = "review.rating_changed"
	TypeReviewDeleted       = "review.deleted"
)

// ReviewEvent is published by the review service whenever a review is
// written, re-rated or removed.
type ReviewEvent struct {
	Type         string `json:"type"`
	RestaurantID int64  `json:"restaurant_id"`
	UserID       int64  `json:"user_id"`
	Rating       int    `json:"rating"`
	OldRating    int    `json:"old_rating"`
	NewRating    int    `json:"new_rating"`
}

// ReviewHooks applies review events to the counters. *counters.Service
// implements it.
type ReviewHooks interface {
	OnReviewCreated(ctx context.Context, restaurantID, userID int64, rating int) error
	OnReviewRatingChanged(ctx context.Context, restaurantID, userID int64, oldRating, newRating int) error
	OnReviewDeleted(ctx context.Context, restaurantID, userID int64, rating int) error
}

// messageReader is the subset of *kafka.Reader the listener uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Config holds configuration for the review event listener.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic for review events.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// Read error backoff bounds. The delay doubles on each consecutive failure
// and resets after a successful read.
const (
	defaultReadBackoff = 500 * time.Millisecond
	maxReadBackoff     = 30 * time.Second
)

// Listener consumes review events from Kafka.
type Listener struct {
	reader  messageReader
	hooks   ReviewHooks
	logger  zerolog.Logger
	metrics *observability.Metrics

	readBackoff    time.Duration
	maxReadBackoff time.Duration
}

// NewListener creates a new review event listener. metrics may be nil.
func NewListener(cfg Config, hooks ReviewHooks, logger zerolog.Logger, metrics *observability.Metrics) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newListener(reader, hooks, logger, metrics)
}

func newListener(reader messageReader, hooks ReviewHooks, logger zerolog.Logger, metrics *observability.Metrics) *Listener {
	return &Listener{
		reader:  reader,
		hooks:   hooks,
		logger:  logger.With().Str("component", "review_listener").Logger(),
		metrics: metrics,

		readBackoff:    defaultReadBackoff,
		maxReadBackoff: maxReadBackoff,
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting review event listener")

	backoff := l.readBackoff
	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("review event listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).
				Dur("retry_in", backoff).
				Msg("failed to read message from Kafka")
			if err := sleepCtx(ctx, backoff); err != nil {
				l.logger.Info().Msg("review event listener stopped via context cancellation")
				return err
			}
			backoff = min(backoff*2, l.maxReadBackoff)
			continue
		}
		backoff = l.readBackoff

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received review event")

		l.handleMessage(ctx, msg.Value)
	}
}

// sleepCtx waits for d or until ctx ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// handleMessage decodes and applies one message. Failures are logged and the
// message is skipped so a poison event cannot stall the partition.
func (l *Listener) handleMessage(ctx context.Context, value []byte) {
	var event ReviewEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error().Err(err).
			Str("raw_value", string(value)).
			Msg("failed to unmarshal review event")
		l.record("unknown", "malformed")
		return
	}

	err := l.apply(ctx, event)
	if errors.Is(err, domain.ErrTransient) {
		l.logger.Warn().Err(err).
			Str("type", event.Type).
			Int64("restaurant_id", event.RestaurantID).
			Msg("transient failure, retrying review event once")
		err = l.apply(ctx, event)
	}

	if err != nil {
		l.logger.Error().Err(err).
			Str("type", event.Type).
			Int64("restaurant_id", event.RestaurantID).
			Int64("user_id", event.UserID).
			Msg("failed to handle review event")
		l.record(event.Type, "error")
		return
	}
	l.record(event.Type, "success")
}

func (l *Listener) apply(ctx context.Context, e ReviewEvent) error {
	switch e.Type {
	case TypeReviewCreated:
		return l.hooks.OnReviewCreated(ctx, e.RestaurantID, e.UserID, e.Rating)
	case TypeReviewRatingChanged:
		return l.hooks.OnReviewRatingChanged(ctx, e.RestaurantID, e.UserID, e.OldRating, e.NewRating)
	case TypeReviewDeleted:
		return l.hooks.OnReviewDeleted(ctx, e.RestaurantID, e.UserID, e.Rating)
	default:
		return domain.NewValidationError("type", fmt.Sprintf("unknown review event type %q", e.Type))
	}
}

func (l *Listener) record(eventType, outcome string) {
	if l.metrics != nil {
		l.metrics.RecordReviewEvent(eventType, outcome)
	}
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing review event listener")
	return l.reader.Close()
}
