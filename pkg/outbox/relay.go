package outbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

// Message is the transport-neutral unit handed to a Sink.
type Message struct {
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Sink delivers one message. Implementations wrap Pub/Sub publishers.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// NonRetryableError marks failures that go straight to the DLQ.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string { return e.Err.Error() }
func (e NonRetryableError) Unwrap() error { return e.Err }

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type relayRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqWriter interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type RelayParams struct {
	DB           txRunner
	Repository   relayRepository
	DLQ          dlqWriter
	Sink         Sink
	Topic        string
	Logger       *logger.Logger
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

// Relay drains outbox_events to the notification topic.
type Relay struct {
	db           txRunner
	repo         relayRepository
	dlq          dlqWriter
	sink         Sink
	topic        string
	logg         *logger.Logger
	batchSize    int
	pollInterval time.Duration
	maxAttempts  int
	jitter       *rand.Rand
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Sink == nil:
		return nil, errors.New("sink is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.Topic == "":
		return nil, errors.New("topic is required")
	}

	r := &Relay{
		db:           params.DB,
		repo:         params.Repository,
		dlq:          params.DLQ,
		sink:         params.Sink,
		topic:        params.Topic,
		logg:         params.Logger,
		batchSize:    params.BatchSize,
		pollInterval: params.PollInterval,
		maxAttempts:  params.MaxAttempts,
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	return r, nil
}

// Run polls until ctx is cancelled, backing off while batches fail.
func (r *Relay) Run(ctx context.Context) error {
	backoff := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		processed, err := r.ProcessBatch(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox relay batch error", err)
			backoff = nextBackoff(backoff, r.pollInterval, maxBackoff)
			if err := sleep(ctx, r.withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = r.pollInterval
		if processed > 0 {
			continue
		}
		if err := sleep(ctx, r.withJitter(r.pollInterval)); err != nil {
			return err
		}
	}
}

// ProcessBatch publishes one locked batch and returns how many rows it handled.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events)
		for _, event := range events {
			if err := r.publishOne(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (r *Relay) publishOne(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := r.eventFields(event)
	envelope, err := DecodeEnvelope(event.Payload)
	if err != nil {
		return r.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, fmt.Errorf("decode envelope: %w", err), fields)
	}
	fields["event_id"] = envelope.EventID

	msg := Message{
		Topic: r.topic,
		Data:  event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	sendCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	sendErr := r.sink.Send(sendCtx, msg)
	if sendErr == nil {
		if err := r.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.logg.Debug(r.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	var nonRetry NonRetryableError
	if errors.As(sendErr, &nonRetry) {
		return r.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, sendErr, fields)
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= r.maxAttempts {
		return r.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", sendErr), fields)
	}

	logCtx := r.logg.WithField(r.logg.WithFields(ctx, fields), "error", sendErr.Error())
	r.logg.Warn(logCtx, "outbox publish failed")
	if err := r.repo.MarkFailedTx(tx, event.ID, sendErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (r *Relay) handleTerminal(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	logCtx := r.logg.WithField(r.logg.WithFields(ctx, fields), "error", cause.Error())
	r.logg.Warn(logCtx, "outbox event will not be retried")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (r *Relay) eventFields(event models.OutboxEvent) map[string]any {
	return map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
		"topic":          r.topic,
	}
}

func (r *Relay) withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(r.jitter.Int63n(int64(jitterWindow)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
