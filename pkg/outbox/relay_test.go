package outbox

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

type recordingSink struct {
	sent []Message
	err  error
}

func (s *recordingSink) Send(ctx context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newRelayFixture(t *testing.T, sink Sink, maxAttempts int) (*Relay, *Service, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
	repo := NewRepository(conn)
	relay, err := NewRelay(RelayParams{
		DB:          client,
		Repository:  repo,
		DLQ:         NewDLQRepository(conn),
		Sink:        sink,
		Topic:       "notifications",
		Logger:      logg,
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return relay, NewService(repo, logg), conn
}

func emitOrderPlaced(t *testing.T, svc *Service, conn *gorm.DB, orderID uuid.UUID) {
	t.Helper()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{Role: string(enums.ActorRoleBuyer)},
			Data:          map[string]any{"order_id": orderID},
		})
	})
	require.NoError(t, err)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	_, svc, conn := newRelayFixture(t, &recordingSink{}, 3)
	orderID := uuid.New()

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	_, svc, conn := newRelayFixture(t, &recordingSink{}, 3)
	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "made_up", AggregateType: enums.AggregateOrder})
	require.Error(t, err)
}

func TestRelayPublishesAndMarks(t *testing.T) {
	sink := &recordingSink{}
	relay, svc, conn := newRelayFixture(t, sink, 3)
	orderID := uuid.New()
	emitOrderPlaced(t, svc, conn, orderID)

	processed, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "notifications", sink.sent[0].Topic)
	assert.Equal(t, string(enums.EventOrderPlaced), sink.sent[0].Attributes["event_type"])
	assert.Equal(t, orderID.String(), sink.sent[0].Attributes["aggregate_id"])

	env, err := DecodeEnvelope(sink.sent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, sink.sent[0].Attributes["event_id"], env.EventID)

	processed, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed, "published rows must not be fetched again")
}

func TestRelayMovesToDLQAfterMaxAttempts(t *testing.T) {
	sink := &recordingSink{err: errors.New("unavailable")}
	relay, svc, conn := newRelayFixture(t, sink, 2)
	emitOrderPlaced(t, svc, conn, uuid.New())

	_, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, 1, row.AttemptCount)
	require.NotNil(t, row.LastError)

	_, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)

	var dlq []models.OutboxDLQ
	require.NoError(t, conn.Find(&dlq).Error)
	require.Len(t, dlq, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq[0].ErrorReason)

	processed, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestRelayNonRetryableGoesStraightToDLQ(t *testing.T) {
	sink := &recordingSink{err: NonRetryableError{Err: errors.New("topic missing")}}
	relay, svc, conn := newRelayFixture(t, sink, 5)
	emitOrderPlaced(t, svc, conn, uuid.New())

	_, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)

	var dlq models.OutboxDLQ
	require.NoError(t, conn.First(&dlq).Error)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.ErrorReason)
}

func TestNewRelayValidatesParams(t *testing.T) {
	_, err := NewRelay(RelayParams{})
	require.Error(t, err)
}
