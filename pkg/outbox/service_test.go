package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/artisanalley/marketplace-backend/pkg/db/dbtest"
	"github.com/artisanalley/marketplace-backend/pkg/enums"
	"github.com/artisanalley/marketplace-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	purchaseID := uuid.New()
	buyerID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPurchaseRefunded,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchaseID,
			Actor:         &ActorRef{UserID: &buyerID, Source: SourceUser},
			Data:          payloads.PurchaseRefundedEvent{PurchaseID: purchaseID, Source: SourceUser},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListForAggregate(nil, enums.AggregatePurchase, purchaseID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventPurchaseRefunded, rows[0].EventType)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.Equal(t, SourceUser, envelope.Actor.Source)

	var data payloads.PurchaseRefundedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, purchaseID, data.PurchaseID)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	purchaseID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventPurchaseCompleted,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   purchaseID,
			Data:          map[string]string{"k": "v"},
		}); err != nil {
			return err
		}
		return errors.New("purchase insert failed")
	})
	require.Error(t, err)

	rows, err := repo.ListForAggregate(nil, enums.AggregatePurchase, purchaseID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitIfNotExistsIsSingleShot(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	purchaseID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventPurchaseRefunded,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchaseID,
		Data:          map[string]string{"k": "v"},
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	rows, err := repo.ListForAggregate(nil, enums.AggregatePurchase, purchaseID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestEmitValidation(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))

	conn := dbtest.Open(t)
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "nope", AggregateType: enums.AggregatePurchase})
	})
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	ids := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, DomainEvent{
				EventType:     enums.EventPurchaseCompleted,
				AggregateType: enums.AggregatePurchase,
				AggregateID:   id,
				Data:          map[string]int{"i": i},
			})
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("broker unavailable")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[2].ID, errors.New("bad payload"), 3))

	remaining, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, rows[1].ID, remaining[0].ID)
	require.Equal(t, 1, remaining[0].AttemptCount)
	require.NotNil(t, remaining[0].LastError)
	require.Equal(t, "broker unavailable", *remaining[0].LastError)

	dlq := NewDLQRepository(conn)
	require.NoError(t, dlq.InsertTx(conn, rows[2].DeadLetter(enums.OutboxDLQReasonNonRetryable, "bad payload", 1, time.Now())))
	entry, err := dlq.FindByEventID(context.Background(), rows[2].ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)

	listed, err := dlq.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, rows[2].ID, listed[0].EventID)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)
}
