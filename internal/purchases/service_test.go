package purchases

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/artisanalley/marketplace-backend/pkg/db/dbtest"
	"github.com/artisanalley/marketplace-backend/pkg/enums"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
	"github.com/artisanalley/marketplace-backend/pkg/pagination"
)

func newTestService(t *testing.T) (*service, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc := NewService(repo).(*service)
	svc.now = func() time.Time { return baseTime.Add(24 * time.Hour) }
	return svc, repo
}

func TestListPurchasesRequiresUser(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ListPurchases(context.Background(), uuid.Nil, pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestListPurchasesRejectsBadCursor(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ListPurchases(context.Background(), uuid.New(), pagination.Params{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListSalesReturnsArtistRows(t *testing.T) {
	svc, repo := newTestService(t)
	p := newPurchase(uuid.New(), baseTime)
	_, err := repo.CreateIfAbsent(context.Background(), p)
	require.NoError(t, err)

	page, err := svc.ListSales(context.Background(), p.ArtistID, pagination.Params{Limit: 500})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestUpdateDropOff(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	p := newPurchase(uuid.New(), baseTime)
	_, err := repo.CreateIfAbsent(ctx, p)
	require.NoError(t, err)
	location := "  Lobby mailbox 12  "

	t.Run("not found", func(t *testing.T) {
		_, err := svc.UpdateDropOff(ctx, UpdateDropOffInput{PurchaseID: uuid.New(), BuyerID: p.BuyerID, Location: &location})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	})

	t.Run("other buyer", func(t *testing.T) {
		_, err := svc.UpdateDropOff(ctx, UpdateDropOffInput{PurchaseID: p.ID, BuyerID: uuid.New(), Location: &location})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	})

	t.Run("owner", func(t *testing.T) {
		updated, err := svc.UpdateDropOff(ctx, UpdateDropOffInput{PurchaseID: p.ID, BuyerID: p.BuyerID, Location: &location})
		require.NoError(t, err)
		require.Equal(t, "Lobby mailbox 12", *updated.DropOffLocation)
		require.Equal(t, baseTime.Add(24*time.Hour), updated.UpdatedAt)
	})

	t.Run("refunded", func(t *testing.T) {
		_, err := repo.MarkRefunded(ctx, p.ID, baseTime)
		require.NoError(t, err)
		_, err = svc.UpdateDropOff(ctx, UpdateDropOffInput{PurchaseID: p.ID, BuyerID: p.BuyerID, Location: &location})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

		stored, err := repo.FindByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, enums.PurchaseStatusRefunded, stored.Status)
	})
}
