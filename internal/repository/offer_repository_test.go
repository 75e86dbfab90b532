package repository_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/repository"
	"github.com/offerflow/offerflow-api/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOfferRepository_GetByID_IsOrgScoped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOfferRepository(db)
	ctx := context.Background()

	org := testutil.CreateOrganization(t, db, "USD")
	other := testutil.CreateOrganization(t, db, "USD")
	offer := testutil.CreateOffer(t, db, org.ID, nil, domain.OfferStatusNew)

	got, err := repo.GetByID(ctx, org.ID, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, offer.ID, got.ID)

	_, err = repo.GetByID(ctx, other.ID, offer.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestOfferRepository_GetWithItems_SortOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOfferRepository(db)
	org := testutil.CreateOrganization(t, db, "USD")
	vendor := testutil.CreateVendor(t, db, org.ID, "Acme")

	offer := testutil.CreateOffer(t, db, org.ID, &vendor.ID, domain.OfferStatusNew,
		testutil.ItemRow{Description: "first", Quantity: "2", UnitPrice: "10"},
		testutil.ItemRow{Description: "second", Quantity: "1", UnitPrice: "5"},
		testutil.ItemRow{Description: "third", Quantity: "3", UnitPrice: "1.5"},
	)

	got, err := repo.GetWithItems(context.Background(), org.ID, offer.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Vendor)
	assert.Equal(t, "Acme", got.Vendor.Name)
	require.Len(t, got.Items, 3)
	for i, item := range got.Items {
		assert.Equal(t, i, item.SortOrder)
	}
	assert.True(t, got.Items[2].TotalPrice.Equal(decimal.RequireFromString("4.5")))
}

func TestOfferRepository_TransitionStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOfferRepository(db)
	ctx := context.Background()
	org := testutil.CreateOrganization(t, db, "USD")
	offer := testutil.CreateOffer(t, db, org.ID, nil, domain.OfferStatusNew)

	t.Run("applies when in expected status", func(t *testing.T) {
		rows, err := repo.TransitionStatus(ctx, org.ID, offer.ID, domain.OfferStatusNew, domain.OfferStatusNegotiating, map[string]interface{}{"notes": "reviewed"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)

		got, err := repo.GetByID(ctx, org.ID, offer.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OfferStatusNegotiating, got.Status)
		assert.Equal(t, "reviewed", got.Notes)
	})

	t.Run("changes nothing when status moved on", func(t *testing.T) {
		rows, err := repo.TransitionStatus(ctx, org.ID, offer.ID, domain.OfferStatusNew, domain.OfferStatusNegotiating, nil)
		require.NoError(t, err)
		assert.Zero(t, rows)
	})

	t.Run("other org cannot transition", func(t *testing.T) {
		rows, err := repo.TransitionStatus(ctx, uuid.New(), offer.ID, domain.OfferStatusNegotiating, domain.OfferStatusAccepted, nil)
		require.NoError(t, err)
		assert.Zero(t, rows)
	})
}

func TestOfferRepository_ListAndSummaries(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOfferRepository(db)
	ctx := context.Background()
	org := testutil.CreateOrganization(t, db, "USD")

	withItems := testutil.CreateOffer(t, db, org.ID, nil, domain.OfferStatusNew,
		testutil.ItemRow{Description: "a", Quantity: "2", UnitPrice: "10"},
		testutil.ItemRow{Description: "b", Quantity: "1", UnitPrice: "5"},
	)
	testutil.CreateOffer(t, db, org.ID, nil, domain.OfferStatusAccepted)
	testutil.CreateOffer(t, db, testutil.CreateOrganization(t, db, "EUR").ID, nil, domain.OfferStatusNew)

	offers, total, err := repo.List(ctx, org.ID, repository.OfferFilters{}, repository.DefaultSortConfig(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, offers, 2)

	status := domain.OfferStatusNew
	offers, total, err = repo.List(ctx, org.ID, repository.OfferFilters{Status: &status}, repository.DefaultSortConfig(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, offers, 1)
	assert.Equal(t, withItems.ID, offers[0].ID)

	summaries, err := repo.ItemSummaries(ctx, []uuid.UUID{withItems.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, summaries[withItems.ID].ItemCount)
	assert.True(t, summaries[withItems.ID].TotalValue.Equal(decimal.NewFromInt(25)))
}

func TestOfferRepository_ListNewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOfferRepository(db)
	ctx := context.Background()
	org := testutil.CreateOrganization(t, db, "USD")

	var created []uuid.UUID
	for i := 0; i < 4; i++ {
		created = append(created, testutil.CreateOffer(t, db, org.ID, nil, domain.OfferStatusNew).ID)
	}

	offers, _, err := repo.List(ctx, org.ID, repository.OfferFilters{}, repository.DefaultSortConfig(), 1, 10)
	require.NoError(t, err)
	require.Len(t, offers, 4)
	for i, offer := range offers {
		assert.Equal(t, created[3-i], offer.ID)
	}
}

func TestOfferRepository_Stats(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOfferRepository(db)
	ctx := context.Background()
	org := testutil.CreateOrganization(t, db, "USD")

	for _, days := range []int{0, 4, 8} {
		offer := testutil.CreateOffer(t, db, org.ID, nil, domain.OfferStatusAccepted)
		require.NoError(t, repo.UpdateFields(ctx, org.ID, offer.ID, map[string]interface{}{"lead_time_days": days}))
	}
	testutil.CreateOffer(t, db, org.ID, nil, domain.OfferStatusNew)

	count, err := repo.CountOffers(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	converted, err := repo.CountByStatuses(ctx, org.ID, domain.ConvertedOfferStatuses)
	require.NoError(t, err)
	assert.Equal(t, int64(3), converted)

	avg, err := repo.AverageLeadTimeDays(ctx, org.ID)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, avg, 0.0001)
}

func TestOfferItemRepository_Replace(t *testing.T) {
	db := testutil.SetupTestDB(t)
	items := repository.NewOfferItemRepository(db)
	ctx := context.Background()
	org := testutil.CreateOrganization(t, db, "USD")
	offer := testutil.CreateOffer(t, db, org.ID, nil, domain.OfferStatusNew,
		testutil.ItemRow{Description: "old", Quantity: "1", UnitPrice: "1"},
	)

	replacement := []domain.OfferItem{{
		ID:          domain.OfferItemID(offer.ID, 0),
		OfferID:     offer.ID,
		Description: "new",
		Quantity:    decimal.NewFromInt(3),
		Unit:        "box",
		UnitPrice:   decimal.NewFromInt(2),
		TotalPrice:  decimal.NewFromInt(6),
	}}

	err := db.Transaction(func(tx *gorm.DB) error {
		return items.WithTx(tx).Replace(ctx, offer.ID, replacement)
	})
	require.NoError(t, err)

	got, err := items.ListByOffer(ctx, offer.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Description)
	assert.Equal(t, domain.OfferItemID(offer.ID, 0), got[0].ID)
}
