package service_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/service"
	"github.com/offerflow/offerflow-api/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversionService_Convert(t *testing.T) {
	f := newFixture(t)
	offer := f.negotiatingOffer(t,
		testutil.ItemRow{Description: "Widget", Quantity: "2", UnitPrice: "10"},
		testutil.ItemRow{Description: "Gadget", Quantity: "1", UnitPrice: "5"},
	)

	result, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
	require.NoError(t, err)
	require.NotNil(t, result.ShipmentID)

	order, err := f.orders.GetByID(f.ctx, f.org.ID, result.OrderID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(25).Equal(order.TotalAmount), "total %s", order.TotalAmount)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.Equal(t, "EUR", order.Currency)
	assert.Equal(t, "user-1", order.CreatedBy)
	assert.Equal(t, *offer.VendorID, order.VendorID)
	require.NotNil(t, order.ShipmentID)
	assert.Equal(t, *result.ShipmentID, *order.ShipmentID)

	require.Len(t, order.Items, 2)
	sum := decimal.Zero
	for i, item := range order.Items {
		assert.Equal(t, i, item.SortOrder)
		require.NotNil(t, item.OfferItemID)
		assert.Equal(t, offer.Items[i].ID, *item.OfferItemID)
		assert.True(t, item.Quantity.Mul(item.UnitPrice).Equal(item.TotalPrice))
		sum = sum.Add(item.TotalPrice)
	}
	assert.True(t, sum.Equal(order.TotalAmount))
	assert.Equal(t, "Widget", order.Items[0].Description)

	shipment, err := f.shipments.GetByID(f.ctx, f.org.ID, *result.ShipmentID)
	require.NoError(t, err)
	assert.Equal(t, domain.ShipmentStatusPending, shipment.Status)
	assert.Equal(t, "Demo Carrier", shipment.Carrier)
	assert.True(t, strings.HasPrefix(shipment.TrackingNumber, "TL-"), shipment.TrackingNumber)
	assert.Empty(t, shipment.Events)

	assert.Equal(t, domain.OfferStatusOrdered, f.reloadOffer(t, offer.ID).Status)
	assert.Equal(t, []string{"order.created"}, f.publisher.types())
	assert.Equal(t, 1, f.cache.invalidated)
}

func TestConversionService_Convert_FallsBackToConfiguredCurrency(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Delete(&domain.Organization{}, "id = ?", f.org.ID).Error)
	offer := f.negotiatingOffer(t, testutil.ItemRow{Description: "Bolt", Quantity: "100", UnitPrice: "0.05"})

	result, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
	require.NoError(t, err)

	order, err := f.orders.GetByID(f.ctx, f.org.ID, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "USD", order.Currency)
	assert.True(t, decimal.RequireFromString("5").Equal(order.TotalAmount))
}

func TestConversionService_Convert_Twice(t *testing.T) {
	f := newFixture(t)
	offer := f.negotiatingOffer(t, testutil.ItemRow{Description: "Widget", Quantity: "1", UnitPrice: "1"})

	_, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
	require.NoError(t, err)

	_, err = f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
	assert.ErrorIs(t, err, service.ErrConflict)
	assert.Equal(t, int64(1), f.count(t, &domain.Order{}))
	assert.Equal(t, int64(1), f.count(t, &domain.Shipment{}))
}

func TestConversionService_Convert_Concurrent(t *testing.T) {
	f := newFixture(t)
	offer := f.negotiatingOffer(t, testutil.ItemRow{Description: "Widget", Quantity: "3", UnitPrice: "7.50"})

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, service.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), f.count(t, &domain.Order{}))
}

func TestConversionService_Convert_Preconditions(t *testing.T) {
	f := newFixture(t)
	vendor := testutil.CreateVendor(t, f.db, f.org.ID, "Acme")
	item := testutil.ItemRow{Description: "Widget", Quantity: "1", UnitPrice: "2"}

	t.Run("no vendor", func(t *testing.T) {
		offer := testutil.CreateOffer(t, f.db, f.org.ID, nil, domain.OfferStatusNegotiating, item)
		_, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
		assert.ErrorIs(t, err, service.ErrPrecondition)
	})

	t.Run("no items", func(t *testing.T) {
		offer := testutil.CreateOffer(t, f.db, f.org.ID, &vendor.ID, domain.OfferStatusNegotiating)
		_, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
		assert.ErrorIs(t, err, service.ErrPrecondition)
	})

	t.Run("not approved", func(t *testing.T) {
		offer := testutil.CreateOffer(t, f.db, f.org.ID, &vendor.ID, domain.OfferStatusNew, item)
		_, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
		assert.ErrorIs(t, err, service.ErrPrecondition)
		assert.Equal(t, domain.OfferStatusNew, f.reloadOffer(t, offer.ID).Status)
	})

	t.Run("accepted offer converts", func(t *testing.T) {
		offer := testutil.CreateOffer(t, f.db, f.org.ID, &vendor.ID, domain.OfferStatusAccepted, item)
		_, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
		assert.NoError(t, err)
	})

	t.Run("already delivered", func(t *testing.T) {
		offer := testutil.CreateOffer(t, f.db, f.org.ID, &vendor.ID, domain.OfferStatusDelivered, item)
		_, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
		assert.ErrorIs(t, err, service.ErrConflict)
	})

	t.Run("other organization", func(t *testing.T) {
		offer := testutil.CreateOffer(t, f.db, f.org.ID, &vendor.ID, domain.OfferStatusNegotiating, item)
		_, err := f.conversion.Convert(f.ctx, uuid.New(), offer.ID)
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestConversionService_Convert_RollsBackOnExistingOrder(t *testing.T) {
	f := newFixture(t)
	offer := f.negotiatingOffer(t, testutil.ItemRow{Description: "Widget", Quantity: "1", UnitPrice: "9"})

	// an order written behind the service's back trips the unique offer index
	stray := &domain.Order{
		OrgID:       f.org.ID,
		OfferID:     offer.ID,
		VendorID:    *offer.VendorID,
		Status:      domain.OrderStatusDraft,
		TotalAmount: decimal.NewFromInt(9),
		Currency:    "EUR",
	}
	require.NoError(t, f.db.Omit("Vendor", "Shipment", "Items").Create(stray).Error)

	_, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
	assert.ErrorIs(t, err, service.ErrConflict)
	detail := service.PublicDetail(err)
	assert.Equal(t, "cannot convert offer: a conflicting record already exists", detail)
	assert.NotContains(t, strings.ToLower(detail), "unique")

	assert.Equal(t, int64(1), f.count(t, &domain.Order{}))
	assert.Equal(t, int64(0), f.count(t, &domain.OrderItem{}))
	assert.Equal(t, int64(0), f.count(t, &domain.Shipment{}))
	assert.Equal(t, domain.OfferStatusNegotiating, f.reloadOffer(t, offer.ID).Status)
	assert.Empty(t, f.publisher.types())
}
