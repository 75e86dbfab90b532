package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/repository"
	"github.com/offerflow/offerflow-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createShipment(t *testing.T, repo *repository.ShipmentRepository, orgID uuid.UUID, status domain.ShipmentStatus) *domain.Shipment {
	t.Helper()
	s := &domain.Shipment{
		OrgID:          orgID,
		OrderID:        uuid.New(),
		Carrier:        "Demo Carrier",
		TrackingNumber: "TL-" + uuid.NewString(),
		Status:         status,
	}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func TestShipmentRepository_AppendEventSequence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewShipmentRepository(db)
	ctx := context.Background()
	org := testutil.CreateOrganization(t, db, "USD")
	shipment := createShipment(t, repo, org.ID, domain.ShipmentStatusPending)

	for _, eventType := range []string{"Picked up", "In transit", "In transit"} {
		err := db.Transaction(func(tx *gorm.DB) error {
			return repo.WithTx(tx).AppendEvent(ctx, &domain.ShipmentEvent{
				ShipmentID: shipment.ID,
				EventType:  eventType,
				OccurredAt: time.Now().UTC(),
			})
		})
		require.NoError(t, err)
	}

	got, err := repo.GetByID(ctx, org.ID, shipment.ID)
	require.NoError(t, err)
	require.Len(t, got.Events, 3)
	for i, ev := range got.Events {
		assert.Equal(t, i+1, ev.Sequence)
	}
	assert.Equal(t, "Picked up", got.Events[0].EventType)
}

func TestShipmentRepository_LatestOpenID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewShipmentRepository(db)
	ctx := context.Background()
	org := testutil.CreateOrganization(t, db, "USD")

	_, err := repo.LatestOpenID(ctx, org.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	open := createShipment(t, repo, org.ID, domain.ShipmentStatusPending)
	createShipment(t, repo, org.ID, domain.ShipmentStatusDelivered)

	id, err := repo.LatestOpenID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, open.ID, id)

	_, err = repo.LatestOpenID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestShipmentRepository_CreationOrderWithinOneSecond(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewShipmentRepository(db)
	ctx := context.Background()
	org := testutil.CreateOrganization(t, db, "USD")

	var created []uuid.UUID
	for i := 0; i < 4; i++ {
		created = append(created, createShipment(t, repo, org.ID, domain.ShipmentStatusPending).ID)
	}

	id, err := repo.LatestOpenID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, created[3], id)

	list, err := repo.List(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, list, 4)
	for i, s := range list {
		assert.Equal(t, created[3-i], s.ID)
		assert.False(t, s.CreatedAt.IsZero())
	}
}

func TestShipmentRepository_SameCreatedAtBreaksTiesByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewShipmentRepository(db)
	ctx := context.Background()
	org := testutil.CreateOrganization(t, db, "USD")

	at := time.Date(2026, 10, 17, 19, 45, 37, 0, time.UTC)
	ids := []uuid.UUID{
		uuid.MustParse("10000000-0000-0000-0000-000000000000"),
		uuid.MustParse("20000000-0000-0000-0000-000000000000"),
	}
	for _, id := range ids {
		s := &domain.Shipment{
			BaseModel:      domain.BaseModel{ID: id, CreatedAt: at},
			OrgID:          org.ID,
			OrderID:        uuid.New(),
			Carrier:        "Demo Carrier",
			TrackingNumber: "TL-" + id.String(),
			Status:         domain.ShipmentStatusPending,
		}
		require.NoError(t, repo.Create(ctx, s))
	}

	for i := 0; i < 3; i++ {
		id, err := repo.LatestOpenID(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, ids[1], id)
	}
}
