// Package testutil holds shared helpers for package tests: an in-memory database and fixtures.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/database"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory SQLite database with the full schema.
// A single connection serializes transactions, which stands in for postgres row locks.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// CreateOrganization inserts an organization with the given currency
func CreateOrganization(t *testing.T, db *gorm.DB, currency string) *domain.Organization {
	t.Helper()
	org := &domain.Organization{Name: "Test Org " + uuid.NewString()[:8], DefaultCurrency: currency}
	require.NoError(t, db.Create(org).Error)
	return org
}

// CreateVendor inserts a vendor for an organization
func CreateVendor(t *testing.T, db *gorm.DB, orgID uuid.UUID, name string) *domain.Vendor {
	t.Helper()
	vendor := &domain.Vendor{OrgID: orgID, Name: name}
	require.NoError(t, db.Create(vendor).Error)
	return vendor
}

// ItemRow is a compact description of an offer item for fixtures
type ItemRow struct {
	Description string
	Quantity    string
	UnitPrice   string
}

// CreateOffer inserts an offer in the given status with the given items
func CreateOffer(t *testing.T, db *gorm.DB, orgID uuid.UUID, vendorID *uuid.UUID, status domain.OfferStatus, items ...ItemRow) *domain.Offer {
	t.Helper()
	offer := &domain.Offer{
		OrgID:      orgID,
		VendorID:   vendorID,
		Status:     status,
		SourceType: domain.SourceTypeManual,
		CreatedBy:  "test-user",
	}
	require.NoError(t, db.Omit("Vendor", "Items").Create(offer).Error)

	for i, row := range items {
		qty := decimal.RequireFromString(row.Quantity)
		price := decimal.RequireFromString(row.UnitPrice)
		item := domain.OfferItem{
			ID:          domain.OfferItemID(offer.ID, i),
			OfferID:     offer.ID,
			Description: row.Description,
			Quantity:    qty,
			Unit:        "ea",
			UnitPrice:   price,
			TotalPrice:  qty.Mul(price),
			SortOrder:   i,
		}
		require.NoError(t, db.Create(&item).Error)
		offer.Items = append(offer.Items, item)
	}
	return offer
}

// StrPtr returns a pointer to s
func StrPtr(s string) *string {
	return &s
}
