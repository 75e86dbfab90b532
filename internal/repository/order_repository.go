package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx}
}

// Create inserts an order together with its items
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).Omit("Vendor", "Shipment").Create(order).Error
}

// GetByID loads an order with vendor, items in sort order and its shipment
func (r *OrderRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).
		Preload("Vendor").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Preload("Shipment").
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetForUpdate loads an order without relations and locks its row until the transaction ends
func (r *OrderRepository) GetForUpdate(ctx context.Context, orgID, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus sets the order status
func (r *OrderRepository) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, status domain.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		Update("status", status).Error
}

// VendorRevenue is the revenue and order count attributed to one vendor name
type VendorRevenue struct {
	VendorName string
	Revenue    decimal.Decimal
	OrderCount int64
}

// RevenueTotals returns the summed total and count of orders in the given statuses
func (r *OrderRepository) RevenueTotals(ctx context.Context, orgID uuid.UUID, statuses []domain.OrderStatus) (decimal.Decimal, int64, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Scopes(OrgScope(orgID)).
		Where("status IN ?", statuses).
		Select("COALESCE(SUM(total_amount), 0) AS total, COUNT(*) AS count").
		Scan(&row).Error
	return row.Total, row.Count, err
}

// RevenueByVendor groups qualifying orders by vendor name in one joined query.
// Orders whose vendor row is missing are grouped under "Unknown".
func (r *OrderRepository) RevenueByVendor(ctx context.Context, orgID uuid.UUID, statuses []domain.OrderStatus, limit int) ([]VendorRevenue, error) {
	var rows []VendorRevenue
	err := r.db.WithContext(ctx).
		Table("orders o").
		Select("COALESCE(v.name, 'Unknown') AS vendor_name, COALESCE(SUM(o.total_amount), 0) AS revenue, COUNT(*) AS order_count").
		Joins("LEFT JOIN vendors v ON v.id = o.vendor_id").
		Scopes(OrgScopeWithAlias(orgID, "o")).
		Where("o.status IN ?", statuses).
		Group("COALESCE(v.name, 'Unknown')").
		Order("revenue DESC, vendor_name ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
