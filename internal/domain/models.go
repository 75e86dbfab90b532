package domain

import (
	"database/sql/driver"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate assigns a random ID when none was set and stamps the creation time
// in Go, so rows created within the same second still sort in creation order.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = tx.NowFunc()
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	return nil
}

// SourceType represents where an offer came from
type SourceType string

const (
	SourceTypeEmail  SourceType = "email"
	SourceTypeExcel  SourceType = "excel"
	SourceTypeManual SourceType = "manual"
)

// IsValid checks if the source type is a known value
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeEmail, SourceTypeExcel, SourceTypeManual:
		return true
	}
	return false
}

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// RevenueOrderStatuses are the order statuses counted as revenue
var RevenueOrderStatuses = []OrderStatus{OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered}

// ShipmentStatus represents the status of a shipment
type ShipmentStatus string

const (
	ShipmentStatusPending        ShipmentStatus = "pending"
	ShipmentStatusPickedUp       ShipmentStatus = "picked_up"
	ShipmentStatusInTransit      ShipmentStatus = "in_transit"
	ShipmentStatusOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentStatusDelivered      ShipmentStatus = "delivered"
)

var shipmentStatusRank = map[ShipmentStatus]int{
	ShipmentStatusPending:        0,
	ShipmentStatusPickedUp:       1,
	ShipmentStatusInTransit:      2,
	ShipmentStatusOutForDelivery: 3,
	ShipmentStatusDelivered:      4,
}

// Rank returns the position of the status in the shipment progression, or -1 if unknown
func (s ShipmentStatus) Rank() int {
	if r, ok := shipmentStatusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further milestones can be recorded
func (s ShipmentStatus) IsTerminal() bool {
	return s == ShipmentStatusDelivered
}

// LinkedType identifies what a document is attached to
type LinkedType string

const (
	LinkedTypeOffer    LinkedType = "offer"
	LinkedTypeOrder    LinkedType = "order"
	LinkedTypeShipment LinkedType = "shipment"
)

// JSONDocument is a raw JSON value stored in a jsonb column
type JSONDocument []byte

// Value implements driver.Valuer
func (j JSONDocument) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner
func (j *JSONDocument) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = JSONDocument(v)
	default:
		return errors.New("unsupported type for JSONDocument")
	}
	return nil
}

// Organization owns every other record; nothing is shared across organizations
type Organization struct {
	BaseModel
	Name            string `gorm:"type:varchar(200);not null"`
	DefaultCurrency string `gorm:"type:varchar(3);not null;default:'USD'"`
}

// Vendor is a supplier sending offers to an organization.
// Names are compared case-insensitively within an organization.
type Vendor struct {
	BaseModel
	OrgID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Name        string    `gorm:"type:varchar(200);not null"`
	Email       *string   `gorm:"type:varchar(255)"`
	Phone       *string   `gorm:"type:varchar(50)"`
	ContactName *string   `gorm:"type:varchar(200)"`
}

// Document is an uploaded blob owned by an organization
type Document struct {
	BaseModel
	OrgID       uuid.UUID   `gorm:"type:uuid;not null;index"`
	Bucket      string      `gorm:"type:varchar(100);not null"`
	Path        string      `gorm:"type:varchar(500);not null"`
	Filename    string      `gorm:"type:varchar(255);not null"`
	ContentType string      `gorm:"type:varchar(100)"`
	SizeBytes   int64       `gorm:"not null;default:0"`
	LinkedType  *LinkedType `gorm:"type:varchar(20)"`
	LinkedID    *uuid.UUID  `gorm:"type:uuid;index"`
	CreatedBy   string      `gorm:"type:varchar(100)"`
}

// Offer is a vendor's proposed pricing for a set of items
type Offer struct {
	BaseModel
	OrgID        uuid.UUID    `gorm:"type:uuid;not null;index"`
	VendorID     *uuid.UUID   `gorm:"type:uuid;index"`
	Vendor       *Vendor      `gorm:"foreignKey:VendorID"`
	Status       OfferStatus  `gorm:"type:varchar(20);not null;index"`
	SourceType   SourceType   `gorm:"type:varchar(20);not null"`
	RawContent   *string      `gorm:"type:text"`
	ParsedJSON   JSONDocument `gorm:"type:jsonb"`
	DocumentID   *uuid.UUID   `gorm:"type:uuid"`
	ValidUntil   *time.Time
	LeadTimeDays *int
	Terms        *string     `gorm:"type:text"`
	Notes        string      `gorm:"type:text"`
	CreatedBy    string      `gorm:"type:varchar(100)"`
	Items        []OfferItem `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE"`
}

// OfferItem is one priced line of an offer.
// The ID is derived from (offer, position) so re-normalizing identical input keeps identities stable.
type OfferItem struct {
	ID          uuid.UUID           `gorm:"type:uuid;primary_key"`
	OfferID     uuid.UUID           `gorm:"type:uuid;not null;index"`
	SKU         *string             `gorm:"type:varchar(100)"`
	Description string              `gorm:"type:text;not null"`
	Quantity    decimal.Decimal     `gorm:"type:numeric;not null"`
	Unit        string              `gorm:"type:varchar(30);not null"`
	UnitPrice   decimal.Decimal     `gorm:"type:numeric;not null"`
	TotalPrice  decimal.Decimal     `gorm:"type:numeric;not null"`
	MOQ         decimal.NullDecimal `gorm:"type:numeric;column:moq"`
	SortOrder   int                 `gorm:"not null;default:0"`
	CreatedAt   time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// OfferItemID returns the stable identity of the item at the given position of an offer
func OfferItemID(offerID uuid.UUID, position int) uuid.UUID {
	return uuid.NewSHA1(offerID, []byte("item:"+strconv.Itoa(position)))
}

// Order is the firm commitment created exactly once from an offer
type Order struct {
	BaseModel
	OrgID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	OfferID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	VendorID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Vendor      *Vendor         `gorm:"foreignKey:VendorID"`
	Status      OrderStatus     `gorm:"type:varchar(20);not null;index"`
	TotalAmount decimal.Decimal `gorm:"type:numeric;not null"`
	Currency    string          `gorm:"type:varchar(3);not null"`
	CreatedBy   string          `gorm:"type:varchar(100)"`
	Items       []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Shipment    *Shipment       `gorm:"foreignKey:OrderID"`
}

// OrderItem is a copy of an offer item, traced back to its source
type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID           `gorm:"type:uuid;not null;index"`
	OfferItemID *uuid.UUID          `gorm:"type:uuid"`
	SKU         *string             `gorm:"type:varchar(100)"`
	Description string              `gorm:"type:text;not null"`
	Quantity    decimal.Decimal     `gorm:"type:numeric;not null"`
	Unit        string              `gorm:"type:varchar(30);not null"`
	UnitPrice   decimal.Decimal     `gorm:"type:numeric;not null"`
	TotalPrice  decimal.Decimal     `gorm:"type:numeric;not null"`
	MOQ         decimal.NullDecimal `gorm:"type:numeric;column:moq"`
	SortOrder   int                 `gorm:"not null;default:0"`
}

// Shipment tracks physical delivery of an order
type Shipment struct {
	BaseModel
	OrgID             uuid.UUID      `gorm:"type:uuid;not null;index"`
	OrderID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex"`
	Carrier           string         `gorm:"type:varchar(100)"`
	TrackingNumber    string         `gorm:"type:varchar(64);not null;uniqueIndex"`
	Status            ShipmentStatus `gorm:"type:varchar(20);not null;index"`
	EstimatedDelivery *time.Time
	LastLat           *float64
	LastLng           *float64
	LastLocationName  *string         `gorm:"type:varchar(200)"`
	Events            []ShipmentEvent `gorm:"foreignKey:ShipmentID"`
}

// ShipmentEvent is an immutable milestone appended to a shipment's history
type ShipmentEvent struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	ShipmentID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_shipment_events_sequence,priority:1"`
	Sequence     int       `gorm:"not null;uniqueIndex:idx_shipment_events_sequence,priority:2"`
	EventType    string    `gorm:"type:varchar(50);not null"`
	Description  string    `gorm:"type:text"`
	LocationName string    `gorm:"type:varchar(200)"`
	Lat          float64
	Lng          float64
	OccurredAt   time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate assigns a random ID when none was set
func (e *ShipmentEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
