package domain

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DTOs for API responses. Money and quantities are decimal strings; timestamps are ISO 8601.

type VendorDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	ContactName *string   `json:"contactName,omitempty"`
	CreatedAt   string    `json:"createdAt"`
}

type OfferDTO struct {
	ID           uuid.UUID       `json:"id"`
	VendorID     *uuid.UUID      `json:"vendorId,omitempty"`
	VendorName   string          `json:"vendorName,omitempty"`
	Status       OfferStatus     `json:"status"`
	SourceType   SourceType      `json:"sourceType"`
	RawContent   *string         `json:"rawContent,omitempty"`
	ParsedJSON   json.RawMessage `json:"parsedJson,omitempty"`
	DocumentID   *uuid.UUID      `json:"documentId,omitempty"`
	ValidUntil   *string         `json:"validUntil,omitempty"` // YYYY-MM-DD
	LeadTimeDays *int            `json:"leadTimeDays,omitempty"`
	Terms        *string         `json:"terms,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedBy    string          `json:"createdBy,omitempty"`
	ItemCount    int             `json:"itemCount"`
	TotalValue   decimal.Decimal `json:"totalValue"`
	CreatedAt    string          `json:"createdAt"`
	UpdatedAt    string          `json:"updatedAt"`
}

// OfferDetailDTO is an offer with its vendor and canonical item set
type OfferDetailDTO struct {
	OfferDTO
	Vendor *VendorDTO     `json:"vendor,omitempty"`
	Items  []OfferItemDTO `json:"items"`
}

type OfferItemDTO struct {
	ID          uuid.UUID        `json:"id"`
	SKU         *string          `json:"sku,omitempty"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit"`
	UnitPrice   decimal.Decimal  `json:"unitPrice"`
	TotalPrice  decimal.Decimal  `json:"totalPrice"`
	MOQ         *decimal.Decimal `json:"moq,omitempty"`
	SortOrder   int              `json:"sortOrder"`
}

type OrderDTO struct {
	ID          uuid.UUID       `json:"id"`
	OfferID     uuid.UUID       `json:"offerId"`
	VendorID    uuid.UUID       `json:"vendorId"`
	VendorName  string          `json:"vendorName,omitempty"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	ShipmentID  *uuid.UUID      `json:"shipmentId,omitempty"`
	Items       []OrderItemDTO  `json:"items"`
	CreatedAt   string          `json:"createdAt"`
}

type OrderItemDTO struct {
	ID          uuid.UUID        `json:"id"`
	OfferItemID *uuid.UUID       `json:"offerItemId,omitempty"`
	SKU         *string          `json:"sku,omitempty"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit"`
	UnitPrice   decimal.Decimal  `json:"unitPrice"`
	TotalPrice  decimal.Decimal  `json:"totalPrice"`
	MOQ         *decimal.Decimal `json:"moq,omitempty"`
	SortOrder   int              `json:"sortOrder"`
}

type ShipmentDTO struct {
	ID                uuid.UUID          `json:"id"`
	OrderID           uuid.UUID          `json:"orderId"`
	Carrier           string             `json:"carrier"`
	TrackingNumber    string             `json:"trackingNumber"`
	Status            ShipmentStatus     `json:"status"`
	EstimatedDelivery *string            `json:"estimatedDelivery,omitempty"`
	LastLat           *float64           `json:"lastLat,omitempty"`
	LastLng           *float64           `json:"lastLng,omitempty"`
	LastLocationName  *string            `json:"lastLocationName,omitempty"`
	Events            []ShipmentEventDTO `json:"events"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt"`
}

type ShipmentEventDTO struct {
	ID           uuid.UUID `json:"id"`
	Sequence     int       `json:"sequence"`
	EventType    string    `json:"eventType"`
	Description  string    `json:"description"`
	LocationName string    `json:"locationName"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	OccurredAt   string    `json:"occurredAt"`
}

type DocumentDTO struct {
	ID          uuid.UUID   `json:"id"`
	Filename    string      `json:"filename"`
	ContentType string      `json:"contentType"`
	SizeBytes   int64       `json:"sizeBytes"`
	LinkedType  *LinkedType `json:"linkedType,omitempty"`
	LinkedID    *uuid.UUID  `json:"linkedId,omitempty"`
	CreatedAt   string      `json:"createdAt"`
}

// UploadOfferResponse is returned when a spreadsheet is stored as a new offer
type UploadOfferResponse struct {
	Offer    OfferDTO    `json:"offer"`
	Document DocumentDTO `json:"document"`
}

// ConversionResultDTO is the outcome of converting an offer.
// ShipmentID stays nullable in the contract even though a successful conversion always creates one.
type ConversionResultDTO struct {
	OrderID    uuid.UUID  `json:"orderId"`
	ShipmentID *uuid.UUID `json:"shipmentId"`
}

type AdvanceShipmentResultDTO struct {
	ShipmentID uuid.UUID      `json:"shipmentId"`
	EventType  string         `json:"eventType"`
	Status     ShipmentStatus `json:"status"`
}

// NormalizeTextResultDTO carries the validated canonical payload and the items written from it
type NormalizeTextResultDTO struct {
	ParsedOffer json.RawMessage `json:"parsedOffer"`
	Items       []OfferItemDTO  `json:"items"`
}

type NormalizeSpreadsheetResultDTO struct {
	Items []OfferItemDTO `json:"items"`
}

type ResolveVendorResultDTO struct {
	VendorID uuid.UUID `json:"vendorId"`
}

// KPISnapshotDTO is the read-only reporting snapshot for one organization.
// AvgMarginPct is always null while MarginAvailable is false.
type KPISnapshotDTO struct {
	TotalRevenue    decimal.Decimal    `json:"totalRevenue"`
	Currency        string             `json:"currency"`
	ConversionRate  float64            `json:"conversionRate"`
	AvgLeadTimeDays float64            `json:"avgLeadTimeDays"`
	AvgMarginPct    *float64           `json:"avgMarginPct"`
	MarginAvailable bool               `json:"marginAvailable"`
	TopVendors      []VendorRevenueDTO `json:"topVendors"`
	OfferCount      int64              `json:"offerCount"`
	OrderCount      int64              `json:"orderCount"`
	GeneratedAt     string             `json:"generatedAt"`
}

type VendorRevenueDTO struct {
	VendorName string          `json:"vendorName"`
	Revenue    decimal.Decimal `json:"revenue"`
	OrderCount int64           `json:"orderCount"`
}

// Pagination response wrapper
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

// Request DTOs

type CreateTextOfferRequest struct {
	RawContent string `json:"rawContent" validate:"required,max=200000"`
	Notes      string `json:"notes,omitempty" validate:"max=5000"`
}

type CreateManualOfferRequest struct {
	VendorName   *string                  `json:"vendorName,omitempty" validate:"omitempty,max=200"`
	VendorEmail  *string                  `json:"vendorEmail,omitempty" validate:"omitempty,email"`
	ValidUntil   *string                  `json:"validUntil,omitempty" validate:"omitempty,datetime=2006-01-02"`
	LeadTimeDays *int                     `json:"leadTimeDays,omitempty" validate:"omitempty,gte=0"`
	Terms        *string                  `json:"terms,omitempty" validate:"omitempty,max=5000"`
	Notes        string                   `json:"notes,omitempty" validate:"max=5000"`
	Items        []ManualOfferItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ManualOfferItemRequest is one hand-entered line. Quantity and price bounds are checked by the service.
type ManualOfferItemRequest struct {
	SKU         *string          `json:"sku,omitempty" validate:"omitempty,max=100"`
	Description string           `json:"description" validate:"required,max=1000"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Unit        string           `json:"unit,omitempty" validate:"max=30"`
	UnitPrice   decimal.Decimal  `json:"unitPrice"`
	MOQ         *decimal.Decimal `json:"moq,omitempty"`
}

type UpdateOfferNotesRequest struct {
	Notes string `json:"notes" validate:"max=5000"`
}

// ApproveOfferRequest carries optional reviewer edits saved together with the approval
type ApproveOfferRequest struct {
	ValidUntil   *string `json:"validUntil,omitempty" validate:"omitempty,datetime=2006-01-02"`
	LeadTimeDays *int    `json:"leadTimeDays,omitempty" validate:"omitempty,gte=0"`
	Notes        *string `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type NormalizeSpreadsheetRequest struct {
	DocumentID uuid.UUID `json:"documentId" validate:"required"`
}

type ResolveVendorRequest struct {
	Name  string  `json:"name" validate:"required,max=200"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

type AdvanceShipmentRequest struct {
	ShipmentID *uuid.UUID `json:"shipmentId,omitempty"`
	EventIndex *int       `json:"eventIndex,omitempty"`
}

// AuthUserDTO describes the authenticated caller and the organization it acts in
type AuthUserDTO struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName,omitempty"`
	Email       string    `json:"email,omitempty"`
	AuthMethod  string    `json:"authMethod"`
	OrgID       uuid.UUID `json:"orgId"`
	OrgName     string    `json:"orgName"`
	OrgCurrency string    `json:"orgCurrency"`
}
