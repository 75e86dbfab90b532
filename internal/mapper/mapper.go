package mapper

import (
	"encoding/json"
	"time"

	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	timestampLayout = "2006-01-02T15:04:05Z"
	dateLayout      = "2006-01-02"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatTimePtr(t *time.Time, layout string) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(layout)
	return &s
}

func nullDecimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// ToVendorDTO converts Vendor to VendorDTO
func ToVendorDTO(vendor *domain.Vendor) domain.VendorDTO {
	return domain.VendorDTO{
		ID:          vendor.ID,
		Name:        vendor.Name,
		Email:       vendor.Email,
		Phone:       vendor.Phone,
		ContactName: vendor.ContactName,
		CreatedAt:   formatTime(vendor.CreatedAt),
	}
}

// ToOfferDTO converts Offer to OfferDTO. Item count and total come from the loaded items.
func ToOfferDTO(offer *domain.Offer) domain.OfferDTO {
	total := decimal.Zero
	for _, item := range offer.Items {
		total = total.Add(item.TotalPrice)
	}
	return ToOfferSummaryDTO(offer, len(offer.Items), total)
}

// ToOfferSummaryDTO converts Offer to OfferDTO with precomputed item aggregates, for list views
func ToOfferSummaryDTO(offer *domain.Offer, itemCount int, totalValue decimal.Decimal) domain.OfferDTO {
	dto := domain.OfferDTO{
		ID:           offer.ID,
		VendorID:     offer.VendorID,
		Status:       offer.Status,
		SourceType:   offer.SourceType,
		RawContent:   offer.RawContent,
		DocumentID:   offer.DocumentID,
		ValidUntil:   formatTimePtr(offer.ValidUntil, dateLayout),
		LeadTimeDays: offer.LeadTimeDays,
		Terms:        offer.Terms,
		Notes:        offer.Notes,
		CreatedBy:    offer.CreatedBy,
		ItemCount:    itemCount,
		TotalValue:   totalValue,
		CreatedAt:    formatTime(offer.CreatedAt),
		UpdatedAt:    formatTime(offer.UpdatedAt),
	}
	if len(offer.ParsedJSON) > 0 {
		dto.ParsedJSON = json.RawMessage(offer.ParsedJSON)
	}
	if offer.Vendor != nil {
		dto.VendorName = offer.Vendor.Name
	}
	return dto
}

// ToOfferDetailDTO converts an offer loaded with vendor and items
func ToOfferDetailDTO(offer *domain.Offer) domain.OfferDetailDTO {
	dto := domain.OfferDetailDTO{
		OfferDTO: ToOfferDTO(offer),
		Items:    ToOfferItemDTOs(offer.Items),
	}
	if offer.Vendor != nil {
		v := ToVendorDTO(offer.Vendor)
		dto.Vendor = &v
	}
	return dto
}

func ToOfferItemDTO(item *domain.OfferItem) domain.OfferItemDTO {
	return domain.OfferItemDTO{
		ID:          item.ID,
		SKU:         item.SKU,
		Description: item.Description,
		Quantity:    item.Quantity,
		Unit:        item.Unit,
		UnitPrice:   item.UnitPrice,
		TotalPrice:  item.TotalPrice,
		MOQ:         nullDecimalPtr(item.MOQ),
		SortOrder:   item.SortOrder,
	}
}

func ToOfferItemDTOs(items []domain.OfferItem) []domain.OfferItemDTO {
	dtos := make([]domain.OfferItemDTO, len(items))
	for i := range items {
		dtos[i] = ToOfferItemDTO(&items[i])
	}
	return dtos
}

// ToOrderDTO converts Order to OrderDTO
func ToOrderDTO(order *domain.Order) domain.OrderDTO {
	dto := domain.OrderDTO{
		ID:          order.ID,
		OfferID:     order.OfferID,
		VendorID:    order.VendorID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		CreatedBy:   order.CreatedBy,
		Items:       make([]domain.OrderItemDTO, len(order.Items)),
		CreatedAt:   formatTime(order.CreatedAt),
	}
	if order.Vendor != nil {
		dto.VendorName = order.Vendor.Name
	}
	if order.Shipment != nil {
		id := order.Shipment.ID
		dto.ShipmentID = &id
	}
	for i, item := range order.Items {
		dto.Items[i] = domain.OrderItemDTO{
			ID:          item.ID,
			OfferItemID: item.OfferItemID,
			SKU:         item.SKU,
			Description: item.Description,
			Quantity:    item.Quantity,
			Unit:        item.Unit,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
			MOQ:         nullDecimalPtr(item.MOQ),
			SortOrder:   item.SortOrder,
		}
	}
	return dto
}

// ToShipmentDTO converts Shipment to ShipmentDTO with whatever events are loaded
func ToShipmentDTO(shipment *domain.Shipment) domain.ShipmentDTO {
	dto := domain.ShipmentDTO{
		ID:                shipment.ID,
		OrderID:           shipment.OrderID,
		Carrier:           shipment.Carrier,
		TrackingNumber:    shipment.TrackingNumber,
		Status:            shipment.Status,
		EstimatedDelivery: formatTimePtr(shipment.EstimatedDelivery, timestampLayout),
		LastLat:           shipment.LastLat,
		LastLng:           shipment.LastLng,
		LastLocationName:  shipment.LastLocationName,
		Events:            make([]domain.ShipmentEventDTO, len(shipment.Events)),
		CreatedAt:         formatTime(shipment.CreatedAt),
		UpdatedAt:         formatTime(shipment.UpdatedAt),
	}
	for i, e := range shipment.Events {
		dto.Events[i] = domain.ShipmentEventDTO{
			ID:           e.ID,
			Sequence:     e.Sequence,
			EventType:    e.EventType,
			Description:  e.Description,
			LocationName: e.LocationName,
			Lat:          e.Lat,
			Lng:          e.Lng,
			OccurredAt:   formatTime(e.OccurredAt),
		}
	}
	return dto
}

// ToDocumentDTO converts Document to DocumentDTO
func ToDocumentDTO(doc *domain.Document) domain.DocumentDTO {
	return domain.DocumentDTO{
		ID:          doc.ID,
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		SizeBytes:   doc.SizeBytes,
		LinkedType:  doc.LinkedType,
		LinkedID:    doc.LinkedID,
		CreatedAt:   formatTime(doc.CreatedAt),
	}
}

// ToPaginatedResponse wraps a page of results
func ToPaginatedResponse(data interface{}, total int64, page, pageSize int) domain.PaginatedResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPages++
	}
	return domain.PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
