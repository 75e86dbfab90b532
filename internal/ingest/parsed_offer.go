// Package ingest turns raw vendor material (extractor output, spreadsheet grids) into the
// canonical parsed-offer shape and validates it before anything is written.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultUnit is used for items that do not state a unit
const DefaultUnit = "ea"

var (
	// ErrInvalidPayload is returned when extractor output is not the canonical shape
	ErrInvalidPayload = errors.New("payload does not match the canonical offer shape")
	// ErrNoItems is returned when a source yields no usable items
	ErrNoItems = errors.New("no items found")
)

// FieldError reports one invalid field, addressed by its JSON path (e.g. items[2].quantity)
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Number is a JSON number decoded exactly. Quoted numbers are rejected.
type Number struct {
	decimal.Decimal
	Valid bool
}

// NewNumber wraps a decimal as a valid Number
func NewNumber(d decimal.Decimal) Number {
	return Number{Decimal: d, Valid: true}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return errors.New("must be a number, not a string")
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*n = NewNumber(d)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(n.Decimal.String()), nil
}

// Item is one line of the canonical item set
type Item struct {
	SKU         *string `json:"sku"`
	Description string  `json:"description" validate:"required,max=1000"`
	Quantity    Number  `json:"quantity" validate:"gt=0"`
	Unit        *string `json:"unit" validate:"omitempty,max=30"`
	UnitPrice   Number  `json:"unit_price" validate:"gte=0"`
	MOQ         *Number `json:"moq" validate:"omitempty,gt=0"`
}

// ParsedOffer is the canonical payload for an offer. Nil fields are unknown, not zero.
type ParsedOffer struct {
	VendorName   *string `json:"vendor_name" validate:"omitempty,max=200"`
	VendorEmail  *string `json:"vendor_email" validate:"omitempty,email"`
	ValidUntil   *string `json:"valid_until"`
	LeadTimeDays *int    `json:"lead_time_days" validate:"omitempty,gte=0"`
	Terms        *string `json:"terms"`
	Items        []Item  `json:"items" validate:"dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Numbers validate as floats; an absent number validates as missing
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		n, ok := field.Interface().(Number)
		if !ok || !n.Valid {
			return nil
		}
		f, _ := n.Float64()
		return f
	}, Number{})
	return v
}

// DecodeParsedOffer decodes extractor output into the canonical shape and validates it.
// Keys outside the canonical shape (e.g. a per-item total_price) are dropped; known keys
// must have the right JSON types.
func DecodeParsedOffer(raw []byte) (*ParsedOffer, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var offer ParsedOffer
	if err := dec.Decode(&offer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidPayload)
	}

	offer.trim()
	if err := offer.Validate(); err != nil {
		return nil, err
	}
	return &offer, nil
}

// trim normalizes blank strings to unknown
func (p *ParsedOffer) trim() {
	p.VendorName = blankToNil(p.VendorName)
	p.VendorEmail = blankToNil(p.VendorEmail)
	p.ValidUntil = blankToNil(p.ValidUntil)
	p.Terms = blankToNil(p.Terms)
	for i := range p.Items {
		p.Items[i].Description = strings.TrimSpace(p.Items[i].Description)
		p.Items[i].SKU = blankToNil(p.Items[i].SKU)
		p.Items[i].Unit = blankToNil(p.Items[i].Unit)
	}
}

// Validate checks the payload and its item set
func (p *ParsedOffer) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fieldError(err)
	}
	if p.ValidUntil != nil {
		if _, err := ParseDate(*p.ValidUntil); err != nil {
			return &FieldError{Field: "valid_until", Message: "must be a date formatted as YYYY-MM-DD"}
		}
	}
	if len(p.Items) == 0 {
		return ErrNoItems
	}
	return nil
}

// ValidateItems checks a bare item set, as produced by a spreadsheet or manual entry
func ValidateItems(items []Item) error {
	return (&ParsedOffer{Items: items}).Validate()
}

// ValidUntilTime returns the parsed valid_until date, if any
func (p *ParsedOffer) ValidUntilTime() *time.Time {
	if p.ValidUntil == nil {
		return nil
	}
	t, err := ParseDate(*p.ValidUntil)
	if err != nil {
		return nil
	}
	return &t
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// BuildOfferItems converts canonical items into offer items with stable identities.
// total_price is always computed from quantity and unit price.
func BuildOfferItems(offerID uuid.UUID, items []Item) []domain.OfferItem {
	out := make([]domain.OfferItem, 0, len(items))
	for i, it := range items {
		unit := DefaultUnit
		if it.Unit != nil {
			unit = *it.Unit
		}
		var moq decimal.NullDecimal
		if it.MOQ != nil && it.MOQ.Valid {
			moq = decimal.NullDecimal{Decimal: it.MOQ.Decimal, Valid: true}
		}
		out = append(out, domain.OfferItem{
			ID:          domain.OfferItemID(offerID, i),
			OfferID:     offerID,
			SKU:         it.SKU,
			Description: it.Description,
			Quantity:    it.Quantity.Decimal,
			Unit:        unit,
			UnitPrice:   it.UnitPrice.Decimal,
			TotalPrice:  it.Quantity.Mul(it.UnitPrice.Decimal),
			MOQ:         moq,
			SortOrder:   i,
		})
	}
	return out
}

func fieldError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	fe := ve[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return &FieldError{Field: field, Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	if fe.Kind() == reflect.Invalid {
		return "is required"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
