package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrRequiredColumns is returned when no description-like or no price-like header exists
	ErrRequiredColumns = errors.New("required columns not found")
	// ErrTooFewRows is returned for sheets without at least a header and one data row
	ErrTooFewRows = errors.New("spreadsheet must contain a header row and at least one data row")
)

// Header tokens per column, in priority order. A token is matched case-insensitively as a
// substring of a header cell; each token is tried against every cell before the next token.
var (
	descriptionTokens = []string{"description", "item", "product", "name"}
	quantityTokens    = []string{"quantity", "qty"}
	unitTokens        = []string{"unit", "uom"}
	priceTokens       = []string{"price", "unit price", "unit_price"}
	skuTokens         = []string{"sku", "code", "part"}
)

var (
	nonPriceChars  = regexp.MustCompile(`[^0-9.\-]`)
	leadingDecimal = regexp.MustCompile(`^[+-]?(\d+(\.\d+)?|\.\d+)`)
)

// Columns holds the detected column index per field, -1 when absent
type Columns struct {
	Description int
	Quantity    int
	Unit        int
	Price       int
	SKU         int
}

// DetectColumns sniffs the header row
func DetectColumns(header []string) Columns {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return Columns{
		Description: findColumn(lower, descriptionTokens),
		Quantity:    findColumn(lower, quantityTokens),
		Unit:        findColumn(lower, unitTokens),
		Price:       findColumn(lower, priceTokens),
		SKU:         findColumn(lower, skuTokens),
	}
}

func findColumn(header []string, tokens []string) int {
	for _, token := range tokens {
		for i, h := range header {
			if strings.Contains(h, token) {
				return i
			}
		}
	}
	return -1
}

// NormalizeGrid converts a sheet (first row is the header) into canonical items.
// Rows without a description or a parseable price are skipped; a missing or unparseable
// quantity counts as 1 and a missing unit as "ea".
func NormalizeGrid(rows [][]string) ([]Item, error) {
	if len(rows) < 2 {
		return nil, ErrTooFewRows
	}

	cols := DetectColumns(rows[0])
	if cols.Description < 0 || cols.Price < 0 {
		return nil, ErrRequiredColumns
	}

	var items []Item
	for r, row := range rows[1:] {
		description := strings.TrimSpace(cell(row, cols.Description))
		if description == "" {
			continue
		}

		price, ok := parseLeadingDecimal(nonPriceChars.ReplaceAllString(cell(row, cols.Price), ""))
		if !ok {
			continue
		}

		quantity := decimal.NewFromInt(1)
		if cols.Quantity >= 0 {
			if q, ok := parseLeadingDecimal(strings.TrimSpace(cell(row, cols.Quantity))); ok {
				quantity = q
			}
		}

		// row numbers are 1-based and count the header
		line := r + 2
		if quantity.LessThanOrEqual(decimal.Zero) {
			return nil, &FieldError{Field: fmt.Sprintf("row %d quantity", line), Message: "must be greater than 0"}
		}
		if price.IsNegative() {
			return nil, &FieldError{Field: fmt.Sprintf("row %d price", line), Message: "must be greater than or equal to 0"}
		}

		unit := DefaultUnit
		if u := strings.TrimSpace(cell(row, cols.Unit)); u != "" {
			unit = u
		}

		item := Item{
			Description: description,
			Quantity:    NewNumber(quantity),
			Unit:        &unit,
			UnitPrice:   NewNumber(price),
		}
		if sku := strings.TrimSpace(cell(row, cols.SKU)); sku != "" {
			item.SKU = &sku
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parseLeadingDecimal reads the number at the start of s, ignoring anything after it
func parseLeadingDecimal(s string) (decimal.Decimal, bool) {
	m := leadingDecimal.FindString(strings.TrimSpace(s))
	if m == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
