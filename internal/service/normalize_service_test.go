package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/ingest"
	"github.com/offerflow/offerflow-api/internal/service"
	"github.com/offerflow/offerflow-api/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acmeEmailPayload = `{
	"vendor_name": "Acme Supply",
	"vendor_email": "sales@acme.example",
	"valid_until": "2026-12-31",
	"lead_time_days": 14,
	"terms": "Net 30",
	"items": [
		{"sku": "W-1", "description": "Widget", "quantity": 2, "unit_price": 10},
		{"description": "Gadget", "quantity": 1, "unit": "box", "unit_price": 5, "moq": 10}
	]
}`

func textOffer(t *testing.T, f *fixture, raw string) uuid.UUID {
	t.Helper()
	dto, err := f.offers.CreateFromText(f.ctx, f.org.ID, &domain.CreateTextOfferRequest{RawContent: raw})
	require.NoError(t, err)
	return dto.ID
}

func TestNormalizeService_FreeText(t *testing.T) {
	f := newFixture(t)
	offerID := textOffer(t, f, "Hi, Acme here. Widgets 2 @ $10, Gadgets 1 box @ $5.")
	f.extractor.payload = acmeEmailPayload

	result, err := f.normalizer.NormalizeFreeText(f.ctx, f.org.ID, offerID)
	require.NoError(t, err)
	assert.Contains(t, f.extractor.text, "Acme here")

	require.Len(t, result.Items, 2)
	assert.Equal(t, "ea", result.Items[0].Unit)
	assert.Equal(t, "box", result.Items[1].Unit)
	assert.True(t, decimal.NewFromInt(20).Equal(result.Items[0].TotalPrice))
	require.NotNil(t, result.Items[1].MOQ)
	assert.True(t, decimal.NewFromInt(10).Equal(*result.Items[1].MOQ))

	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal(result.ParsedOffer, &stored))
	assert.Equal(t, "Acme Supply", stored["vendor_name"])

	offer, err := f.offers.GetByID(f.ctx, f.org.ID, offerID)
	require.NoError(t, err)
	require.NotNil(t, offer.Vendor)
	assert.Equal(t, "Acme Supply", offer.Vendor.Name)
	assert.Equal(t, "sales@acme.example", *offer.Vendor.Email)
	assert.Equal(t, "2026-12-31", *offer.ValidUntil)
	assert.Equal(t, 14, *offer.LeadTimeDays)
	assert.Equal(t, "Net 30", *offer.Terms)
	assert.True(t, decimal.NewFromInt(25).Equal(offer.TotalValue))
	assert.NotEmpty(t, offer.ParsedJSON)
}

func TestNormalizeService_FreeText_StableItemIdentity(t *testing.T) {
	f := newFixture(t)
	offerID := textOffer(t, f, "same email twice")
	f.extractor.payload = acmeEmailPayload

	first, err := f.normalizer.NormalizeFreeText(f.ctx, f.org.ID, offerID)
	require.NoError(t, err)
	second, err := f.normalizer.NormalizeFreeText(f.ctx, f.org.ID, offerID)
	require.NoError(t, err)

	require.Len(t, second.Items, len(first.Items))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].ID, second.Items[i].ID)
	}
	assert.Equal(t, int64(2), f.count(t, &domain.OfferItem{}))
	assert.Equal(t, int64(1), f.count(t, &domain.Vendor{}))
}

func TestNormalizeService_FreeText_Rejections(t *testing.T) {
	f := newFixture(t)

	t.Run("non positive quantity leaves items untouched", func(t *testing.T) {
		offerID := textOffer(t, f, "bad quantity")
		f.extractor.payload = acmeEmailPayload
		f.extractor.err = nil
		_, err := f.normalizer.NormalizeFreeText(f.ctx, f.org.ID, offerID)
		require.NoError(t, err)

		f.extractor.payload = `{"items":[{"description":"Widget","quantity":0,"unit_price":10}]}`
		_, err = f.normalizer.NormalizeFreeText(f.ctx, f.org.ID, offerID)
		assert.ErrorIs(t, err, service.ErrValidation)
		assert.Contains(t, err.Error(), "items[0].quantity")

		assert.Len(t, f.reloadOffer(t, offerID).Items, 2)
	})

	cases := []struct {
		name    string
		payload string
		err     error
		want    error
	}{
		{"zero moq", `{"items":[{"description":"x","quantity":1,"unit_price":1,"moq":0}]}`, nil, service.ErrValidation},
		{"quoted number", `{"items":[{"description":"x","quantity":"1","unit_price":1}]}`, nil, service.ErrValidation},
		{"negative price", `{"items":[{"description":"x","quantity":1,"unit_price":-1}]}`, nil, service.ErrValidation},
		{"no items", `{"vendor_name":"Acme","items":[]}`, nil, service.ErrValidation},
		{"bad email", `{"vendor_email":"nope","items":[{"description":"x","quantity":1,"unit_price":1}]}`, nil, service.ErrValidation},
		{"not json", `Sure! Here is the data`, nil, service.ErrValidation},
		{"extractor down", "", fmt.Errorf("%w: status 503", ingest.ErrExtractor), service.ErrExternalService},
		{"empty completion", "", fmt.Errorf("%w: empty completion", ingest.ErrInvalidPayload), service.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offerID := textOffer(t, f, "some text")
			f.extractor.payload = tc.payload
			f.extractor.err = tc.err

			_, err := f.normalizer.NormalizeFreeText(f.ctx, f.org.ID, offerID)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.reloadOffer(t, offerID).Items)
		})
	}
}

func TestNormalizeService_FreeText_MissingSource(t *testing.T) {
	f := newFixture(t)

	_, err := f.normalizer.NormalizeFreeText(f.ctx, f.org.ID, uuid.New())
	assert.ErrorIs(t, err, service.ErrNotFound)

	manual := testutil.CreateOffer(t, f.db, f.org.ID, nil, domain.OfferStatusNew)
	_, err = f.normalizer.NormalizeFreeText(f.ctx, f.org.ID, manual.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Zero(t, f.extractor.calls)
}

func TestNormalizeService_FreeText_Cancelled(t *testing.T) {
	f := newFixture(t)
	offerID := textOffer(t, f, "text")
	f.extractor.err = context.Canceled

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	_, err := f.normalizer.NormalizeFreeText(ctx, f.org.ID, offerID)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNormalizeService_RefusesConvertedOffer(t *testing.T) {
	f := newFixture(t)
	offer := f.negotiatingOffer(t, testutil.ItemRow{Description: "Widget", Quantity: "1", UnitPrice: "1"})
	_, err := f.conversion.Convert(f.ctx, f.org.ID, offer.ID)
	require.NoError(t, err)

	_, err = f.normalizer.NormalizeFreeText(f.ctx, f.org.ID, offer.ID)
	assert.ErrorIs(t, err, service.ErrConflict)
	_, err = f.normalizer.NormalizeSpreadsheet(f.ctx, f.org.ID, offer.ID, uuid.New())
	assert.ErrorIs(t, err, service.ErrConflict)
}

func uploadSheet(t *testing.T, f *fixture, filename, content string) *domain.UploadOfferResponse {
	t.Helper()
	resp, err := f.offers.CreateFromDocument(f.ctx, f.org.ID, filename, "text/csv", strings.NewReader(content))
	require.NoError(t, err)
	return resp
}

func TestNormalizeService_Spreadsheet(t *testing.T) {
	f := newFixture(t)
	sheet := "Item,Qty,Unit,Unit Price,SKU\n" +
		"Widget,2,ea,$10.00,W-1\n" +
		"Gadget,,box,5,G-7\n" +
		"Sprocket,10,,\"1,234.5\",S-3\n"
	upload := uploadSheet(t, f, "prices.csv", sheet)

	result, err := f.normalizer.NormalizeSpreadsheet(f.ctx, f.org.ID, upload.Offer.ID, upload.Document.ID)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)

	assert.Equal(t, "Widget", result.Items[0].Description)
	assert.Equal(t, "W-1", *result.Items[0].SKU)
	assert.True(t, decimal.NewFromInt(20).Equal(result.Items[0].TotalPrice))

	assert.True(t, decimal.NewFromInt(1).Equal(result.Items[1].Quantity), "missing quantity defaults to 1")
	assert.Equal(t, "box", result.Items[1].Unit)

	assert.Equal(t, "ea", result.Items[2].Unit)
	assert.True(t, decimal.RequireFromString("12345").Equal(result.Items[2].TotalPrice))

	for _, item := range result.Items {
		assert.True(t, item.Quantity.Mul(item.UnitPrice).Equal(item.TotalPrice))
	}

	offer := f.reloadOffer(t, upload.Offer.ID)
	assert.Len(t, offer.Items, 3)
	assert.Contains(t, string(offer.ParsedJSON), `"items"`)
	require.NotNil(t, offer.DocumentID)
	assert.Equal(t, upload.Document.ID, *offer.DocumentID)
}

func TestNormalizeService_Spreadsheet_Rejections(t *testing.T) {
	f := newFixture(t)
	good := uploadSheet(t, f, "good.csv", "Description,Price\nWidget,1\n")
	_, err := f.normalizer.NormalizeSpreadsheet(f.ctx, f.org.ID, good.Offer.ID, good.Document.ID)
	require.NoError(t, err)

	cases := []struct {
		name    string
		content string
	}{
		{"no description or price column", "Color,Weight\nred,2\n"},
		{"header only", "Item,Price\n"},
		{"zero quantity", "Item,Qty,Price\nWidget,0,1\n"},
		{"negative price", "Item,Qty,Price\nWidget,1,-4\n"},
		{"no usable rows", "Item,Price\n,1\nWidget,n/a\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := uploadSheet(t, f, "bad.csv", tc.content)
			_, err := f.normalizer.NormalizeSpreadsheet(f.ctx, f.org.ID, good.Offer.ID, bad.Document.ID)
			assert.ErrorIs(t, err, service.ErrValidation)

			items := f.reloadOffer(t, good.Offer.ID).Items
			require.Len(t, items, 1, "existing items stay untouched")
			assert.Equal(t, "Widget", items[0].Description)
		})
	}

	t.Run("unknown document", func(t *testing.T) {
		_, err := f.normalizer.NormalizeSpreadsheet(f.ctx, f.org.ID, good.Offer.ID, uuid.New())
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("blob missing from storage", func(t *testing.T) {
		orphan := uploadSheet(t, f, "orphan.csv", "Item,Price\nA,1\n")
		var doc domain.Document
		require.NoError(t, f.db.First(&doc, "id = ?", orphan.Document.ID).Error)
		require.NoError(t, f.store.Delete(context.Background(), doc.Path))

		_, err := f.normalizer.NormalizeSpreadsheet(f.ctx, f.org.ID, orphan.Offer.ID, orphan.Document.ID)
		assert.ErrorIs(t, err, service.ErrExternalService)
	})
}

func TestNormalizeService_Spreadsheet_RowCountMatches(t *testing.T) {
	f := newFixture(t)
	for _, n := range []int{1, 5, 40} {
		var b strings.Builder
		b.WriteString("Item,Qty,Unit,Unit Price,SKU\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "Part %d,%d,ea,%d.25,P-%d\n", i, i+1, i, i)
		}
		upload := uploadSheet(t, f, "parts.csv", b.String())

		result, err := f.normalizer.NormalizeSpreadsheet(f.ctx, f.org.ID, upload.Offer.ID, upload.Document.ID)
		require.NoError(t, err)
		assert.Len(t, result.Items, n)
	}
}
