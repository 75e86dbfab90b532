package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/auth"
	"github.com/offerflow/offerflow-api/internal/cache"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/events"
	"github.com/offerflow/offerflow-api/internal/http/handler"
	"github.com/offerflow/offerflow-api/internal/http/middleware"
	"github.com/offerflow/offerflow-api/internal/http/router"
	"github.com/offerflow/offerflow-api/internal/metrics"
	"github.com/offerflow/offerflow-api/internal/repository"
	"github.com/offerflow/offerflow-api/internal/service"
	"github.com/offerflow/offerflow-api/internal/storage"
	"github.com/offerflow/offerflow-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "router-test-secret"

type fixedExtractor struct{ payload string }

func (e fixedExtractor) Extract(context.Context, string) (json.RawMessage, error) {
	return json.RawMessage(e.payload), nil
}

type testServer struct {
	handler http.Handler
	org     *domain.Organization
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.SetupTestDB(t)
	org := testutil.CreateOrganization(t, db, "EUR")
	log := zap.NewNop()
	reg := metrics.NewRegistry()

	cfg := &config.Config{
		App:       config.AppConfig{Environment: "development"},
		Auth:      config.AuthConfig{JWTSecret: testSecret, Issuer: "offerflow-test", APIKey: "system-key"},
		Server:    config.ServerConfig{EnableMetrics: true},
		Storage:   config.StorageConfig{MaxUploadSizeMB: 1},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Orders:    config.OrdersConfig{DefaultCurrency: "USD"},
		Shipments: config.ShipmentsConfig{Carrier: "Demo Carrier", TransitDays: 3},
	}

	store, err := storage.NewLocalStorage(t.TempDir(), "offer-documents")
	require.NoError(t, err)
	extractor := fixedExtractor{payload: `{"vendor_name":"Acme","lead_time_days":9,"items":[` +
		`{"description":"Widget","quantity":4,"unit_price":2.5},` +
		`{"description":"Gadget","quantity":1,"unit_price":10}]}`}
	publisher := events.NewLogPublisher(log)
	kpiCache := cache.NoopKPICache{}

	offerRepo := repository.NewOfferRepository(db)
	itemRepo := repository.NewOfferItemRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	shipmentRepo := repository.NewShipmentRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)

	vendors := service.NewVendorService(repository.NewVendorRepository(db), log, db)
	offers := service.NewOfferService(offerRepo, itemRepo, docRepo, vendors, store, kpiCache, reg, log, db)
	normalizer := service.NewNormalizeService(offerRepo, itemRepo, docRepo, vendors, store, extractor, kpiCache, reg, log, db)
	lifecycle := service.NewOfferLifecycleService(offerRepo, itemRepo, kpiCache, publisher, reg, log, db)
	conversion := service.NewConversionService(offerRepo, itemRepo, orderRepo, shipmentRepo, orgRepo, kpiCache, publisher, reg, cfg, log, db)
	shipments := service.NewShipmentService(shipmentRepo, orderRepo, offerRepo, kpiCache, publisher, reg, &cfg.Shipments, log, db)
	kpi := service.NewKPIService(offerRepo, orderRepo, orgRepo, kpiCache, reg, cfg.Orders.DefaultCurrency, log)

	rt := router.NewRouter(cfg, log, db, reg,
		auth.NewMiddleware(&cfg.Auth, log),
		middleware.NewRateLimiter(&cfg.RateLimit, log),
		router.Handlers{
			Auth:     handler.NewAuthHandler(orgRepo, log),
			Offer:    handler.NewOfferHandler(offers, normalizer, lifecycle, conversion, cfg.Storage.MaxUploadSizeMB, log),
			Vendor:   handler.NewVendorHandler(vendors, log),
			Order:    handler.NewOrderHandler(service.NewOrderService(orderRepo, log), log),
			Shipment: handler.NewShipmentHandler(shipments, log),
			KPI:      handler.NewKPIHandler(kpi, log),
		},
	)

	token, err := auth.NewTokenValidator(&cfg.Auth).SignToken("user-42", org.ID, time.Hour)
	require.NoError(t, err)

	return &testServer{handler: rt.Setup(), org: org, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), target), w.Body.String())
}

func problemType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var apiErr domain.APIError
	decode(t, w, &apiErr)
	assert.Equal(t, w.Code, apiErr.Status)
	return apiErr.Type
}

func TestRouter_OfferToDelivery(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/offers/text", map[string]string{"rawContent": "Acme quote: 4 widgets, 1 gadget"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var offer domain.OfferDTO
	decode(t, w, &offer)
	assert.Equal(t, "user-42", offer.CreatedBy)
	base := "/api/v1/offers/" + offer.ID.String()

	w = s.do(t, http.MethodPost, base+"/normalize/text", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var normalized domain.NormalizeTextResultDTO
	decode(t, w, &normalized)
	assert.Len(t, normalized.Items, 2)

	w = s.do(t, http.MethodPost, base+"/approve", map[string]string{"notes": "ok to proceed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, base+"/convert", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var conv domain.ConversionResultDTO
	decode(t, w, &conv)
	require.NotNil(t, conv.ShipmentID)
	assert.Equal(t, "/api/v1/orders/"+conv.OrderID.String(), w.Header().Get("Location"))

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+conv.OrderID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var order domain.OrderDTO
	decode(t, w, &order)
	assert.Equal(t, "20", order.TotalAmount.String())
	assert.Equal(t, "EUR", order.Currency)

	for i := 0; i < 4; i++ {
		w = s.do(t, http.MethodPost, "/api/v1/shipments/advance", map[string]interface{}{"shipmentId": conv.ShipmentID, "eventIndex": i})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	var advanced domain.AdvanceShipmentResultDTO
	decode(t, w, &advanced)
	assert.Equal(t, domain.ShipmentStatusDelivered, advanced.Status)

	w = s.do(t, http.MethodGet, "/api/v1/shipments/"+conv.ShipmentID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var shipment domain.ShipmentDTO
	decode(t, w, &shipment)
	assert.Len(t, shipment.Events, 4)

	w = s.do(t, http.MethodGet, base, nil)
	var detail domain.OfferDetailDTO
	decode(t, w, &detail)
	assert.Equal(t, domain.OfferStatusDelivered, detail.Status)

	w = s.do(t, http.MethodGet, "/api/v1/kpi", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap map[string]interface{}
	decode(t, w, &snap)
	assert.Equal(t, "20", snap["totalRevenue"])
	assert.Nil(t, snap["avgMarginPct"])
	assert.Equal(t, false, snap["marginAvailable"])
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/offers/text", map[string]string{"rawContent": "raw"})
	require.Equal(t, http.StatusCreated, w.Code)
	var offer domain.OfferDTO
	decode(t, w, &offer)
	base := "/api/v1/offers/" + offer.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{"unknown offer", http.MethodGet, "/api/v1/offers/" + uuid.NewString(), nil, http.StatusNotFound, "not_found"},
		{"malformed id", http.MethodGet, "/api/v1/offers/not-a-uuid", nil, http.StatusBadRequest, "bad_request"},
		{"approve without items", http.MethodPost, base + "/approve", nil, http.StatusUnprocessableEntity, "precondition_failed"},
		{"accept from new", http.MethodPost, base + "/accept", nil, http.StatusConflict, "conflict"},
		{"convert without vendor", http.MethodPost, base + "/convert", nil, http.StatusUnprocessableEntity, "precondition_failed"},
		{"empty text", http.MethodPost, "/api/v1/offers/text", map[string]string{"rawContent": ""}, http.StatusBadRequest, "validation_error"},
		{"unknown field", http.MethodPost, "/api/v1/offers/text", map[string]string{"rawContent": "x", "vendor": "y"}, http.StatusBadRequest, "bad_request"},
		{"manual offer without items", http.MethodPost, "/api/v1/offers", map[string]interface{}{"items": []interface{}{}}, http.StatusBadRequest, "validation_error"},
		{"manual offer zero quantity", http.MethodPost, "/api/v1/offers", map[string]interface{}{
			"items": []map[string]interface{}{{"description": "Widget", "quantity": "0", "unitPrice": "1"}},
		}, http.StatusBadRequest, "validation_error"},
		{"no open shipment", http.MethodPost, "/api/v1/shipments/advance", nil, http.StatusNotFound, "not_found"},
		{"spreadsheet document missing", http.MethodPost, base + "/normalize/spreadsheet", map[string]string{"documentId": uuid.NewString()}, http.StatusNotFound, "not_found"},
		{"unknown vendor", http.MethodGet, "/api/v1/vendors/" + uuid.NewString(), nil, http.StatusNotFound, "not_found"},
		{"bad status filter", http.MethodGet, "/api/v1/offers?status=shipped", nil, http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.kind, problemType(t, w))
		})
	}
}

func TestRouter_Authentication(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/kpi", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("x-api-key", "system-key")
	req.Header.Set(auth.OrganizationHeader, s.org.ID.String())
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me domain.AuthUserDTO
	decode(t, w, &me)
	assert.Equal(t, auth.SystemUserID, me.UserID)
	assert.Equal(t, s.org.ID, me.OrgID)
	assert.Equal(t, "EUR", me.OrgCurrency)
}

func TestRouter_OrganizationsAreIsolated(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/vendors/resolve", map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusOK, w.Code)
	var resolved domain.ResolveVendorResultDTO
	decode(t, w, &resolved)

	other, err := auth.NewTokenValidator(&config.AuthConfig{JWTSecret: testSecret, Issuer: "offerflow-test"}).SignToken("user-7", uuid.New(), time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendors/"+resolved.VendorID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+other)
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_UploadAndNormalizeSpreadsheet(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "prices.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("Item,Qty,Unit Price\nWidget,2,3\nGadget,1,4.5\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/offers/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var upload domain.UploadOfferResponse
	decode(t, w, &upload)

	w = s.do(t, http.MethodPost, "/api/v1/offers/"+upload.Offer.ID.String()+"/normalize/spreadsheet",
		map[string]string{"documentId": upload.Document.ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result domain.NormalizeSpreadsheetResultDTO
	decode(t, w, &result)
	assert.Len(t, result.Items, 2)

	w = s.do(t, http.MethodGet, "/api/v1/offers?sourceType=excel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data  []domain.OfferDTO `json:"data"`
		Total int64             `json:"total"`
	}
	decode(t, w, &page)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, 2, page.Data[0].ItemCount)
	assert.Equal(t, "10.5", page.Data[0].TotalValue.String())
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	s.do(t, http.MethodGet, "/api/v1/kpi", nil)

	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `route="/api/v1/kpi"`), "request metrics are labelled by route")
}
