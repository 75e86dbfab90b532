package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/auth"
	"github.com/offerflow/offerflow-api/internal/cache"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/events"
	"github.com/offerflow/offerflow-api/internal/metrics"
	"github.com/offerflow/offerflow-api/internal/repository"
	"github.com/offerflow/offerflow-api/internal/service"
	"github.com/offerflow/offerflow-api/internal/storage"
	"github.com/offerflow/offerflow-api/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubExtractor returns a fixed payload or error and records the text it was given
type stubExtractor struct {
	payload string
	err     error
	calls   int
	text    string
}

func (e *stubExtractor) Extract(_ context.Context, text string) (json.RawMessage, error) {
	e.calls++
	e.text = text
	if e.err != nil {
		return nil, e.err
	}
	return json.RawMessage(e.payload), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// memoryCache is an in-process KPICache that can be told to fail
type memoryCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]*domain.KPISnapshotDTO
	invalidated int
	failReads   bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[uuid.UUID]*domain.KPISnapshotDTO{}}
}

func (c *memoryCache) Get(_ context.Context, orgID uuid.UUID) (*domain.KPISnapshotDTO, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads {
		return nil, errors.New("cache unavailable")
	}
	snap, ok := c.entries[orgID]
	if !ok {
		return nil, cache.ErrMiss
	}
	return snap, nil
}

func (c *memoryCache) Set(_ context.Context, orgID uuid.UUID, snap *domain.KPISnapshotDTO) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[orgID] = snap
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, orgID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, orgID)
	c.invalidated++
	return nil
}

type fixture struct {
	db        *gorm.DB
	org       *domain.Organization
	ctx       context.Context
	store     storage.Storage
	extractor *stubExtractor
	publisher *recordingPublisher
	cache     *memoryCache

	vendors    *service.VendorService
	offers     *service.OfferService
	normalizer *service.NormalizeService
	lifecycle  *service.OfferLifecycleService
	conversion *service.ConversionService
	shipments  *service.ShipmentService
	orders     *service.OrderService
	kpi        *service.KPIService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	org := testutil.CreateOrganization(t, db, "EUR")
	log := zap.NewNop()
	reg := metrics.NewRegistry()

	store, err := storage.NewLocalStorage(t.TempDir(), "offer-documents")
	require.NoError(t, err)

	cfg := &config.Config{
		Orders:    config.OrdersConfig{DefaultCurrency: "USD"},
		Shipments: config.ShipmentsConfig{Carrier: "Demo Carrier", TransitDays: 2},
	}

	offerRepo := repository.NewOfferRepository(db)
	itemRepo := repository.NewOfferItemRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	shipmentRepo := repository.NewShipmentRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)

	f := &fixture{
		db:        db,
		org:       org,
		ctx:       auth.WithUserContext(context.Background(), &auth.UserContext{UserID: "user-1", OrgID: org.ID, AuthMethod: auth.MethodJWT}),
		store:     store,
		extractor: &stubExtractor{},
		publisher: &recordingPublisher{},
		cache:     newMemoryCache(),
	}

	f.vendors = service.NewVendorService(repository.NewVendorRepository(db), log, db)
	f.offers = service.NewOfferService(offerRepo, itemRepo, docRepo, f.vendors, store, f.cache, reg, log, db)
	f.normalizer = service.NewNormalizeService(offerRepo, itemRepo, docRepo, f.vendors, store, f.extractor, f.cache, reg, log, db)
	f.lifecycle = service.NewOfferLifecycleService(offerRepo, itemRepo, f.cache, f.publisher, reg, log, db)
	f.conversion = service.NewConversionService(offerRepo, itemRepo, orderRepo, shipmentRepo, orgRepo, f.cache, f.publisher, reg, cfg, log, db)
	f.shipments = service.NewShipmentService(shipmentRepo, orderRepo, offerRepo, f.cache, f.publisher, reg, &cfg.Shipments, log, db)
	f.orders = service.NewOrderService(orderRepo, log)
	f.kpi = service.NewKPIService(offerRepo, orderRepo, orgRepo, f.cache, reg, cfg.Orders.DefaultCurrency, log)
	return f
}

// negotiatingOffer creates an offer with a vendor and items, ready to convert
func (f *fixture) negotiatingOffer(t *testing.T, items ...testutil.ItemRow) *domain.Offer {
	t.Helper()
	vendor := testutil.CreateVendor(t, f.db, f.org.ID, "Acme Supply "+uuid.NewString()[:6])
	return testutil.CreateOffer(t, f.db, f.org.ID, &vendor.ID, domain.OfferStatusNegotiating, items...)
}

func (f *fixture) reloadOffer(t *testing.T, id uuid.UUID) *domain.Offer {
	t.Helper()
	var offer domain.Offer
	require.NoError(t, f.db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).First(&offer, "id = ?", id).Error)
	return &offer
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func intPtr(i int) *int { return &i }
