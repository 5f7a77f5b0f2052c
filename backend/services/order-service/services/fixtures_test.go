package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testAddress() *models.Address {
	return &models.Address{
		FullName:   "Asha Rao",
		Phone:      "+919800000000",
		Line1:      "12 Market Road",
		City:       "Pune",
		PostalCode: "411001",
		Country:    "IN",
	}
}

type recordedEvent struct {
	kind  string
	order models.Order
	from  models.OrderStatus
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) OrderCreated(_ context.Context, order models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: models.EventOrderCreated, order: order})
}

func (r *recordingEvents) StatusChanged(_ context.Context, order models.Order, from models.OrderStatus, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: models.EventOrderStatusChanged, order: order, from: from})
}

func (r *recordingEvents) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	t        *testing.T
	store    *memstore.Store
	events   *recordingEvents
	checkout *CheckoutService
	orders   *OrderService
	buyer    uuid.UUID
	farmerX  uuid.UUID
	farmerY  uuid.UUID
}

func newFixture(t *testing.T, opts ...CheckoutOption) *fixture {
	t.Helper()
	store := memstore.New()
	return newFixtureWithUoW(t, store, store, opts...)
}

func newFixtureWithUoW(t *testing.T, store *memstore.Store, uow repository.UnitOfWork, opts ...CheckoutOption) *fixture {
	t.Helper()
	events := &recordingEvents{}
	var seq int64
	base := []CheckoutOption{
		WithEvents(events),
		WithParentIDGenerator(func() string {
			return fmt.Sprintf("ORD-TEST-%d", atomic.AddInt64(&seq, 1))
		}),
	}
	return &fixture{
		t:        t,
		store:    store,
		events:   events,
		checkout: NewCheckoutService(uow, zap.NewNop(), append(base, opts...)...),
		orders:   NewOrderService(uow, events, nil, zap.NewNop()),
		buyer:    uuid.New(),
		farmerX:  uuid.New(),
		farmerY:  uuid.New(),
	}
}

func (f *fixture) addProduct(farmer uuid.UUID, name, price string, stock int) models.Product {
	p := models.Product{
		ID:       uuid.New(),
		FarmerID: farmer,
		Name:     name,
		Unit:     "kg",
		Price:    dec(price),
		Stock:    stock,
		IsActive: true,
	}
	f.store.PutProduct(p)
	return p
}

func (f *fixture) product(id uuid.UUID) models.Product {
	f.t.Helper()
	p, ok := f.store.Product(id)
	if !ok {
		f.t.Fatalf("product %s missing", id)
	}
	return p
}

func (f *fixture) command(lines ...models.CartLine) CheckoutCommand {
	return CheckoutCommand{
		BuyerID:         f.buyer,
		Lines:           lines,
		DeliveryAddress: testAddress(),
		Payment:         models.Payment{Method: models.PaymentMethodCOD},
	}
}

func line(p models.Product, qty int) models.CartLine {
	return models.CartLine{ProductID: p.ID, Quantity: qty}
}

// barrierUoW makes every transaction wait after its product read until
// `parties` transactions have read, so they all race on the decrement.
type barrierUoW struct {
	repository.UnitOfWork
	wg *sync.WaitGroup
}

func newBarrierUoW(inner repository.UnitOfWork, parties int) *barrierUoW {
	wg := &sync.WaitGroup{}
	wg.Add(parties)
	return &barrierUoW{UnitOfWork: inner, wg: wg}
}

func (b *barrierUoW) Within(ctx context.Context, fn func(tx repository.Tx) error) error {
	return b.UnitOfWork.Within(ctx, func(tx repository.Tx) error {
		return fn(&barrierTx{Tx: tx, wg: b.wg})
	})
}

type barrierTx struct {
	repository.Tx
	wg *sync.WaitGroup
}

func (t *barrierTx) Products() repository.ProductRepository {
	return &barrierProducts{ProductRepository: t.Tx.Products(), wg: t.wg}
}

type barrierProducts struct {
	repository.ProductRepository
	wg *sync.WaitGroup
}

func (p *barrierProducts) FetchMany(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	products, err := p.ProductRepository.FetchMany(ctx, ids)
	p.wg.Done()
	p.wg.Wait()
	return products, err
}

type staticPopulator struct {
	warnings []*PopulationWarning
	calls    int32
}

func (s *staticPopulator) Populate(_ context.Context, _ []models.Order) []*PopulationWarning {
	atomic.AddInt32(&s.calls, 1)
	return s.warnings
}
