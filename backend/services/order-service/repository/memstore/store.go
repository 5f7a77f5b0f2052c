// Package memstore is an in-process implementation of the order-service
// repositories. It backs the unit tests and STORE_DRIVER=memory.
//
// Writers are serialised: a transaction takes the store's writer slot on its
// first write and keeps it until it commits or rolls back, much like row locks
// held until commit. Order lookups inside a transaction also take the slot,
// like SELECT ... FOR UPDATE; every other read never blocks. A rollback
// replays an undo log.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
)

type idemKey struct {
	buyer uuid.UUID
	key   string
}

// Store holds products, orders and checkout groups in memory.
type Store struct {
	mu        sync.RWMutex
	writer    chan struct{}
	products  map[uuid.UUID]*models.Product
	orders    map[string]*models.Order
	checkouts map[string]*models.CheckoutGroup
	idem      map[idemKey]string
	historyID uint
	now       func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		writer:    make(chan struct{}, 1),
		products:  make(map[uuid.UUID]*models.Product),
		orders:    make(map[string]*models.Order),
		checkouts: make(map[string]*models.CheckoutGroup),
		idem:      make(map[idemKey]string),
		now:       time.Now,
	}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.UpdatedAt = s.now()
	cp := p
	s.products[p.ID] = &cp
}

// Product returns a copy of the product with id.
func (s *Store) Product(id uuid.UUID) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, false
	}
	return *p, true
}

// OrderCount returns the number of committed orders.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// CheckoutCount returns the number of committed checkout groups.
func (s *Store) CheckoutCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.checkouts)
}

// Within runs fn in a transaction. The transaction rolls back when fn fails
// or ctx is done by the time fn returns.
func (s *Store) Within(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx := &memTx{store: s}
	err := fn(tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		tx.rollback()
	}
	tx.release()
	return err
}

// Reader returns repositories whose writes commit immediately.
func (s *Store) Reader() repository.Tx {
	return &memTx{store: s, autocommit: true}
}

var _ repository.UnitOfWork = (*Store)(nil)

type memTx struct {
	store      *Store
	autocommit bool
	holding    bool
	undo       []func()
}

func (t *memTx) Products() repository.ProductRepository   { return &productRepo{tx: t} }
func (t *memTx) Orders() repository.OrderRepository       { return &orderRepo{tx: t} }
func (t *memTx) Checkouts() repository.CheckoutRepository { return &checkoutRepo{tx: t} }

// lock takes the writer slot for the rest of the transaction. Autocommit
// repositories never hold it across calls, so for them lock is a no-op.
func (t *memTx) lock(ctx context.Context) error {
	if t.autocommit || t.holding {
		return nil
	}
	return t.acquire(ctx)
}

func (t *memTx) acquire(ctx context.Context) error {
	select {
	case t.store.writer <- struct{}{}:
		t.holding = true
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// write runs fn with the writer slot held and the data lock taken.
func (t *memTx) write(ctx context.Context, fn func() error) error {
	if !t.holding {
		if err := t.acquire(ctx); err != nil {
			return err
		}
	}

	t.store.mu.Lock()
	err := fn()
	t.store.mu.Unlock()

	if t.autocommit {
		t.undo = nil
		t.release()
	}
	return err
}

func (t *memTx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *memTx) rollback() {
	if len(t.undo) == 0 {
		return
	}
	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.store.mu.Unlock()
	t.undo = nil
}

func (t *memTx) release() {
	if t.holding {
		<-t.store.writer
		t.holding = false
	}
}

func copyOrder(o *models.Order) models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	cp.StatusHistory = append([]models.OrderStatusEntry(nil), o.StatusHistory...)
	if o.TrackingNumber != nil {
		tn := *o.TrackingNumber
		cp.TrackingNumber = &tn
	}
	if o.CanceledAt != nil {
		at := *o.CanceledAt
		cp.CanceledAt = &at
	}
	if o.DeliveredAt != nil {
		at := *o.DeliveredAt
		cp.DeliveredAt = &at
	}
	cp.Buyer = nil
	for i := range cp.Items {
		cp.Items[i].Details = nil
	}
	return cp
}

// sortOrders orders newest checkout first, then by suffix.
func sortOrders(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.ParentOrderID != b.ParentOrderID {
			return a.ParentOrderID < b.ParentOrderID
		}
		return a.Sequence < b.Sequence
	})
}
