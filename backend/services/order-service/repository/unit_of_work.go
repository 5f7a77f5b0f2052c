package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = gorm.ErrRecordNotFound
	// ErrTransitionRejected is returned when an order exists but its current
	// status is not a legal predecessor of the requested one.
	ErrTransitionRejected = errors.New("status transition rejected")
	// ErrDuplicateIdempotencyKey is returned when a buyer reuses an idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// Tx hands out repositories bound to one transaction (or, from Reader, to
// the connection pool). Components receive it explicitly and never open or
// finish transactions themselves.
type Tx interface {
	Products() ProductRepository
	Orders() OrderRepository
	Checkouts() CheckoutRepository
}

// UnitOfWork runs fn in a transaction: it commits when fn returns nil and
// rolls back every write otherwise.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(tx Tx) error) error
	Reader() Tx
}

// GormUnitOfWork implements UnitOfWork on a gorm connection.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork.
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Within runs fn inside db.Transaction. A cancelled ctx aborts the
// transaction, including at commit time.
func (u *GormUnitOfWork) Within(ctx context.Context, fn func(tx Tx) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

// Reader returns repositories that run outside any transaction.
func (u *GormUnitOfWork) Reader() Tx {
	return &gormTx{db: u.db}
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Products() ProductRepository   { return NewGormProductRepository(t.db) }
func (t *gormTx) Orders() OrderRepository       { return NewGormOrderRepository(t.db) }
func (t *gormTx) Checkouts() CheckoutRepository { return NewGormCheckoutRepository(t.db) }
