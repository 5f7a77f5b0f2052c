package services

import (
	"context"
	"errors"
	"testing"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reserve(t *testing.T, f *fixture, lines ...models.CartLine) ([]PricedLine, error) {
	t.Helper()
	engine := NewReservationEngine(zap.NewNop())
	var out []PricedLine
	err := f.store.Within(context.Background(), func(tx repository.Tx) error {
		var err error
		out, err = engine.Reserve(context.Background(), tx, lines)
		return err
	})
	return out, err
}

func TestReserve_DecrementsStockAndCountsSales(t *testing.T) {
	f := newFixture(t)
	tomatoes := f.addProduct(f.farmerX, "Tomatoes", "45", 10)
	mangoes := f.addProduct(f.farmerY, "Mangoes", "60", 1)

	lines, err := reserve(t, f, line(tomatoes, 2), line(mangoes, 1))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, tomatoes.ID, lines[0].Product.ID)
	assert.True(t, lines[0].Product.Price.Equal(dec("45")))

	got := f.product(tomatoes.ID)
	assert.Equal(t, 8, got.Stock)
	assert.Equal(t, 2, got.SoldCount)
	assert.True(t, got.IsActive)

	soldOut := f.product(mangoes.ID)
	assert.Equal(t, 0, soldOut.Stock)
	assert.Equal(t, 1, soldOut.SoldCount)
	assert.False(t, soldOut.IsActive, "selling the last unit clears the sellable flag")
}

func TestReserve_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Okra", "30", 3)

	_, err := reserve(t, f, line(p, 5))

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, p.ID, insufficient.ProductID)
	assert.Equal(t, 3, insufficient.Available)
	assert.Equal(t, 5, insufficient.Requested)
	assert.Equal(t, 3, f.product(p.ID).Stock)
	assert.Equal(t, 0, f.product(p.ID).SoldCount)
}

func TestReserve_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Onions", "20", 5)
	missing := uuid.New()

	_, err := reserve(t, f, line(p, 1), models.CartLine{ProductID: missing, Quantity: 1})

	var unavailable *ProductUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []uuid.UUID{missing}, unavailable.ProductIDs)
	assert.Equal(t, 5, f.product(p.ID).Stock)
}

func TestReserve_InactiveProductIsUnavailable(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Garlic", "80", 5)
	p.IsActive = false
	f.store.PutProduct(p)

	_, err := reserve(t, f, line(p, 1))

	var unavailable *ProductUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 5, f.product(p.ID).Stock)
}

// shortDecrementTx drops the last delta, as if another checkout took that
// stock between the read and the write.
type shortDecrementTx struct {
	repository.Tx
}

func (t shortDecrementTx) Products() repository.ProductRepository {
	return shortDecrementProducts{t.Tx.Products()}
}

type shortDecrementProducts struct {
	repository.ProductRepository
}

func (p shortDecrementProducts) ConditionalBulkDecrement(ctx context.Context, deltas []models.StockDelta) ([]uuid.UUID, error) {
	return p.ProductRepository.ConditionalBulkDecrement(ctx, deltas[:len(deltas)-1])
}

func TestReserve_LostRaceRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	a := f.addProduct(f.farmerX, "Beans", "10", 5)
	b := f.addProduct(f.farmerY, "Peas", "12", 5)

	engine := NewReservationEngine(zap.NewNop())
	err := f.store.Within(context.Background(), func(tx repository.Tx) error {
		_, err := engine.Reserve(context.Background(), shortDecrementTx{tx}, []models.CartLine{line(a, 2), line(b, 2)})
		return err
	})

	var raceLost *StockRaceLostError
	require.ErrorAs(t, err, &raceLost)
	assert.Equal(t, b.ID, raceLost.ProductID)
	assert.Equal(t, 5, f.product(a.ID).Stock, "the applied decrement is rolled back")
	assert.Equal(t, 0, f.product(a.ID).SoldCount)
	assert.Equal(t, 5, f.product(b.ID).Stock)
}

func TestReserve_RejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Chillies", "5", 5)

	_, err := reserve(t, f, line(p, 0))
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
}

func TestMergeLines_SumsRepeatedProducts(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	merged := mergeLines([]models.CartLine{
		{ProductID: a, Quantity: 1},
		{ProductID: b, Quantity: 2},
		{ProductID: a, Quantity: 3},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, a, merged[0].ProductID)
	assert.Equal(t, 4, merged[0].Quantity)
	assert.Equal(t, b, merged[1].ProductID)
	assert.Equal(t, 2, merged[1].Quantity)
}
