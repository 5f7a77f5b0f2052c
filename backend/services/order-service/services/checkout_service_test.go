package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	aws_pkg "github.com/GHOST-031/agrova-sub001/backend/pkg/aws"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckout_SplitsCartPerFarmer(t *testing.T) {
	f := newFixture(t)
	tomatoes := f.addProduct(f.farmerX, "Tomatoes", "45", 10)
	mangoes := f.addProduct(f.farmerY, "Mangoes", "60", 4)

	cmd := f.command(line(tomatoes, 2), line(mangoes, 1))
	cmd.Charges = models.SharedCharges{Delivery: dec("40")}

	result, serr := f.checkout.Checkout(context.Background(), cmd)
	require.Nil(t, serr)

	assert.Equal(t, "ORD-TEST-1", result.ParentOrderID)
	require.Len(t, result.Orders, 2)

	x, y := result.Orders[0], result.Orders[1]
	assert.Equal(t, "ORD-TEST-1-1", x.ID)
	assert.Equal(t, "ORD-TEST-1-2", y.ID)
	assert.Equal(t, f.farmerX, x.FarmerID)
	assert.Equal(t, f.farmerY, y.FarmerID)
	assert.True(t, x.Pricing.Total.Equal(dec("114")), "got %s", x.Pricing.Total)
	assert.True(t, y.Pricing.Total.Equal(dec("76")), "got %s", y.Pricing.Total)

	assert.Equal(t, 2, result.Summary.OrderCount)
	assert.True(t, result.Summary.Subtotal.Equal(dec("150")))
	assert.True(t, result.Summary.Total.Equal(dec("190")))

	for _, o := range result.Orders {
		assert.Equal(t, models.StatusConfirmed, o.Status, "cash on delivery starts confirmed")
		assert.Equal(t, result.ParentOrderID, o.ParentOrderID)
		assert.Equal(t, *testAddress(), o.DeliveryAddress)
		require.Len(t, o.StatusHistory, 1)
		assert.Equal(t, models.StatusConfirmed, o.StatusHistory[0].Status)
	}

	assert.Equal(t, 8, f.product(tomatoes.ID).Stock)
	assert.Equal(t, 3, f.product(mangoes.ID).Stock)
	assert.Equal(t, 2, f.store.OrderCount())
	assert.Equal(t, 2, f.events.count(models.EventOrderCreated))

	stored, err := f.store.Reader().Orders().FindByParentID(context.Background(), result.ParentOrderID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "ORD-TEST-1-1", stored[0].ID)
}

func TestCheckout_InitialStatusFollowsPayment(t *testing.T) {
	cases := []struct {
		name    string
		payment models.Payment
		want    models.OrderStatus
	}{
		{"cod", models.Payment{Method: models.PaymentMethodCOD}, models.StatusConfirmed},
		{"card pending", models.Payment{Method: models.PaymentMethodCard, Status: models.PaymentStatusPending}, models.StatusPending},
		{"upi captured", models.Payment{Method: models.PaymentMethodUPI, Status: models.PaymentStatusSuccess}, models.StatusConfirmed},
		{"wallet unspecified", models.Payment{Method: models.PaymentMethodWallet}, models.StatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.addProduct(f.farmerX, "Spinach", "15", 5)

			cmd := f.command(line(p, 1))
			cmd.Payment = tc.payment
			result, serr := f.checkout.Checkout(context.Background(), cmd)
			require.Nil(t, serr)
			require.Len(t, result.Orders, 1)
			assert.Equal(t, tc.want, result.Orders[0].Status)
		})
	}
}

func TestCheckout_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Carrots", "25", 5)

	empty := f.command()
	_, serr := f.checkout.Checkout(context.Background(), empty)
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Equal(t, "EMPTY_CART", serr.Code)

	noAddress := f.command(line(p, 1))
	noAddress.DeliveryAddress = nil
	_, serr = f.checkout.Checkout(context.Background(), noAddress)
	require.NotNil(t, serr)
	assert.Equal(t, "MISSING_ADDRESS", serr.Code)

	zeroQty := f.command(line(p, 0))
	_, serr = f.checkout.Checkout(context.Background(), zeroQty)
	require.NotNil(t, serr)
	assert.Equal(t, "INVALID_QUANTITY", serr.Code)

	negative := f.command(line(p, 1))
	negative.Charges.Delivery = dec("-1")
	_, serr = f.checkout.Checkout(context.Background(), negative)
	require.NotNil(t, serr)
	assert.Equal(t, "INVALID_CHARGES", serr.Code)

	subCent := f.command(line(p, 1))
	subCent.Charges.Delivery = dec("10.005")
	_, serr = f.checkout.Checkout(context.Background(), subCent)
	require.NotNil(t, serr)
	assert.Equal(t, "INVALID_CHARGES", serr.Code)

	assert.Equal(t, 5, f.product(p.ID).Stock)
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestCheckout_UnevenDiscountKeepsEverySubOrderNonNegative(t *testing.T) {
	f := newFixture(t)
	x := f.addProduct(f.farmerX, "Mint", "1", 5)
	y := f.addProduct(f.farmerY, "Basil", "2", 5)

	cmd := f.command(line(x, 1), line(y, 1))
	cmd.Charges = models.SharedCharges{Delivery: dec("0.01"), Discount: dec("3.02"), Tax: dec("0.01")}

	result, serr := f.checkout.Checkout(context.Background(), cmd)
	require.Nil(t, serr)
	require.Len(t, result.Orders, 2)
	for _, o := range result.Orders {
		assert.False(t, o.Pricing.Total.IsNegative(), "order %s total %s", o.ID, o.Pricing.Total)
	}
	assert.Equal(t, "3.02", result.Summary.Discount.String())
}

func TestCheckout_RecordsSoldOutAndFailureKind(t *testing.T) {
	metrics := newCountingMetrics()
	f := newFixture(t, WithMetrics(metrics))
	last := f.addProduct(f.farmerX, "Morels", "700", 2)
	plenty := f.addProduct(f.farmerY, "Rice", "60", 50)

	_, serr := f.checkout.Checkout(context.Background(), f.command(line(last, 2), line(plenty, 1)))
	require.Nil(t, serr)
	// Checkouts, OrdersCreated, InventoryReserved and ProductsSoldOut.
	metrics.wait(t, 4)
	assert.Equal(t, 1, metrics.get(aws_pkg.MetricSoldOut))

	_, serr = f.checkout.Checkout(context.Background(), f.command(line(last, 1)))
	require.NotNil(t, serr)
	metrics.wait(t, 1)
	assert.Equal(t, 1, metrics.get(aws_pkg.MetricCheckoutFailures+"/stock"))

	_, serr = f.checkout.Checkout(context.Background(), f.command())
	require.NotNil(t, serr)
	metrics.wait(t, 1)
	assert.Equal(t, 1, metrics.get(aws_pkg.MetricCheckoutFailures+"/invalid"))
}

func TestCheckout_DiscountLargerThanCartRollsBack(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Radish", "10", 5)

	cmd := f.command(line(p, 1))
	cmd.Charges = models.SharedCharges{Delivery: dec("5"), Discount: dec("100")}

	_, serr := f.checkout.Checkout(context.Background(), cmd)
	require.NotNil(t, serr)
	assert.Equal(t, "INVALID_CHARGES", serr.Code)
	assert.Equal(t, 5, f.product(p.ID).Stock)
	assert.Equal(t, 0, f.product(p.ID).SoldCount)
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestCheckout_InsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	plenty := f.addProduct(f.farmerX, "Potatoes", "20", 50)
	scarce := f.addProduct(f.farmerY, "Saffron", "900", 3)

	_, serr := f.checkout.Checkout(context.Background(), f.command(line(plenty, 10), line(scarce, 5)))
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", serr.Code)

	var insufficient *InsufficientStockError
	require.True(t, errors.As(serr, &insufficient))
	assert.Equal(t, 3, insufficient.Available)
	assert.Equal(t, 5, insufficient.Requested)

	assert.Equal(t, 50, f.product(plenty.ID).Stock)
	assert.Equal(t, 3, f.product(scarce.ID).Stock)
	assert.Equal(t, 0, f.store.OrderCount())
	assert.Equal(t, 0, f.store.CheckoutCount())
	assert.Equal(t, 0, f.events.count(models.EventOrderCreated))
}

func TestCheckout_UnknownProductCreatesNoOrders(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Lemons", "4", 10)

	_, serr := f.checkout.Checkout(context.Background(), f.command(line(p, 1), models.CartLine{ProductID: uuid.New(), Quantity: 1}))
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusUnprocessableEntity, serr.StatusCode)
	assert.Equal(t, "PRODUCT_UNAVAILABLE", serr.Code)
	assert.Equal(t, 10, f.product(p.ID).Stock)
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestCheckout_ConcurrentBuyersOfLastUnit(t *testing.T) {
	base := newFixture(t)
	last := base.addProduct(base.farmerX, "Jackfruit", "150", 1)

	f := newFixtureWithUoW(t, base.store, newBarrierUoW(base.store, 2))

	var wg sync.WaitGroup
	errs := make([]*ServiceError, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := f.command(line(last, 1))
			cmd.BuyerID = uuid.New()
			_, errs[i] = f.checkout.Checkout(context.Background(), cmd)
		}(i)
	}
	wg.Wait()

	var succeeded, raceLost int
	for _, serr := range errs {
		switch {
		case serr == nil:
			succeeded++
		case serr.Code == "STOCK_RACE_LOST":
			raceLost++
		default:
			t.Fatalf("unexpected error: %v", serr)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, raceLost)

	p := f.product(last.ID)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, 1, p.SoldCount)
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestCheckout_NeverOversells(t *testing.T) {
	f := newFixture(t)
	const stock = 7
	p := f.addProduct(f.farmerX, "Honey", "300", stock)
	other := f.addProduct(f.farmerY, "Ghee", "500", 1000)

	const buyers = 40
	var wg sync.WaitGroup
	results := make(chan *ServiceError, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := f.command(line(other, 1), line(p, 1))
			cmd.BuyerID = uuid.New()
			_, serr := f.checkout.Checkout(context.Background(), cmd)
			results <- serr
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for serr := range results {
		if serr == nil {
			succeeded++
			continue
		}
		assert.Contains(t, []string{"STOCK_RACE_LOST", "INSUFFICIENT_STOCK", "PRODUCT_UNAVAILABLE"}, serr.Code)
	}

	assert.Equal(t, stock, succeeded)
	assert.Equal(t, 0, f.product(p.ID).Stock)
	assert.Equal(t, stock, f.product(p.ID).SoldCount)
	assert.Equal(t, 1000-stock, f.product(other.ID).Stock, "failed checkouts give back the other line too")
	assert.Equal(t, stock*2, f.store.OrderCount())
}

func TestCheckout_CancelledContextAbortsBeforeCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var states []CheckoutState
	f := newFixture(t, WithStateObserver(func(_ string, s CheckoutState) {
		states = append(states, s)
		if s == StatePersisting {
			cancel()
		}
	}))
	p := f.addProduct(f.farmerX, "Cabbage", "18", 4)

	_, serr := f.checkout.Checkout(ctx, f.command(line(p, 2)))
	require.NotNil(t, serr)
	assert.Equal(t, "REQUEST_ABORTED", serr.Code)
	assert.True(t, errors.Is(serr, context.Canceled))

	assert.Equal(t, 4, f.product(p.ID).Stock)
	assert.Equal(t, 0, f.product(p.ID).SoldCount)
	assert.Equal(t, 0, f.store.OrderCount())
	assert.Equal(t, 0, f.store.CheckoutCount())
	assert.Equal(t, []CheckoutState{StateValidating, StateReserving, StateSplitting, StatePersisting, StateAborted}, states)
}

func TestCheckout_StateProgression(t *testing.T) {
	var states []CheckoutState
	f := newFixture(t, WithStateObserver(func(_ string, s CheckoutState) {
		states = append(states, s)
	}))
	p := f.addProduct(f.farmerX, "Beetroot", "22", 4)

	_, serr := f.checkout.Checkout(context.Background(), f.command(line(p, 1)))
	require.Nil(t, serr)
	assert.Equal(t, []CheckoutState{StateValidating, StateReserving, StateSplitting, StatePersisting, StateCommitted}, states)
}

func TestCheckout_PopulationFailureIsOnlyAWarning(t *testing.T) {
	populator := &staticPopulator{warnings: []*PopulationWarning{
		{Source: "buyer profile", Err: errors.New("user service returned 503")},
	}}
	f := newFixture(t, WithPopulator(populator))
	p := f.addProduct(f.farmerX, "Ginger", "120", 4)

	result, serr := f.checkout.Checkout(context.Background(), f.command(line(p, 1)))
	require.Nil(t, serr)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "buyer profile")
	assert.Equal(t, 1, f.store.OrderCount())
	assert.Equal(t, 3, f.product(p.ID).Stock)
}

func TestCheckout_IdempotencyKeyReplaysFirstResult(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Apples", "200", 10)

	cmd := f.command(line(p, 2))
	cmd.IdempotencyKey = "cart-42"

	first, serr := f.checkout.Checkout(context.Background(), cmd)
	require.Nil(t, serr)
	assert.False(t, first.Replayed)

	second, serr := f.checkout.Checkout(context.Background(), cmd)
	require.Nil(t, serr)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ParentOrderID, second.ParentOrderID)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, first.Orders[0].ID, second.Orders[0].ID)
	assert.True(t, second.Summary.Total.Equal(first.Summary.Total))

	assert.Equal(t, 8, f.product(p.ID).Stock, "stock is taken once")
	assert.Equal(t, 1, f.store.OrderCount())

	changed := f.command(line(p, 3))
	changed.IdempotencyKey = "cart-42"
	_, serr = f.checkout.Checkout(context.Background(), changed)
	require.NotNil(t, serr)
	assert.Equal(t, http.StatusConflict, serr.StatusCode)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", serr.Code)

	otherBuyer := f.command(line(p, 2))
	otherBuyer.BuyerID = uuid.New()
	otherBuyer.IdempotencyKey = "cart-42"
	result, serr := f.checkout.Checkout(context.Background(), otherBuyer)
	require.Nil(t, serr, "keys are scoped per buyer")
	assert.False(t, result.Replayed)
	assert.Equal(t, 6, f.product(p.ID).Stock)
}

func TestCheckout_ConcurrentRetriesWithSameKeyCreateOneCheckout(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Rice", "60", 100)

	cmd := f.command(line(p, 1))
	cmd.IdempotencyKey = "retry-me"

	const attempts = 8
	var wg sync.WaitGroup
	parents := make(chan string, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, serr := f.checkout.Checkout(context.Background(), cmd)
			if serr == nil {
				parents <- result.ParentOrderID
			}
		}()
	}
	wg.Wait()
	close(parents)

	seen := map[string]bool{}
	for id := range parents {
		seen[id] = true
	}
	assert.Len(t, seen, 1, "every successful attempt reports the same checkout")
	assert.Equal(t, 1, f.store.CheckoutCount())
	assert.Equal(t, 99, f.product(p.ID).Stock)
}

func TestCheckout_MergesRepeatedLines(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(f.farmerX, "Eggs", "7", 30)

	result, serr := f.checkout.Checkout(context.Background(), f.command(line(p, 6), line(p, 6)))
	require.Nil(t, serr)
	require.Len(t, result.Orders, 1)
	require.Len(t, result.Orders[0].Items, 1)
	assert.Equal(t, 12, result.Orders[0].Items[0].Quantity)
	assert.True(t, result.Orders[0].Items[0].LineTotal.Equal(dec("84")))
	assert.Equal(t, 18, f.product(p.ID).Stock)
}

func TestRequestHash_IgnoresLineSplitting(t *testing.T) {
	f := newFixture(t)
	p := models.Product{ID: uuid.New()}

	a := f.command(line(p, 2), line(p, 1))
	b := f.command(line(p, 3))

	assert.Equal(t, requestHash(a, mergeLines(a.Lines)), requestHash(b, mergeLines(b.Lines)))

	c := f.command(line(p, 4))
	assert.NotEqual(t, requestHash(a, mergeLines(a.Lines)), requestHash(c, mergeLines(c.Lines)))
}
