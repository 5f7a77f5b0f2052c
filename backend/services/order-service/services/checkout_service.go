package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	aws_pkg "github.com/GHOST-031/agrova-sub001/backend/pkg/aws"
	"github.com/GHOST-031/agrova-sub001/backend/services/common/logger"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutState is the step a checkout attempt has reached.
type CheckoutState string

const (
	StateValidating CheckoutState = "validating"
	StateReserving  CheckoutState = "reserving"
	StateSplitting  CheckoutState = "splitting"
	StatePersisting CheckoutState = "persisting"
	StateCommitted  CheckoutState = "committed"
	StateAborted    CheckoutState = "aborted"
)

// CheckoutCommand is one buyer's request to turn a cart into orders. The
// buyer id comes from the gateway and is trusted as is.
type CheckoutCommand struct {
	BuyerID         uuid.UUID
	Lines           []models.CartLine
	DeliveryAddress *models.Address
	Payment         models.Payment
	Charges         models.SharedCharges
	IdempotencyKey  string
}

// CheckoutService turns carts into committed orders.
type CheckoutService struct {
	uow         repository.UnitOfWork
	reservation *ReservationEngine
	writer      *OrderWriter
	populator   Populator
	events      EventPublisher
	metrics     MetricsRecorder
	logger      *zap.Logger
	now         func() time.Time
	newParentID func() string
	observe     func(parentOrderID string, state CheckoutState)
}

type CheckoutOption func(*CheckoutService)

func WithPopulator(p Populator) CheckoutOption {
	return func(s *CheckoutService) { s.populator = p }
}

func WithEvents(p EventPublisher) CheckoutOption {
	return func(s *CheckoutService) { s.events = p }
}

func WithMetrics(m MetricsRecorder) CheckoutOption {
	return func(s *CheckoutService) { s.metrics = m }
}

func WithClock(now func() time.Time) CheckoutOption {
	return func(s *CheckoutService) { s.now = now }
}

func WithParentIDGenerator(gen func() string) CheckoutOption {
	return func(s *CheckoutService) { s.newParentID = gen }
}

// WithStateObserver is called on every state change of every attempt.
func WithStateObserver(fn func(parentOrderID string, state CheckoutState)) CheckoutOption {
	return func(s *CheckoutService) { s.observe = fn }
}

func NewCheckoutService(uow repository.UnitOfWork, logger *zap.Logger, opts ...CheckoutOption) *CheckoutService {
	s := &CheckoutService{
		uow:         uow,
		reservation: NewReservationEngine(logger),
		writer:      NewOrderWriter(),
		logger:      logger,
		now:         time.Now,
		newParentID: NewParentOrderID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewParentOrderID returns a fresh id shared by the orders of one checkout.
func NewParentOrderID() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

type checkoutAttempt struct {
	svc      *CheckoutService
	parentID string
	state    CheckoutState
}

func (a *checkoutAttempt) enter(state CheckoutState) {
	a.state = state
	if a.svc.observe != nil {
		a.svc.observe(a.parentID, state)
	}
}

// Checkout validates the cart, then reserves stock, splits the cart per
// farmer and writes the orders in one transaction. Post-commit population
// problems are returned as warnings on a successful result.
func (s *CheckoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (*models.CheckoutResult, *ServiceError) {
	start := s.now()
	attempt := &checkoutAttempt{svc: s, parentID: s.newParentID()}
	attempt.enter(StateValidating)

	lines, err := validateCheckout(cmd)
	if err != nil {
		return nil, s.abort(ctx, attempt, err)
	}
	hash := requestHash(cmd, lines)

	if cmd.IdempotencyKey != "" {
		result, err := s.replay(ctx, cmd.BuyerID, cmd.IdempotencyKey, hash)
		if err != nil {
			return nil, s.abort(ctx, attempt, err)
		}
		if result != nil {
			return result, nil
		}
	}

	meta := CheckoutMeta{
		ParentOrderID:   attempt.parentID,
		BuyerID:         cmd.BuyerID,
		DeliveryAddress: *cmd.DeliveryAddress,
		Payment:         cmd.Payment,
		Charges:         cmd.Charges,
		IdempotencyKey:  cmd.IdempotencyKey,
		RequestHash:     hash,
		CreatedAt:       start.UTC(),
	}

	var created []*models.Order
	var groups []OrderGroup
	var reservedUnits, soldOutProducts int
	err = s.uow.Within(ctx, func(tx repository.Tx) error {
		attempt.enter(StateReserving)
		priced, err := s.reservation.Reserve(ctx, tx, lines)
		if err != nil {
			return err
		}
		for _, l := range priced {
			reservedUnits += l.Quantity
		}
		soldOutProducts = soldOut(priced)

		attempt.enter(StateSplitting)
		groups = SplitOrder(priced, cmd.Charges)
		summary := summarize(groups)
		if cmd.Charges.Discount.GreaterThan(sumDecimals(summary.Subtotal, summary.Delivery, summary.Tax)) {
			return fmt.Errorf("%w: discount exceeds order value", ErrInvalidCharges)
		}

		attempt.enter(StatePersisting)
		created, err = s.writer.Create(ctx, tx, meta, groups)
		if err != nil {
			return err
		}
		return ctx.Err()
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			result, replayErr := s.replay(ctx, cmd.BuyerID, cmd.IdempotencyKey, hash)
			if replayErr == nil && result == nil {
				replayErr = ErrIdempotencyConflict
			}
			if replayErr != nil {
				return nil, s.abort(ctx, attempt, replayErr)
			}
			return result, nil
		}
		return nil, s.abort(ctx, attempt, err)
	}
	attempt.enter(StateCommitted)

	// The orders are durable from here on; nothing below may fail the checkout.
	postCtx := context.WithoutCancel(ctx)

	orders := make([]models.Order, len(created))
	for i, o := range created {
		orders[i] = *o
	}
	result := &models.CheckoutResult{
		ParentOrderID: attempt.parentID,
		Orders:        orders,
		Summary:       summarize(groups),
	}
	result.Warnings = s.populate(postCtx, orders)

	if s.events != nil {
		for _, o := range orders {
			s.events.OrderCreated(postCtx, o)
		}
	}

	duration := s.now().Sub(start)
	emit(s.metrics, func(ctx context.Context, m MetricsRecorder) {
		dims := map[string]string{"Service": "order-service", "PaymentMethod": string(cmd.Payment.Method)}
		_ = m.RecordCount(ctx, aws_pkg.MetricCheckouts, dims)
		_ = m.RecordCountN(ctx, aws_pkg.MetricOrdersCreated, len(orders), dims)
		_ = m.RecordCountN(ctx, aws_pkg.MetricInventoryReserved, reservedUnits, dims)
		_ = m.RecordLatency(ctx, aws_pkg.MetricCheckoutLatency, duration, dims)
		if soldOutProducts > 0 {
			_ = m.RecordCountN(ctx, aws_pkg.MetricSoldOut, soldOutProducts, map[string]string{"Service": "order-service"})
		}
	})

	s.logger.Info("Checkout committed",
		logger.RequestIDField(ctx),
		zap.String("parent_order_id", attempt.parentID),
		zap.String("buyer_id", cmd.BuyerID.String()),
		zap.Int("orders", len(orders)),
		zap.String("total", result.Summary.Total.String()),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("duration", duration))

	return result, nil
}

func (s *CheckoutService) abort(ctx context.Context, attempt *checkoutAttempt, err error) *ServiceError {
	failedIn := attempt.state
	attempt.enter(StateAborted)
	se := toServiceError(err)

	logFields := []zap.Field{
		logger.RequestIDField(ctx),
		zap.String("parent_order_id", attempt.parentID),
		zap.String("state", string(failedIn)),
		zap.String("code", se.Code),
		zap.Error(err),
	}
	if se.StatusCode >= 500 {
		s.logger.Error("Checkout aborted", logFields...)
	} else {
		s.logger.Info("Checkout rejected", logFields...)
	}

	var raceLost *StockRaceLostError
	isRace := errors.As(err, &raceLost)
	emit(s.metrics, func(ctx context.Context, m MetricsRecorder) {
		dims := map[string]string{"Service": "order-service", "Reason": failureKind(err), "State": string(failedIn)}
		_ = m.RecordCount(ctx, aws_pkg.MetricCheckoutFailures, dims)
		if isRace {
			_ = m.RecordCount(ctx, aws_pkg.MetricStockRaceLost, map[string]string{"Service": "order-service"})
		}
	})
	return se
}

// replay returns the stored result for a buyer's idempotency key, nil when
// the key is unused, or ErrIdempotencyConflict when it was used for another cart.
func (s *CheckoutService) replay(ctx context.Context, buyerID uuid.UUID, key, hash string) (*models.CheckoutResult, error) {
	reader := s.uow.Reader()
	group, err := reader.Checkouts().FindByIdempotencyKey(ctx, buyerID, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find checkout by idempotency key", Err: err}
	}
	if group.RequestHash != hash {
		return nil, ErrIdempotencyConflict
	}

	orders, err := reader.Orders().FindByParentID(ctx, group.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "load checkout orders", Err: err}
	}

	result := &models.CheckoutResult{
		ParentOrderID: group.ID,
		Orders:        orders,
		Summary: models.CheckoutSummary{
			OrderCount: group.OrderCount,
			Subtotal:   group.Subtotal,
			Delivery:   group.Delivery,
			Discount:   group.Discount,
			Tax:        group.Tax,
			Total:      group.Total,
		},
		Replayed: true,
	}
	result.Warnings = s.populate(ctx, result.Orders)

	emit(s.metrics, func(ctx context.Context, m MetricsRecorder) {
		_ = m.RecordCount(ctx, aws_pkg.MetricCheckoutReplays, map[string]string{"Service": "order-service"})
	})
	s.logger.Info("Checkout replayed",
		logger.RequestIDField(ctx),
		zap.String("parent_order_id", group.ID),
		zap.String("buyer_id", buyerID.String()))
	return result, nil
}

func (s *CheckoutService) populate(ctx context.Context, orders []models.Order) []string {
	if s.populator == nil {
		return nil
	}
	var warnings []string
	for _, w := range s.populator.Populate(ctx, orders) {
		warnings = append(warnings, w.Error())
	}
	return warnings
}

// validateCheckout checks the request shape and returns the merged lines.
func validateCheckout(cmd CheckoutCommand) ([]models.CartLine, error) {
	if len(cmd.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if cmd.DeliveryAddress == nil || cmd.DeliveryAddress.IsZero() {
		return nil, ErrMissingAddress
	}
	for _, l := range cmd.Lines {
		if l.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
	}
	c := cmd.Charges
	for _, amount := range []decimal.Decimal{c.Delivery, c.Discount, c.Tax} {
		if amount.IsNegative() {
			return nil, fmt.Errorf("%w: charges must not be negative", ErrInvalidCharges)
		}
		if !amount.Equal(amount.Round(2)) {
			return nil, fmt.Errorf("%w: charges must have at most two decimals", ErrInvalidCharges)
		}
	}
	return mergeLines(cmd.Lines), nil
}

// requestHash fingerprints what a checkout would buy, so a reused
// idempotency key can be told apart from a retry.
func requestHash(cmd CheckoutCommand, lines []models.CartLine) string {
	type line struct {
		ProductID string `json:"p"`
		Quantity  int    `json:"q"`
	}
	canonical := struct {
		Lines    []line         `json:"lines"`
		Address  models.Address `json:"address"`
		Payment  models.Payment `json:"payment"`
		Delivery string         `json:"delivery"`
		Discount string         `json:"discount"`
		Tax      string         `json:"tax"`
	}{
		Address:  *cmd.DeliveryAddress,
		Payment:  cmd.Payment,
		Delivery: cmd.Charges.Delivery.StringFixed(2),
		Discount: cmd.Charges.Discount.StringFixed(2),
		Tax:      cmd.Charges.Tax.StringFixed(2),
	}
	for _, l := range lines {
		canonical.Lines = append(canonical.Lines, line{ProductID: l.ProductID.String(), Quantity: l.Quantity})
	}

	b, _ := json.Marshal(canonical)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
