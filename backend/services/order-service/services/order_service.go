package services

import (
	"context"
	"errors"
	"time"

	aws_pkg "github.com/GHOST-031/agrova-sub001/backend/pkg/aws"
	"github.com/GHOST-031/agrova-sub001/backend/services/common/logger"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderResponse struct {
	Orders []models.Order `json:"orders"`
	Meta   MetaData       `json:"meta"`
}

type MetaData struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalOrders int64 `json:"total_orders"`
	TotalPages  int64 `json:"total_pages"`
	HasMore     bool  `json:"has_more"`
}

const (
	RoleAdmin  = "admin"
	RoleFarmer = "farmer"
)

// Actor is the caller as identified by the gateway.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Access is what an actor wants to do with an order.
type Access int

const (
	AccessView Access = iota
	// AccessFulfil is moving an order along the fulfilment path (farmer or admin).
	AccessFulfil
	// AccessCancel is cancelling an order (buyer or admin).
	AccessCancel
)

type OrderService struct {
	uow     repository.UnitOfWork
	events  EventPublisher
	metrics MetricsRecorder
	logger  *zap.Logger
	now     func() time.Time
}

func NewOrderService(uow repository.UnitOfWork, events EventPublisher, metrics MetricsRecorder, logger *zap.Logger) *OrderService {
	return &OrderService{
		uow:     uow,
		events:  events,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// UpdateStatus moves an order along the lifecycle table. Asking for the
// status the order already has returns it unchanged apart from a new
// tracking number.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus, note string, trackingNumber *string) (*models.Order, *ServiceError) {
	order, _, err := s.transition(ctx, orderID, repository.StatusChange{
		To:             status,
		Note:           note,
		TrackingNumber: trackingNumber,
	})
	if err != nil {
		return nil, toServiceError(err)
	}
	return order, nil
}

// Cancel cancels an order and gives its items back to inventory. Cancelling
// an already cancelled order is a no-op and restocks nothing.
func (s *OrderService) Cancel(ctx context.Context, orderID, note string) (*models.Order, *ServiceError) {
	if note == "" {
		note = "Order cancelled"
	}
	order, _, err := s.transition(ctx, orderID, repository.StatusChange{
		To:   models.StatusCancelled,
		Note: note,
	})
	if err != nil {
		return nil, toServiceError(err)
	}
	return order, nil
}

// tracksNew reports whether tn is a tracking number the order does not carry yet.
func tracksNew(o *models.Order, tn *string) bool {
	if tn == nil || *tn == "" {
		return false
	}
	return o.TrackingNumber == nil || *o.TrackingNumber != *tn
}

// transition applies change in one unit of work together with the restock a
// cancel or refund requires. changed is false when the order already had
// the requested status; a new tracking number is still saved in that case
// unless the order is closed.
func (s *OrderService) transition(ctx context.Context, orderID string, change repository.StatusChange) (*models.Order, bool, error) {
	if !change.To.Valid() {
		return nil, false, ErrInvalidStatus
	}
	change.At = s.now().UTC()

	var updated *models.Order
	var from models.OrderStatus
	changed, retracked := false, false
	err := s.uow.Within(ctx, func(tx repository.Tx) error {
		current, err := tx.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return &PersistenceError{Op: "load order", Err: err}
		}
		from = current.Status
		if current.Status == change.To {
			updated = current
			if !tracksNew(current, change.TrackingNumber) {
				return nil
			}
			if current.Status.Terminal() {
				return &InvalidTransitionError{From: current.Status, To: change.To}
			}
			order, err := tx.Orders().UpdateTracking(ctx, orderID, *change.TrackingNumber, change.At)
			if err != nil {
				return &PersistenceError{Op: "update tracking", Err: err}
			}
			updated = order
			retracked = true
			return nil
		}
		if !models.CanTransition(current.Status, change.To) {
			return &InvalidTransitionError{From: current.Status, To: change.To}
		}

		order, err := tx.Orders().ApplyTransition(ctx, orderID, change)
		if errors.Is(err, repository.ErrTransitionRejected) {
			// Someone else moved the order since it was read.
			if order.Status == change.To {
				updated = order
				return nil
			}
			return &InvalidTransitionError{From: order.Status, To: change.To}
		}
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return &PersistenceError{Op: "apply transition", Err: err}
		}

		if change.To.ReleasesStock() {
			if err := tx.Products().RestoreStock(ctx, restockDeltas(order)); err != nil {
				return &PersistenceError{Op: "restore stock", Err: err}
			}
		}
		updated = order
		changed = true
		return nil
	})
	if err != nil {
		s.logger.Info("Order transition failed",
			logger.RequestIDField(ctx),
			zap.String("order_id", orderID),
			zap.String("to", string(change.To)),
			zap.Error(err))
		return nil, false, err
	}

	if retracked {
		s.logger.Info("Order tracking updated",
			logger.RequestIDField(ctx),
			zap.String("order_id", orderID),
			zap.String("status", string(change.To)),
			zap.String("tracking_number", *change.TrackingNumber))
		return updated, false, nil
	}
	if !changed {
		s.logger.Debug("Order already in requested status",
			logger.RequestIDField(ctx),
			zap.String("order_id", orderID),
			zap.String("status", string(change.To)))
		return updated, false, nil
	}

	s.logger.Info("Order status updated",
		logger.RequestIDField(ctx),
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(change.To)))

	postCtx := context.WithoutCancel(ctx)
	if s.events != nil {
		s.events.StatusChanged(postCtx, *updated, from, change.Note)
	}

	restocked := 0
	if change.To.ReleasesStock() {
		for _, it := range updated.Items {
			restocked += it.Quantity
		}
	}
	emit(s.metrics, func(ctx context.Context, m MetricsRecorder) {
		dims := map[string]string{"Service": "order-service", "From": string(from), "To": string(change.To)}
		_ = m.RecordCount(ctx, aws_pkg.MetricOrderTransitions, dims)
		if change.To == models.StatusCancelled {
			_ = m.RecordCount(ctx, aws_pkg.MetricOrdersCancelled, map[string]string{"Service": "order-service"})
		}
		if restocked > 0 {
			_ = m.RecordCountN(ctx, aws_pkg.MetricInventoryRestocked, restocked, map[string]string{"Service": "order-service"})
		}
	})

	return updated, true, nil
}

// Authorize loads an order and checks that actor may perform access on it.
// Orders the actor may not even see are reported as not found.
func (s *OrderService) Authorize(ctx context.Context, actor Actor, orderID string, access Access) (*models.Order, *ServiceError) {
	order, err := s.uow.Reader().Orders().FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, toServiceError(ErrOrderNotFound)
	}
	if err != nil {
		s.logger.Error("Failed to fetch order", logger.RequestIDField(ctx), zap.String("order_id", orderID), zap.Error(err))
		return nil, toServiceError(&PersistenceError{Op: "load order", Err: err})
	}

	isBuyer := order.BuyerID == actor.UserID
	isFarmer := order.FarmerID == actor.UserID
	if !actor.IsAdmin() && !isBuyer && !isFarmer {
		return nil, toServiceError(ErrOrderNotFound)
	}

	switch access {
	case AccessFulfil:
		if !actor.IsAdmin() && !isFarmer {
			return nil, toServiceError(ErrForbidden)
		}
	case AccessCancel:
		if !actor.IsAdmin() && !isBuyer {
			return nil, toServiceError(ErrForbidden)
		}
	}
	return order, nil
}

// GetOrderByID retrieves an order visible to actor.
func (s *OrderService) GetOrderByID(ctx context.Context, actor Actor, orderID string) (*models.Order, *ServiceError) {
	return s.Authorize(ctx, actor, orderID, AccessView)
}

// GetCheckoutOrders returns every order of one checkout placed by actor.
func (s *OrderService) GetCheckoutOrders(ctx context.Context, actor Actor, parentOrderID string) ([]models.Order, *ServiceError) {
	orders, err := s.uow.Reader().Orders().FindByParentID(ctx, parentOrderID)
	if err != nil {
		s.logger.Error("Failed to fetch checkout orders", logger.RequestIDField(ctx), zap.String("parent_order_id", parentOrderID), zap.Error(err))
		return nil, toServiceError(&PersistenceError{Op: "load checkout orders", Err: err})
	}
	if len(orders) == 0 || (!actor.IsAdmin() && orders[0].BuyerID != actor.UserID) {
		return nil, toServiceError(ErrOrderNotFound)
	}
	return orders, nil
}

// GetUserOrders retrieves paginated orders for a specific buyer
func (s *OrderService) GetUserOrders(ctx context.Context, buyerID uuid.UUID, page, limit int) (*OrderResponse, *ServiceError) {
	orders, total, err := s.uow.Reader().Orders().FindByBuyerID(ctx, buyerID, page, limit)
	if err != nil {
		s.logger.Error("Failed to fetch orders for buyer", logger.RequestIDField(ctx), zap.String("buyer_id", buyerID.String()), zap.Error(err))
		return nil, toServiceError(&PersistenceError{Op: "list buyer orders", Err: err})
	}
	return newOrderResponse(orders, total, page, limit), nil
}

// GetFarmerOrders retrieves paginated orders a farmer has to fulfil
func (s *OrderService) GetFarmerOrders(ctx context.Context, farmerID uuid.UUID, page, limit int) (*OrderResponse, *ServiceError) {
	orders, total, err := s.uow.Reader().Orders().FindByFarmerID(ctx, farmerID, page, limit)
	if err != nil {
		s.logger.Error("Failed to fetch orders for farmer", logger.RequestIDField(ctx), zap.String("farmer_id", farmerID.String()), zap.Error(err))
		return nil, toServiceError(&PersistenceError{Op: "list farmer orders", Err: err})
	}
	return newOrderResponse(orders, total, page, limit), nil
}

// GetAllOrders retrieves paginated orders for all users (admin only)
func (s *OrderService) GetAllOrders(ctx context.Context, adminID uuid.UUID, page, limit int) (*OrderResponse, *ServiceError) {
	s.logger.Info("Admin accessing all orders", logger.RequestIDField(ctx), zap.String("admin_id", adminID.String()))

	orders, total, err := s.uow.Reader().Orders().FindAll(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to fetch all orders", logger.RequestIDField(ctx), zap.Error(err))
		return nil, toServiceError(&PersistenceError{Op: "list orders", Err: err})
	}
	return newOrderResponse(orders, total, page, limit), nil
}

// ApplyPaymentResult settles the pending orders of a checkout once the
// payment layer reports back. Orders that already moved on are left alone.
func (s *OrderService) ApplyPaymentResult(ctx context.Context, evt models.PaymentEvent) error {
	orders, err := s.uow.Reader().Orders().FindByParentID(ctx, evt.ParentOrderID)
	if err != nil {
		return &PersistenceError{Op: "load checkout orders", Err: err}
	}
	if len(orders) == 0 {
		return ErrOrderNotFound
	}
	if evt.BuyerID != "" && orders[0].BuyerID.String() != evt.BuyerID {
		s.logger.Warn("Payment event buyer does not match checkout",
			zap.String("parent_order_id", evt.ParentOrderID),
			zap.String("event_buyer_id", evt.BuyerID))
		return ErrOrderNotFound
	}

	var change repository.StatusChange
	switch evt.Type {
	case models.PaymentEventSucceeded:
		paid := models.PaymentStatusSuccess
		change = repository.StatusChange{To: models.StatusConfirmed, Note: "Payment received", PaymentStatus: &paid}
	case models.PaymentEventFailed:
		failed := models.PaymentStatusFailed
		note := "Payment failed"
		if evt.Reason != "" {
			note += ": " + evt.Reason
		}
		change = repository.StatusChange{To: models.StatusCancelled, Note: note, PaymentStatus: &failed}
	default:
		s.logger.Warn("Ignoring unknown payment event", zap.String("type", evt.Type), zap.String("parent_order_id", evt.ParentOrderID))
		return nil
	}

	for _, o := range orders {
		if o.Status != models.StatusPending {
			continue
		}
		_, _, err := s.transition(ctx, o.ID, change)
		var invalid *InvalidTransitionError
		switch {
		case err == nil:
		case errors.As(err, &invalid):
			s.logger.Info("Order moved on before payment result", zap.String("order_id", o.ID), zap.String("status", string(invalid.From)))
		default:
			return err
		}
	}
	return nil
}

func newOrderResponse(orders []models.Order, total int64, page, limit int) *OrderResponse {
	return &OrderResponse{
		Orders: orders,
		Meta: MetaData{
			Page:        page,
			Limit:       limit,
			TotalOrders: total,
			TotalPages:  calculateTotalPages(total, limit),
			HasMore:     total > int64(page*limit),
		},
	}
}

func calculateTotalPages(total int64, limit int) int64 {
	if limit == 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
