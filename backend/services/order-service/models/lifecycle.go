package models

// OrderStatus is a position in the order lifecycle.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusProcessing     OrderStatus = "processing"
	StatusShipped        OrderStatus = "shipped"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
	StatusRefunded       OrderStatus = "refunded"
)

// AllowedTransitions lists the legal next states for each state.
var AllowedTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:        {StatusConfirmed, StatusCancelled, StatusRefunded},
	StatusConfirmed:      {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing:     {StatusShipped},
	StatusShipped:        {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered},
	StatusDelivered:      {},
	StatusCancelled:      {},
	StatusRefunded:       {},
}

// lifecycleOrder fixes the iteration order used by PredecessorsOf.
var lifecycleOrder = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
	StatusRefunded,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := AllowedTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	next, ok := AllowedTransitions[s]
	return ok && len(next) == 0
}

// ReleasesStock reports whether entering s gives the order's items back to inventory.
func (s OrderStatus) ReleasesStock() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PredecessorsOf returns every status from which to can be entered, in lifecycle order.
func PredecessorsOf(to OrderStatus) []OrderStatus {
	var from []OrderStatus
	for _, s := range lifecycleOrder {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// InitialStatus is confirmed for cash on delivery or an already captured
// payment, pending otherwise.
func InitialStatus(p Payment) OrderStatus {
	if p.Method == PaymentMethodCOD || p.Status == PaymentStatusSuccess {
		return StatusConfirmed
	}
	return StatusPending
}
