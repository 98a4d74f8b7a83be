package dao

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// transitions is the whole order lifecycle. Delivered and Cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Active reports whether the order is still moving through the kitchen.
func (s Status) Active() bool {
	return s.Valid() && !s.Terminal()
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the states reachable from `from`.
func AllowedTransitions(from Status) []Status {
	allowed := transitions[from]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// CancellableStatuses lists the states an order can be cancelled from.
func CancellableStatuses() []Status {
	return []Status{StatusPending, StatusConfirmed}
}

// Transition validates the edge from -> to. Cancellation errors name the
// cancellable set, every other failure names the states reachable from `from`.
func Transition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	allowed := AllowedTransitions(from)
	if to == StatusCancelled {
		allowed = CancellableStatuses()
	}
	return &InvalidTransitionError{From: from, To: to, Allowed: allowed}
}
