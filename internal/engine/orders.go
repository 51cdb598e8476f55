package engine

import "fmt"

// OrderStatus is the lifecycle state of a manufacturing order.
type OrderStatus uint8

const (
	OrderPending OrderStatus = iota
	OrderAccepted
	OrderRejected
	OrderCompleted
)

var orderStatusNames = [...]string{"pending", "accepted", "rejected", "completed"}

func (s OrderStatus) String() string {
	if int(s) < len(orderStatusNames) {
		return orderStatusNames[s]
	}
	return fmt.Sprintf("order_status(%d)", uint8(s))
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(b []byte) error {
	for i, name := range orderStatusNames {
		if name == string(b) {
			*s = OrderStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown order status %q", b)
}

// Order is a request from a client for a contractor to manufacture from a
// design on their behalf.
type Order struct {
	ID            string      `json:"id"`
	ClientID      string      `json:"client_id"`
	ContractorID  string      `json:"contractor_id"` // player ID or "automata"
	DesignID      string      `json:"design_id"`
	DesignOwnerID string      `json:"design_owner_id"`
	Cost          int         `json:"cost"`
	Quantity      int         `json:"quantity"`
	Round         int         `json:"round"`
	Status        OrderStatus `json:"status"`
}

func (o *Order) transition(from, to OrderStatus) error {
	if o.Status != from {
		return invalid("order %s is %s, cannot become %s", o.ID, o.Status, to)
	}
	o.Status = to
	return nil
}

// Accept moves a pending order to accepted.
func (o *Order) Accept() error { return o.transition(OrderPending, OrderAccepted) }

// Reject moves a pending order to rejected.
func (o *Order) Reject() error { return o.transition(OrderPending, OrderRejected) }

// Complete moves an accepted order to completed.
func (o *Order) Complete() error { return o.transition(OrderAccepted, OrderCompleted) }

// Resolved reports whether the order has reached a terminal state.
func (o *Order) Resolved() bool {
	return o.Status == OrderRejected || o.Status == OrderCompleted
}
