package enums

import "fmt"

// OrderStatus is the lifecycle state of a table order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPaidCash  OrderStatus = "paid_cash"
	OrderStatusPaidCard  OrderStatus = "paid_card"
	OrderStatusPaidOther OrderStatus = "paid_other"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusOpen,
	OrderStatusPaidCash,
	OrderStatusPaidCard,
	OrderStatusPaidOther,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsSettled reports whether the order has left the open state.
func (s OrderStatus) IsSettled() bool {
	return s.IsValid() && s != OrderStatusOpen
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
