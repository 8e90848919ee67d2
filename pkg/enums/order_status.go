package enums

import (
	"fmt"
	"strings"
)

// OrderStatus tracks the lifecycle of a marketplace order.
type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "placed"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPicked         OrderStatus = "picked"
	OrderStatusPacked         OrderStatus = "packed"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusReturned       OrderStatus = "returned"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusConfirmed,
	OrderStatusPicked,
	OrderStatusPacked,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
}

// legacy names still sent by older clients and stored in exported reports.
var legacyOrderStatuses = map[string]OrderStatus{
	"pending":    OrderStatusPlaced,
	"processing": OrderStatusPicked,
	"shipped":    OrderStatusOutForDelivery,
	"canceled":   OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a canonical OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave this state.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusCancelled || o == OrderStatusReturned
}

// ParseOrderStatus converts raw input into a canonical OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// NormalizeOrderStatus maps canonical and legacy names onto the canonical set.
func NormalizeOrderStatus(value string) (OrderStatus, error) {
	clean := strings.ToLower(strings.TrimSpace(value))
	if status, ok := legacyOrderStatuses[clean]; ok {
		return status, nil
	}
	return ParseOrderStatus(clean)
}
