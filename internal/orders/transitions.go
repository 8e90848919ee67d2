package orders

import (
	"fmt"

	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// fulfilment steps a vendor drives; each key advances only to its value.
var successors = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusConfirmed: enums.OrderStatusPicked,
	enums.OrderStatusPicked:    enums.OrderStatusPacked,
	enums.OrderStatusPacked:    enums.OrderStatusOutForDelivery,
}

var timestampColumns = map[enums.OrderStatus]string{
	enums.OrderStatusConfirmed:      "confirmed_at",
	enums.OrderStatusPicked:         "picked_at",
	enums.OrderStatusPacked:         "packed_at",
	enums.OrderStatusOutForDelivery: "out_for_delivery_at",
	enums.OrderStatusDelivered:      "delivered_at",
	enums.OrderStatusCancelled:      "cancelled_at",
	enums.OrderStatusReturned:       "returned_at",
}

// NextStatus returns the only status a vendor may advance to from current.
func NextStatus(current enums.OrderStatus) (enums.OrderStatus, bool) {
	next, ok := successors[current]
	return next, ok
}

// Cancellable reports whether the order has not been delivered yet.
func Cancellable(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPlaced,
		enums.OrderStatusConfirmed,
		enums.OrderStatusPicked,
		enums.OrderStatusPacked,
		enums.OrderStatusOutForDelivery:
		return true
	}
	return false
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
