package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
	AggregateRefund  OutboxAggregateType = "refund"
	AggregateReturn  OutboxAggregateType = "return_request"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateRefund,
	AggregateReturn,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the notification-facing event name.
type OutboxEventType string

const (
	EventOrderPlaced         OutboxEventType = "order_placed"
	EventOrderConfirmed      OutboxEventType = "order_confirmed"
	EventOrderStatusChanged  OutboxEventType = "order_status_changed"
	EventOrderOutForDelivery OutboxEventType = "order_out_for_delivery"
	EventOrderDelivered      OutboxEventType = "order_delivered"
	EventOrderCancelled      OutboxEventType = "order_cancelled"
	EventOrderReturned       OutboxEventType = "order_returned"
	EventDeliveryOTPIssued   OutboxEventType = "delivery_otp_issued"
	EventPaymentCaptured     OutboxEventType = "payment_captured"
	EventPaymentFailed       OutboxEventType = "payment_failed"
	EventCashCollected       OutboxEventType = "cash_collected"
	EventDuplicatePayment    OutboxEventType = "duplicate_payment_detected"
	EventRefundInitiated     OutboxEventType = "refund_initiated"
	EventRefundProcessed     OutboxEventType = "refund_processed"
	EventRefundFailed        OutboxEventType = "refund_failed"
	EventReturnRequested     OutboxEventType = "return_requested"
	EventReturnVendorDecided OutboxEventType = "return_vendor_decided"
	EventReturnCompleted     OutboxEventType = "return_completed"
	EventReturnRejected      OutboxEventType = "return_rejected"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPlaced,
	EventOrderConfirmed,
	EventOrderStatusChanged,
	EventOrderOutForDelivery,
	EventOrderDelivered,
	EventOrderCancelled,
	EventOrderReturned,
	EventDeliveryOTPIssued,
	EventPaymentCaptured,
	EventPaymentFailed,
	EventCashCollected,
	EventDuplicatePayment,
	EventRefundInitiated,
	EventRefundProcessed,
	EventRefundFailed,
	EventReturnRequested,
	EventReturnVendorDecided,
	EventReturnCompleted,
	EventReturnRejected,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason explains why an event stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
