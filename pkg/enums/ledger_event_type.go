package enums

import "fmt"

// LedgerEventType enumerates money movements recorded for payout.
type LedgerEventType string

const (
	LedgerEventTypePaymentCaptured LedgerEventType = "payment_captured"
	LedgerEventTypeCashCollected   LedgerEventType = "cash_collected"
	LedgerEventTypeRefund          LedgerEventType = "refund"
	LedgerEventTypeAdjustment      LedgerEventType = "adjustment"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventTypePaymentCaptured,
	LedgerEventTypeCashCollected,
	LedgerEventTypeRefund,
	LedgerEventTypeAdjustment,
}

// String implements fmt.Stringer.
func (l LedgerEventType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LedgerEventType.
func (l LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into a LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
