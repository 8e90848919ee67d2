package enums

import "fmt"

// GatewayPaymentStatus tracks a single gateway payment attempt.
type GatewayPaymentStatus string

const (
	GatewayPaymentStatusCreated    GatewayPaymentStatus = "created"
	GatewayPaymentStatusAuthorized GatewayPaymentStatus = "authorized"
	GatewayPaymentStatusCaptured   GatewayPaymentStatus = "captured"
	GatewayPaymentStatusPaid       GatewayPaymentStatus = "paid"
	GatewayPaymentStatusFailed     GatewayPaymentStatus = "failed"
)

var validGatewayPaymentStatuses = []GatewayPaymentStatus{
	GatewayPaymentStatusCreated,
	GatewayPaymentStatusAuthorized,
	GatewayPaymentStatusCaptured,
	GatewayPaymentStatusPaid,
	GatewayPaymentStatusFailed,
}

// String implements fmt.Stringer.
func (g GatewayPaymentStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayPaymentStatus.
func (g GatewayPaymentStatus) IsValid() bool {
	for _, candidate := range validGatewayPaymentStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGatewayPaymentStatus converts raw input into a GatewayPaymentStatus.
func ParseGatewayPaymentStatus(value string) (GatewayPaymentStatus, error) {
	for _, candidate := range validGatewayPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway payment status %q", value)
}

// InFlight reports whether the gateway has not resolved the attempt yet.
func (g GatewayPaymentStatus) InFlight() bool {
	return g == GatewayPaymentStatusCreated || g == GatewayPaymentStatusAuthorized
}

// Settled reports whether money was taken for the attempt.
func (g GatewayPaymentStatus) Settled() bool {
	return g == GatewayPaymentStatusCaptured || g == GatewayPaymentStatusPaid
}
