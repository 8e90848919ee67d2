package enums

import "testing"

func TestNormalizeOrderStatusMapsLegacyNames(t *testing.T) {
	cases := map[string]OrderStatus{
		"pending":    OrderStatusPlaced,
		"processing": OrderStatusPicked,
		"shipped":    OrderStatusOutForDelivery,
		"Canceled":   OrderStatusCancelled,
		"Shipped ":   OrderStatusOutForDelivery,
		"placed":     OrderStatusPlaced,
		"returned":   OrderStatusReturned,
	}
	for raw, want := range cases {
		got, err := NormalizeOrderStatus(raw)
		if err != nil {
			t.Fatalf("NormalizeOrderStatus(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("NormalizeOrderStatus(%q) = %q want %q", raw, got, want)
		}
	}

	if _, err := NormalizeOrderStatus("teleported"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}

func TestParseOrderStatusRejectsLegacyNames(t *testing.T) {
	if _, err := ParseOrderStatus("pending"); err == nil {
		t.Fatalf("legacy names must not be accepted as stored values")
	}
}

func TestGatewayPaymentStatusPredicates(t *testing.T) {
	if !GatewayPaymentStatusCreated.InFlight() || !GatewayPaymentStatusAuthorized.InFlight() {
		t.Fatalf("created and authorized payments are in flight")
	}
	if GatewayPaymentStatusCaptured.InFlight() {
		t.Fatalf("captured payment is not in flight")
	}
	if !GatewayPaymentStatusPaid.Settled() || GatewayPaymentStatusFailed.Settled() {
		t.Fatalf("unexpected settled result")
	}
}
