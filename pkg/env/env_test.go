package env

import "testing"

func TestListenAddrPrefersPlatformPort(t *testing.T) {
	t.Setenv("PORT", "")
	if got := ListenAddr("8080"); got != ":8080" {
		t.Fatalf("expected configured port, got %q", got)
	}
	t.Setenv("PORT", " 9000 ")
	if got := ListenAddr("8080"); got != ":9000" {
		t.Fatalf("expected platform port, got %q", got)
	}
	t.Setenv("PORT", ":7000")
	if got := ListenAddr("8080"); got != ":7000" {
		t.Fatalf("expected a single colon, got %q", got)
	}
}

func TestInstanceIDFallsBackInOrder(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("K_REVISION", "")
	t.Setenv("HOSTNAME", "")
	if got := InstanceID(); got != "local" {
		t.Fatalf("expected local, got %q", got)
	}
	t.Setenv("HOSTNAME", "api-7d9f")
	t.Setenv("K_REVISION", "orderflow-api-00042")
	if got := InstanceID(); got != "orderflow-api-00042" {
		t.Fatalf("expected revision to win over hostname, got %q", got)
	}
	t.Setenv("DYNO", "web.1")
	if got := InstanceID(); got != "web.1" {
		t.Fatalf("expected dyno to win, got %q", got)
	}
}
