package timeframe

import "testing"

func TestFromString(t *testing.T) {
	tf, err := FromString("5m")
	if err != nil {
		t.Fatalf("FromString(5m) failed: %v", err)
	}
	if tf.Minutes != 5 {
		t.Errorf("Minutes = %d, want 5", tf.Minutes)
	}
	if tf.WidthMs != 300_000 {
		t.Errorf("WidthMs = %d, want 300000", tf.WidthMs)
	}

	if _, err := FromString("3m"); err == nil {
		t.Error("FromString(3m) should fail")
	}
	if _, err := FromString(""); err == nil {
		t.Error("FromString(\"\") should fail")
	}
}

func TestFromMinutes(t *testing.T) {
	tf, err := FromMinutes(1440)
	if err != nil {
		t.Fatalf("FromMinutes(1440) failed: %v", err)
	}
	if tf.Str != "1d" {
		t.Errorf("Str = %q, want %q", tf.Str, "1d")
	}

	if _, err := FromMinutes(7); err == nil {
		t.Error("FromMinutes(7) should fail")
	}
}

func TestLabel(t *testing.T) {
	if got := Label(60_000); got != "1m" {
		t.Errorf("Label(60000) = %q, want %q", got, "1m")
	}
	if got := Label(86_400_000); got != "1d" {
		t.Errorf("Label(86400000) = %q, want %q", got, "1d")
	}
	if got := Label(10_000); got != "10000ms" {
		t.Errorf("Label(10000) = %q, want %q", got, "10000ms")
	}
}

func TestFloor(t *testing.T) {
	// 2019-07-01T00:00:03.172Z in a 10s bucket.
	if got := Floor(1561939203172, 10_000); got != 1561939200000 {
		t.Errorf("Floor = %d, want 1561939200000", got)
	}
	// Boundary stays put.
	if got := Floor(1561939200000, 10_000); got != 1561939200000 {
		t.Errorf("Floor(boundary) = %d, want 1561939200000", got)
	}
}

func TestRollups(t *testing.T) {
	got := Rollups(60_000) // 1m rolls into every larger registry timeframe
	if len(got) != 9 {
		t.Fatalf("Rollups(1m) returned %d timeframes, want 9", len(got))
	}
	if got[0].Str != "5m" || got[len(got)-1].Str != "1d" {
		t.Errorf("Rollups(1m) = %s..%s, want 5m..1d", got[0].Str, got[len(got)-1].Str)
	}

	got = Rollups(7_000) // 7s divides nothing in the registry
	if len(got) != 0 {
		t.Errorf("Rollups(7s) returned %d timeframes, want 0", len(got))
	}
}
