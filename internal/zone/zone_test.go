package zone

import (
	"errors"
	"strings"
	"testing"
)

func testPolicy(floorCents int64) Policy {
	return Policy{FloorCents: floorCents}
}

func TestClassify_Boundaries(t *testing.T) {
	// Floor of $10,000.00 makes ratios exact in cents.
	const floor = 1_000_000

	tests := []struct {
		name  string
		offer int64
		want  Zone
	}{
		{"ratio 1.05", 1_050_000, Green},
		{"ratio exactly 0.95", 950_000, Green},
		{"ratio 0.9499", 949_900, Yellow},
		{"ratio exactly 0.80", 800_000, Yellow},
		{"ratio 0.7999", 799_900, Red},
		{"ratio 0.60", 600_000, Red},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Classify(tt.offer, testPolicy(floor))
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if d.Zone != tt.want {
				t.Errorf("Zone = %s, want %s (ratio %.4f)", d.Zone, tt.want, d.Ratio)
			}
		})
	}
}

func TestClassify_ZoneActions(t *testing.T) {
	const floor = 200_000 // $2,000

	green, err := Classify(210_000, testPolicy(floor))
	if err != nil {
		t.Fatalf("green: %v", err)
	}
	if green.Action != ActionClose {
		t.Errorf("green Action = %s, want CLOSE", green.Action)
	}
	if green.PriceCents != 210_000 {
		t.Errorf("green PriceCents = %d, want the offer itself", green.PriceCents)
	}

	yellow, err := Classify(185_000, testPolicy(floor))
	if err != nil {
		t.Fatalf("yellow: %v", err)
	}
	if yellow.Action != ActionCounter {
		t.Errorf("yellow Action = %s, want COUNTER", yellow.Action)
	}
	// floor * 1.08 = $2,160, already a $50 multiple.
	if yellow.PriceCents != 216_000 {
		t.Errorf("yellow PriceCents = %d, want 216000", yellow.PriceCents)
	}

	red, err := Classify(120_000, testPolicy(floor))
	if err != nil {
		t.Fatalf("red: %v", err)
	}
	if red.Action != ActionDecline {
		t.Errorf("red Action = %s, want DECLINE", red.Action)
	}
	if red.PriceCents != 0 {
		t.Errorf("red PriceCents = %d, want 0", red.PriceCents)
	}
	if !strings.Contains(red.Reason, "Walking away") {
		t.Errorf("red Reason = %q, want walk-away audit string", red.Reason)
	}
}

func TestClassify_GreenBelowFloorLiftsToFloor(t *testing.T) {
	// Offer at 0.96 of floor is GREEN but below floor; close price is floor.
	d, err := Classify(192_000, testPolicy(200_000))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if d.Zone != Green {
		t.Fatalf("Zone = %s, want GREEN", d.Zone)
	}
	if d.PriceCents != 200_000 {
		t.Errorf("PriceCents = %d, want floor 200000", d.PriceCents)
	}
}

func TestClassify_CounterRounding(t *testing.T) {
	// Counter must be a multiple of the increment, rounded up, and above
	// any offer that lands in YELLOW.
	floors := []int64{123_456, 187_700, 200_000, 333_333, 987_654}
	for _, floor := range floors {
		policy := testPolicy(floor)
		offer := int64(float64(floor) * 0.85)
		d, err := Classify(offer, policy)
		if err != nil {
			t.Fatalf("floor %d: %v", floor, err)
		}
		if d.Zone != Yellow {
			t.Fatalf("floor %d: Zone = %s, want YELLOW", floor, d.Zone)
		}
		if d.PriceCents%5000 != 0 {
			t.Errorf("floor %d: counter %d is not a $50 multiple", floor, d.PriceCents)
		}
		if d.PriceCents < offer {
			t.Errorf("floor %d: counter %d below offer %d", floor, d.PriceCents, offer)
		}
		if target := int64(float64(floor) * 1.08); d.PriceCents < target {
			t.Errorf("floor %d: counter %d rounded down below target %d", floor, d.PriceCents, target)
		}
	}
}

func TestClassify_PolicyMissing(t *testing.T) {
	for _, floor := range []int64{0, -100} {
		_, err := Classify(185_000, testPolicy(floor))
		if !errors.Is(err, ErrPolicyMissing) {
			t.Errorf("floor %d: err = %v, want ErrPolicyMissing", floor, err)
		}
	}
}

func TestClassify_NegativeOffer(t *testing.T) {
	if _, err := Classify(-1, testPolicy(200_000)); err == nil {
		t.Error("expected error for negative offer")
	}
}

func TestCeilToIncrement(t *testing.T) {
	tests := []struct {
		cents, inc, want int64
	}{
		{215_000, 5000, 215_000},
		{215_001, 5000, 220_000},
		{219_999, 5000, 220_000},
		{1, 5000, 5000},
	}
	for _, tt := range tests {
		if got := CeilToIncrement(tt.cents, tt.inc); got != tt.want {
			t.Errorf("CeilToIncrement(%d, %d) = %d, want %d", tt.cents, tt.inc, got, tt.want)
		}
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{210_000, "$2,100"},
		{185_050, "$1,850.50"},
		{50_00, "$50"},
		{1_234_567_00, "$1,234,567"},
	}
	for _, tt := range tests {
		if got := FormatCents(tt.cents); got != tt.want {
			t.Errorf("FormatCents(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
