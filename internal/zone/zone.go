// Package zone classifies a broker offer against a driver's floor rate.
//
// Classification is a pure function of (offer, policy). The policy is an
// immutable value built from configuration and passed per call; there is no
// process-wide threshold state.
package zone

import (
	"errors"
	"fmt"
)

// ErrPolicyMissing is returned when no usable floor rate exists. Automation
// must stop and hand the negotiation to a human; no default zone applies.
var ErrPolicyMissing = errors.New("zone: floor rate missing or non-positive")

// Zone is the pricing band an offer falls into.
type Zone string

const (
	Green  Zone = "GREEN"  // at or near floor: close
	Yellow Zone = "YELLOW" // workable gap: counter
	Red    Zone = "RED"    // too far below floor: walk away
)

// Action is the recommended next move. The set is closed; every consumer
// switches exhaustively over it.
type Action string

const (
	ActionClose   Action = "CLOSE"
	ActionCounter Action = "COUNTER"
	ActionDecline Action = "DECLINE"
)

// Policy is the driver's immutable pricing policy for one classification.
type Policy struct {
	FloorCents     int64   // minimum acceptable rate; never auto-lowered
	GreenThreshold float64 // ratio at or above which we close (default 0.95)
	RedThreshold   float64 // ratio below which we walk away (default 0.80)
	CounterMarkup  float64 // counter target as multiple of floor (default 1.08)
	IncrementCents int64   // counter rounding increment (default $50)
}

func (p Policy) withDefaults() Policy {
	if p.GreenThreshold == 0 {
		p.GreenThreshold = 0.95
	}
	if p.RedThreshold == 0 {
		p.RedThreshold = 0.80
	}
	if p.CounterMarkup == 0 {
		p.CounterMarkup = 1.08
	}
	if p.IncrementCents == 0 {
		p.IncrementCents = 5000
	}
	return p
}

// Decision is the classification result, including the audit string that is
// appended to the negotiation's message log.
type Decision struct {
	Zone       Zone
	Action     Action
	Ratio      float64
	PriceCents int64  // close or counter price; zero for declines
	Reason     string // audit string, e.g. "YELLOW ZONE (ratio 0.93): Countering at $2,200."
}

// Classify buckets an offer into a zone and picks the action.
//
// Boundaries are exact: ratio >= GreenThreshold is GREEN, ratio >=
// RedThreshold is YELLOW, anything below is RED. Counters always round up
// to the increment, in the dispatcher's favor, never to odd cents.
func Classify(offerCents int64, policy Policy) (Decision, error) {
	policy = policy.withDefaults()
	if policy.FloorCents <= 0 {
		return Decision{}, ErrPolicyMissing
	}
	if offerCents < 0 {
		return Decision{}, fmt.Errorf("zone: negative offer %d", offerCents)
	}

	ratio := float64(offerCents) / float64(policy.FloorCents)

	switch {
	case ratio >= policy.GreenThreshold:
		price := offerCents
		if price < policy.FloorCents {
			price = policy.FloorCents
		}
		return Decision{
			Zone:       Green,
			Action:     ActionClose,
			Ratio:      ratio,
			PriceCents: price,
			Reason: fmt.Sprintf("GREEN ZONE (ratio %.2f): Closing at %s.",
				ratio, FormatCents(price)),
		}, nil

	case ratio >= policy.RedThreshold:
		price := counterPrice(policy)
		return Decision{
			Zone:       Yellow,
			Action:     ActionCounter,
			Ratio:      ratio,
			PriceCents: price,
			Reason: fmt.Sprintf("YELLOW ZONE (ratio %.2f): Countering at %s.",
				ratio, FormatCents(price)),
		}, nil

	default:
		return Decision{
			Zone:   Red,
			Action: ActionDecline,
			Ratio:  ratio,
			Reason: fmt.Sprintf("RED ZONE (ratio %.2f): Offer %s too far below floor %s. Walking away.",
				ratio, FormatCents(offerCents), FormatCents(policy.FloorCents)),
		}, nil
	}
}

// counterPrice computes the counter target: floor scaled by the markup,
// then rounded up to the increment. Ceiling keeps the counter in the
// dispatcher's favor and, since the markup exceeds the green threshold,
// above any YELLOW-zone offer.
func counterPrice(policy Policy) int64 {
	target := int64(float64(policy.FloorCents) * policy.CounterMarkup)
	return CeilToIncrement(target, policy.IncrementCents)
}

// CeilToIncrement rounds cents up to the next multiple of increment.
func CeilToIncrement(cents, increment int64) int64 {
	if increment <= 0 {
		return cents
	}
	rem := cents % increment
	if rem == 0 {
		return cents
	}
	return cents + increment - rem
}

// FormatCents renders minor units as "$X,XXX" for audit strings.
func FormatCents(cents int64) string {
	dollars := cents / 100
	rem := cents % 100

	sign := ""
	if dollars < 0 {
		sign = "-"
		dollars = -dollars
	}

	grouped := groupThousands(dollars)
	if rem == 0 {
		return fmt.Sprintf("%s$%s", sign, grouped)
	}
	if rem < 0 {
		rem = -rem
	}
	return fmt.Sprintf("%s$%s.%02d", sign, grouped, rem)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
