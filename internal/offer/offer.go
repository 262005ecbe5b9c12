// Package offer extracts broker rate offers from free-form email text.
//
// Extraction is deterministic pattern matching, nothing more: if no pattern
// yields a confident amount the result is simply "no offer detected" and a
// human takes over. The extractor never guesses and never returns zero as a
// stand-in for an unknown rate.
package offer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Confidence ranks how directly the matched text states a dollar amount.
type Confidence int

const (
	ConfidenceLow    Confidence = iota + 1 // bare number near a rate keyword
	ConfidenceMedium                       // spelled hundreds ("21 hundred")
	ConfidenceHigh                         // explicit currency or k-shorthand
)

// String returns the confidence label used in audit messages.
func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	}
	return "none"
}

// Offer is a detected broker rate in minor currency units.
type Offer struct {
	AmountCents int64
	Confidence  Confidence
}

// Opts bounds extraction. Zero values fall back to the package defaults
// ($300 to $20,000); IgnoreCents filters amounts that are known not to be
// offers, such as a numeric load reference quoted back in the body.
type Opts struct {
	MinCents    int64
	MaxCents    int64
	IgnoreCents map[int64]bool
}

const (
	defaultMinCents = 300_00
	defaultMaxCents = 20_000_00
)

var (
	currencyRe = regexp.MustCompile(`\$\s*(\d{1,3}(?:,\d{3})+|\d{3,5})(?:\.\d{1,2})?`)
	kShortRe   = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*k\b`)
	hundredRe  = regexp.MustCompile(`\b(\d{1,3})\s*hundred\b`)
	keywordRe  = regexp.MustCompile(`\b(?:at|for|do|offer|offering|rate)\s*\$?\s*(\d{3,5})\b`)
)

type candidate struct {
	cents      int64
	confidence Confidence
}

// Extract scans text for a broker rate offer. When several amounts appear,
// the highest in-range amount wins (brokers restate their best number last
// and low numbers are usually references or deadheads). Returns false when
// nothing in range was found.
func Extract(text string, opts Opts) (Offer, bool) {
	if strings.TrimSpace(text) == "" {
		return Offer{}, false
	}

	minCents := opts.MinCents
	if minCents <= 0 {
		minCents = defaultMinCents
	}
	maxCents := opts.MaxCents
	if maxCents <= 0 {
		maxCents = defaultMaxCents
	}

	normalized := strings.ToLower(text)
	var candidates []candidate

	add := func(cents int64, conf Confidence) {
		if cents < minCents || cents > maxCents {
			return
		}
		if opts.IgnoreCents[cents] {
			return
		}
		candidates = append(candidates, candidate{cents: cents, confidence: conf})
	}

	for _, m := range currencyRe.FindAllStringSubmatch(normalized, -1) {
		raw := strings.ReplaceAll(m[1], ",", "")
		dollars, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		add(dollars*100, ConfidenceHigh)
	}

	for _, m := range kShortRe.FindAllStringSubmatch(normalized, -1) {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		add(int64(math.Round(f*1000*100)), ConfidenceHigh)
	}

	for _, m := range hundredRe.FindAllStringSubmatch(normalized, -1) {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		add(n*100*100, ConfidenceMedium)
	}

	for _, m := range keywordRe.FindAllStringSubmatch(normalized, -1) {
		dollars, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		add(dollars*100, ConfidenceLow)
	}

	if len(candidates) == 0 {
		return Offer{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.cents > best.cents {
			best = c
		} else if c.cents == best.cents && c.confidence > best.confidence {
			best = c
		}
	}
	return Offer{AmountCents: best.cents, Confidence: best.confidence}, true
}
