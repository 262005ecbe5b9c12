// Package ledger computes and records the immutable fee split for won
// negotiations. All money math runs on decimals; floats never touch a
// ledger amount.
package ledger

import (
	"errors"
	"fmt"

	"github.com/loadline/closer/internal/config"
	"github.com/loadline/closer/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Allocator splits dispatch fees into ledger slices. Rates are parsed once
// at construction; Allocate is safe for concurrent use.
type Allocator struct {
	feeRate       decimal.Decimal
	driverCredits decimal.Decimal
	infraReserve  decimal.Decimal
	treasury      decimal.Decimal
	referralRate  decimal.Decimal
	referralCap   int64 // cents
}

// NewAllocator parses the configured rates.
func NewAllocator(cfg config.FeesConfig) (*Allocator, error) {
	a := &Allocator{}
	var err error
	if a.feeRate, err = parseRate("dispatch_fee_rate", cfg.DispatchFeeRate); err != nil {
		return nil, err
	}
	if a.driverCredits, err = parseRate("slice_driver_credits", cfg.SliceDriverCredits); err != nil {
		return nil, err
	}
	if a.infraReserve, err = parseRate("slice_infra_reserve", cfg.SliceInfraReserve); err != nil {
		return nil, err
	}
	if a.treasury, err = parseRate("slice_treasury", cfg.SliceTreasury); err != nil {
		return nil, err
	}
	if a.referralRate, err = parseRate("referral_bounty_rate", cfg.ReferralBountyRate); err != nil {
		return nil, err
	}
	cap, err := decimal.NewFromString(cfg.ReferralBountyCap)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse referral_bounty_cap %q: %w", cfg.ReferralBountyCap, err)
	}
	a.referralCap = cap.Shift(2).IntPart()

	// The named slices must leave room for a platform remainder.
	named := a.driverCredits.Add(a.infraReserve).Add(a.treasury)
	if named.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("ledger: named slices sum to %s, must be below 1", named)
	}
	return a, nil
}

func parseRate(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("ledger: parse %s %q: %w", name, raw, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("ledger: %s is negative", name)
	}
	return d, nil
}

// FeeCents returns the dispatch fee for a gross load value, rounded half
// up to whole cents.
func (a *Allocator) FeeCents(grossCents int64) int64 {
	return roundCents(decimal.NewFromInt(grossCents).Mul(a.feeRate))
}

// Allocate writes the fee ledger entry, referral earning, and pending
// invoice for one won negotiation. Idempotent on negotiation id: a second
// call returns the existing entry untouched.
func (a *Allocator) Allocate(db *gorm.DB, negotiationID, driverID uint, grossCents int64) (*models.FeeLedgerEntry, error) {
	if grossCents <= 0 {
		return nil, fmt.Errorf("ledger: non-positive gross %d for negotiation %d", grossCents, negotiationID)
	}

	var existing models.FeeLedgerEntry
	err := db.Where("negotiation_id = ?", negotiationID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ledger: lookup entry: %w", err)
	}

	var driver models.Driver
	if err := db.First(&driver, driverID).Error; err != nil {
		return nil, fmt.Errorf("ledger: load driver %d: %w", driverID, err)
	}

	totalFee := a.FeeCents(grossCents)
	fee := decimal.NewFromInt(totalFee)

	driverCredits := roundCents(fee.Mul(a.driverCredits))
	infraReserve := roundCents(fee.Mul(a.infraReserve))
	treasury := roundCents(fee.Mul(a.treasury))
	// Platform takes the remainder so the slices sum to the fee exactly.
	platform := totalFee - driverCredits - infraReserve - treasury
	if platform < 0 {
		return nil, fmt.Errorf("ledger: negative platform slice %d for fee %d", platform, totalFee)
	}

	entry := models.FeeLedgerEntry{
		NegotiationID:      negotiationID,
		DriverID:           driverID,
		GrossCents:         grossCents,
		TotalFeeCents:      totalFee,
		DriverCreditsCents: driverCredits,
		InfraReserveCents:  infraReserve,
		TreasuryCents:      treasury,
		PlatformCents:      platform,
	}

	var earning *models.ReferralEarning
	if driver.ReferredByID != nil {
		bounty := roundCents(fee.Mul(a.referralRate))
		if bounty > a.referralCap {
			bounty = a.referralCap
		}
		if bounty > 0 {
			entry.ReferralCents = bounty
			entry.ReferrerID = driver.ReferredByID
			earning = &models.ReferralEarning{
				ReferrerID:       *driver.ReferredByID,
				ReferredDriverID: driverID,
				NegotiationID:    negotiationID,
				AmountCents:      bounty,
				Status:           models.ReferralPending,
			}
		}
	}

	txErr := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create ledger entry: %w", err)
		}
		if earning != nil {
			if err := tx.Create(earning).Error; err != nil {
				return fmt.Errorf("create referral earning: %w", err)
			}
		}
		invoice := models.Invoice{
			DriverID:      driverID,
			NegotiationID: negotiationID,
			GrossCents:    grossCents,
			FeeCents:      totalFee,
			Status:        models.InvoicePending,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, fmt.Errorf("ledger: allocate negotiation %d: %w", negotiationID, txErr)
	}
	return &entry, nil
}

// roundCents rounds a decimal cent amount half up to a whole number of
// cents.
func roundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
