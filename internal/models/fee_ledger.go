package models

import "time"

// FeeLedgerEntry is the immutable fee split for one won negotiation.
// Created at most once per negotiation (the unique index is the idempotency
// anchor). The four slice columns always sum exactly to TotalFeeCents;
// the referral bounty is an internal transfer netted against platform
// profit, never a fifth slice.
type FeeLedgerEntry struct {
	ID                 uint  `gorm:"primaryKey;autoIncrement"`
	NegotiationID      uint  `gorm:"not null;uniqueIndex"`
	DriverID           uint  `gorm:"not null;index"`
	GrossCents         int64 `gorm:"not null"` // gross load value
	TotalFeeCents      int64 `gorm:"not null"`
	DriverCreditsCents int64 `gorm:"not null"`
	InfraReserveCents  int64 `gorm:"not null"`
	TreasuryCents      int64 `gorm:"not null"`
	PlatformCents      int64 `gorm:"not null"` // gross platform profit slice
	ReferralCents      int64 `gorm:"default:0"`
	ReferrerID         *uint `gorm:"index"`
	CreatedAt          time.Time
}

// PlatformNetCents returns platform profit after the referral transfer.
func (e *FeeLedgerEntry) PlatformNetCents() int64 {
	net := e.PlatformCents - e.ReferralCents
	if net < 0 {
		return 0
	}
	return net
}

// Referral earning statuses.
const (
	ReferralPending = "PENDING"
	ReferralPaid    = "PAID"
)

// ReferralEarning records a pending bounty owed to a referrer for one
// settled negotiation.
type ReferralEarning struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	ReferrerID       uint   `gorm:"not null;index"`
	ReferredDriverID uint   `gorm:"not null;index"`
	NegotiationID    uint   `gorm:"not null;uniqueIndex"`
	AmountCents      int64  `gorm:"not null"`
	Status           string `gorm:"size:16;default:PENDING;index"`
	CreatedAt        time.Time
}
