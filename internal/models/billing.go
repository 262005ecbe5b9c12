package models

import "time"

// Invoice statuses.
const (
	InvoicePending = "pending"
	InvoicePaid    = "paid"
	InvoiceFailed  = "failed"
	InvoiceWaived  = "waived"
	InvoiceVoid    = "void"
)

// BillingRun statuses.
const (
	RunPending        = "pending"
	RunSuccess        = "success"
	RunFailed         = "failed"
	RunNeedsReconcile = "needs_reconcile"
)

// Invoice is the weekly dispatch fee owed for one settled negotiation.
// At most one exists per negotiation, and once billed it belongs to exactly
// one BillingRun through BillingRunItem.
type Invoice struct {
	ID            uint       `gorm:"primaryKey;autoIncrement"`
	DriverID      uint       `gorm:"not null;index"`
	NegotiationID uint       `gorm:"not null;uniqueIndex"`
	GrossCents    int64      `gorm:"not null"`
	FeeCents      int64      `gorm:"not null"`
	Status        string     `gorm:"size:16;not null;default:pending;index"`
	BilledWeek    *time.Time // week_ending this invoice was billed under
	ChargeRef     string     `gorm:"size:255"`
	CreatedAt     time.Time
	PaidAt        *time.Time
}

// BillingRun is the idempotency anchor for one driver's weekly charge.
// Unique on (driver_id, week_ending): a retried job finds the existing row
// instead of charging again.
type BillingRun struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	DriverID   uint      `gorm:"not null;index;uniqueIndex:uq_billing_runs_driver_week"`
	WeekEnding time.Time `gorm:"not null;uniqueIndex:uq_billing_runs_driver_week"`
	Status     string    `gorm:"size:16;not null;default:pending;index"`
	TotalCents int64     `gorm:"not null;default:0"`
	ChargeRef  string    `gorm:"size:255"` // payment collaborator's opaque reference
	LastError  string    `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BillingRunItem joins invoices to the run that billed them. The unique
// invoice index enforces that an invoice is billed by at most one run.
type BillingRunItem struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	BillingRunID uint `gorm:"not null;index"`
	InvoiceID    uint `gorm:"not null;uniqueIndex"`
}
