package models

import "time"

// Outbound intent statuses.
const (
	IntentPending = "pending"
	IntentSent    = "sent"
	IntentFailed  = "failed"
)

// OutboundIntent is a persisted outbound email: the exact payload handed to
// the mail collaborator, written before any send attempt. Retries resend
// this row byte-for-byte; the idempotency key keeps a retried dispatch from
// producing a second send once one has been recorded as sent.
type OutboundIntent struct {
	ID             string `gorm:"primaryKey;size:26"` // ULID
	NegotiationID  uint   `gorm:"not null;index"`
	IdempotencyKey string `gorm:"size:64;uniqueIndex;not null"`
	Recipient      string `gorm:"size:255;not null"`
	Subject        string `gorm:"size:512;not null"`
	Body           string `gorm:"type:text;not null"`
	FromAddress    string `gorm:"size:255;not null"` // carries the address-tag layer
	Status         string `gorm:"size:16;default:pending;index"`
	AttemptCount   int    `gorm:"default:0"`
	LastError      string `gorm:"type:text"`
	CreatedAt      time.Time
	SentAt         *time.Time
}
