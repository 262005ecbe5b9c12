package models

import "time"

// Message sender roles.
const (
	SenderBroker = "broker"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

// Message is one append-only entry in a negotiation's audit log. Rows are
// never mutated or deleted; they are the record of why a decision was made.
type Message struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	NegotiationID uint      `gorm:"not null;index"`
	Sender        string    `gorm:"size:16;not null;index"`
	Body          string    `gorm:"type:text;not null"`
	OfferCents    *int64    // extracted offer, when one was detected
	DedupeKey     string    `gorm:"size:64;index"`
	Suppressed    bool      `gorm:"default:false"` // duplicate, kept for audit only
	CreatedAt     time.Time `gorm:"index"`
}

// UnroutedMessage holds an inbound email no routing layer could attribute.
// Kept for manual triage; never guessed into a negotiation.
type UnroutedMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	From      string `gorm:"size:255"`
	Subject   string `gorm:"size:512"`
	Body      string `gorm:"type:text"`
	Headers   string `gorm:"type:text"` // redacted header snapshot, JSON
	Resolved  bool   `gorm:"default:false;index"`
	CreatedAt time.Time
}
