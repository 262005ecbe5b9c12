package models

import "time"

// Negotiation tracks one driver/load rate conversation. Exactly one exists
// per (driver, load) pair; status moves only along the state machine graph
// and only under the per-negotiation writer lock.
type Negotiation struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	DriverID     uint   `gorm:"not null;index;uniqueIndex:uq_negotiations_driver_load"`
	LoadID       uint   `gorm:"not null;index;uniqueIndex:uq_negotiations_driver_load"`
	BrokerEmail  string `gorm:"size:255"`
	Status       string `gorm:"size:24;not null;default:INITIATING;index"`
	FloorCents   int64  `gorm:"default:0"` // resolved floor rate, cents
	CurrentCents int64  `gorm:"default:0"` // broker's latest offer, cents
	CounterCents int64  `gorm:"default:0"` // our latest counter, cents
	ReviewMode   bool   `gorm:"default:false"`

	// Pending-review draft, persisted so the review gate survives restarts.
	PendingSubject string `gorm:"size:255"`
	PendingBody    string `gorm:"type:text"`
	PendingAction  string `gorm:"size:24"`
	PendingCents   int64  `gorm:"default:0"`

	RateConPath      string `gorm:"size:1024"`
	CreatedAt        time.Time
	LastTransitionAt time.Time `gorm:"index"`

	Driver   Driver    `gorm:"foreignKey:DriverID"`
	Load     Load      `gorm:"foreignKey:LoadID"`
	Messages []Message `gorm:"foreignKey:NegotiationID;constraint:OnDelete:CASCADE"`
}
