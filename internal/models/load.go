package models

import "time"

// Load is a posted freight load a negotiation runs against.
type Load struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RefID         string `gorm:"size:64;uniqueIndex"` // board reference, e.g. TS-123
	Origin        string `gorm:"size:128;index"`
	Destination   string `gorm:"size:128;index"`
	BrokerEmail   string `gorm:"size:255"`
	DistanceMiles int64  `gorm:"default:0"`
	PostedCents   int64  `gorm:"default:0"` // broker's posted rate, if known
	CreatedAt     time.Time
}
