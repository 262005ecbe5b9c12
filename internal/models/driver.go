package models

import "time"

// Driver billing states.
const (
	BillingActive     = "active"
	BillingDelinquent = "delinquent"
	BillingExempt     = "exempt" // never charged
)

// Driver is an owner-operator whose loads the negotiation engine works.
type Driver struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	Email           string `gorm:"size:255;uniqueIndex;not null"`
	DisplayName     string `gorm:"size:64;not null"`
	Handle          string `gorm:"size:32;index"` // address local-part handle
	ReferredByID    *uint  `gorm:"index"`
	MinFlatCents    int64  `gorm:"default:0"` // flat floor in cents
	MinCPMCents     int64  `gorm:"default:0"` // per-mile floor in cents
	AutoNegotiate   bool   `gorm:"default:true"`
	ReviewMode      bool   `gorm:"default:false"` // drafts require human approval
	NotifyOnDecline bool   `gorm:"default:false"`
	BillingState    string `gorm:"size:20;default:active;index"` // active, delinquent, exempt
	PaymentRef      string `gorm:"size:255"`                     // payment collaborator customer reference
	CreatedAt       time.Time
	UpdatedAt       time.Time

	ReferredBy *Driver `gorm:"foreignKey:ReferredByID"`
}
