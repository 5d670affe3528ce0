package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Settlement is one payment written back onto a completed intent.
type Settlement struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	IntentID    string    `gorm:"size:64;index"`
	Provider    string    `gorm:"size:64;index"`
	AmountMicro string    `gorm:"size:64"`
	TxID        string    `gorm:"size:128"`
	CreatedAt   time.Time
}

// IntentOutcome records the terminal state of an intent, one row per intent.
type IntentOutcome struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	IntentID        string    `gorm:"size:64;uniqueIndex"`
	Outcome         string    `gorm:"size:16;index"`
	Provider        string    `gorm:"size:64;index"`
	Reason          string    `gorm:"size:128"`
	ExecutionTimeMs int64
	CreatedAt       time.Time
}

// DisputeOutcome records a resolved dispute with its payout fractions.
type DisputeOutcome struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisputeID            string    `gorm:"size:64;uniqueIndex"`
	IntentID             string    `gorm:"size:64;index"`
	Verdict              string    `gorm:"size:32;index"`
	Deviation            float64
	ClientRefundBps      uint32
	ProviderPaymentBps   uint32
	SlashBps             uint32
	ReputationPenaltyBps uint32
	Explanation          string `gorm:"size:512"`
	CreatedAt            time.Time
}

// AutoMigrate performs all schema migrations for the journal.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Settlement{},
		&IntentOutcome{},
		&DisputeOutcome{},
	)
}
