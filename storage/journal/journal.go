package journal

import (
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"synapse/core/events"
)

// Journal persists marketplace outcomes as they flow over the event bus:
// settlements, terminal intent states and dispute verdicts. It is the source
// the export writers read from.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	token  uint64
}

// Open connects to the configured backend and migrates the schema. Driver is
// "sqlite" or "postgres".
func Open(driver, dsn string, logger *slog.Logger) (*Journal, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db, logger)
}

// New wraps an already-open database, migrating the schema.
func New(db *gorm.DB, logger *slog.Logger) (*Journal, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger}, nil
}

// Attach subscribes the journal to the bus. Detach cancels it.
func (j *Journal) Attach(bus *events.Bus) {
	if j == nil || bus == nil {
		return
	}
	j.token = bus.SubscribeAll(func(evt events.Event) {
		var err error
		switch e := evt.(type) {
		case events.PaymentSettled:
			err = j.recordSettlement(e)
		case events.IntentCompleted:
			err = j.recordIntentOutcome(IntentOutcome{
				IntentID:        e.IntentID,
				Outcome:         "completed",
				Provider:        e.Provider,
				ExecutionTimeMs: e.ExecutionTimeMs,
			})
		case events.IntentFailed:
			err = j.recordIntentOutcome(IntentOutcome{
				IntentID: e.IntentID,
				Outcome:  "failed",
				Reason:   e.Reason,
			})
		case events.DisputeResolved:
			err = j.recordDisputeOutcome(e)
		default:
			return
		}
		if err != nil {
			j.logger.Error("journal write failed", "eventType", evt.EventType(), "error", err)
		}
	})
}

// Detach cancels the bus subscription.
func (j *Journal) Detach(bus *events.Bus) {
	if j == nil || bus == nil || j.token == 0 {
		return
	}
	bus.Unsubscribe(j.token)
	j.token = 0
}

func (j *Journal) recordSettlement(e events.PaymentSettled) error {
	return j.db.Create(&Settlement{
		ID:          uuid.New(),
		IntentID:    e.IntentID,
		Provider:    e.Provider,
		AmountMicro: e.Amount,
		TxID:        e.TxID,
	}).Error
}

func (j *Journal) recordIntentOutcome(row IntentOutcome) error {
	row.ID = uuid.New()
	return j.db.Create(&row).Error
}

func (j *Journal) recordDisputeOutcome(e events.DisputeResolved) error {
	return j.db.Create(&DisputeOutcome{
		ID:                   uuid.New(),
		DisputeID:            e.DisputeID,
		IntentID:             e.IntentID,
		Verdict:              e.Verdict,
		Deviation:            e.Deviation,
		ClientRefundBps:      e.ClientRefundBps,
		ProviderPaymentBps:   e.ProviderPaymentBps,
		SlashBps:             e.SlashBps,
		ReputationPenaltyBps: e.ReputationPenaltyBps,
		Explanation:          e.Explanation,
	}).Error
}

// Settlements returns every settlement row ordered by insertion time.
func (j *Journal) Settlements() ([]Settlement, error) {
	var rows []Settlement
	err := j.db.Order("created_at asc").Find(&rows).Error
	return rows, err
}

// IntentOutcomes returns every terminal intent row ordered by insertion time.
func (j *Journal) IntentOutcomes() ([]IntentOutcome, error) {
	var rows []IntentOutcome
	err := j.db.Order("created_at asc").Find(&rows).Error
	return rows, err
}

// DisputeOutcomes returns every resolved dispute row ordered by insertion
// time.
func (j *Journal) DisputeOutcomes() ([]DisputeOutcome, error) {
	var rows []DisputeOutcome
	err := j.db.Order("created_at asc").Find(&rows).Error
	return rows, err
}

// Close releases the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
