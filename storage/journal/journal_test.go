package journal

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"synapse/core/events"
)

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	j, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalRecordsSettlements(t *testing.T) {
	j := setupTestJournal(t)
	bus := events.NewBus()
	j.Attach(bus)

	bus.Emit(events.PaymentSettled{
		IntentID: "intent_1",
		Provider: "0x2222222222222222222222222222222222222222",
		Amount:   "950000",
		TxID:     "0xabc",
	})

	rows, err := j.Settlements()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "intent_1", rows[0].IntentID)
	require.Equal(t, "950000", rows[0].AmountMicro)
	require.Equal(t, "0xabc", rows[0].TxID)
	require.NotEqual(t, uuid.Nil, rows[0].ID)
}

func TestJournalRecordsIntentOutcomes(t *testing.T) {
	j := setupTestJournal(t)
	bus := events.NewBus()
	j.Attach(bus)

	bus.Emit(events.IntentCompleted{
		IntentID:        "intent_1",
		Provider:        "0x2222222222222222222222222222222222222222",
		ExecutionTimeMs: 1200,
	})
	bus.Emit(events.IntentFailed{IntentID: "intent_2", Reason: "no_bids"})

	rows, err := j.IntentOutcomes()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "completed", rows[0].Outcome)
	require.Equal(t, int64(1200), rows[0].ExecutionTimeMs)
	require.Equal(t, "failed", rows[1].Outcome)
	require.Equal(t, "no_bids", rows[1].Reason)
}

func TestJournalRecordsDisputeOutcomes(t *testing.T) {
	j := setupTestJournal(t)
	bus := events.NewBus()
	j.Attach(bus)

	bus.Emit(events.DisputeResolved{
		DisputeID:          "dispute_1",
		IntentID:           "intent_1",
		Verdict:            "client_wins",
		Deviation:          0.19,
		ClientRefundBps:    10000,
		ProviderPaymentBps: 0,
		SlashBps:           1000,
	})

	rows, err := j.DisputeOutcomes()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "client_wins", rows[0].Verdict)
	require.InDelta(t, 0.19, rows[0].Deviation, 1e-9)
	require.Equal(t, uint32(10000), rows[0].ClientRefundBps)
	require.Equal(t, uint32(1000), rows[0].SlashBps)
}

func TestJournalIgnoresUnrelatedEvents(t *testing.T) {
	j := setupTestJournal(t)
	bus := events.NewBus()
	j.Attach(bus)

	bus.Emit(events.IntentCreated{IntentID: "intent_1"})
	bus.Emit(events.BidReceived{BidID: "bid_1", IntentID: "intent_1"})

	settlements, err := j.Settlements()
	require.NoError(t, err)
	require.Empty(t, settlements)
	outcomes, err := j.IntentOutcomes()
	require.NoError(t, err)
	require.Empty(t, outcomes)
}

func TestJournalDetachStopsRecording(t *testing.T) {
	j := setupTestJournal(t)
	bus := events.NewBus()
	j.Attach(bus)
	j.Detach(bus)

	bus.Emit(events.PaymentSettled{IntentID: "intent_1", Amount: "1"})

	rows, err := j.Settlements()
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", nil)
	require.Error(t, err)
}

func TestOpenSqliteFile(t *testing.T) {
	j, err := Open("sqlite", t.TempDir()+"/journal.db", nil)
	require.NoError(t, err)
	defer j.Close()

	bus := events.NewBus()
	j.Attach(bus)
	bus.Emit(events.PaymentSettled{IntentID: "intent_1", Amount: "42"})

	rows, err := j.Settlements()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
