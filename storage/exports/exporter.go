package exports

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"synapse/storage/journal"
)

// Source is the slice of the journal the exporter reads.
type Source interface {
	Settlements() ([]journal.Settlement, error)
	IntentOutcomes() ([]journal.IntentOutcome, error)
	DisputeOutcomes() ([]journal.DisputeOutcome, error)
}

// Config captures the dependencies required to construct an Exporter.
type Config struct {
	Source    Source
	OutputDir string
	Now       func() time.Time
	Logger    *slog.Logger
}

// Exporter materialises marketplace reports as CSV and Parquet artefacts, one
// directory per run.
type Exporter struct {
	source    Source
	outputDir string
	now       func() time.Time
	logger    *slog.Logger
}

// ReportFile references the CSV and Parquet artefacts generated for one
// dataset.
type ReportFile struct {
	Name        string
	CSVPath     string
	ParquetPath string
	Count       int
}

// Result summarises an export run.
type Result struct {
	Dir   string
	Files []ReportFile
}

// NewExporter builds a configured exporter.
func NewExporter(cfg Config) (*Exporter, error) {
	if cfg.Source == nil {
		return nil, errors.New("exports: source is required")
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join("synapse-data", "exports")
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{source: cfg.Source, outputDir: outputDir, now: nowFn, logger: logger}, nil
}

// Run writes every dataset with at least one row into a fresh run directory.
func (e *Exporter) Run() (*Result, error) {
	runDir := filepath.Join(e.outputDir, e.now().UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("exports: ensure output dir: %w", err)
	}
	result := &Result{Dir: runDir}

	settlements, err := e.source.Settlements()
	if err != nil {
		return nil, fmt.Errorf("exports: load settlements: %w", err)
	}
	if file, err := e.writeSettlements(runDir, settlements); err != nil {
		return nil, err
	} else if file != nil {
		result.Files = append(result.Files, *file)
	}

	intents, err := e.source.IntentOutcomes()
	if err != nil {
		return nil, fmt.Errorf("exports: load intent outcomes: %w", err)
	}
	if file, err := e.writeIntentOutcomes(runDir, intents); err != nil {
		return nil, err
	} else if file != nil {
		result.Files = append(result.Files, *file)
	}

	disputes, err := e.source.DisputeOutcomes()
	if err != nil {
		return nil, fmt.Errorf("exports: load dispute outcomes: %w", err)
	}
	if file, err := e.writeDisputeOutcomes(runDir, disputes); err != nil {
		return nil, err
	} else if file != nil {
		result.Files = append(result.Files, *file)
	}

	for _, file := range result.Files {
		e.logger.Info("export written", "dataset", file.Name, "rows", file.Count, "csv", file.CSVPath, "parquet", file.ParquetPath)
	}
	return result, nil
}

type settlementRow struct {
	IntentID    string `parquet:"name=intent_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Provider    string `parquet:"name=provider, type=BYTE_ARRAY, convertedtype=UTF8"`
	AmountMicro string `parquet:"name=amount_micro, type=BYTE_ARRAY, convertedtype=UTF8"`
	TxID        string `parquet:"name=tx_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SettledAt   string `parquet:"name=settled_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func (e *Exporter) writeSettlements(runDir string, rows []journal.Settlement) (*ReportFile, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := []string{"intent_id", "provider", "amount_micro", "tx_id", "settled_at"}
	records := make([][]string, 0, len(rows))
	parquetRows := make([]any, 0, len(rows))
	for _, row := range rows {
		settledAt := row.CreatedAt.UTC().Format(time.RFC3339)
		records = append(records, []string{row.IntentID, row.Provider, row.AmountMicro, row.TxID, settledAt})
		parquetRows = append(parquetRows, &settlementRow{
			IntentID:    row.IntentID,
			Provider:    row.Provider,
			AmountMicro: row.AmountMicro,
			TxID:        row.TxID,
			SettledAt:   settledAt,
		})
	}
	return e.writeDataset(runDir, "settlements", header, records, new(settlementRow), parquetRows)
}

type intentOutcomeRow struct {
	IntentID        string `parquet:"name=intent_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Outcome         string `parquet:"name=outcome, type=BYTE_ARRAY, convertedtype=UTF8"`
	Provider        string `parquet:"name=provider, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reason          string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExecutionTimeMs int64  `parquet:"name=execution_time_ms, type=INT64"`
	RecordedAt      string `parquet:"name=recorded_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func (e *Exporter) writeIntentOutcomes(runDir string, rows []journal.IntentOutcome) (*ReportFile, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := []string{"intent_id", "outcome", "provider", "reason", "execution_time_ms", "recorded_at"}
	records := make([][]string, 0, len(rows))
	parquetRows := make([]any, 0, len(rows))
	for _, row := range rows {
		recordedAt := row.CreatedAt.UTC().Format(time.RFC3339)
		records = append(records, []string{
			row.IntentID, row.Outcome, row.Provider, row.Reason,
			strconv.FormatInt(row.ExecutionTimeMs, 10), recordedAt,
		})
		parquetRows = append(parquetRows, &intentOutcomeRow{
			IntentID:        row.IntentID,
			Outcome:         row.Outcome,
			Provider:        row.Provider,
			Reason:          row.Reason,
			ExecutionTimeMs: row.ExecutionTimeMs,
			RecordedAt:      recordedAt,
		})
	}
	return e.writeDataset(runDir, "intent_outcomes", header, records, new(intentOutcomeRow), parquetRows)
}

type disputeOutcomeRow struct {
	DisputeID            string  `parquet:"name=dispute_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	IntentID             string  `parquet:"name=intent_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Verdict              string  `parquet:"name=verdict, type=BYTE_ARRAY, convertedtype=UTF8"`
	Deviation            float64 `parquet:"name=deviation, type=DOUBLE"`
	ClientRefundBps      int32   `parquet:"name=client_refund_bps, type=INT32"`
	ProviderPaymentBps   int32   `parquet:"name=provider_payment_bps, type=INT32"`
	SlashBps             int32   `parquet:"name=slash_bps, type=INT32"`
	ReputationPenaltyBps int32   `parquet:"name=reputation_penalty_bps, type=INT32"`
	RecordedAt           string  `parquet:"name=recorded_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func (e *Exporter) writeDisputeOutcomes(runDir string, rows []journal.DisputeOutcome) (*ReportFile, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := []string{
		"dispute_id", "intent_id", "verdict", "deviation", "client_refund_bps",
		"provider_payment_bps", "slash_bps", "reputation_penalty_bps", "recorded_at",
	}
	records := make([][]string, 0, len(rows))
	parquetRows := make([]any, 0, len(rows))
	for _, row := range rows {
		recordedAt := row.CreatedAt.UTC().Format(time.RFC3339)
		records = append(records, []string{
			row.DisputeID, row.IntentID, row.Verdict,
			strconv.FormatFloat(row.Deviation, 'f', -1, 64),
			strconv.FormatUint(uint64(row.ClientRefundBps), 10),
			strconv.FormatUint(uint64(row.ProviderPaymentBps), 10),
			strconv.FormatUint(uint64(row.SlashBps), 10),
			strconv.FormatUint(uint64(row.ReputationPenaltyBps), 10),
			recordedAt,
		})
		parquetRows = append(parquetRows, &disputeOutcomeRow{
			DisputeID:            row.DisputeID,
			IntentID:             row.IntentID,
			Verdict:              row.Verdict,
			Deviation:            row.Deviation,
			ClientRefundBps:      int32(row.ClientRefundBps),
			ProviderPaymentBps:   int32(row.ProviderPaymentBps),
			SlashBps:             int32(row.SlashBps),
			ReputationPenaltyBps: int32(row.ReputationPenaltyBps),
			RecordedAt:           recordedAt,
		})
	}
	return e.writeDataset(runDir, "dispute_outcomes", header, records, new(disputeOutcomeRow), parquetRows)
}

func (e *Exporter) writeDataset(runDir, name string, header []string, records [][]string, schema any, parquetRows []any) (*ReportFile, error) {
	csvPath := filepath.Join(runDir, name+".csv")
	if err := writeCSV(csvPath, header, records); err != nil {
		return nil, err
	}
	parquetPath := filepath.Join(runDir, name+".parquet")
	if err := writeParquet(parquetPath, schema, parquetRows); err != nil {
		return nil, err
	}
	return &ReportFile{Name: name, CSVPath: csvPath, ParquetPath: parquetPath, Count: len(records)}, nil
}

func writeCSV(path string, header []string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("exports: write csv header: %w", err)
	}
	for _, record := range records {
		if err := w.Write(record); err != nil {
			return fmt.Errorf("exports: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("exports: flush csv: %w", err)
	}
	return nil
}

func writeParquet(path string, schema any, rows []any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("exports: close parquet file: %w", err)
	}
	return nil
}
