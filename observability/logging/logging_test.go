package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func logLine(t *testing.T, fn func(logger *slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	fn(slog.New(newHandler(&buf, slog.LevelInfo)))
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	return record
}

func TestHandlerRemapsCoreKeys(t *testing.T) {
	record := logLine(t, func(logger *slog.Logger) {
		logger.Info("intent accepted", "intent_id", "intent-1")
	})

	if _, ok := record["timestamp"]; !ok {
		t.Fatal("expected timestamp key")
	}
	if record["severity"] != "INFO" {
		t.Fatalf("unexpected severity: %v", record["severity"])
	}
	if record["message"] != "intent accepted" {
		t.Fatalf("unexpected message: %v", record["message"])
	}
	if record["intent_id"] != "intent-1" {
		t.Fatalf("intent_id should pass through unmasked, got %v", record["intent_id"])
	}
}

func TestHandlerMasksSensitiveKeys(t *testing.T) {
	record := logLine(t, func(logger *slog.Logger) {
		logger.Info("payment gated",
			"sender", "0x1111111111111111111111111111111111111111",
			"payload", "raw task parameters",
			"tx_id", "tx-9",
		)
	})

	sender, _ := record["sender"].(string)
	if !strings.HasPrefix(sender, "0x1111") || !strings.HasSuffix(sender, "1111") || len(sender) >= 42 {
		t.Fatalf("sender should be shortened, got %q", sender)
	}
	if record["payload"] != RedactedValue {
		t.Fatalf("payload should be redacted, got %v", record["payload"])
	}
	if record["tx_id"] != "tx-9" {
		t.Fatalf("tx_id should pass through, got %v", record["tx_id"])
	}
}

func TestHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelWarn))
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record should be dropped at warn level: %s", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn record should be emitted at warn level")
	}
}

func TestShortenAddress(t *testing.T) {
	got := ShortenAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	if got != "0x5290..9EE7" {
		t.Fatalf("unexpected shortened address: %q", got)
	}
	if got := ShortenAddress("not an address"); got != RedactedValue {
		t.Fatalf("non-address should collapse to placeholder, got %q", got)
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("recipient", "0x52908400098527886E0F7030069857D2E4169EE7"); attr.Value.String() != "0x5290..9EE7" {
		t.Fatalf("recipient should be shortened, got %q", attr.Value.String())
	}
	if attr := MaskField("authorization", "Bearer abc"); attr.Value.String() != RedactedValue {
		t.Fatalf("authorization should be redacted, got %q", attr.Value.String())
	}
	if attr := MaskField("verdict", "refund_client"); attr.Value.String() != "refund_client" {
		t.Fatalf("verdict should pass through, got %q", attr.Value.String())
	}
	if attr := MaskField("sender", ""); attr.Value.String() != "" {
		t.Fatalf("empty values should pass through, got %q", attr.Value.String())
	}
}
