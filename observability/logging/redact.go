package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Counterparty addresses, wallets and free-form payloads identify marketplace
// participants; values logged under these keys never appear verbatim.
var sensitiveKeys = map[string]struct{}{
	"sender":        {},
	"recipient":     {},
	"client":        {},
	"provider":      {},
	"wallet":        {},
	"payload":       {},
	"params":        {},
	"description":   {},
	"dsn":           {},
	"authorization": {},
}

// IsSensitive reports whether values logged under the key must be masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// ShortenAddress keeps enough of a hex account address to correlate log lines
// without exposing the full identifier. Values that do not look like an
// address collapse to the redaction placeholder.
func ShortenAddress(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if !strings.HasPrefix(trimmed, "0x") || len(trimmed) < 12 {
		return RedactedValue
	}
	return trimmed[:6] + ".." + trimmed[len(trimmed)-4:]
}

// MaskValue returns the redaction placeholder for non-empty values. Empty
// values pass through unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a slog.Attr that masks the value when the key is
// sensitive. Addresses are shortened rather than blanked so throttle and
// safety lines stay attributable.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	if strings.HasPrefix(strings.TrimSpace(value), "0x") {
		return slog.String(key, ShortenAddress(value))
	}
	return slog.String(key, MaskValue(value))
}

// maskAttr applies MaskField to string attributes inside the JSON handler so
// masking holds even when a call site forgets to use MaskField directly.
func maskAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || !IsSensitive(attr.Key) {
		return attr
	}
	return MaskField(attr.Key, attr.Value.String())
}
