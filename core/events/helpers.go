package events

import (
	"strconv"
	"strings"
)

func putIfSet(attrs map[string]string, key, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		attrs[key] = trimmed
	}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func formatUint(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// JoinPath renders a payment path for wire attributes ("a -> b -> c").
func JoinPath(path []string) string {
	return strings.Join(path, " -> ")
}
