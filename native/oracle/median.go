package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
)

// Comparand extracts the numeric value a reference comparison operates on:
// a bare number, else the "price" field, else "temperature", else "value".
// The second return is false when no numeric comparand exists.
func Comparand(value any) (*big.Rat, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case float64:
		return new(big.Rat).SetFloat64(v), true
	case float32:
		return new(big.Rat).SetFloat64(float64(v)), true
	case int:
		return new(big.Rat).SetInt64(int64(v)), true
	case int64:
		return new(big.Rat).SetInt64(v), true
	case uint64:
		return new(big.Rat).SetInt(new(big.Int).SetUint64(v)), true
	case *big.Int:
		if v == nil {
			return nil, false
		}
		return new(big.Rat).SetInt(v), true
	case *big.Rat:
		if v == nil {
			return nil, false
		}
		return new(big.Rat).Set(v), true
	case json.Number:
		rat, ok := new(big.Rat).SetString(v.String())
		return rat, ok
	case map[string]any:
		for _, key := range []string{"price", "temperature", "value"} {
			if nested, ok := v[key]; ok {
				if rat, found := Comparand(nested); found {
					return rat, true
				}
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

// Median combines several capabilities into one: each source is queried, the
// numeric comparands of the successful answers are collected, and the median
// is returned (the big.Rat midpoint of the two central values for even
// counts). Failed sources are skipped; MinSources answers are required
// (default 1).
type Median struct {
	Sources    []Oracle
	MinSources int
}

// Value implements Oracle.
func (m Median) Value(ctx context.Context, params map[string]any) (any, error) {
	minSources := m.MinSources
	if minSources <= 0 {
		minSources = 1
	}
	values := make([]*big.Rat, 0, len(m.Sources))
	for _, source := range m.Sources {
		if source == nil {
			continue
		}
		answer, err := source.Value(ctx, params)
		if err != nil {
			continue
		}
		if rat, ok := Comparand(answer); ok {
			values = append(values, rat)
		}
	}
	if len(values) < minSources {
		return nil, fmt.Errorf("oracle: median needs %d answers, got %d", minSources, len(values))
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Cmp(values[j]) < 0 })
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return new(big.Rat).Set(values[mid]), nil
	}
	sum := new(big.Rat).Add(values[mid-1], values[mid])
	return sum.Quo(sum, big.NewRat(2, 1)), nil
}
