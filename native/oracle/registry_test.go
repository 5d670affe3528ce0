package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func TestDemoCryptoPriceSource(t *testing.T) {
	registry := DemoRegistry()

	value, err := registry.Query(context.Background(), TypeCryptoPrice, map[string]any{"symbol": "btc"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	payload, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("value type %T", value)
	}
	if payload["symbol"] != "BTC" || payload["price"] != 98_500.0 {
		t.Fatalf("payload = %v", payload)
	}

	if _, err := registry.Query(context.Background(), TypeCryptoPrice, map[string]any{"symbol": "DOGE"}); err == nil {
		t.Fatalf("unknown symbol should fail")
	}
	if _, err := registry.Query(context.Background(), TypeCryptoPrice, nil); err == nil {
		t.Fatalf("missing symbol should fail")
	}
}

func TestDemoWeatherSourceDeterministic(t *testing.T) {
	registry := DemoRegistry()
	params := map[string]any{"city": "London"}

	first, err := registry.Query(context.Background(), TypeWeatherCurrent, params)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	second, _ := registry.Query(context.Background(), TypeWeatherCurrent, params)
	a, _ := Comparand(first)
	b, _ := Comparand(second)
	if a == nil || b == nil || a.Cmp(b) != 0 {
		t.Fatalf("weather source not deterministic: %v vs %v", first, second)
	}
}

func TestRegistryUnknownType(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Query(context.Background(), "news.headline", nil)
	if !errors.Is(err, ErrNoOracle) {
		t.Fatalf("got %v, want ErrNoOracle", err)
	}
}

func TestRegistryRecoversPanickingCapability(t *testing.T) {
	registry := NewRegistry()
	registry.Register("explosive", Func(func(context.Context, map[string]any) (any, error) {
		panic("boom")
	}))

	value, err := registry.Query(context.Background(), "explosive", nil)
	if err == nil || value != nil {
		t.Fatalf("panicking capability returned value=%v err=%v", value, err)
	}
}

func TestRegistryRuntimeRegistration(t *testing.T) {
	registry := DemoRegistry()
	registry.Register("news.headline", Func(func(context.Context, map[string]any) (any, error) {
		return map[string]any{"value": 1.0}, nil
	}))

	types := registry.Types()
	if len(types) != 3 {
		t.Fatalf("types = %v", types)
	}
	if _, ok := registry.Lookup("news.headline"); !ok {
		t.Fatalf("registered type not found")
	}
}

func TestComparandExtraction(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  string
		ok    bool
	}{
		{"bare float", 42.5, "85/2", true},
		{"bare int", 7, "7/1", true},
		{"price field", map[string]any{"symbol": "BTC", "price": 98_500.0}, "98500/1", true},
		{"temperature field", map[string]any{"city": "london", "temperature": 11.5}, "23/2", true},
		{"value field", map[string]any{"value": int64(3)}, "3/1", true},
		{"no comparand", map[string]any{"headline": "markets rally"}, "", false},
		{"nil", nil, "", false},
		{"string", "98500", "", false},
	}
	for _, tc := range cases {
		got, ok := Comparand(tc.value)
		if ok != tc.ok {
			t.Fatalf("%s: ok = %v, want %v", tc.name, ok, tc.ok)
		}
		if ok && got.String() != tc.want {
			t.Fatalf("%s: comparand = %s, want %s", tc.name, got.String(), tc.want)
		}
	}
}

func TestMedianOddAndEven(t *testing.T) {
	constant := func(v float64) Oracle {
		return Func(func(context.Context, map[string]any) (any, error) { return v, nil })
	}
	failing := Func(func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("offline")
	})

	odd := Median{Sources: []Oracle{constant(10), constant(30), constant(20), failing}}
	value, err := odd.Value(context.Background(), nil)
	if err != nil {
		t.Fatalf("odd median: %v", err)
	}
	if value.(*big.Rat).Cmp(big.NewRat(20, 1)) != 0 {
		t.Fatalf("odd median = %v", value)
	}

	even := Median{Sources: []Oracle{constant(10), constant(30)}}
	value, err = even.Value(context.Background(), nil)
	if err != nil {
		t.Fatalf("even median: %v", err)
	}
	if value.(*big.Rat).Cmp(big.NewRat(20, 1)) != 0 {
		t.Fatalf("even median midpoint = %v", value)
	}

	strict := Median{Sources: []Oracle{failing, constant(10)}, MinSources: 2}
	if _, err := strict.Value(context.Background(), nil); err == nil {
		t.Fatalf("median below quorum should fail")
	}
}
