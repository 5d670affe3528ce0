package oracle

import (
	"context"
	"fmt"
	"strings"
)

// Intent types with preloaded demo capabilities.
const (
	TypeCryptoPrice    = "crypto.price"
	TypeWeatherCurrent = "weather.current"
)

// demoPrices is the static reference table for the crypto.price demo source,
// in USD.
var demoPrices = map[string]float64{
	"BTC": 98_500,
	"ETH": 3_850,
	"SOL": 232.5,
	"NHB": 1.0,
}

// demoWeather is the deterministic per-city table for the weather.current
// demo source, in degrees Celsius.
var demoWeather = map[string]float64{
	"london":        11.5,
	"new york":      18,
	"tokyo":         16.5,
	"san francisco": 14,
	"singapore":     29.5,
}

// CryptoPriceSource answers crypto.price queries from the static demo table.
// Production deployments replace it via Registry.Register with a capability
// backed by a real market-data client.
type CryptoPriceSource struct{}

// Value implements Oracle. Params must carry a "symbol" string.
func (CryptoPriceSource) Value(_ context.Context, params map[string]any) (any, error) {
	symbol, ok := stringParam(params, "symbol")
	if !ok {
		return nil, fmt.Errorf("oracle: crypto.price requires a symbol parameter")
	}
	price, ok := demoPrices[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("oracle: no reference price for %s", symbol)
	}
	return map[string]any{
		"symbol":   strings.ToUpper(symbol),
		"price":    price,
		"currency": "USD",
	}, nil
}

// WeatherSource answers weather.current queries from the deterministic city
// table.
type WeatherSource struct{}

// Value implements Oracle. Params must carry a "city" string.
func (WeatherSource) Value(_ context.Context, params map[string]any) (any, error) {
	city, ok := stringParam(params, "city")
	if !ok {
		return nil, fmt.Errorf("oracle: weather.current requires a city parameter")
	}
	temperature, ok := demoWeather[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		return nil, fmt.Errorf("oracle: no reference weather for %s", city)
	}
	return map[string]any{
		"city":        city,
		"temperature": temperature,
		"unit":        "celsius",
	}, nil
}

func stringParam(params map[string]any, key string) (string, bool) {
	raw, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// DemoRegistry returns a registry preloaded with the demo capabilities.
func DemoRegistry(opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	r.Register(TypeCryptoPrice, CryptoPriceSource{})
	r.Register(TypeWeatherCurrent, WeatherSource{})
	return r
}
