package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Monetary quantities are fixed-point integers denominated in millionths of a
// currency unit (the USDC convention). They are never represented as floating
// point anywhere money is accumulated or compared.

// AmountDecimals is the number of fractional digits carried by an amount.
const AmountDecimals = 6

var amountScale = big.NewInt(1_000_000)

// ParseAmount converts a decimal string such as "1.25" into micro-units.
// At most six fractional digits are accepted and negative values are rejected.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("types: empty amount")
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("types: negative amount %q", value)
	}
	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > AmountDecimals {
		return nil, fmt.Errorf("types: amount %q exceeds %d decimals", value, AmountDecimals)
	}
	intPart, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("types: invalid amount %q", value)
	}
	result := new(big.Int).Mul(intPart, amountScale)
	if frac != "" {
		padded := frac + strings.Repeat("0", AmountDecimals-len(frac))
		fracPart, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, fmt.Errorf("types: invalid amount %q", value)
		}
		result.Add(result, fracPart)
	}
	return result, nil
}

// MustParseAmount is ParseAmount for constants in wiring code and tests.
func MustParseAmount(value string) *big.Int {
	amt, err := ParseAmount(value)
	if err != nil {
		panic(err)
	}
	return amt
}

// FormatAmount renders micro-units as a decimal string with trailing zeros
// trimmed ("1250000" micro -> "1.25").
func FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Abs(amount)
	if amount.Sign() < 0 {
		sign = "-"
	}
	quo, rem := new(big.Int).QuoRem(abs, amountScale, new(big.Int))
	if rem.Sign() == 0 {
		return sign + quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%06d", rem), "0")
	return sign + quo.String() + "." + frac
}
