package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies a marketplace participant (client or provider). Addresses
// travel as 0x-prefixed hex strings at the boundary and as fixed-width bytes
// inside the engines so map keys and comparisons stay allocation-free.
type Address [20]byte

// ParseAddress decodes a 0x-prefixed hex string into an Address.
func ParseAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return Address{}, fmt.Errorf("types: invalid address %q", s)
	}
	return Address(common.HexToAddress(s)), nil
}

// MustParseAddress is ParseAddress for wiring code and tests; it panics on
// malformed input.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String renders the EIP-55 checksummed hex form.
func (a Address) String() string { return common.Address(a).Hex() }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	buf := make([]byte, len(a))
	copy(buf, a[:])
	return buf
}

// IsZero reports whether the address is the all-zero value, the convention for
// "not set".
func (a Address) IsZero() bool { return a == Address{} }
