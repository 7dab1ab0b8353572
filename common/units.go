package common

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd"
)

// EtherDecimals is the number of decimals of ether and of most ERC-20 tokens.
const EtherDecimals = 18

// ParseUnits converts a decimal string such as "1.5" into its integer
// representation with the given number of decimals ("1500000000000000000"
// for 18 decimals). Negative values and values with more fractional digits
// than decimals are rejected.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return nil, fmt.Errorf("parse amount %q: not a finite number", s)
	}
	if d.Negative && d.Coeff.Sign() != 0 {
		return nil, fmt.Errorf("parse amount %q: negative", s)
	}

	v := new(big.Int).Set(&d.Coeff)
	exp := int64(d.Exponent) + int64(decimals)
	ten := big.NewInt(10)
	switch {
	case exp > 0:
		v.Mul(v, new(big.Int).Exp(ten, big.NewInt(exp), nil))
	case exp < 0:
		div := new(big.Int).Exp(ten, big.NewInt(-exp), nil)
		rem := new(big.Int)
		v.QuoRem(v, div, rem)
		if rem.Sign() != 0 {
			return nil, fmt.Errorf("parse amount %q: more than %d decimals", s, decimals)
		}
	}
	return v, nil
}

// MustParseUnits is ParseUnits that panics on malformed input. For constants
// and tests only.
func MustParseUnits(s string, decimals uint8) *big.Int {
	v, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseEther is ParseUnits with 18 decimals.
func ParseEther(s string) (*big.Int, error) {
	return ParseUnits(s, EtherDecimals)
}

// Ether returns n whole tokens in 18-decimal base units.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil))
}

// FormatUnits renders an integer amount with the given number of decimals,
// dropping trailing fractional zeros.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	s := apd.NewWithBigInt(new(big.Int).Set(v), -int32(decimals)).Text('f')
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
