// Package scalar implements the engine's 256-bit checked scaled-integer
// arithmetic (SPEC_FULL.md §4.3 / spec.md C3). All monetary amounts in this
// repository are held as *uint256.Int; f64 only appears transiently inside
// ratio computations (DivAsF64) and is never stored or used to hold value,
// per SPEC_FULL.md §9 ("f64 in money paths -> confined to display and ratio
// computations only").
//
// Ported from original_source's calc.rs ScaledMath trait on web3's U256,
// using github.com/holiman/uint256 (already present in the teacher's
// go-ethereum dependency tree) as the 256-bit integer type in place of
// web3::types::U256.
package scalar

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Exp10 computes 10^digits as a uint256.Int. Values above 77 overflow a
// 256-bit integer and are rejected, mirroring calc.rs's digit_diff > 77
// check in div_as_f64.
func Exp10(digits uint64) (*uint256.Int, error) {
	if digits > 77 {
		return nil, fmt.Errorf("scalar: exponent %d would overflow 256 bits", digits)
	}
	base := uint256.NewInt(10)
	exp := uint256.NewInt(digits)
	return new(uint256.Int).Exp(base, exp), nil
}

// CheckedAdd returns self+term, failing rather than wrapping on overflow.
func CheckedAdd(self, term *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(self, term)
	if overflow {
		return nil, fmt.Errorf("scalar: addition would cause overflow")
	}
	return z, nil
}

// CheckedSub returns self-term, failing rather than wrapping on underflow.
func CheckedSub(self, term *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(self, term)
	if underflow {
		return nil, fmt.Errorf("scalar: subtraction would cause underflow")
	}
	return z, nil
}

// CheckedMul returns self*factor, failing rather than wrapping on overflow.
func CheckedMul(self, factor *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(self, factor)
	if overflow {
		return nil, fmt.Errorf("scalar: multiplication would cause overflow")
	}
	return z, nil
}

// CheckedDiv returns self/divisor, failing (rather than returning zero) when
// the divisor is zero.
func CheckedDiv(self, divisor *uint256.Int) (*uint256.Int, error) {
	if divisor.IsZero() {
		return nil, fmt.Errorf("scalar: division by zero")
	}
	return new(uint256.Int).Div(self, divisor), nil
}

// RemoveLeastSignificantDigits divides self by 10^digits.
func RemoveLeastSignificantDigits(self *uint256.Int, digits uint64) (*uint256.Int, error) {
	divisor, err := Exp10(digits)
	if err != nil {
		return nil, err
	}
	return CheckedDiv(self, divisor)
}

// AddLeastSignificantDigits multiplies self by 10^digits.
func AddLeastSignificantDigits(self *uint256.Int, digits uint64) (*uint256.Int, error) {
	multiplier, err := Exp10(digits)
	if err != nil {
		return nil, err
	}
	return CheckedMul(self, multiplier)
}

// MulF64 multiplies self by a float factor without ever holding a
// fractional amount: the factor's decimal places are counted, the factor is
// scaled into an integer by that many places, the integer multiplication is
// performed on self, and the result is divided back down by the same scale.
// This loses at most the precision of the factor's own decimal
// representation and never wraps on overflow.
func MulF64(self *uint256.Int, factor float64) (*uint256.Int, error) {
	decimals := decimalPlaces(factor)
	multiplier, err := Exp10(uint64(decimals))
	if err != nil {
		return nil, err
	}

	scaled := factor
	for i := 0; i < decimals; i++ {
		scaled *= 10
	}
	factorAsInt := new(uint256.Int)
	if err := factorAsInt.SetFromDecimal(fmt.Sprintf("%.0f", scaled)); err != nil {
		return nil, fmt.Errorf("scalar: failed to convert f64 to uint256: %w", err)
	}

	product, err := CheckedMul(self, factorAsInt)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(product, multiplier), nil
}

func decimalPlaces(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0
	}
	return len(parts[1])
}

// DivAsF64 produces an f64 ratio self/divisor, scaling the dividend up so
// that the quotient retains at least 16 significant digits before the
// string is parsed back into a float. This is the only place a monetary
// value is allowed to touch float64, and only for a ratio, never a stored
// amount.
func DivAsF64(self, divisor *uint256.Int) (float64, error) {
	if divisor.IsZero() {
		return 0, fmt.Errorf("scalar: division by zero")
	}

	selfDigits := len(self.String())
	divisorDigits := len(divisor.String())

	digitDiff := divisorDigits - selfDigits
	if digitDiff < 16 {
		digitDiff = 16
	}
	if digitDiff > 77 {
		return 0, fmt.Errorf("scalar: scaling the scale factor would cause overflow")
	}

	scaleFactor, err := Exp10(uint64(digitDiff))
	if err != nil {
		return 0, err
	}

	scaledDividend, err := CheckedMul(self, scaleFactor)
	if err != nil {
		return 0, fmt.Errorf("scalar: overflow when scaling dividend: %w", err)
	}

	quotient := new(uint256.Int).Div(scaledDividend, divisor)
	quotientStr := quotient.String()

	var intStr, fracStr string
	switch {
	case len(quotientStr) > digitDiff:
		splitAt := len(quotientStr) - digitDiff
		intStr = quotientStr[:splitAt]
		fracStr = quotientStr[splitAt:minInt(len(quotientStr), splitAt+16)]
	case len(quotientStr) == digitDiff:
		intStr = "0"
		fracStr = quotientStr[:minInt(len(quotientStr), 16)]
	default:
		intStr = "0"
		leadingZeros := strings.Repeat("0", digitDiff-len(quotientStr))
		combined := leadingZeros + quotientStr
		fracStr = combined[:minInt(len(combined), 16)]
	}

	resultStr := intStr
	if fracStr != "" {
		resultStr = intStr + "." + fracStr
	}

	result, err := strconv.ParseFloat(resultStr, 64)
	if err != nil {
		return 0, fmt.Errorf("scalar: failed to convert string to f64: %w", err)
	}
	return result, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MulDiv computes self*factor/divisor without the intermediate product
// wrapping, even when self*factor alone would exceed 256 bits worth of
// headroom relative to the final result. The product is formed as a
// math/big.Int, which has no fixed width to overflow, and only the final
// quotient is required to fit back into 256 bits — per spec.md's
// "mul_div(a,b,d) never overflows when a·b fits 512 bits".
func MulDiv(self, factor, divisor *uint256.Int) (*uint256.Int, error) {
	if divisor.IsZero() {
		return nil, fmt.Errorf("scalar: division by zero")
	}
	product := new(big.Int).Mul(self.ToBig(), factor.ToBig())
	quotient := product.Div(product, divisor.ToBig())
	z, overflow := uint256.FromBig(quotient)
	if overflow {
		return nil, fmt.Errorf("scalar: mul_div result overflows 256 bits")
	}
	return z, nil
}

// NormalizeTo rescales amount (expressed with amountDecimals fractional
// digits) to targetDecimals fractional digits, per SPEC_FULL.md §3
// invariant 5 and §4.3's normalize_to formula.
func NormalizeTo(targetDecimals, amountDecimals uint64, amount *uint256.Int) (*uint256.Int, error) {
	if targetDecimals > amountDecimals {
		return AddLeastSignificantDigits(amount, targetDecimals-amountDecimals)
	}
	return RemoveLeastSignificantDigits(amount, amountDecimals-targetDecimals)
}

// FromBigInt converts a non-negative math/big.Int (the representation
// internal/db's ledger store uses) into a *uint256.Int for ratio/cap
// arithmetic. Negative values are rejected: every monetary amount on a
// checked-math path is a magnitude, never a signed delta.
func FromBigInt(n *big.Int) (*uint256.Int, error) {
	if n.Sign() < 0 {
		return nil, fmt.Errorf("scalar: cannot convert negative value %s to uint256", n)
	}
	z, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("scalar: value %s overflows 256 bits", n)
	}
	return z, nil
}

// ToBigInt converts back to the math/big.Int representation internal/db
// stores.
func ToBigInt(n *uint256.Int) *big.Int {
	return n.ToBig()
}
