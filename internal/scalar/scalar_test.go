package scalar

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulF64DoesNotChangeNumberOfDigitsFromDecimals(t *testing.T) {
	ten := uint256.NewInt(10)

	got, err := MulF64(ten, 1.0)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(10), got)

	got, err = MulF64(ten, 1.5)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(15), got)

	got, err = MulF64(ten, 1.05)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(10), got)

	got, err = MulF64(ten, 1.15)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(11), got)
}

func TestMulF64WithOverflow(t *testing.T) {
	largeValue := new(uint256.Int).SetAllOne()
	_, err := MulF64(largeValue, 2.0)
	assert.Error(t, err)
}

func TestMulDivWithOverflow(t *testing.T) {
	largeValue := new(uint256.Int).SetAllOne()
	_, err := MulDiv(largeValue, largeValue, uint256.NewInt(1))
	assert.Error(t, err)
}

func TestMulDivWithDivisionByZero(t *testing.T) {
	one := uint256.NewInt(1)
	_, err := MulDiv(one, one, uint256.NewInt(0))
	assert.Error(t, err)
}

func TestMulDivNoIntermediateOverflow(t *testing.T) {
	a := uint256.NewInt(1_000_000)
	b := uint256.NewInt(3)
	d := uint256.NewInt(7)
	got, err := MulDiv(a, b, d)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(3_000_000/7), got)
}

func TestMulDivSucceedsWhenProductOverflows256BitsButQuotientFits(t *testing.T) {
	// a*b = 2^255*4 = 2^257, which overflows a 256-bit checked multiply
	// outright, but a*b/d = 2^257/8 = 2^254 fits comfortably.
	a := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	b := uint256.NewInt(4)
	d := uint256.NewInt(8)

	_, err := CheckedMul(a, b)
	require.Error(t, err, "sanity check: the naive intermediate product must itself overflow")

	got, err := MulDiv(a, b, d)
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Lsh(uint256.NewInt(1), 254), got)
}

func TestCheckedAddSubMulDiv(t *testing.T) {
	five := uint256.NewInt(5)
	three := uint256.NewInt(3)

	sum, err := CheckedAdd(five, three)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(8), sum)

	diff, err := CheckedSub(five, three)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(2), diff)

	_, err = CheckedSub(three, five)
	assert.Error(t, err, "underflow must fail, never wrap")

	prod, err := CheckedMul(five, three)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(15), prod)

	quot, err := CheckedDiv(prod, three)
	require.NoError(t, err)
	assert.Equal(t, five, quot)

	_, err = CheckedDiv(five, uint256.NewInt(0))
	assert.Error(t, err)
}

func TestRemoveAndAddLeastSignificantDigits(t *testing.T) {
	amount := uint256.NewInt(123456)

	reduced, err := RemoveLeastSignificantDigits(amount, 3)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(123), reduced)

	restored, err := AddLeastSignificantDigits(reduced, 3)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(123000), restored)
}

func TestNormalizeToRoundTrip(t *testing.T) {
	// normalize_to(18, x, d) * 10^(d-18) == x for d <= 18, per spec §8 property 3.
	for d := uint64(0); d <= 18; d++ {
		x := uint256.NewInt(7)
		scale, err := Exp10(d)
		require.NoError(t, err)
		x, err = CheckedMul(x, scale) // make x have d decimals worth of headroom
		require.NoError(t, err)

		normalized, err := NormalizeTo(18, d, x)
		require.NoError(t, err)

		back, err := RemoveLeastSignificantDigits(normalized, 18-d)
		require.NoError(t, err)
		assert.Equal(t, x, back)
	}
}

func TestNormalizeToUpscalesWhenTargetExceedsSource(t *testing.T) {
	amount := uint256.NewInt(5)
	got, err := NormalizeTo(18, 6, amount)
	require.NoError(t, err)

	expectedScale, err := Exp10(12)
	require.NoError(t, err)
	expected, err := CheckedMul(amount, expectedScale)
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func TestDivAsF64ApproximatesRatio(t *testing.T) {
	half, err := DivAsF64(uint256.NewInt(1), uint256.NewInt(2))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, half, 1e-12)

	third, err := DivAsF64(uint256.NewInt(1), uint256.NewInt(3))
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, third, 1e-12)

	_, err = DivAsF64(uint256.NewInt(1), uint256.NewInt(0))
	assert.Error(t, err)
}
