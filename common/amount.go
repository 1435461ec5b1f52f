package common

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MicroRateScale is the fixed denominator of a MicroRate.
const MicroRateScale = 1_000_000

// Decimals used when rendering native amounts for humans.
const EtherDecimals = 18

var (
	ErrAmountNegative = errors.New("amount is negative")
	ErrAmountOverflow = errors.New("amount does not fit in 256 bits")
)

func ErrInvalidRate(rate string, reason error) error {
	return fmt.Errorf("invalid conversion rate %q: %w", rate, reason)
}

// MicroRate is a conversion rate multiplied by 10^6 and truncated. It is
// fixed at configuration time so that every conversion is reproducible.
type MicroRate uint64

// ParseMicroRate turns a decimal rate such as "0.001" into floor(rate * 10^6)
// without going through floating point.
func ParseMicroRate(rate string) (MicroRate, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(rate))
	if err != nil {
		return 0, ErrInvalidRate(rate, err)
	}
	if d.IsNegative() {
		return 0, ErrInvalidRate(rate, errors.New("negative"))
	}

	scaled := d.Shift(6).Truncate(0).BigInt()
	if !scaled.IsUint64() {
		return 0, ErrInvalidRate(rate, errors.New("too large"))
	}
	return MicroRate(scaled.Uint64()), nil
}

func (r MicroRate) String() string {
	return decimal.New(int64(r), -6).String()
}

// ConvertAmount returns floor(amount * rate / 10^6) computed in 256-bit
// integer arithmetic.
func ConvertAmount(amount *big.Int, rate MicroRate) (*big.Int, error) {
	if amount.Sign() < 0 {
		return nil, ErrAmountNegative
	}
	x, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}

	z, overflow := new(uint256.Int).MulDivOverflow(
		x,
		uint256.NewInt(uint64(rate)),
		uint256.NewInt(MicroRateScale),
	)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return z.ToBig(), nil
}

// FormatUnits renders amount / 10^decimals as a plain decimal string.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ScaleBigInt returns floor(v * factor^exp) for a decimal factor such as
// "1.125". It is used to escalate gas prices on retries.
func ScaleBigInt(v *big.Int, factor decimal.Decimal, exp int) *big.Int {
	if exp <= 0 || factor.Equal(decimal.NewFromInt(1)) {
		return BigIntClone(v)
	}
	scaled := decimal.NewFromBigInt(v, 0).Mul(factor.Pow(decimal.NewFromInt(int64(exp))))
	return scaled.Truncate(0).BigInt()
}
