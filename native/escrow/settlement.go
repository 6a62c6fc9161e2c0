package escrow

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	bpsDenominator     uint64 = 10_000
	percentDenominator uint64 = 100
)

// Settlement describes how a held balance is split between the winning party
// and the treasury. Payout + Fee always equals Balance.
type Settlement struct {
	Balance *big.Int
	Payout  *big.Int
	Fee     *big.Int
}

// TaxSplit applies the basis-point tax charged on cooperative settlements.
func TaxSplit(balance *big.Int, taxBps uint16) (Settlement, error) {
	return split(balance, uint64(taxBps), bpsDenominator, ErrTaxTooHigh)
}

// FeeSplit applies the percentage fee charged when the judge rules.
func FeeSplit(balance *big.Int, feePercent uint8) (Settlement, error) {
	return split(balance, uint64(feePercent), percentDenominator, ErrFeeTooHigh)
}

// FullSplit pays the whole balance out with nothing withheld.
func FullSplit(balance *big.Int) (Settlement, error) {
	return split(balance, 0, 1, nil)
}

// split computes balance*rate/denominator with the multiplication performed
// first at 512-bit precision, so small integer rates never truncate to zero.
// A rate above the denominator would withhold more than the balance and is
// reported as rangeErr.
func split(balance *big.Int, rate, denominator uint64, rangeErr error) (Settlement, error) {
	total := cloneBigInt(balance)
	if total.Sign() < 0 {
		return Settlement{}, fmt.Errorf("escrow: negative settlement balance")
	}
	if rate > denominator {
		return Settlement{}, rangeErr
	}
	wide, overflow := uint256.FromBig(total)
	if overflow {
		return Settlement{}, ErrAmountOverflow
	}
	fee, overflow := new(uint256.Int).MulDivOverflow(wide, uint256.NewInt(rate), uint256.NewInt(denominator))
	if overflow {
		return Settlement{}, ErrAmountOverflow
	}
	payout := new(uint256.Int).Sub(wide, fee)
	return Settlement{
		Balance: total,
		Payout:  payout.ToBig(),
		Fee:     fee.ToBig(),
	}, nil
}

// MinimumTaxed reports whether amount is large enough for the tax to round to
// at least one unit.
func MinimumTaxed(amount *big.Int, taxBps uint16) (bool, error) {
	s, err := TaxSplit(amount, taxBps)
	if err != nil {
		return false, err
	}
	return s.Fee.Sign() > 0, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
