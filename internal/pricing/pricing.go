// Package pricing implements constant-product quotes with a fee expressed in thousandths.
package pricing

import (
	"errors"
	"math/big"
)

// FeeDenominator is the scale of fee rates: a rate of 5 means 5/1000.
const FeeDenominator = 1000

var (
	ErrInvalidFeeRate = errors.New("fee rate must be below 1000")
	ErrEmptyReserves  = errors.New("empty reserves")
	ErrNegativeAmount = errors.New("negative amount")
)

var (
	feeDen = big.NewInt(FeeDenominator)
	one    = big.NewInt(1)
)

// ValidateFeeRate checks that feeRate is in [0, 1000).
func ValidateFeeRate(feeRate uint32) error {
	if feeRate >= FeeDenominator {
		return ErrInvalidFeeRate
	}
	return nil
}

// Numerator returns reserveOut * amountIn * (1000 - feeRate).
func Numerator(reserveOut, amountIn *big.Int, feeRate uint32) (*big.Int, error) {
	if err := check(reserveOut, amountIn, feeRate); err != nil {
		return nil, err
	}
	n := new(big.Int).Mul(reserveOut, amountIn)
	return n.Mul(n, feeMultiplier(feeRate)), nil
}

// Denominator returns reserveIn * 1000 + amountIn * (1000 - feeRate).
func Denominator(reserveIn, amountIn *big.Int, feeRate uint32) (*big.Int, error) {
	if err := check(reserveIn, amountIn, feeRate); err != nil {
		return nil, err
	}
	d := new(big.Int).Mul(reserveIn, feeDen)
	t := new(big.Int).Mul(amountIn, feeMultiplier(feeRate))
	return d.Add(d, t), nil
}

// AmountOut quotes the output for amountIn with the fee applied:
//
//	floor(reserveOut * amountIn * (1000 - fee) / (reserveIn * 1000 + amountIn * (1000 - fee)))
func AmountOut(reserveIn, reserveOut, amountIn *big.Int, feeRate uint32) (*big.Int, error) {
	num, err := Numerator(reserveOut, amountIn, feeRate)
	if err != nil {
		return nil, err
	}
	den, err := Denominator(reserveIn, amountIn, feeRate)
	if err != nil {
		return nil, err
	}
	if den.Sign() == 0 {
		return nil, ErrEmptyReserves
	}
	return num.Quo(num, den), nil
}

// AmountOutNoFee is AmountOut with a zero fee rate.
func AmountOutNoFee(reserveIn, reserveOut, amountIn *big.Int) (*big.Int, error) {
	return AmountOut(reserveIn, reserveOut, amountIn, 0)
}

// Fee is the output withheld by the fee: AmountOutNoFee - AmountOut. It is never negative.
func Fee(reserveIn, reserveOut, amountIn *big.Int, feeRate uint32) (*big.Int, error) {
	withFee, err := AmountOut(reserveIn, reserveOut, amountIn, feeRate)
	if err != nil {
		return nil, err
	}
	noFee, err := AmountOutNoFee(reserveIn, reserveOut, amountIn)
	if err != nil {
		return nil, err
	}
	return noFee.Sub(noFee, withFee), nil
}

// Ratio is the correction step used to nudge K back toward its initial value:
// the larger balance divided by the smaller, floored, and never less than one.
func Ratio(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil || a.Sign() <= 0 || b.Sign() <= 0 {
		return nil, ErrEmptyReserves
	}
	var r *big.Int
	if a.Cmp(b) > 0 {
		r = new(big.Int).Quo(a, b)
	} else {
		r = new(big.Int).Quo(b, a)
	}
	if r.Cmp(one) <= 0 {
		return new(big.Int).Set(one), nil
	}
	return r, nil
}

func feeMultiplier(feeRate uint32) *big.Int {
	return big.NewInt(int64(FeeDenominator - feeRate))
}

func check(reserve, amount *big.Int, feeRate uint32) error {
	if err := ValidateFeeRate(feeRate); err != nil {
		return err
	}
	if reserve == nil || amount == nil {
		return ErrEmptyReserves
	}
	if reserve.Sign() < 0 || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return nil
}
