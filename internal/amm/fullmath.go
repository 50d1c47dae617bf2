package amm

import (
	"errors"
	"math/big"
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrOverflow       = errors.New("value overflows its integer width")
)

var (
	big0 = big.NewInt(0)
	big1 = big.NewInt(1)

	// Q96 is 2^96, the scale of sqrtPriceX96.
	Q96  = new(big.Int).Lsh(big1, 96)
	Q128 = new(big.Int).Lsh(big1, 128)

	MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big1, 128), big1)
	MaxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big1, 160), big1)
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big1, 256), big1)
)

// mulDiv returns floor(a*b/denominator) with a full-width intermediate product.
func mulDiv(a, b, denominator *big.Int) *big.Int {
	if denominator.Sign() == 0 {
		panic(ErrDivisionByZero)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, denominator)
}

// mulDivRoundingUp returns ceil(a*b/denominator).
func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	if denominator.Sign() == 0 {
		panic(ErrDivisionByZero)
	}
	product := new(big.Int).Mul(a, b)
	quotient, remainder := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if remainder.Sign() > 0 {
		quotient.Add(quotient, big1)
	}
	return quotient
}

// divRoundingUp returns ceil(x/y).
func divRoundingUp(x, y *big.Int) *big.Int {
	if y.Sign() == 0 {
		panic(ErrDivisionByZero)
	}
	quotient, remainder := new(big.Int).QuoRem(x, y, new(big.Int))
	if remainder.Sign() > 0 {
		quotient.Add(quotient, big1)
	}
	return quotient
}

func fitsUint256(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(MaxUint256) <= 0
}

func fitsUint160(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(MaxUint160) <= 0
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
