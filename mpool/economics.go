package mpool

import "math/big"

// totalFilecoinSupply bounds the value field of any admitted message: no
// single message can move more than the entire currency supply.
var totalFilecoinSupply = mustTokenAmount("2000000000000000000000000000") // 2e9 FIL, in attoFIL

// minimumBaseFee is the protocol-wide floor below which no gas fee cap is
// ever admissible, independent of the current base fee.
var minimumBaseFee = NewTokenAmountFromInt64(100)

func mustTokenAmount(s string) TokenAmount {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("mpool: invalid constant token amount literal " + s)
	}
	t, err := NewTokenAmount(v)
	if err != nil {
		panic(err)
	}
	return t
}

// baseFeeLowerBound projects baseFee ten blocks out under a conservative
// 12.5%-per-block decline, (1 - 0.125)^10 == (7/8)^10, computed as repeated
// integer division rather than floating point.
func baseFeeLowerBound(baseFee TokenAmount) TokenAmount {
	v := baseFee
	for i := 0; i < 10; i++ {
		v = v.Mul(7).DivFloor(8)
	}
	return v
}
