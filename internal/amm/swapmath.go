package amm

import "math/big"

// FeeDenominator expresses pool fees in hundredths of a basis point.
const FeeDenominator = 1_000_000

var feeDenominator = big.NewInt(FeeDenominator)

type swapStep struct {
	sqrtRatioNextX96 *big.Int
	amountIn         *big.Int
	amountOut        *big.Int
	feeAmount        *big.Int
}

// computeSwapStep swaps within a single price range. A non-negative amountRemaining is exact input,
// a negative one is exact output.
func computeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *big.Int, feePips uint32) (swapStep, error) {
	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0
	fee := big.NewInt(int64(feePips))
	feeComplement := new(big.Int).Sub(feeDenominator, fee)

	var (
		step = swapStep{}
		err  error
	)

	if exactIn {
		amountRemainingLessFee := mulDiv(amountRemaining, feeComplement, feeDenominator)
		if zeroForOne {
			step.amountIn = getAmount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			step.amountIn = getAmount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if amountRemainingLessFee.Cmp(step.amountIn) >= 0 {
			step.sqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			step.sqrtRatioNextX96, err = getNextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
			if err != nil {
				return swapStep{}, err
			}
		}
	} else {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)
		if zeroForOne {
			step.amountOut = getAmount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			step.amountOut = getAmount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}
		if amountRemainingAbs.Cmp(step.amountOut) >= 0 {
			step.sqrtRatioNextX96 = new(big.Int).Set(sqrtRatioTargetX96)
		} else {
			step.sqrtRatioNextX96, err = getNextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, amountRemainingAbs, zeroForOne)
			if err != nil {
				return swapStep{}, err
			}
		}
	}

	reachedTarget := sqrtRatioTargetX96.Cmp(step.sqrtRatioNextX96) == 0

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			step.amountIn = getAmount0Delta(step.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			step.amountOut = getAmount1Delta(step.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false)
		}
	} else {
		if !(reachedTarget && exactIn) {
			step.amountIn = getAmount1Delta(sqrtRatioCurrentX96, step.sqrtRatioNextX96, liquidity, true)
		}
		if !(reachedTarget && !exactIn) {
			step.amountOut = getAmount0Delta(sqrtRatioCurrentX96, step.sqrtRatioNextX96, liquidity, false)
		}
	}

	if !exactIn {
		amountRemainingAbs := new(big.Int).Neg(amountRemaining)
		if step.amountOut.Cmp(amountRemainingAbs) > 0 {
			step.amountOut = amountRemainingAbs
		}
	}

	if exactIn && step.sqrtRatioNextX96.Cmp(sqrtRatioTargetX96) != 0 {
		// target not reached: the remainder of the input is the fee
		step.feeAmount = new(big.Int).Sub(amountRemaining, step.amountIn)
	} else {
		step.feeAmount = mulDivRoundingUp(step.amountIn, fee, feeComplement)
	}
	return step, nil
}
