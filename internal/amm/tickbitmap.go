package amm

import (
	"context"
	"fmt"
	"math/big"
)

// WordReader returns one 256-bit word of a pool's initialized-tick bitmap.
type WordReader interface {
	TickBitmap(ctx context.Context, wordPos int16) (*big.Int, error)
}

// compress maps a tick to its spacing-compressed index, flooring toward negative infinity.
func compress(tick, tickSpacing int) int {
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed--
	}
	return compressed
}

// bitmapPosition splits a compressed tick into its bitmap word and bit.
func bitmapPosition(compressed int) (int16, uint) {
	return int16(compressed >> 8), uint(compressed & 0xff)
}

// flipTick toggles the initialized bit of tick in bitmap, allocating the word when absent.
func flipTick(bitmap map[int16]*big.Int, tick, tickSpacing int) error {
	if tick%tickSpacing != 0 {
		return fmt.Errorf("%w: tick %d not a multiple of spacing %d", ErrInvalidTicks, tick, tickSpacing)
	}
	wordPos, bitPos := bitmapPosition(tick / tickSpacing)
	word, ok := bitmap[wordPos]
	if !ok {
		word = new(big.Int)
	}
	word = new(big.Int).Xor(word, new(big.Int).Lsh(big1, bitPos))
	if word.Sign() == 0 {
		delete(bitmap, wordPos)
		return nil
	}
	bitmap[wordPos] = word
	return nil
}

// nextInitializedTickWithinOneWord finds the next initialized tick contained in the same bitmap word
// as tick, to the left (lte) or right of it. When none is initialized it returns the word boundary.
func nextInitializedTickWithinOneWord(ctx context.Context, reader WordReader, tick, tickSpacing int, lte bool) (int, bool, error) {
	compressed := compress(tick, tickSpacing)

	if lte {
		wordPos, bitPos := bitmapPosition(compressed)
		word, err := reader.TickBitmap(ctx, wordPos)
		if err != nil {
			return 0, false, err
		}
		// all the 1s at or to the right of bitPos
		mask := new(big.Int).Lsh(big1, bitPos+1)
		mask.Sub(mask, big1)
		masked := mask.And(mask, word)

		if masked.Sign() != 0 {
			msb := masked.BitLen() - 1
			return (compressed - (int(bitPos) - msb)) * tickSpacing, true, nil
		}
		return (compressed - int(bitPos)) * tickSpacing, false, nil
	}

	wordPos, bitPos := bitmapPosition(compressed + 1)
	word, err := reader.TickBitmap(ctx, wordPos)
	if err != nil {
		return 0, false, err
	}
	// all the 1s at or to the left of bitPos
	lower := new(big.Int).Lsh(big1, bitPos)
	lower.Sub(lower, big1)
	mask := new(big.Int).Xor(MaxUint256, lower)
	masked := mask.And(mask, word)

	if masked.Sign() != 0 {
		lsb := int(masked.TrailingZeroBits())
		return (compressed + 1 + (lsb - int(bitPos))) * tickSpacing, true, nil
	}
	return (compressed + 1 + (255 - int(bitPos))) * tickSpacing, false, nil
}
