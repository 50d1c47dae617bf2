package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var ErrUnexpectedABIOutput = errors.New("unexpected abi output")

var poolABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(poolABIJson))
	if err != nil {
		panic("failed to parse pool ABI: " + err.Error())
	}
	poolABI = parsed
}

const poolABIJson = `[
  {"name":"slot0","type":"function","stateMutability":"view","inputs":[],"outputs":[
    {"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},
    {"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},
    {"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},
    {"name":"unlocked","type":"bool"}]},
  {"name":"liquidity","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint128"}]},
  {"name":"fee","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint24"}]},
  {"name":"tickSpacing","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int24"}]},
  {"name":"token0","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"name":"token1","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"name":"tickBitmap","type":"function","stateMutability":"view","inputs":[{"name":"wordPosition","type":"int16"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"ticks","type":"function","stateMutability":"view","inputs":[{"name":"tick","type":"int24"}],"outputs":[
    {"name":"liquidityGross","type":"uint128"},{"name":"liquidityNet","type":"int128"},
    {"name":"feeGrowthOutside0X128","type":"uint256"},{"name":"feeGrowthOutside1X128","type":"uint256"},
    {"name":"tickCumulativeOutside","type":"int56"},{"name":"secondsPerLiquidityOutsideX128","type":"uint160"},
    {"name":"secondsOutside","type":"uint32"},{"name":"initialized","type":"bool"}]}
]`

// EVMPoolReader reads a deployed concentrated-liquidity pool over JSON-RPC. It is read-only:
// quotes against it reflect the chain head at the time of each call.
type EVMPoolReader struct {
	caller      ethereum.ContractCaller
	address     common.Address
	token0      common.Address
	token1      common.Address
	fee         uint32
	tickSpacing int
}

// NewEVMPoolReader loads the pool's immutable parameters.
func NewEVMPoolReader(ctx context.Context, caller ethereum.ContractCaller, address common.Address) (*EVMPoolReader, error) {
	r := &EVMPoolReader{caller: caller, address: address}

	out, err := r.call(ctx, "token0")
	if err != nil {
		return nil, err
	}
	if r.token0, err = outAddress(out, 0); err != nil {
		return nil, err
	}
	if out, err = r.call(ctx, "token1"); err != nil {
		return nil, err
	}
	if r.token1, err = outAddress(out, 0); err != nil {
		return nil, err
	}
	if out, err = r.call(ctx, "fee"); err != nil {
		return nil, err
	}
	fee, err := outBig(out, 0)
	if err != nil {
		return nil, err
	}
	r.fee = uint32(fee.Uint64())
	if out, err = r.call(ctx, "tickSpacing"); err != nil {
		return nil, err
	}
	spacing, err := outBig(out, 0)
	if err != nil {
		return nil, err
	}
	r.tickSpacing = int(spacing.Int64())
	if r.tickSpacing <= 0 {
		return nil, fmt.Errorf("%w: tick spacing %d", ErrInvalidPoolConfig, r.tickSpacing)
	}
	return r, nil
}

func (r *EVMPoolReader) Address() common.Address { return r.address }
func (r *EVMPoolReader) Token0() common.Address  { return r.token0 }
func (r *EVMPoolReader) Token1() common.Address  { return r.token1 }
func (r *EVMPoolReader) Fee() uint32             { return r.fee }
func (r *EVMPoolReader) TickSpacing() int        { return r.tickSpacing }

func (r *EVMPoolReader) Slot0(ctx context.Context) (Slot0, error) {
	out, err := r.call(ctx, "slot0")
	if err != nil {
		return Slot0{}, err
	}
	sqrtPrice, err := outBig(out, 0)
	if err != nil {
		return Slot0{}, err
	}
	tick, err := outBig(out, 1)
	if err != nil {
		return Slot0{}, err
	}
	return Slot0{SqrtPriceX96: sqrtPrice, Tick: int(tick.Int64())}, nil
}

func (r *EVMPoolReader) Liquidity(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, "liquidity")
	if err != nil {
		return nil, err
	}
	return outBig(out, 0)
}

func (r *EVMPoolReader) TickBitmap(ctx context.Context, wordPos int16) (*big.Int, error) {
	out, err := r.call(ctx, "tickBitmap", wordPos)
	if err != nil {
		return nil, err
	}
	return outBig(out, 0)
}

func (r *EVMPoolReader) LiquidityNet(ctx context.Context, tick int) (*big.Int, error) {
	out, err := r.call(ctx, "ticks", big.NewInt(int64(tick)))
	if err != nil {
		return nil, err
	}
	return outBig(out, 1)
}

func (r *EVMPoolReader) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	data, err := poolABI.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	res, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, r.address.Hex(), err)
	}
	out, err := poolABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

func outBig(out []interface{}, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("%w: missing output %d", ErrUnexpectedABIOutput, i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: output %d is %T", ErrUnexpectedABIOutput, i, out[i])
	}
	return v, nil
}

func outAddress(out []interface{}, i int) (common.Address, error) {
	if i >= len(out) {
		return common.Address{}, fmt.Errorf("%w: missing output %d", ErrUnexpectedABIOutput, i)
	}
	v, ok := out[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: output %d is %T", ErrUnexpectedABIOutput, i, out[i])
	}
	return v, nil
}
