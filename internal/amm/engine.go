package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/dlprewards/internal/journal"
	"github.com/elys-network/dlprewards/internal/logger"
	"github.com/elys-network/dlprewards/internal/utils"
)

var (
	ErrResidualBalance   = errors.New("engine holds a residual balance after the swap")
	ErrInsufficientInput = errors.New("engine was not funded with the input amount")
	ErrQuoteMismatch     = errors.New("executed swap differs from its quote")
	ErrInvalidEngine     = errors.New("invalid engine config")
)

// Bank moves assets between accounts. The engine's own account must be funded with the input
// before SplitRewardSwap is called.
type Bank interface {
	BalanceOf(holder, asset common.Address) sdkmath.Int
	Transfer(from, to, asset common.Address, amount sdkmath.Int) error
}

type EngineConfig struct {
	Address   common.Address
	WVANA     common.Address
	Positions PositionManager
	Bank      Bank
	Journal   *journal.Journal
}

func validateEngineConfig(cfg EngineConfig) error {
	var errs []error
	if cfg.Address == (common.Address{}) {
		errs = append(errs, errors.New("engine address is required"))
	}
	if cfg.WVANA == (common.Address{}) {
		errs = append(errs, errors.New("wrapped VANA address is required"))
	}
	if cfg.Positions == nil {
		errs = append(errs, errors.New("position manager is required"))
	}
	if cfg.Bank == nil {
		errs = append(errs, errors.New("bank is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEngine, errors.Join(errs...))
	}
	return nil
}

// Engine splits VANA tranches into a swapped reward leg and a liquidity leg.
type Engine struct {
	cfg    EngineConfig
	logger zerolog.Logger
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, logger: logger.GetForComponent("amm_engine")}, nil
}

// Address is the account tranches are paid into before SplitRewardSwap.
func (e *Engine) Address() common.Address { return e.cfg.Address }

func (e *Engine) WVANA() common.Address { return e.cfg.WVANA }

func (e *Engine) Positions() PositionManager { return e.cfg.Positions }

type SplitRewardSwapParams struct {
	LpTokenID                 uint64
	AmountIn                  sdkmath.Int
	RewardPercentage          sdkmath.LegacyDec
	MaximumSlippagePercentage sdkmath.LegacyDec
	RewardRecipient           common.Address
	SpareRecipient            common.Address
}

type SplitRewardSwapResult struct {
	TokenRewardAmount sdkmath.Int
	SpareToken        sdkmath.Int
	SpareVana         sdkmath.Int
	UsedVanaAmount    sdkmath.Int
	LiquidityDelta    *big.Int
	Token             common.Address
}

// SplitRewardSwap swaps the reward share of AmountIn into the position's counter token with bounded
// slippage, deposits the rest as liquidity into the position, and forwards the token reward and
// spare token to RewardRecipient and spare VANA to SpareRecipient. The engine account ends empty.
func (e *Engine) SplitRewardSwap(ctx context.Context, params SplitRewardSwapParams) (SplitRewardSwapResult, error) {
	if err := utils.ValidateFraction("reward percentage", params.RewardPercentage); err != nil {
		return SplitRewardSwapResult{}, err
	}
	if err := utils.ValidateFraction("maximum slippage", params.MaximumSlippagePercentage); err != nil {
		return SplitRewardSwapResult{}, err
	}
	if params.AmountIn.IsNil() || params.AmountIn.IsNegative() {
		return SplitRewardSwapResult{}, fmt.Errorf("%w: amount in", utils.ErrAmountNegative)
	}

	var result SplitRewardSwapResult
	err := e.cfg.Journal.Atomic(func() error {
		var err error
		result, err = e.splitRewardSwap(ctx, params)
		return err
	})
	if err != nil {
		return SplitRewardSwapResult{}, err
	}

	e.logger.Info().
		Uint64("position_id", params.LpTokenID).
		Str("amount_in", params.AmountIn.String()).
		Str("used_vana", result.UsedVanaAmount.String()).
		Str("token_reward", result.TokenRewardAmount.String()).
		Str("spare_token", result.SpareToken.String()).
		Str("spare_vana", result.SpareVana.String()).
		Str("liquidity_delta", result.LiquidityDelta.String()).
		Msg("Reward split and swapped")
	return result, nil
}

func (e *Engine) splitRewardSwap(ctx context.Context, params SplitRewardSwapParams) (SplitRewardSwapResult, error) {
	wvana := e.cfg.WVANA
	if balance := e.cfg.Bank.BalanceOf(e.cfg.Address, wvana); balance.LT(params.AmountIn) {
		return SplitRewardSwapResult{}, fmt.Errorf("%w: holds %s, needs %s", ErrInsufficientInput, balance, params.AmountIn)
	}

	position, err := e.cfg.Positions.Position(ctx, params.LpTokenID)
	if err != nil {
		return SplitRewardSwapResult{}, err
	}
	pool, err := e.cfg.Positions.PoolOf(ctx, params.LpTokenID)
	if err != nil {
		return SplitRewardSwapResult{}, err
	}
	zeroForOne, err := ZeroForOne(pool, wvana)
	if err != nil {
		return SplitRewardSwapResult{}, err
	}
	token := pool.Token1()
	if !zeroForOne {
		token = pool.Token0()
	}

	rewardAmount := utils.MulFloor(params.AmountIn, params.RewardPercentage)
	lpAmount := params.AmountIn.Sub(rewardAmount)

	// reward leg
	rewardQuote, err := QuoteSlippageExactInputSingle(ctx, pool, wvana, rewardAmount.BigInt(), params.MaximumSlippagePercentage)
	if err != nil {
		return SplitRewardSwapResult{}, fmt.Errorf("failed to quote reward swap: %w", err)
	}
	if rewardQuote.AmountIn.Sign() > 0 {
		if err := e.executeSwap(ctx, pool, zeroForOne, rewardAmount.BigInt(), rewardQuote.SqrtPriceLimitX96, rewardQuote.AmountIn, rewardQuote.AmountOut); err != nil {
			return SplitRewardSwapResult{}, fmt.Errorf("reward swap: %w", err)
		}
	}
	tokenReward := utils.IntFromBig(rewardQuote.AmountOut)
	spareVana := utils.IntFromBig(rewardQuote.SpareIn)

	// liquidity leg
	lpQuote, err := QuoteLpSwap(ctx, pool, position, wvana, lpAmount.BigInt(), params.MaximumSlippagePercentage)
	if err != nil {
		return SplitRewardSwapResult{}, fmt.Errorf("failed to quote liquidity swap: %w", err)
	}
	if lpQuote.AmountSwapIn.Sign() > 0 {
		if err := e.executeSwap(ctx, pool, zeroForOne, lpQuote.AmountSwapIn, lpQuote.SqrtPriceLimitX96, lpQuote.AmountSwapIn, lpQuote.AmountSwapOut); err != nil {
			return SplitRewardSwapResult{}, fmt.Errorf("liquidity swap: %w", err)
		}
	}
	vanaAvailable := new(big.Int).Sub(lpAmount.BigInt(), lpQuote.AmountSwapIn)
	tokenAvailable := lpQuote.AmountSwapOut

	vanaDeposited, tokenDeposited := new(big.Int), new(big.Int)
	liquidityDelta := new(big.Int)
	if lpQuote.LiquidityDelta.Sign() > 0 {
		increase := IncreaseLiquidityParams{PositionID: params.LpTokenID}
		if zeroForOne {
			increase.Amount0Desired, increase.Amount1Desired = vanaAvailable, tokenAvailable
		} else {
			increase.Amount0Desired, increase.Amount1Desired = tokenAvailable, vanaAvailable
		}
		increase.Amount0Min, increase.Amount1Min = lpQuote.Amount0Deposit, lpQuote.Amount1Deposit

		added, err := e.cfg.Positions.IncreaseLiquidity(ctx, e.cfg.Address, increase)
		if err != nil {
			return SplitRewardSwapResult{}, fmt.Errorf("failed to increase liquidity: %w", err)
		}
		liquidityDelta = added.Liquidity
		if zeroForOne {
			vanaDeposited, tokenDeposited = added.Amount0, added.Amount1
		} else {
			vanaDeposited, tokenDeposited = added.Amount1, added.Amount0
		}
	}

	spareVana = spareVana.Add(utils.IntFromBig(new(big.Int).Sub(vanaAvailable, vanaDeposited)))
	spareToken := utils.IntFromBig(new(big.Int).Sub(tokenAvailable, tokenDeposited))

	if err := e.cfg.Bank.Transfer(e.cfg.Address, params.RewardRecipient, token, tokenReward.Add(spareToken)); err != nil {
		return SplitRewardSwapResult{}, fmt.Errorf("failed to forward token: %w", err)
	}
	if err := e.cfg.Bank.Transfer(e.cfg.Address, params.SpareRecipient, wvana, spareVana); err != nil {
		return SplitRewardSwapResult{}, fmt.Errorf("failed to forward spare VANA: %w", err)
	}

	for _, asset := range []common.Address{wvana, token} {
		if residual := e.cfg.Bank.BalanceOf(e.cfg.Address, asset); !residual.IsZero() {
			return SplitRewardSwapResult{}, fmt.Errorf("%w: %s of %s", ErrResidualBalance, residual, asset.Hex())
		}
	}

	return SplitRewardSwapResult{
		TokenRewardAmount: tokenReward,
		SpareToken:        spareToken,
		SpareVana:         spareVana,
		UsedVanaAmount:    params.AmountIn.Sub(spareVana),
		LiquidityDelta:    liquidityDelta,
		Token:             token,
	}, nil
}

// executeSwap runs an exact-input swap on pool and checks it consumed and paid what was quoted.
func (e *Engine) executeSwap(ctx context.Context, pool Pool, zeroForOne bool, amountSpecified, limit, wantIn, wantOut *big.Int) error {
	amount0, amount1, err := pool.Swap(ctx, e.cfg.Address, e.cfg.Address, zeroForOne, amountSpecified, limit)
	if err != nil {
		return err
	}
	result := SwapResult{Amount0: amount0, Amount1: amount1}
	gotIn, gotOut := result.AmountIn(zeroForOne), result.AmountOut(zeroForOne)
	if gotIn.Cmp(wantIn) != 0 || gotOut.Cmp(wantOut) != 0 {
		return fmt.Errorf("%w: in %s/%s out %s/%s", ErrQuoteMismatch, gotIn, wantIn, gotOut, wantOut)
	}
	return nil
}
