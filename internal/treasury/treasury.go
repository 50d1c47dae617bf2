package treasury

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/dlprewards/internal/access"
	"github.com/elys-network/dlprewards/internal/logger"
)

// Treasury is an account on the ledger whose outbound transfers require the custodian role.
// Deposits are unrestricted.
type Treasury struct {
	address common.Address
	ledger  *Ledger
	auth    access.Authorizer
	logger  zerolog.Logger
}

func New(address common.Address, ledger *Ledger, auth access.Authorizer) *Treasury {
	return &Treasury{
		address: address,
		ledger:  ledger,
		auth:    auth,
		logger:  logger.GetForComponent("treasury"),
	}
}

func (t *Treasury) Address() common.Address {
	return t.address
}

func (t *Treasury) Balance(asset common.Address) sdkmath.Int {
	return t.ledger.BalanceOf(t.address, asset)
}

// Transfer sends amount of asset to the recipient on behalf of caller.
func (t *Treasury) Transfer(_ context.Context, caller, to, asset common.Address, amount sdkmath.Int) error {
	if err := t.auth.Authorize(caller, access.RoleCustodian); err != nil {
		return err
	}
	if err := t.ledger.Transfer(t.address, to, asset, amount); err != nil {
		return err
	}
	t.logger.Debug().
		Str("to", to.Hex()).
		Str("asset", asset.Hex()).
		Str("amount", amount.String()).
		Msg("Treasury transfer")
	return nil
}

// Deposit moves funds from any holder into the treasury.
func (t *Treasury) Deposit(_ context.Context, from, asset common.Address, amount sdkmath.Int) error {
	return t.ledger.Transfer(from, t.address, asset, amount)
}
