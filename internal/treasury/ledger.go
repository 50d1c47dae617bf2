// Package treasury keeps asset balances for the in-memory execution substrate and the
// custodian-restricted treasury built on top of it.
package treasury

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/dlprewards/internal/journal"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must not be negative")
)

type balanceKey struct {
	holder common.Address
	asset  common.Address
}

// Ledger holds balances per (holder, asset). Writes are journaled.
type Ledger struct {
	mu       sync.RWMutex
	balances map[balanceKey]sdkmath.Int
	journal  *journal.Journal
}

func NewLedger(j *journal.Journal) *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]sdkmath.Int),
		journal:  j,
	}
}

// BalanceOf returns the balance of holder in asset.
func (l *Ledger) BalanceOf(holder, asset common.Address) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(balanceKey{holder, asset})
}

// Mint credits holder out of thin air. Used to fund the substrate.
func (l *Ledger) Mint(holder, asset common.Address, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := balanceKey{holder, asset}
	l.setLocked(key, l.balanceLocked(key).Add(amount))
	return nil
}

// Transfer moves amount of asset from one holder to another.
func (l *Ledger) Transfer(from, to, asset common.Address, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.IsZero() || from == to {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey := balanceKey{from, asset}
	fromBalance := l.balanceLocked(fromKey)
	if fromBalance.LT(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), fromBalance, asset.Hex(), amount)
	}
	toKey := balanceKey{to, asset}
	l.setLocked(fromKey, fromBalance.Sub(amount))
	l.setLocked(toKey, l.balanceLocked(toKey).Add(amount))
	return nil
}

func (l *Ledger) balanceLocked(key balanceKey) sdkmath.Int {
	if b, ok := l.balances[key]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (l *Ledger) setLocked(key balanceKey, value sdkmath.Int) {
	prev, existed := l.balances[key]
	l.balances[key] = value
	l.journal.Record(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existed {
			l.balances[key] = prev
		} else {
			delete(l.balances, key)
		}
	})
}
