package bank

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	escrowstate "tradeescrow/core/state"
)

var (
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInsufficientCustody = errors.New("bank: insufficient custody")
	ErrRefundExceedsLocked = errors.New("bank: refund exceeds locked amount")
	ErrOverflow            = errors.New("bank: balance overflow")
)

var (
	balancePrefix = []byte("bank/balance/")
	lockedPrefix  = []byte("bank/locked/")
	custodyPrefix = []byte("bank/custody/")
)

func accountKey(prefix []byte, owner [20]byte, asset [20]byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(asset)+1+len(owner))
	buf = append(buf, prefix...)
	buf = append(buf, asset[:]...)
	buf = append(buf, ':')
	return append(buf, owner[:]...)
}

func custodyKey(asset [20]byte) []byte {
	return append(append([]byte(nil), custodyPrefix...), asset[:]...)
}

// Vault holds per-identity balances and the escrow custody pool of every asset.
// Funds locked by an identity are tracked so that refunds can never return more
// than the identity put in.
type Vault struct {
	state *escrowstate.Manager
}

// NewVault constructs a vault over the provided state manager.
func NewVault(state *escrowstate.Manager) *Vault {
	return &Vault{state: state}
}

func (v *Vault) read(key []byte) (*uint256.Int, error) {
	stored := new(big.Int)
	ok, err := v.state.KVGet(key, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	value, overflow := uint256.FromBig(stored)
	if overflow {
		return nil, ErrOverflow
	}
	return value, nil
}

func toUint(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrOverflow
	}
	return value, nil
}

type delta struct {
	key []byte
	add bool
	err error
}

// apply adjusts every key by amount inside one state update.
func (v *Vault) apply(amount *big.Int, deltas ...delta) error {
	if v == nil || v.state == nil {
		return fmt.Errorf("bank: state manager required")
	}
	value, err := toUint(amount)
	if err != nil {
		return err
	}
	return v.state.Update(func(b *escrowstate.Batch) error {
		for _, d := range deltas {
			current, err := v.read(d.key)
			if err != nil {
				return err
			}
			var next uint256.Int
			if d.add {
				if _, overflow := next.AddOverflow(current, value); overflow {
					return ErrOverflow
				}
			} else {
				if current.Lt(value) {
					return fmt.Errorf("%w: have %s, need %s", d.err, current.Dec(), value.Dec())
				}
				next.Sub(current, value)
			}
			if err := b.Put(d.key, next.ToBig()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Deposit credits an identity's spendable balance.
func (v *Vault) Deposit(owner [20]byte, asset [20]byte, amount *big.Int) error {
	return v.apply(amount, delta{key: accountKey(balancePrefix, owner, asset), add: true})
}

// Withdraw debits an identity's spendable balance.
func (v *Vault) Withdraw(owner [20]byte, asset [20]byte, amount *big.Int) error {
	return v.apply(amount, delta{key: accountKey(balancePrefix, owner, asset), err: ErrInsufficientBalance})
}

// Lock moves funds from the owner's balance into escrow custody.
func (v *Vault) Lock(from [20]byte, asset [20]byte, amount *big.Int) error {
	return v.apply(amount,
		delta{key: accountKey(balancePrefix, from, asset), err: ErrInsufficientBalance},
		delta{key: accountKey(lockedPrefix, from, asset), add: true},
		delta{key: custodyKey(asset), add: true},
	)
}

// Release pays funds out of custody to any recipient.
func (v *Vault) Release(to [20]byte, asset [20]byte, amount *big.Int) error {
	return v.apply(amount,
		delta{key: custodyKey(asset), err: ErrInsufficientCustody},
		delta{key: accountKey(balancePrefix, to, asset), add: true},
	)
}

// Refund returns custody to an identity that previously locked at least
// amount.
func (v *Vault) Refund(to [20]byte, asset [20]byte, amount *big.Int) error {
	return v.apply(amount,
		delta{key: accountKey(lockedPrefix, to, asset), err: ErrRefundExceedsLocked},
		delta{key: custodyKey(asset), err: ErrInsufficientCustody},
		delta{key: accountKey(balancePrefix, to, asset), add: true},
	)
}

// Balance returns the spendable balance of owner.
func (v *Vault) Balance(owner [20]byte, asset [20]byte) (*big.Int, error) {
	value, err := v.read(accountKey(balancePrefix, owner, asset))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// Locked returns the amount owner has locked and not yet been refunded.
func (v *Vault) Locked(owner [20]byte, asset [20]byte) (*big.Int, error) {
	value, err := v.read(accountKey(lockedPrefix, owner, asset))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// Custody returns the total amount of asset held for escrows.
func (v *Vault) Custody(asset [20]byte) (*big.Int, error) {
	value, err := v.read(custodyKey(asset))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}
