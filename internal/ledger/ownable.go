package ledger

import "github.com/ethereum/go-ethereum/common"

// Ownable tracks a single administrative owner for a contract.
type Ownable struct {
	owner common.Address
}

// NewOwnable returns an Ownable held by owner.
func NewOwnable(owner common.Address) Ownable {
	return Ownable{owner: owner}
}

// OwnerOf returns the current owner. Callers outside a transaction must hold
// the ledger read lock.
func (o *Ownable) OwnerOf() common.Address {
	return o.owner
}

// OnlyOwner fails unless the frame caller is the owner.
func (o *Ownable) OnlyOwner(env *Env) error {
	if env.Caller() != o.owner {
		return ErrOnlyOwner
	}
	return nil
}

// TransferOwnership hands the contract to next.
func (o *Ownable) TransferOwnership(env *Env, next common.Address) error {
	if err := o.OnlyOwner(env); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return ErrZeroAddress
	}
	prev := o.owner
	o.owner = next
	env.Journal(func() { o.owner = prev })
	return nil
}

// ReentrancyGuard rejects re-entry into a guarded entrypoint while it is
// still on the call stack.
type ReentrancyGuard struct {
	entered bool
}

// Enter marks the guard. It fails if the guard is already held.
func (g *ReentrancyGuard) Enter() error {
	if g.entered {
		return ErrReentrantCall
	}
	g.entered = true
	return nil
}

// Exit releases the guard.
func (g *ReentrancyGuard) Exit() {
	g.entered = false
}
