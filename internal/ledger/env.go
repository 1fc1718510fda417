package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Env is the execution frame a contract runs in.
type Env struct {
	ledger *Ledger
	tx     *txState
	caller common.Address
	self   common.Address
	value  *big.Int
	depth  int
}

// Caller is the immediate sender of the current frame.
func (e *Env) Caller() common.Address { return e.caller }

// Self is the address whose code is executing.
func (e *Env) Self() common.Address { return e.self }

// Value returns a copy of the value attached to the current frame.
func (e *Env) Value() *big.Int { return new(big.Int).Set(e.value) }

// Now is the block timestamp, constant for the whole transaction.
func (e *Env) Now() uint64 { return e.tx.timestamp }

// BlockNumber is the number of the block being built.
func (e *Env) BlockNumber() uint64 { return e.tx.blockNumber }

// TxHash identifies the transaction in flight.
func (e *Env) TxHash() common.Hash { return e.tx.hash }

// Depth is the nesting level of the frame, zero for the top-level call.
func (e *Env) Depth() int { return e.depth }

// Balance returns a copy of addr's balance as seen inside the transaction.
func (e *Env) Balance(addr common.Address) *big.Int {
	return new(big.Int).Set(e.ledger.balanceOf(addr))
}

// Call sends value and data from Self to to. A failing call reverts only the
// effects made since it started and returns the callee's error. Calls to an
// address without code are plain transfers.
func (e *Env) Call(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	var ret []byte
	err := e.enter(to, value, func(child *Env) error {
		c, ok := e.ledger.contracts[to]
		if !ok {
			return nil
		}
		var err error
		ret, err = c.Call(child, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Invoke sends value from Self to to and runs fn in a frame whose Self is to.
// It lets Go code act as the callee, the same way Call would dispatch to a
// deployed contract.
func (e *Env) Invoke(to common.Address, value *big.Int, fn func(env *Env) error) error {
	return e.enter(to, value, fn)
}

// Transfer moves value from Self to to. If to is a contract, its plain
// transfer handler runs.
func (e *Env) Transfer(to common.Address, value *big.Int) error {
	_, err := e.Call(to, value, nil)
	return err
}

// Emit appends a log attributed to Self.
func (e *Env) Emit(topics []common.Hash, data []byte) {
	tx := e.tx
	log := &types.Log{
		Address:     e.self,
		Topics:      topics,
		Data:        data,
		BlockNumber: tx.blockNumber,
		TxHash:      tx.hash,
		Index:       uint(len(tx.logs)),
	}
	tx.logs = append(tx.logs, log)
	n := len(tx.logs) - 1
	tx.journal.append(func() { tx.logs = tx.logs[:n] })
}

// Journal registers undo to run if the enclosing frame reverts. Contracts
// call it for every storage write.
func (e *Env) Journal(undo func()) {
	e.tx.journal.append(undo)
}

func (e *Env) enter(to common.Address, value *big.Int, fn func(child *Env) error) error {
	if e.depth+1 > MaxCallDepth {
		return ErrCallDepth
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	amount := new(big.Int)
	if value != nil {
		amount.Set(value)
	}
	snap := e.tx.journal.snapshot()
	if err := e.ledger.transfer(e.tx, e.self, to, amount); err != nil {
		e.tx.journal.revertTo(snap)
		return err
	}
	child := &Env{
		ledger: e.ledger,
		tx:     e.tx,
		caller: e.self,
		self:   to,
		value:  amount,
		depth:  e.depth + 1,
	}
	if err := fn(child); err != nil {
		e.tx.journal.revertTo(snap)
		return err
	}
	return nil
}
