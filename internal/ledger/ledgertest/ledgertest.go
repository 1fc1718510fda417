// Package ledgertest provides contracts and helpers for tests that run
// against an in-process ledger.
package ledgertest

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/ledger"
)

// CodeReverted marks failures produced by Reverter.
const CodeReverted xerrors.Code = "TEST_REVERTED"

// Call is one invocation observed by a Recorder.
type Call struct {
	Seq    int
	Caller common.Address
	Value  *big.Int
	Data   []byte
}

// Sequencer hands out a global call order shared by several recorders.
type Sequencer struct {
	next int
}

// Recorder accepts every call and remembers it. Recorded calls are
// journaled, so a reverted transaction leaves no trace.
type Recorder struct {
	mu    sync.Mutex
	seq   *Sequencer
	calls []Call
	ret   []byte
}

// NewRecorder returns a Recorder. Recorders sharing seq record a common
// ordering.
func NewRecorder(seq *Sequencer) *Recorder {
	if seq == nil {
		seq = &Sequencer{}
	}
	return &Recorder{seq: seq}
}

// Returning makes the recorder answer every call with ret.
func (r *Recorder) Returning(ret []byte) *Recorder {
	r.ret = ret
	return r
}

// Call implements ledger.Contract.
func (r *Recorder) Call(env *ledger.Env, input []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq.next++
	n := len(r.calls)
	r.calls = append(r.calls, Call{
		Seq:    r.seq.next,
		Caller: env.Caller(),
		Value:  env.Value(),
		Data:   append([]byte(nil), input...),
	})
	env.Journal(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = r.calls[:n]
		r.seq.next--
	})
	return r.ret, nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Reverter fails every call that carries data. Plain transfers are accepted
// unless RejectTransfers is set.
type Reverter struct {
	Reason          string
	RejectTransfers bool
}

// Call implements ledger.Contract.
func (r *Reverter) Call(_ *ledger.Env, input []byte) ([]byte, error) {
	if len(input) == 0 && !r.RejectTransfers {
		return nil, nil
	}
	reason := r.Reason
	if reason == "" {
		reason = "reverted"
	}
	return nil, xerrors.New(CodeReverted, reason)
}

// Func adapts a closure to ledger.Contract.
type Func func(env *ledger.Env, input []byte) ([]byte, error)

// Call implements ledger.Contract.
func (f Func) Call(env *ledger.Env, input []byte) ([]byte, error) {
	return f(env, input)
}

// Address derives a readable test address from a label.
func Address(label string) common.Address {
	return common.BytesToAddress([]byte(label))
}

// Ether returns n whole units with 18 decimals.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// Fund mints amount to each address and panics on failure.
func Fund(l *ledger.Ledger, amount *big.Int, addrs ...common.Address) {
	for _, addr := range addrs {
		if err := l.Mint(addr, amount); err != nil {
			panic(err)
		}
	}
}
