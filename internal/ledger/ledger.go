package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"

	xerrors "AIButler-Chain/internal/errors"
)

// MaxCallDepth bounds nested Env.Call and Env.Invoke frames.
const MaxCallDepth = 64

// Contract is code deployed at a ledger address. Call receives raw calldata;
// an empty input is a plain value transfer.
type Contract interface {
	Call(env *Env, input []byte) ([]byte, error)
}

// Message is the envelope of a top-level transaction.
type Message struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Receipt summarises an executed transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Timestamp   uint64
	From        common.Address
	To          common.Address
	Value       *big.Int
	Status      uint64
	Reason      string
	ReturnData  []byte
	Logs        []*types.Log
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == types.ReceiptStatusSuccessful
}

type txState struct {
	hash        common.Hash
	blockNumber uint64
	timestamp   uint64
	journal     journal
	logs        []*types.Log
}

// Ledger is a single-writer account ledger.
type Ledger struct {
	mu        sync.RWMutex
	publishMu sync.Mutex

	clock         Clock
	balances      map[common.Address]*big.Int
	contracts     map[common.Address]Contract
	names         map[common.Address]string
	nonces        map[common.Address]uint64
	blockNumber   uint64
	lastTimestamp uint64
	logs          []*types.Log

	feed event.Feed
}

// New creates an empty ledger driven by clock. A nil clock uses SystemClock.
func New(clock Clock) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{
		clock:     clock,
		balances:  make(map[common.Address]*big.Int),
		contracts: make(map[common.Address]Contract),
		names:     make(map[common.Address]string),
		nonces:    make(map[common.Address]uint64),
	}
}

// Deploy installs c at the address derived from deployer and its deploy nonce.
func (l *Ledger) Deploy(deployer common.Address, name string, c Contract) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	nonce := l.nonces[deployer]
	l.nonces[deployer] = nonce + 1
	addr := crypto.CreateAddress(deployer, nonce)
	l.contracts[addr] = c
	l.names[addr] = name
	return addr
}

// DeployAt installs c at a fixed address.
func (l *Ledger) DeployAt(addr common.Address, name string, c Contract) error {
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.contracts[addr]; exists {
		return xerrors.New(CodeDuplicateContract, fmt.Sprintf("contract already deployed at %s", addr.Hex()))
	}
	l.contracts[addr] = c
	l.names[addr] = name
	return nil
}

// ContractName returns the name a contract was deployed with.
func (l *Ledger) ContractName(addr common.Address) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	name, ok := l.names[addr]
	return name, ok
}

// IsContract reports whether code is deployed at addr.
func (l *Ledger) IsContract(addr common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.contracts[addr]
	return ok
}

// Mint credits amount to addr outside any transaction. It is used for
// genesis allocations and the development faucet.
func (l *Ledger) Mint(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeValue
	}
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = new(big.Int).Add(l.balanceOf(addr), amount)
	return nil
}

// Balance returns a copy of the native balance of addr.
func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balanceOf(addr))
}

// BlockNumber returns the number of the last sealed block.
func (l *Ledger) BlockNumber() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blockNumber
}

// Now returns the timestamp the next transaction would observe.
func (l *Ledger) Now() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextTimestamp()
}

// View runs fn under the read lock. fn must not start a transaction.
func (l *Ledger) View(fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn()
}

// Logs returns every committed log in commit order.
func (l *Ledger) Logs() []*types.Log {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*types.Log, len(l.logs))
	copy(out, l.logs)
	return out
}

// SubscribeLogs delivers the logs of each committed transaction, in commit
// order, to ch. Transactions without logs are not delivered. Delivery blocks
// until every subscriber has received the batch, so consumers must keep up.
func (l *Ledger) SubscribeLogs(ch chan<- []*types.Log) event.Subscription {
	return l.feed.Subscribe(ch)
}

// Execute applies msg as one atomic transaction. The attached value moves
// from msg.From to msg.To before fn runs. When fn is nil, msg.Data is
// dispatched to the contract at msg.To, or treated as a plain transfer if
// no contract is deployed there. Any error reverts every effect of the
// transaction and is returned together with a failed receipt.
func (l *Ledger) Execute(ctx context.Context, msg Message, fn func(env *Env) error) (*Receipt, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	value := new(big.Int)
	if msg.Value != nil {
		value.Set(msg.Value)
	}

	l.mu.Lock()
	tx := l.begin(msg, value)
	env := &Env{ledger: l, tx: tx, caller: msg.From, self: msg.To, value: value}
	ret, err := l.run(env, msg.Data, fn)

	receipt := &Receipt{
		TxHash:      tx.hash,
		BlockNumber: tx.blockNumber,
		Timestamp:   tx.timestamp,
		From:        msg.From,
		To:          msg.To,
		Value:       new(big.Int).Set(value),
	}
	if err != nil {
		tx.journal.revertTo(0)
		l.mu.Unlock()
		receipt.Status = types.ReceiptStatusFailed
		receipt.Reason = xerrors.Reason(err)
		return receipt, err
	}

	receipt.Status = types.ReceiptStatusSuccessful
	receipt.ReturnData = ret
	receipt.Logs = tx.logs
	l.logs = append(l.logs, tx.logs...)

	l.publishMu.Lock()
	l.mu.Unlock()
	if len(tx.logs) > 0 {
		l.feed.Send(tx.logs)
	}
	l.publishMu.Unlock()
	return receipt, nil
}

func (l *Ledger) begin(msg Message, value *big.Int) *txState {
	l.blockNumber++
	ts := l.nextTimestamp()
	l.lastTimestamp = ts

	id := uuid.New()
	var number [8]byte
	binary.BigEndian.PutUint64(number[:], l.blockNumber)
	hash := crypto.Keccak256Hash(id[:], number[:], msg.From.Bytes(), msg.To.Bytes(), value.Bytes(), msg.Data)

	return &txState{hash: hash, blockNumber: l.blockNumber, timestamp: ts}
}

func (l *Ledger) run(env *Env, data []byte, fn func(env *Env) error) (ret []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ledger: transaction panicked: %v", r)
		}
	}()
	if env.self == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if err := l.transfer(env.tx, env.caller, env.self, env.value); err != nil {
		return nil, err
	}
	if fn != nil {
		return nil, fn(env)
	}
	if c, ok := l.contracts[env.self]; ok {
		return c.Call(env, data)
	}
	return nil, nil
}

func (l *Ledger) nextTimestamp() uint64 {
	ts := l.clock.Now()
	if ts < l.lastTimestamp {
		ts = l.lastTimestamp
	}
	return ts
}

func (l *Ledger) balanceOf(addr common.Address) *big.Int {
	if bal, ok := l.balances[addr]; ok {
		return bal
	}
	return new(big.Int)
}

func (l *Ledger) transfer(tx *txState, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeValue
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	bal := l.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.setBalance(tx, from, new(big.Int).Sub(bal, amount))
	l.setBalance(tx, to, new(big.Int).Add(l.balanceOf(to), amount))
	return nil
}

func (l *Ledger) setBalance(tx *txState, addr common.Address, v *big.Int) {
	prev, existed := l.balances[addr]
	l.balances[addr] = v
	tx.journal.append(func() {
		if existed {
			l.balances[addr] = prev
		} else {
			delete(l.balances, addr)
		}
	})
}
