package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/ledger/ledgertest"
)

var (
	alice = ledgertest.Address("alice")
	bob   = ledgertest.Address("bob")
)

func newLedger(t *testing.T) (*ledger.Ledger, *ledger.ManualClock) {
	t.Helper()
	clock := ledger.NewManualClock(1_700_000_000)
	l := ledger.New(clock)
	ledgertest.Fund(l, big.NewInt(1_000), alice)
	return l, clock
}

func TestExecuteTransfersValue(t *testing.T) {
	l, _ := newLedger(t)
	receipt, err := l.Execute(context.Background(), ledger.Message{From: alice, To: bob, Value: big.NewInt(300)}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !receipt.Succeeded() || receipt.BlockNumber != 1 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if l.Balance(alice).Int64() != 700 || l.Balance(bob).Int64() != 300 {
		t.Fatalf("unexpected balances: alice=%s bob=%s", l.Balance(alice), l.Balance(bob))
	}
}

func TestExecuteRevertsEverythingOnError(t *testing.T) {
	l, _ := newLedger(t)
	rec := ledgertest.NewRecorder(nil)
	target := l.Deploy(alice, "recorder", rec)
	boom := errors.New("boom")

	receipt, err := l.Execute(context.Background(), ledger.Message{From: alice, To: bob, Value: big.NewInt(100)}, func(env *ledger.Env) error {
		if _, err := env.Call(target, big.NewInt(50), []byte{0x01}); err != nil {
			return err
		}
		env.Emit([]common.Hash{{0x01}}, nil)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if receipt == nil || receipt.Succeeded() || receipt.Reason != "boom" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if l.Balance(alice).Int64() != 1_000 || l.Balance(bob).Sign() != 0 || l.Balance(target).Sign() != 0 {
		t.Fatalf("balances not reverted")
	}
	if len(rec.Calls()) != 0 {
		t.Fatalf("recorder storage not reverted: %+v", rec.Calls())
	}
	if len(l.Logs()) != 0 {
		t.Fatalf("logs not reverted")
	}
}

func TestInnerFailureRevertsOnlyInnerFrame(t *testing.T) {
	l, _ := newLedger(t)
	rec := ledgertest.NewRecorder(nil)
	recAddr := l.Deploy(alice, "recorder", rec)
	failing := l.Deploy(alice, "failing", ledgertest.Func(func(env *ledger.Env, input []byte) ([]byte, error) {
		if _, err := env.Call(recAddr, nil, []byte{0x02}); err != nil {
			return nil, err
		}
		return nil, errors.New("inner failure")
	}))

	_, err := l.Execute(context.Background(), ledger.Message{From: alice, To: bob, Value: big.NewInt(10)}, func(env *ledger.Env) error {
		if _, err := env.Call(failing, nil, []byte{0x01}); err == nil {
			t.Errorf("expected inner failure")
		}
		_, err := env.Call(recAddr, nil, []byte{0x03})
		return err
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	calls := rec.Calls()
	if len(calls) != 1 || calls[0].Data[0] != 0x03 {
		t.Fatalf("expected only the outer call to survive, got %+v", calls)
	}
}

func TestCallToZeroAddressFails(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Execute(context.Background(), ledger.Message{From: alice, To: bob}, func(env *ledger.Env) error {
		_, err := env.Call(common.Address{}, nil, nil)
		return err
	})
	if !errors.Is(err, ledger.ErrZeroAddress) {
		t.Fatalf("expected zero address error, got %v", err)
	}
}

func TestInsufficientBalance(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Execute(context.Background(), ledger.Message{From: bob, To: alice, Value: big.NewInt(1)}, nil)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestCallDepthIsBounded(t *testing.T) {
	l, _ := newLedger(t)
	var self common.Address
	self = l.Deploy(alice, "loop", ledgertest.Func(func(env *ledger.Env, input []byte) ([]byte, error) {
		return env.Call(self, nil, input)
	}))
	_, err := l.Execute(context.Background(), ledger.Message{From: alice, To: self, Data: []byte{0x01}}, nil)
	if !errors.Is(err, ledger.ErrCallDepth) {
		t.Fatalf("expected call depth error, got %v", err)
	}
}

func TestTimestampsAreMonotonic(t *testing.T) {
	l, clock := newLedger(t)
	var first, second uint64
	if _, err := l.Execute(context.Background(), ledger.Message{From: alice, To: bob}, func(env *ledger.Env) error {
		first = env.Now()
		return nil
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	clock.Advance(120)
	if _, err := l.Execute(context.Background(), ledger.Message{From: alice, To: bob}, func(env *ledger.Env) error {
		second = env.Now()
		return nil
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if second-first != 120 {
		t.Fatalf("expected 120s between blocks, got %d", second-first)
	}
	if l.Now() != second {
		t.Fatalf("ledger now should match the last block time")
	}
}

func TestSubscribeLogsDeliversCommittedLogsInOrder(t *testing.T) {
	l, _ := newLedger(t)
	ch := make(chan []*types.Log, 4)
	sub := l.SubscribeLogs(ch)
	defer sub.Unsubscribe()

	for i := byte(1); i <= 2; i++ {
		topic := common.Hash{i}
		if _, err := l.Execute(context.Background(), ledger.Message{From: alice, To: bob}, func(env *ledger.Env) error {
			env.Emit([]common.Hash{topic}, nil)
			return nil
		}); err != nil {
			t.Fatalf("execute: %v", err)
		}
	}
	if _, err := l.Execute(context.Background(), ledger.Message{From: alice, To: bob}, func(env *ledger.Env) error {
		env.Emit([]common.Hash{{0xff}}, nil)
		return errors.New("rolled back")
	}); err == nil {
		t.Fatalf("expected failure")
	}

	for i := byte(1); i <= 2; i++ {
		select {
		case logs := <-ch:
			if len(logs) != 1 || logs[0].Topics[0] != (common.Hash{i}) {
				t.Fatalf("unexpected logs at %d: %+v", i, logs)
			}
			if logs[0].BlockNumber != uint64(i) {
				t.Fatalf("unexpected block number %d", logs[0].BlockNumber)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for logs")
		}
	}
	select {
	case logs := <-ch:
		t.Fatalf("reverted logs delivered: %+v", logs)
	default:
	}
}

func TestCancelledContextIsRejected(t *testing.T) {
	l, _ := newLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Execute(ctx, ledger.Message{From: alice, To: bob}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if l.BlockNumber() != 0 {
		t.Fatalf("no block should be sealed")
	}
}

func TestOwnableAndGuard(t *testing.T) {
	l, _ := newLedger(t)
	owned := ledger.NewOwnable(alice)
	_, err := l.Execute(context.Background(), ledger.Message{From: bob, To: alice}, func(env *ledger.Env) error {
		return owned.TransferOwnership(env, bob)
	})
	if !errors.Is(err, ledger.ErrOnlyOwner) {
		t.Fatalf("expected only owner error, got %v", err)
	}
	_, err = l.Execute(context.Background(), ledger.Message{From: alice, To: bob}, func(env *ledger.Env) error {
		if err := owned.TransferOwnership(env, bob); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil || owned.OwnerOf() != alice {
		t.Fatalf("ownership change should revert with the transaction")
	}

	var guard ledger.ReentrancyGuard
	if err := guard.Enter(); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := guard.Enter(); !errors.Is(err, ledger.ErrReentrantCall) {
		t.Fatalf("expected reentrant call, got %v", err)
	}
	guard.Exit()
	if err := guard.Enter(); err != nil {
		t.Fatalf("guard should be reusable after exit: %v", err)
	}
}
