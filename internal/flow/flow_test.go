package flow

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"AIButler-Chain/internal/accounting"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/ledger/ledgertest"
)

var (
	owner = ledgertest.Address("owner")
	alice = ledgertest.Address("alice")
	bob   = ledgertest.Address("bob")
)

type fixture struct {
	t        *testing.T
	ledger   *ledger.Ledger
	contract *Contract
	addr     common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.New(ledger.NewManualClock(1_700_000_000))
	ledgertest.Fund(l, big.NewInt(1_000), alice, bob)
	c := New(l, owner)
	return &fixture{t: t, ledger: l, contract: c, addr: l.Deploy(owner, "FlowActions", c)}
}

func (f *fixture) tx(from common.Address, value int64, fn func(env *ledger.Env) error) error {
	_, err := f.ledger.Execute(context.Background(), ledger.Message{From: from, To: f.addr, Value: big.NewInt(value)}, fn)
	return err
}

func (f *fixture) create(from common.Address, actions []Action, allowPartial bool) uint64 {
	f.t.Helper()
	var id uint64
	if err := f.tx(from, 0, func(env *ledger.Env) error {
		var err error
		id, err = f.contract.CreateWorkflow(env, actions, "wf", allowPartial)
		return err
	}); err != nil {
		f.t.Fatalf("create workflow: %v", err)
	}
	return id
}

func (f *fixture) execute(from common.Address, value int64, id uint64) (*ExecutionResult, error) {
	var result *ExecutionResult
	err := f.tx(from, value, func(env *ledger.Env) error {
		var err error
		result, err = f.contract.ExecuteWorkflow(env, id)
		return err
	})
	return result, err
}

func TestPartialFailureEndsFailed(t *testing.T) {
	f := newFixture(t)
	id := f.create(alice, []Action{
		{Type: ActionTransfer, Target: bob, Value: big.NewInt(10)},
		{Type: ActionCustom, Target: common.Address{}},
	}, true)

	result, err := f.execute(alice, 10, id)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != StatusFailed || result.SuccessCount != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Results[1].Success || result.Results[1].Reason != "invalid action target" {
		t.Fatalf("unexpected action result %+v", result.Results[1])
	}
	if f.ledger.Balance(bob).Int64() != 1_010 || f.ledger.Balance(alice).Int64() != 990 {
		t.Fatalf("unexpected balances alice=%s bob=%s", f.ledger.Balance(alice), f.ledger.Balance(bob))
	}
	w, _ := f.contract.GetWorkflow(id)
	if w.Status != StatusFailed || len(w.Results) != 2 {
		t.Fatalf("unexpected stored workflow %+v", w)
	}
	if _, err := f.execute(alice, 0, id); !errors.Is(err, ErrNotPending) {
		t.Fatalf("a workflow runs at most once, got %v", err)
	}
}

func TestStrictFailureRevertsEverything(t *testing.T) {
	f := newFixture(t)
	reverter := f.ledger.Deploy(owner, "reverter", &ledgertest.Reverter{Reason: "pool paused"})
	id := f.create(alice, []Action{
		{Type: ActionTransfer, Target: bob, Value: big.NewInt(10)},
		{Type: ActionSwap, Target: reverter, Data: []byte{0x01}},
	}, false)

	_, err := f.execute(alice, 10, id)
	if !errors.Is(err, ErrActionFailed) {
		t.Fatalf("expected action failure, got %v", err)
	}
	w, _ := f.contract.GetWorkflow(id)
	if w.Status != StatusPending {
		t.Fatalf("strict failure must leave the workflow pending, got %s", w.Status)
	}
	if f.ledger.Balance(bob).Int64() != 1_000 || f.ledger.Balance(alice).Int64() != 1_000 {
		t.Fatalf("strict failure must revert transfers")
	}
}

func TestCompletedWorkflowRefundsExcess(t *testing.T) {
	f := newFixture(t)
	seq := &ledgertest.Sequencer{}
	first := ledgertest.NewRecorder(seq)
	second := ledgertest.NewRecorder(seq)
	firstAddr := f.ledger.Deploy(owner, "first", first)
	secondAddr := f.ledger.Deploy(owner, "second", second)

	id := f.create(alice, []Action{
		{Type: ActionStake, Target: secondAddr, Value: big.NewInt(4), Data: []byte{0x01}},
		{Type: ActionLend, Target: firstAddr, Value: big.NewInt(6), Data: []byte{0x02}},
	}, false)
	result, err := f.execute(alice, 25, id)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != StatusCompleted || result.Refund.Int64() != 15 {
		t.Fatalf("unexpected result %+v", result)
	}
	if second.Calls()[0].Seq != 1 || first.Calls()[0].Seq != 2 {
		t.Fatalf("actions ran out of order")
	}
	if f.ledger.Balance(alice).Int64() != 990 || f.ledger.Balance(f.addr).Sign() != 0 {
		t.Fatalf("unexpected balances")
	}
}

func TestCreatorOnly(t *testing.T) {
	f := newFixture(t)
	id := f.create(alice, []Action{{Target: bob}}, false)
	if _, err := f.execute(bob, 0, id); !errors.Is(err, ErrExecuteUnauthorized) {
		t.Fatalf("expected unauthorized execute, got %v", err)
	}
	if err := f.tx(bob, 0, func(env *ledger.Env) error { return f.contract.CancelWorkflow(env, id) }); !errors.Is(err, ErrCancelUnauthorized) {
		t.Fatalf("expected unauthorized cancel, got %v", err)
	}
	if err := f.tx(alice, 0, func(env *ledger.Env) error { return f.contract.CancelWorkflow(env, id) }); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.execute(alice, 0, id); !errors.Is(err, ErrNotPending) {
		t.Fatalf("cancelled workflow must not execute, got %v", err)
	}
	if err := f.tx(alice, 0, func(env *ledger.Env) error { return f.contract.CancelWorkflow(env, id) }); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second cancel must fail, got %v", err)
	}
	if _, err := f.execute(alice, 0, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	create := func(value int64, actions []Action) error {
		return f.tx(alice, value, func(env *ledger.Env) error {
			_, err := f.contract.CreateWorkflow(env, actions, "wf", false)
			return err
		})
	}
	if err := create(0, nil); !errors.Is(err, ErrInvalidActionCount) {
		t.Fatalf("expected invalid count, got %v", err)
	}
	if err := create(0, make([]Action, MaxActions+1)); !errors.Is(err, ErrInvalidActionCount) {
		t.Fatalf("expected invalid count, got %v", err)
	}
	if err := create(0, []Action{{Target: bob, Value: big.NewInt(-1)}}); !errors.Is(err, ledger.ErrNegativeValue) {
		t.Fatalf("expected negative value, got %v", err)
	}
	if err := create(0, []Action{{Target: bob}, {Type: ActionType(99), Target: bob}}); !errors.Is(err, ErrUnknownActionType) {
		t.Fatalf("expected unknown action type, got %v", err)
	}
	if err := create(0, []Action{{Type: ActionCustom, Target: bob}}); err != nil {
		t.Fatalf("custom actions should be accepted: %v", err)
	}
	if err := create(5, []Action{{Target: bob}}); !errors.Is(err, ledger.ErrNonPayable) {
		t.Fatalf("creation must be non-payable, got %v", err)
	}
	if err := create(0, make([]Action, MaxActions)); err != nil {
		t.Fatalf("a workflow of %d actions should be accepted: %v", MaxActions, err)
	}
	if f.contract.WorkflowCount() != 2 {
		t.Fatalf("failed creations must not consume ids")
	}
}

func TestInsufficientValue(t *testing.T) {
	f := newFixture(t)
	id := f.create(alice, []Action{{Target: bob, Value: big.NewInt(10)}}, true)
	if _, err := f.execute(alice, 9, id); !errors.Is(err, accounting.ErrInsufficientValue) {
		t.Fatalf("expected insufficient value, got %v", err)
	}
}

func TestCreateAndExecute(t *testing.T) {
	f := newFixture(t)
	var result *ExecutionResult
	err := f.tx(alice, 3, func(env *ledger.Env) error {
		var err error
		result, err = f.contract.CreateAndExecuteWorkflow(env, []Action{{Target: bob, Value: big.NewInt(3)}}, "pay", false)
		return err
	})
	if err != nil {
		t.Fatalf("create and execute: %v", err)
	}
	if result.WorkflowID != 1 || result.Status != StatusCompleted {
		t.Fatalf("unexpected result %+v", result)
	}
	if ids := f.contract.GetUserWorkflows(alice); len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("unexpected user workflows %v", ids)
	}
}

func TestGetWorkflowAction(t *testing.T) {
	f := newFixture(t)
	id := f.create(alice, []Action{{Type: ActionBorrow, Target: bob, Value: big.NewInt(2), Description: "borrow"}}, false)
	action, err := f.contract.GetWorkflowAction(id, 0)
	if err != nil || action.Type != ActionBorrow || action.Description != "borrow" {
		t.Fatalf("unexpected action %+v %v", action, err)
	}
	if _, err := f.contract.GetWorkflowAction(id, 1); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected invalid index, got %v", err)
	}
	if _, err := f.contract.GetWorkflowAction(id, -1); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected invalid index, got %v", err)
	}
}

func TestConnectorRegistry(t *testing.T) {
	f := newFixture(t)
	uni := ledgertest.Address("uniswap")
	register := func(from common.Address, name string, addr common.Address) error {
		return f.tx(from, 0, func(env *ledger.Env) error { return f.contract.RegisterConnector(env, name, addr) })
	}
	if err := register(alice, "uniswap", uni); !errors.Is(err, ledger.ErrOnlyOwner) {
		t.Fatalf("expected only owner, got %v", err)
	}
	if err := register(owner, "uniswap", common.Address{}); !errors.Is(err, ErrInvalidConnector) {
		t.Fatalf("expected invalid connector, got %v", err)
	}
	if err := register(owner, "uniswap", uni); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := register(owner, "uniswap", uni); err != nil {
		t.Fatalf("re-register should be a no-op: %v", err)
	}
	if !f.contract.IsConnectorRegistered("uniswap", uni) || f.contract.IsConnectorRegistered("aave", uni) {
		t.Fatalf("unexpected registry state")
	}
	if got := f.contract.Connectors("uniswap"); len(got) != 1 || got[0] != uni {
		t.Fatalf("unexpected connectors %v", got)
	}

	err := f.tx(owner, 0, func(env *ledger.Env) error {
		if err := f.contract.UnregisterConnector(env, "uniswap", uni); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil || !f.contract.IsConnectorRegistered("uniswap", uni) {
		t.Fatalf("reverted unregister must keep the connector")
	}
	if err := f.tx(owner, 0, func(env *ledger.Env) error { return f.contract.UnregisterConnector(env, "uniswap", uni) }); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if f.contract.IsConnectorRegistered("uniswap", uni) || len(f.contract.ConnectorNames()) != 0 {
		t.Fatalf("connector still registered")
	}
}

func TestParseActionType(t *testing.T) {
	if got, err := ParseActionType(" Swap "); err != nil || got != ActionSwap {
		t.Fatalf("unexpected parse %v %v", got, err)
	}
	if _, err := ParseActionType("teleport"); !errors.Is(err, ErrUnknownActionType) {
		t.Fatalf("expected unknown action type, got %v", err)
	}
}
