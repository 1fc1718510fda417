package butler

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"AIButler-Chain/internal/batch"
	"AIButler-Chain/internal/flow"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/ledger/ledgertest"
	"AIButler-Chain/internal/schedule"
)

const start uint64 = 1_700_000_000

var (
	owner  = ledgertest.Address("owner")
	alice  = ledgertest.Address("alice")
	bob    = ledgertest.Address("bob")
	keeper = ledgertest.Address("keeper")
)

func newService(t *testing.T, opts ...Option) (*Service, *ledger.ManualClock) {
	t.Helper()
	clock := ledger.NewManualClock(start)
	l := ledger.New(clock)
	ledgertest.Fund(l, big.NewInt(1_000), alice, keeper)
	svc, err := New(l, owner, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, clock
}

func TestNewValidatesArguments(t *testing.T) {
	l := ledger.New(ledger.NewManualClock(start))
	if _, err := New(nil, owner); err == nil {
		t.Fatalf("expected error for nil ledger")
	}
	if _, err := New(l, ledgertest.Address("")); err == nil {
		t.Fatalf("expected error for zero owner")
	}
	if _, err := New(l, owner, WithDelayBounds(10, 5)); !errors.Is(err, schedule.ErrInvalidDelayBounds) {
		t.Fatalf("expected invalid delay bounds, got %v", err)
	}
}

func TestDeploymentsAreDistinctContracts(t *testing.T) {
	svc, _ := newService(t)
	seen := map[string]bool{}
	for _, d := range svc.Deployments() {
		if !svc.Ledger().IsContract(d.Address) {
			t.Fatalf("%s not deployed at %s", d.Name, d.Address.Hex())
		}
		if name, _ := svc.Ledger().ContractName(d.Address); name != d.Name {
			t.Fatalf("expected name %s, got %s", d.Name, name)
		}
		if seen[d.Address.Hex()] {
			t.Fatalf("duplicate address %s", d.Address.Hex())
		}
		seen[d.Address.Hex()] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 deployments, got %d", len(seen))
	}
}

func TestBatchThroughService(t *testing.T) {
	svc, _ := newService(t)
	ops := []batch.Operation{
		{Target: bob, Value: big.NewInt(10)},
	}
	result, receipt, err := svc.ExecuteBatch(context.Background(), alice, big.NewInt(20), ops, true)
	if err != nil {
		t.Fatalf("execute batch: %v", err)
	}
	if !receipt.Succeeded() {
		t.Fatalf("expected successful receipt")
	}
	if result.Refund.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected refund 10, got %s", result.Refund)
	}
	if got := svc.Balance(alice); got.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("expected alice 990, got %s", got)
	}
	if got := svc.Balance(bob); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected bob 10, got %s", got)
	}
	total, mine := svc.BatchStats(alice)
	if total != 1 || mine != 1 {
		t.Fatalf("unexpected stats total=%d user=%d", total, mine)
	}
}

func TestScheduleLifecycleThroughService(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()
	id, _, err := svc.ScheduleTransaction(ctx, alice, big.NewInt(5), schedule.Request{
		Target:        bob,
		Value:         big.NewInt(5),
		ExecuteAfter:  start + 120,
		ExecuteWindow: 3600,
		Description:   "pay bob",
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if svc.IsReadyToExecute(id) {
		t.Fatalf("schedule should not be ready yet")
	}
	if _, _, err := svc.ExecuteScheduledTransaction(ctx, keeper, id); !errors.Is(err, schedule.ErrTooEarly) {
		t.Fatalf("expected too early, got %v", err)
	}

	clock.Set(start + 121)
	if ready := svc.ReadySchedules(10); len(ready) != 1 || ready[0] != id {
		t.Fatalf("unexpected ready schedules %v", ready)
	}
	result, _, err := svc.ExecuteScheduledTransaction(ctx, keeper, id)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected inner call success")
	}
	if got := svc.Balance(bob); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected bob 5, got %s", got)
	}
	s, err := svc.GetSchedule(id)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if s.Status != schedule.StatusExecuted || s.Executor != keeper {
		t.Fatalf("unexpected schedule state %+v", s)
	}
	if _, err := svc.CancelScheduledTransaction(ctx, alice, id); !errors.Is(err, schedule.ErrNotPending) {
		t.Fatalf("expected not pending, got %v", err)
	}
}

func TestWorkflowThroughService(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	actions := []flow.Action{
		{Type: flow.ActionTransfer, Target: bob, Value: big.NewInt(3)},
	}
	id, _, err := svc.CreateWorkflow(ctx, alice, actions, "pay", false)
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	if _, _, err := svc.ExecuteWorkflow(ctx, bob, nil, id); !errors.Is(err, flow.ErrExecuteUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	result, _, err := svc.ExecuteWorkflow(ctx, alice, big.NewInt(4), id)
	if err != nil {
		t.Fatalf("execute workflow: %v", err)
	}
	if result.Status != flow.StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if got := svc.Balance(alice); got.Cmp(big.NewInt(997)) != 0 {
		t.Fatalf("expected alice 997 after refund, got %s", got)
	}
	if ids := svc.GetUserWorkflows(alice); len(ids) != 1 || ids[0] != id {
		t.Fatalf("unexpected workflows %v", ids)
	}
}

func TestConnectorsRequireOwner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	pool := ledgertest.Address("uniswap-pool")
	if _, err := svc.RegisterConnector(ctx, alice, "uniswap", pool); !errors.Is(err, ledger.ErrOnlyOwner) {
		t.Fatalf("expected only owner, got %v", err)
	}
	if _, err := svc.RegisterConnector(ctx, owner, "uniswap", pool); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !svc.IsConnectorRegistered("uniswap", pool) {
		t.Fatalf("connector should be registered")
	}
	if names := svc.ConnectorNames(); len(names) != 1 || names[0] != "uniswap" {
		t.Fatalf("unexpected names %v", names)
	}
	if _, err := svc.UnregisterConnector(ctx, owner, "uniswap", pool); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if svc.IsConnectorRegistered("uniswap", pool) {
		t.Fatalf("connector should be removed")
	}
}

func TestFaucet(t *testing.T) {
	svc, _ := newService(t)
	if err := svc.Fund(bob, big.NewInt(1)); !errors.Is(err, ErrFaucetDisabled) {
		t.Fatalf("expected faucet disabled, got %v", err)
	}

	svc, _ = newService(t, WithFaucet(true))
	if err := svc.Fund(bob, big.NewInt(7)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if got := svc.Balance(bob); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected 7, got %s", got)
	}
}
