package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"AIButler-Chain/internal/butler"
	"AIButler-Chain/internal/indexer"
	"AIButler-Chain/internal/keeper"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/ledger/ledgertest"
)

const start uint64 = 1_700_000_000

var (
	owner = ledgertest.Address("owner")
	alice = ledgertest.Address("alice")
	bob   = ledgertest.Address("bob")
	robot = ledgertest.Address("keeper")
)

type fixture struct {
	svc    *butler.Service
	clock  *ledger.ManualClock
	server *Server
}

func newFixture(t *testing.T, svcOpts []butler.Option, opts ...Option) *fixture {
	t.Helper()
	clock := ledger.NewManualClock(start)
	l := ledger.New(clock)
	ledgertest.Fund(l, big.NewInt(1_000), alice, robot)
	svc, err := butler.New(l, owner, svcOpts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, clock: clock, server: NewServer(":0", svc, opts...)}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decode[ErrorBody](t, rec)
	if body.Error.Code != code {
		t.Fatalf("expected code %s, got %+v", code, body.Error)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestExecuteBatchEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/v1/batches", BatchRequest{
		From:              alice.Hex(),
		Value:             "20",
		RequireAllSuccess: true,
		Operations:        []OperationRequest{{Target: bob.Hex(), Value: "10"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[BatchResponse](t, rec)
	if resp.BatchID != 1 || resp.SuccessCount != 1 || resp.Refund != "10" {
		t.Fatalf("unexpected batch response %+v", resp)
	}
	if resp.Receipt == nil || resp.Receipt.Status != "success" {
		t.Fatalf("unexpected receipt %+v", resp.Receipt)
	}

	account := decode[AccountResponse](t, f.do(t, http.MethodGet, "/api/v1/accounts/"+bob.Hex(), nil))
	if account.Balance != "10" {
		t.Fatalf("expected bob balance 10, got %s", account.Balance)
	}
	stats := decode[map[string]uint64](t, f.do(t, http.MethodGet, "/api/v1/batches/stats?address="+alice.Hex(), nil))
	if stats["total_batches_executed"] != 1 || stats["user_batch_count"] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestExecuteBatchRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/batches", BatchRequest{
		From:       "not-an-address",
		Operations: []OperationRequest{{Target: bob.Hex()}},
	})
	expectError(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")

	rec = f.do(t, http.MethodPost, "/api/v1/batches", map[string]any{"from": alice.Hex(), "unknown": true})
	expectError(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")

	rec = f.do(t, http.MethodPost, "/api/v1/batches", BatchRequest{From: alice.Hex()})
	expectError(t, rec, http.StatusBadRequest, "BATCH_INVALID_OPERATION_COUNT")

	rec = f.do(t, http.MethodPost, "/api/v1/batches", BatchRequest{
		From:       alice.Hex(),
		Value:      "5",
		Operations: []OperationRequest{{Target: bob.Hex(), Value: "10"}},
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 for underfunded batch, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEstimateGasEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/v1/batches/estimate", EstimateRequest{OperationCount: 2})
	got := decode[map[string]uint64](t, rec)
	if got["gas"] != 121_000 {
		t.Fatalf("unexpected estimate %v", got)
	}
}

func TestScheduleLifecycleEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/schedules", ScheduleRequest{
		From:          alice.Hex(),
		Target:        bob.Hex(),
		Amount:        "5",
		ExecuteAfter:  start + 120,
		ExecuteWindow: 3600,
		Description:   "pay bob",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[ScheduleResponse](t, rec)
	if created.Schedule.Status != "pending" || created.Schedule.Amount != "5" || created.Schedule.Ready {
		t.Fatalf("unexpected schedule %+v", created.Schedule)
	}
	if got := f.svc.Balance(alice); got.Cmp(big.NewInt(995)) != 0 {
		t.Fatalf("expected value to default to amount, alice has %s", got)
	}
	id := created.Schedule.ID
	base := fmt.Sprintf("/api/v1/schedules/%d", id)

	readiness := decode[ReadinessResponse](t, f.do(t, http.MethodGet, base+"/ready", nil))
	if readiness.Ready || readiness.Reason == "" {
		t.Fatalf("expected not ready with reason, got %+v", readiness)
	}

	rec = f.do(t, http.MethodPost, base+"/execute", CallerRequest{From: robot.Hex()})
	expectError(t, rec, http.StatusConflict, "SCHEDULE_TOO_EARLY")

	f.clock.Set(start + 121)
	rec = f.do(t, http.MethodPost, base+"/execute", CallerRequest{From: robot.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if exec := decode[ScheduleExecutionResponse](t, rec); !exec.Success {
		t.Fatalf("expected successful execution, got %+v", exec)
	}

	rec = f.do(t, http.MethodPost, base+"/cancel", CallerRequest{From: alice.Hex()})
	expectError(t, rec, http.StatusConflict, "SCHEDULE_NOT_PENDING")

	fetched := decode[ScheduleResponse](t, f.do(t, http.MethodGet, base, nil))
	if fetched.Schedule.Status != "executed" || fetched.Schedule.Executor != robot.Hex() {
		t.Fatalf("unexpected schedule %+v", fetched.Schedule)
	}

	list := decode[map[string][]ScheduleDTO](t, f.do(t, http.MethodGet, "/api/v1/schedules?creator="+alice.Hex(), nil))
	if len(list["schedules"]) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestScheduleCancelByOtherUserIsForbidden(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/v1/schedules", ScheduleRequest{
		From:         alice.Hex(),
		Target:       bob.Hex(),
		Amount:       "5",
		ExecuteAfter: start + 120,
	})
	id := decode[ScheduleResponse](t, rec).Schedule.ID

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/schedules/%d/cancel", id), CallerRequest{From: bob.Hex()})
	expectError(t, rec, http.StatusForbidden, "SCHEDULE_UNAUTHORIZED")

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/schedules/%d/cancel", id), CallerRequest{From: alice.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[ScheduleResponse](t, rec).Schedule.Status; got != "cancelled" {
		t.Fatalf("expected cancelled, got %s", got)
	}
	if got := f.svc.Balance(alice); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("expected escrow refunded, alice has %s", got)
	}
}

func TestMissingScheduleIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	expectError(t, f.do(t, http.MethodGet, "/api/v1/schedules/99", nil), http.StatusNotFound, "SCHEDULE_NOT_FOUND")
	expectError(t, f.do(t, http.MethodGet, "/api/v1/schedules/abc", nil), http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestWorkflowEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/workflows", WorkflowRequest{
		From:    alice.Hex(),
		Name:    "pay",
		Actions: []ActionRequest{{Type: "transfer", Target: bob.Hex(), Value: "3"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[WorkflowResponse](t, rec)
	if created.Workflow.Status != "pending" || len(created.Workflow.Actions) != 1 {
		t.Fatalf("unexpected workflow %+v", created.Workflow)
	}
	base := fmt.Sprintf("/api/v1/workflows/%d", created.Workflow.ID)

	action := decode[ActionDTO](t, f.do(t, http.MethodGet, base+"/actions/0", nil))
	if action.Type != "transfer" || action.Value != "3" {
		t.Fatalf("unexpected action %+v", action)
	}
	expectError(t, f.do(t, http.MethodGet, base+"/actions/5", nil), http.StatusBadRequest, "FLOW_INVALID_INDEX")

	rec = f.do(t, http.MethodPost, base+"/execute", ExecuteWorkflowRequest{From: bob.Hex()})
	expectError(t, rec, http.StatusForbidden, "FLOW_UNAUTHORIZED")

	rec = f.do(t, http.MethodPost, base+"/execute", ExecuteWorkflowRequest{From: alice.Hex(), Value: "4"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	exec := decode[WorkflowExecutionResponse](t, rec)
	if exec.Status != "completed" || exec.Refund != "1" {
		t.Fatalf("unexpected execution %+v", exec)
	}

	rec = f.do(t, http.MethodPost, base+"/cancel", CallerRequest{From: alice.Hex()})
	expectError(t, rec, http.StatusConflict, "FLOW_NOT_PENDING")

	list := decode[map[string][]WorkflowDTO](t, f.do(t, http.MethodGet, "/api/v1/workflows?creator="+alice.Hex(), nil))
	if len(list["workflows"]) != 1 || list["workflows"][0].Status != "completed" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestCreateAndExecuteWorkflowEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/v1/workflows", WorkflowRequest{
		From:    alice.Hex(),
		Name:    "pay now",
		Execute: true,
		Value:   "3",
		Actions: []ActionRequest{{Type: "transfer", Target: bob.Hex(), Value: "3"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	exec := decode[WorkflowExecutionResponse](t, rec)
	if exec.Status != "completed" || exec.SuccessCount != 1 {
		t.Fatalf("unexpected execution %+v", exec)
	}
	if got := f.svc.Balance(bob); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected bob 3, got %s", got)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/workflows", WorkflowRequest{
		From:    alice.Hex(),
		Value:   "3",
		Actions: []ActionRequest{{Type: "transfer", Target: bob.Hex(), Value: "3"}},
	})
	expectError(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")

	rec = f.do(t, http.MethodPost, "/api/v1/workflows", WorkflowRequest{
		From:    alice.Hex(),
		Actions: []ActionRequest{{Type: "teleport", Target: bob.Hex()}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action type, got %d", rec.Code)
	}
}

func TestConnectorEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	pool := ledgertest.Address("uniswap-pool")

	rec := f.do(t, http.MethodPost, "/api/v1/connectors", ConnectorRequest{From: alice.Hex(), Name: "uniswap", Address: pool.Hex()})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/api/v1/connectors", ConnectorRequest{From: owner.Hex(), Name: "uniswap", Address: pool.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	check := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/connectors?name=uniswap&address="+pool.Hex(), nil))
	if check["registered"] != true {
		t.Fatalf("expected registered connector, got %v", check)
	}
	names := decode[map[string][]string](t, f.do(t, http.MethodGet, "/api/v1/connectors", nil))
	if len(names["names"]) != 1 || names["names"][0] != "uniswap" {
		t.Fatalf("unexpected names %v", names)
	}

	rec = f.do(t, http.MethodDelete, "/api/v1/connectors", ConnectorRequest{From: owner.Hex(), Name: "uniswap", Address: pool.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	listed := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/connectors?name=uniswap", nil))
	if conns, _ := listed["connectors"].([]any); len(conns) != 0 {
		t.Fatalf("expected no connectors, got %v", listed)
	}
}

func TestFundRequiresFaucet(t *testing.T) {
	disabled := newFixture(t, nil)
	rec := disabled.do(t, http.MethodPost, "/api/v1/accounts/"+bob.Hex()+"/fund", FundRequest{Amount: "50"})
	expectError(t, rec, http.StatusForbidden, string(butler.CodeFaucetDisabled))

	enabled := newFixture(t, []butler.Option{butler.WithFaucet(true)})
	rec = enabled.do(t, http.MethodPost, "/api/v1/accounts/"+bob.Hex()+"/fund", FundRequest{Amount: "50"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[AccountResponse](t, rec).Balance; got != "50" {
		t.Fatalf("expected balance 50, got %s", got)
	}
}

func TestEventsEndpoint(t *testing.T) {
	store := indexer.NewMemoryStore()
	f := newFixture(t, nil, WithEventStore(store))
	expectError(t, newFixture(t, nil).do(t, http.MethodGet, "/api/v1/events", nil), http.StatusNotFound, "NOT_FOUND")

	rec := f.do(t, http.MethodPost, "/api/v1/batches", BatchRequest{
		From:       alice.Hex(),
		Value:      "1",
		Operations: []OperationRequest{{Target: bob.Hex(), Value: "1"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	decoder := indexer.NewDecoder()
	for _, d := range f.svc.Deployments() {
		decoder.Register(d.Name, d.Address, d.ABI)
	}
	ix, err := indexer.New(f.svc.Ledger(), store, decoder)
	if err != nil {
		t.Fatalf("new indexer: %v", err)
	}
	if err := ix.Ingest(context.Background(), f.svc.Ledger().Logs()); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	resp := decode[map[string][]EventDTO](t, f.do(t, http.MethodGet, "/api/v1/events?contract=BatchTransactions&event=BatchExecuted", nil))
	events := resp["events"]
	if len(events) != 1 || events[0].Fields["batchId"] != "1" {
		t.Fatalf("unexpected events %+v", events)
	}
}

type fixedStats struct{}

func (fixedStats) Stats() keeper.Stats { return keeper.Stats{Executed: 2} }

func TestKeeperStatsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	expectError(t, f.do(t, http.MethodGet, "/api/v1/keeper", nil), http.StatusNotFound, "NOT_FOUND")

	f = newFixture(t, nil, WithKeeper(fixedStats{}))
	stats := decode[keeper.Stats](t, f.do(t, http.MethodGet, "/api/v1/keeper", nil))
	if stats.Executed != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAdvanceClockEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodPost, "/api/v1/clock/advance", AdvanceClockRequest{Seconds: 10}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected clock route to be absent, got %d", rec.Code)
	}

	f.server = NewServer(":0", f.svc, WithManualClock(f.clock))
	rec := f.do(t, http.MethodPost, "/api/v1/clock/advance", AdvanceClockRequest{Seconds: 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[ClockResponse](t, rec).Now; got != start+10 {
		t.Fatalf("expected %d, got %d", start+10, got)
	}
}
