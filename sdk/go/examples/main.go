package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http/httptest"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"AIButler-Chain/internal/api"
	core "AIButler-Chain/internal/butler"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/sdk/go/butler"
)

func main() {
	var (
		owner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
		alice = common.HexToAddress("0x00000000000000000000000000000000000000a2")
		bob   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
		carol = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	)

	clock := ledger.NewManualClock(uint64(time.Now().Unix()))
	l := ledger.New(clock)
	if err := l.Mint(alice, big.NewInt(1_000)); err != nil {
		panic(err)
	}
	svc, err := core.New(l, owner)
	if err != nil {
		panic(err)
	}
	srv := httptest.NewServer(api.NewServer(":0", svc, api.WithManualClock(clock)).Handler())
	defer srv.Close()

	client, err := butler.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := client.ExecuteBatch(ctx, butler.BatchSubmission{
		From:              alice.Hex(),
		Value:             "40",
		RequireAllSuccess: true,
		Operations: []butler.Operation{
			{Target: bob.Hex(), Value: "10"},
			{Target: carol.Hex(), Value: "20"},
		},
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("batch %d: %d/%d succeeded, refund=%s\n", batch.BatchID, batch.SuccessCount, batch.OperationCount, batch.Refund)

	scheduled, err := client.ScheduleTransaction(ctx, butler.ScheduleSubmission{
		From:         alice.Hex(),
		Target:       bob.Hex(),
		Amount:       "5",
		ExecuteAfter: clock.Now() + 120,
		Description:  "weekly allowance",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("scheduled #%d for %d\n", scheduled.Schedule.ID, scheduled.Schedule.ExecuteAfter)

	if _, err := client.AdvanceClock(ctx, 121); err != nil {
		panic(err)
	}
	exec, err := client.ExecuteSchedule(ctx, carol.Hex(), scheduled.Schedule.ID)
	if err != nil {
		panic(err)
	}
	fmt.Printf("schedule #%d executed by keeper account: success=%v\n", exec.ScheduleID, exec.Success)

	run, err := client.CreateAndExecuteWorkflow(ctx, butler.WorkflowSubmission{
		From:  alice.Hex(),
		Name:  "split",
		Value: "6",
		Actions: []butler.Action{
			{Type: "transfer", Target: bob.Hex(), Value: "3"},
			{Type: "transfer", Target: carol.Hex(), Value: "3"},
		},
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("workflow #%d %s (%d actions)\n", run.WorkflowID, run.Status, run.SuccessCount)

	for _, addr := range []common.Address{alice, bob, carol} {
		account, err := client.Account(ctx, addr.Hex())
		if err != nil {
			panic(err)
		}
		fmt.Printf("%s balance=%s\n", account.Address, account.Balance)
	}
}
