package accounting

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/ledger/ledgertest"
)

func TestNewTallyRequiresCoverage(t *testing.T) {
	if _, err := NewTally(big.NewInt(9), []*big.Int{big.NewInt(5), big.NewInt(5)}); !errors.Is(err, ErrInsufficientValue) {
		t.Fatalf("expected insufficient value, got %v", err)
	}
	tally, err := NewTally(big.NewInt(20), []*big.Int{big.NewInt(10), nil})
	if err != nil {
		t.Fatalf("new tally: %v", err)
	}
	if tally.Required().Int64() != 10 {
		t.Fatalf("unexpected required %s", tally.Required())
	}
	tally.Consume(big.NewInt(10))
	if tally.Refund().Int64() != 10 {
		t.Fatalf("unexpected refund %s", tally.Refund())
	}
}

func TestNewTallyRejectsNegativeValues(t *testing.T) {
	_, err := NewTally(big.NewInt(0), []*big.Int{big.NewInt(-50), big.NewInt(50)})
	if !errors.Is(err, ledger.ErrNegativeValue) {
		t.Fatalf("expected negative value, got %v", err)
	}
}

func TestRefundExcludesFailedSteps(t *testing.T) {
	tally, err := NewTally(big.NewInt(30), []*big.Int{big.NewInt(10), big.NewInt(20)})
	if err != nil {
		t.Fatalf("new tally: %v", err)
	}
	tally.Consume(big.NewInt(10))
	if tally.Refund().Int64() != 20 || tally.Consumed().Int64() != 10 {
		t.Fatalf("refund should return the value of failed steps")
	}
}

func TestSettlePaysCaller(t *testing.T) {
	l := ledger.New(ledger.NewManualClock(1))
	user := ledgertest.Address("user")
	contract := ledgertest.Address("contract")
	ledgertest.Fund(l, big.NewInt(100), user)

	_, err := l.Execute(context.Background(), ledger.Message{From: user, To: contract, Value: big.NewInt(40)}, func(env *ledger.Env) error {
		tally, err := NewTally(env.Value(), []*big.Int{big.NewInt(15)})
		if err != nil {
			return err
		}
		tally.Consume(big.NewInt(15))
		if err := env.Transfer(ledgertest.Address("target"), big.NewInt(15)); err != nil {
			return err
		}
		refund, err := Settle(env, tally)
		if err != nil {
			return err
		}
		if refund.Int64() != 25 {
			t.Errorf("unexpected refund %s", refund)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if l.Balance(user).Int64() != 85 || l.Balance(contract).Sign() != 0 {
		t.Fatalf("unexpected balances user=%s contract=%s", l.Balance(user), l.Balance(contract))
	}
}
