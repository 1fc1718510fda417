// Package batch 实现批量交易合约：在同一笔账本交易内按顺序执行一组调用，
// 可以整体回滚，也可以容忍单个操作失败。
package batch

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"AIButler-Chain/internal/accounting"
	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/ledger"
)

const (
	// MaxOperations 是单个批次的操作数上限。
	MaxOperations = 50

	baseGas         = 21_000
	gasPerOperation = 50_000
)

// Operation 是批次中的一次调用。
type Operation struct {
	Target       common.Address
	Value        *big.Int
	Data         []byte
	AllowFailure bool
}

// OperationResult 记录单个操作的执行结果。
type OperationResult struct {
	Index      int
	Target     common.Address
	Success    bool
	ReturnData []byte
	Reason     string
}

// Result 汇总一次批量执行。
type Result struct {
	BatchID        uint64
	Caller         common.Address
	OperationCount int
	SuccessCount   int
	Operations     []OperationResult
	Refund         *big.Int
}

// Contract 是部署在账本上的批量执行合约。
type Contract struct {
	ledger *ledger.Ledger
	guard  ledger.ReentrancyGuard

	totalBatches uint64
	userBatches  map[common.Address]uint64
}

// New 创建绑定到 l 的批量合约，需通过 l.Deploy 部署。
func New(l *ledger.Ledger) *Contract {
	return &Contract{
		ledger:      l,
		userBatches: make(map[common.Address]uint64),
	}
}

// EstimateGas 返回 n 个操作的参考 gas 估算。
func EstimateGas(n int) uint64 {
	if n < 0 {
		n = 0
	}
	return baseGas + gasPerOperation*uint64(n)
}

// ExecuteBatch 以 env.Caller() 身份按顺序执行 ops。操作金额不得为负，
// 附带金额必须覆盖所有操作金额之和，成功操作未转出的部分会被退还。
//
// requireAllSuccess 为 true 时，未设置 AllowFailure 的操作失败会中止整个批次；
// 其余失败记录在结果与 OperationFailed 事件中，并继续执行后续操作。
func (c *Contract) ExecuteBatch(env *ledger.Env, ops []Operation, requireAllSuccess bool) (*Result, error) {
	if err := c.guard.Enter(); err != nil {
		return nil, err
	}
	defer c.guard.Exit()

	if len(ops) == 0 || len(ops) > MaxOperations {
		return nil, ErrInvalidOperationCount
	}
	values := make([]*big.Int, len(ops))
	for i, op := range ops {
		if op.Value != nil && op.Value.Sign() < 0 {
			return nil, ledger.ErrNegativeValue
		}
		values[i] = op.Value
	}
	tally, err := accounting.NewTally(env.Value(), values)
	if err != nil {
		return nil, err
	}

	caller := env.Caller()
	batchID := c.totalBatches + 1
	result := &Result{
		BatchID:        batchID,
		Caller:         caller,
		OperationCount: len(ops),
		Operations:     make([]OperationResult, 0, len(ops)),
	}

	for i, op := range ops {
		ret, callErr := env.Call(op.Target, op.Value, op.Data)
		res := OperationResult{Index: i, Target: op.Target, Success: callErr == nil, ReturnData: ret}
		if callErr == nil {
			tally.Consume(op.Value)
			result.SuccessCount++
			result.Operations = append(result.Operations, res)
			continue
		}
		if requireAllSuccess && !op.AllowFailure {
			return nil, xerrors.Wrap(CodeOperationFailed, callErr, fmt.Sprintf("operation %d failed", i))
		}
		res.Reason = xerrors.Reason(callErr)
		result.Operations = append(result.Operations, res)
		if err := env.EmitEvent(ContractABI, "OperationFailed", ledger.U256(batchID), big.NewInt(int64(i)), op.Target, res.Reason); err != nil {
			return nil, err
		}
	}

	refund, err := accounting.Settle(env, tally)
	if err != nil {
		return nil, err
	}
	result.Refund = refund

	c.totalBatches = batchID
	prev, seen := c.userBatches[caller]
	c.userBatches[caller] = prev + 1
	env.Journal(func() {
		c.totalBatches = batchID - 1
		if seen {
			c.userBatches[caller] = prev
		} else {
			delete(c.userBatches, caller)
		}
	})

	if err := env.EmitEvent(ContractABI, "BatchExecuted", caller, ledger.U256(batchID), big.NewInt(int64(len(ops))), big.NewInt(int64(result.SuccessCount))); err != nil {
		return nil, err
	}
	return result, nil
}

// TotalBatchesExecuted 返回已提交的批次总数。
func (c *Contract) TotalBatchesExecuted() uint64 {
	var n uint64
	c.ledger.View(func() { n = c.totalBatches })
	return n
}

// UserBatchCount 返回 user 提交的批次数。
func (c *Contract) UserBatchCount(user common.Address) uint64 {
	var n uint64
	c.ledger.View(func() { n = c.userBatches[user] })
	return n
}

// Call 实现 ledger.Contract，接受普通转账。
func (c *Contract) Call(env *ledger.Env, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}
	method, args, err := ledger.DecodeCall(ContractABI, input)
	if err != nil {
		return nil, err
	}
	if err := ledger.RequireNonPayable(env); err != nil {
		return nil, err
	}
	switch method.Name {
	case "totalBatchesExecuted":
		return method.Outputs.Pack(ledger.U256(c.totalBatches))
	case "userBatchCount":
		user, _ := args[0].(common.Address)
		return method.Outputs.Pack(ledger.U256(c.userBatches[user]))
	case "estimateGas":
		n, ok := ledger.Uint64Arg(args[0])
		if !ok || n > MaxOperations {
			return nil, ErrInvalidOperationCount
		}
		return method.Outputs.Pack(ledger.U256(EstimateGas(int(n))))
	}
	return nil, ledger.ErrUnknownMethod
}
