// Package flow 实现工作流合约：由创建者执行一次的具名有序动作列表，可严格执行
// 也可容忍单个动作失败，并附带仅供参考的协议连接器登记表。
package flow

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"AIButler-Chain/internal/accounting"
	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/ledger"
)

// MaxActions 是单个工作流的动作数上限。
const MaxActions = 20

// ActionType 标注动作的用途，仅作说明。
type ActionType uint8

const (
	ActionTransfer ActionType = iota
	ActionSwap
	ActionStake
	ActionLend
	ActionBorrow
	ActionCustom
)

var actionTypeNames = [...]string{"transfer", "swap", "stake", "lend", "borrow", "custom"}

func (t ActionType) String() string {
	if int(t) < len(actionTypeNames) {
		return actionTypeNames[t]
	}
	return "unknown"
}

// ParseActionType 将名称（不区分大小写）解析为 ActionType。
func ParseActionType(name string) (ActionType, error) {
	for i, candidate := range actionTypeNames {
		if strings.EqualFold(candidate, strings.TrimSpace(name)) {
			return ActionType(i), nil
		}
	}
	return 0, ErrUnknownActionType
}

// Status 表示工作流的生命周期状态。
type Status uint8

const (
	StatusPending Status = iota
	StatusExecuting
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuting:
		return "executing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Action 是工作流中的一个步骤。
type Action struct {
	Type        ActionType
	Target      common.Address
	Data        []byte
	Value       *big.Int
	Description string
}

func (a Action) clone() Action {
	out := a
	out.Data = append([]byte(nil), a.Data...)
	out.Value = new(big.Int)
	if a.Value != nil {
		out.Value.Set(a.Value)
	}
	return out
}

// ActionResult 记录单个动作的执行结果。
type ActionResult struct {
	Index      int
	Success    bool
	ReturnData []byte
	Reason     string
}

// Workflow 是已登记的动作列表。
type Workflow struct {
	ID                  uint64
	Creator             common.Address
	Name                string
	Actions             []Action
	AllowPartialFailure bool
	Status              Status
	CreatedAt           uint64
	ExecutedAt          uint64
	SuccessCount        int
	Results             []ActionResult
}

func (w *Workflow) clone() Workflow {
	out := *w
	out.Actions = make([]Action, len(w.Actions))
	for i, a := range w.Actions {
		out.Actions[i] = a.clone()
	}
	out.Results = append([]ActionResult(nil), w.Results...)
	return out
}

// ExecutionResult 汇总一次工作流执行。
type ExecutionResult struct {
	WorkflowID   uint64
	Status       Status
	SuccessCount int
	Results      []ActionResult
	Refund       *big.Int
}

// Contract 是部署在账本上的工作流合约。
type Contract struct {
	ledger.Ownable

	ledger    *ledger.Ledger
	lastID    uint64
	workflows map[uint64]*Workflow
	byCreator map[common.Address][]uint64

	connectors     map[string]map[common.Address]bool
	connectorOrder map[string][]common.Address
}

// New 创建绑定到 l、由 owner 管理的工作流合约。
func New(l *ledger.Ledger, owner common.Address) *Contract {
	return &Contract{
		Ownable:        ledger.NewOwnable(owner),
		ledger:         l,
		workflows:      make(map[uint64]*Workflow),
		byCreator:      make(map[common.Address][]uint64),
		connectors:     make(map[string]map[common.Address]bool),
		connectorOrder: make(map[string][]common.Address),
	}
}

// CreateWorkflow 登记一个归 env.Caller() 所有的待执行工作流。
func (c *Contract) CreateWorkflow(env *ledger.Env, actions []Action, name string, allowPartialFailure bool) (uint64, error) {
	if err := ledger.RequireNonPayable(env); err != nil {
		return 0, err
	}
	return c.create(env, actions, name, allowPartialFailure)
}

// ExecuteWorkflow 执行工作流 id，仅创建者可在待执行状态下执行一次。
// 附带金额必须覆盖所有动作金额。
func (c *Contract) ExecuteWorkflow(env *ledger.Env, id uint64) (*ExecutionResult, error) {
	w, ok := c.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.execute(env, w)
}

// CreateAndExecuteWorkflow 在同一笔交易中创建并执行工作流。
func (c *Contract) CreateAndExecuteWorkflow(env *ledger.Env, actions []Action, name string, allowPartialFailure bool) (*ExecutionResult, error) {
	id, err := c.create(env, actions, name, allowPartialFailure)
	if err != nil {
		return nil, err
	}
	return c.execute(env, c.workflows[id])
}

// CancelWorkflow 取消待执行的工作流，仅创建者可取消。
func (c *Contract) CancelWorkflow(env *ledger.Env, id uint64) error {
	if err := ledger.RequireNonPayable(env); err != nil {
		return err
	}
	w, ok := c.workflows[id]
	if !ok {
		return ErrNotFound
	}
	if env.Caller() != w.Creator {
		return ErrCancelUnauthorized
	}
	if w.Status != StatusPending {
		return ErrNotPending
	}
	c.update(env, w, func(w *Workflow) { w.Status = StatusCancelled })
	return env.EmitEvent(ContractABI, "WorkflowCancelled", ledger.U256(id), w.Creator)
}

func (c *Contract) create(env *ledger.Env, actions []Action, name string, allowPartialFailure bool) (uint64, error) {
	if len(actions) == 0 || len(actions) > MaxActions {
		return 0, ErrInvalidActionCount
	}
	stored := make([]Action, len(actions))
	for i, a := range actions {
		if a.Type > ActionCustom {
			return 0, ErrUnknownActionType
		}
		if a.Value != nil && a.Value.Sign() < 0 {
			return 0, ledger.ErrNegativeValue
		}
		stored[i] = a.clone()
	}

	creator := env.Caller()
	id := c.lastID + 1
	c.workflows[id] = &Workflow{
		ID:                  id,
		Creator:             creator,
		Name:                name,
		Actions:             stored,
		AllowPartialFailure: allowPartialFailure,
		Status:              StatusPending,
		CreatedAt:           env.Now(),
	}
	c.lastID = id
	owned := len(c.byCreator[creator])
	c.byCreator[creator] = append(c.byCreator[creator], id)
	env.Journal(func() {
		delete(c.workflows, id)
		c.lastID = id - 1
		if owned == 0 {
			delete(c.byCreator, creator)
		} else {
			c.byCreator[creator] = c.byCreator[creator][:owned]
		}
	})

	if err := env.EmitEvent(ContractABI, "WorkflowCreated", ledger.U256(id), creator, name, big.NewInt(int64(len(stored)))); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Contract) execute(env *ledger.Env, w *Workflow) (*ExecutionResult, error) {
	if env.Caller() != w.Creator {
		return nil, ErrExecuteUnauthorized
	}
	if w.Status != StatusPending {
		return nil, ErrNotPending
	}
	values := make([]*big.Int, len(w.Actions))
	for i, a := range w.Actions {
		values[i] = a.Value
	}
	tally, err := accounting.NewTally(env.Value(), values)
	if err != nil {
		return nil, err
	}
	c.update(env, w, func(w *Workflow) { w.Status = StatusExecuting })

	results := make([]ActionResult, 0, len(w.Actions))
	successes := 0
	for i, a := range w.Actions {
		var (
			ret     []byte
			callErr error
		)
		if a.Target == (common.Address{}) {
			callErr = ErrInvalidActionTarget
		} else {
			ret, callErr = env.Call(a.Target, a.Value, a.Data)
		}
		if callErr != nil && !w.AllowPartialFailure {
			return nil, xerrors.Wrap(CodeActionFailed, callErr, fmt.Sprintf("action %d failed", i))
		}
		res := ActionResult{Index: i, Success: callErr == nil, ReturnData: ret}
		if callErr != nil {
			res.Reason = xerrors.Reason(callErr)
		} else {
			tally.Consume(a.Value)
			successes++
		}
		results = append(results, res)
		if err := env.EmitEvent(ContractABI, "ActionExecuted", ledger.U256(w.ID), big.NewInt(int64(i)), res.Success); err != nil {
			return nil, err
		}
	}

	final := StatusCompleted
	if successes < len(w.Actions) {
		final = StatusFailed
	}
	now := env.Now()
	c.update(env, w, func(w *Workflow) {
		w.Status = final
		w.ExecutedAt = now
		w.SuccessCount = successes
		w.Results = results
	})

	refund, err := accounting.Settle(env, tally)
	if err != nil {
		return nil, err
	}
	if err := env.EmitEvent(ContractABI, "WorkflowExecuted", ledger.U256(w.ID), env.Caller(), final == StatusCompleted, big.NewInt(int64(successes))); err != nil {
		return nil, err
	}
	return &ExecutionResult{
		WorkflowID:   w.ID,
		Status:       final,
		SuccessCount: successes,
		Results:      append([]ActionResult(nil), results...),
		Refund:       refund,
	}, nil
}

func (c *Contract) update(env *ledger.Env, w *Workflow, mutate func(*Workflow)) {
	prev := *w
	mutate(w)
	env.Journal(func() { *w = prev })
}

// GetWorkflow 返回工作流 id 的副本。
func (c *Contract) GetWorkflow(id uint64) (Workflow, error) {
	var (
		out Workflow
		err error
	)
	c.ledger.View(func() {
		w, ok := c.workflows[id]
		if !ok {
			err = ErrNotFound
			return
		}
		out = w.clone()
	})
	return out, err
}

// GetWorkflowAction 返回工作流 id 的第 index 个动作。
func (c *Contract) GetWorkflowAction(id uint64, index int) (Action, error) {
	var (
		out Action
		err error
	)
	c.ledger.View(func() {
		w, ok := c.workflows[id]
		if !ok {
			err = ErrNotFound
			return
		}
		if index < 0 || index >= len(w.Actions) {
			err = ErrInvalidIndex
			return
		}
		out = w.Actions[index].clone()
	})
	return out, err
}

// GetUserWorkflows 按创建顺序返回 user 创建的工作流。
func (c *Contract) GetUserWorkflows(user common.Address) []uint64 {
	var out []uint64
	c.ledger.View(func() {
		out = append([]uint64(nil), c.byCreator[user]...)
	})
	return out
}

// WorkflowCount 返回累计创建的工作流数。
func (c *Contract) WorkflowCount() uint64 {
	var n uint64
	c.ledger.View(func() { n = c.lastID })
	return n
}

// Owner 返回管理员地址。
func (c *Contract) Owner() common.Address {
	var owner common.Address
	c.ledger.View(func() { owner = c.OwnerOf() })
	return owner
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
	switch method.Name {
	case "executeWorkflow":
		id, ok := ledger.Uint64Arg(args[0])
		if !ok {
			return nil, ErrNotFound
		}
		res, err := c.ExecuteWorkflow(env, id)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(res.Status == StatusCompleted)
	case "cancelWorkflow":
		id, ok := ledger.Uint64Arg(args[0])
		if !ok {
			return nil, ErrNotFound
		}
		if err := c.CancelWorkflow(env, id); err != nil {
			return nil, err
		}
		return method.Outputs.Pack()
	case "registerConnector":
		name, _ := args[0].(string)
		connector, _ := args[1].(common.Address)
		if err := c.RegisterConnector(env, name, connector); err != nil {
			return nil, err
		}
		return method.Outputs.Pack()
	case "isConnectorRegistered":
		if err := ledger.RequireNonPayable(env); err != nil {
			return nil, err
		}
		name, _ := args[0].(string)
		connector, _ := args[1].(common.Address)
		return method.Outputs.Pack(c.connectors[name][connector])
	}
	return nil, ledger.ErrUnknownMethod
}
