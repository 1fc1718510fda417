// Package schedule 实现定时交易合约：创建时托管一次调用的金额，到达执行时间
// 且执行窗口未关闭时，任何账户都可以触发执行。
package schedule

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/ledger"
)

const (
	// DefaultMinDelay 是允许的最短延迟，单位秒。
	DefaultMinDelay uint64 = 60
	// DefaultMaxDelay 是允许的最长延迟，单位秒。
	DefaultMaxDelay uint64 = 365 * 24 * 60 * 60
)

// Status 表示定时交易的生命周期状态。
type Status uint8

const (
	StatusPending Status = iota
	StatusExecuted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request 描述一次待延迟执行的调用。
type Request struct {
	Target        common.Address
	Value         *big.Int
	Data          []byte
	ExecuteAfter  uint64
	ExecuteWindow uint64
	Description   string
}

// Schedule 是已登记的定时交易。
type Schedule struct {
	ID            uint64
	Creator       common.Address
	Target        common.Address
	Value         *big.Int
	Data          []byte
	ExecuteAfter  uint64
	ExecuteWindow uint64
	Description   string
	Status        Status
	CreatedAt     uint64
	ExecutedAt    uint64
	CancelledAt   uint64
	Executor      common.Address
	Success       bool
	ReturnData    []byte
	Reason        string
}

func (s *Schedule) clone() Schedule {
	out := *s
	out.Value = new(big.Int).Set(s.Value)
	out.Data = append([]byte(nil), s.Data...)
	out.ReturnData = append([]byte(nil), s.ReturnData...)
	return out
}

// ExecutionResult 记录一次执行的结果。
type ExecutionResult struct {
	ScheduleID uint64
	Success    bool
	ReturnData []byte
	Reason     string
}

// Option 自定义 Contract。
type Option func(*Contract)

// WithDelayBounds 覆盖默认的延迟范围。
func WithDelayBounds(minDelay, maxDelay uint64) Option {
	return func(c *Contract) {
		c.minDelay = minDelay
		c.maxDelay = maxDelay
	}
}

// Contract 是部署在账本上的定时交易合约。
type Contract struct {
	ledger.Ownable

	ledger    *ledger.Ledger
	minDelay  uint64
	maxDelay  uint64
	lastID    uint64
	schedules map[uint64]*Schedule
	byCreator map[common.Address][]uint64
}

// New 创建绑定到 l、由 owner 管理的定时交易合约。
func New(l *ledger.Ledger, owner common.Address, opts ...Option) *Contract {
	c := &Contract{
		Ownable:   ledger.NewOwnable(owner),
		ledger:    l,
		minDelay:  DefaultMinDelay,
		maxDelay:  DefaultMaxDelay,
		schedules: make(map[uint64]*Schedule),
		byCreator: make(map[common.Address][]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ScheduleTransaction 以 env.Caller() 身份登记 req，并从附带金额中托管
// req.Value，多余部分立即退还。
func (c *Contract) ScheduleTransaction(env *ledger.Env, req Request) (uint64, error) {
	if req.Target == (common.Address{}) {
		return 0, ErrInvalidTarget
	}
	now := env.Now()
	if req.ExecuteAfter <= now {
		return 0, ErrExecuteAfterInPast
	}
	delay := req.ExecuteAfter - now
	if delay < c.minDelay {
		return 0, ErrDelayTooShort
	}
	if delay > c.maxDelay {
		return 0, ErrDelayTooLong
	}
	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	if value.Sign() < 0 {
		return 0, ledger.ErrNegativeValue
	}
	attached := env.Value()
	if attached.Cmp(value) < 0 {
		return 0, ErrInsufficientFunds
	}

	creator := env.Caller()
	id := c.lastID + 1
	c.schedules[id] = &Schedule{
		ID:            id,
		Creator:       creator,
		Target:        req.Target,
		Value:         value,
		Data:          append([]byte(nil), req.Data...),
		ExecuteAfter:  req.ExecuteAfter,
		ExecuteWindow: req.ExecuteWindow,
		Description:   req.Description,
		Status:        StatusPending,
		CreatedAt:     now,
	}
	c.lastID = id
	owned := len(c.byCreator[creator])
	c.byCreator[creator] = append(c.byCreator[creator], id)
	env.Journal(func() {
		delete(c.schedules, id)
		c.lastID = id - 1
		if owned == 0 {
			delete(c.byCreator, creator)
		} else {
			c.byCreator[creator] = c.byCreator[creator][:owned]
		}
	})

	if excess := new(big.Int).Sub(attached, value); excess.Sign() > 0 {
		if err := env.Transfer(creator, excess); err != nil {
			return 0, err
		}
	}

	if err := env.EmitEvent(ContractABI, "TransactionScheduled",
		ledger.U256(id), creator, req.Target, value,
		ledger.U256(req.ExecuteAfter), ledger.U256(req.ExecuteWindow), req.Description); err != nil {
		return 0, err
	}
	return id, nil
}

// ExecuteScheduledTransaction 执行定时交易 id，就绪后任何账户都可以触发。
// 调用目标之前先标记为已执行；调用失败时托管金额退还给创建者。
func (c *Contract) ExecuteScheduledTransaction(env *ledger.Env, id uint64) (*ExecutionResult, error) {
	if err := ledger.RequireNonPayable(env); err != nil {
		return nil, err
	}
	s, ok := c.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := readiness(s, env.Now()); err != nil {
		return nil, err
	}

	executor := env.Caller()
	now := env.Now()
	c.update(env, s, func(s *Schedule) {
		s.Status = StatusExecuted
		s.ExecutedAt = now
		s.Executor = executor
	})

	ret, callErr := env.Call(s.Target, s.Value, s.Data)
	result := &ExecutionResult{ScheduleID: id, Success: callErr == nil, ReturnData: ret}
	if callErr != nil {
		result.Reason = xerrors.Reason(callErr)
		if err := env.Transfer(s.Creator, s.Value); err != nil {
			return nil, xerrors.Wrap(CodeEscrowRefundFailure, err, "escrow refund failed")
		}
	}
	c.update(env, s, func(s *Schedule) {
		s.Success = result.Success
		s.ReturnData = ret
		s.Reason = result.Reason
	})

	if ret == nil {
		ret = []byte{}
	}
	if err := env.EmitEvent(ContractABI, "TransactionExecuted", ledger.U256(id), executor, result.Success, ret); err != nil {
		return nil, err
	}
	return result, nil
}

// CancelScheduledTransaction 取消待执行的定时交易并退还托管金额，仅创建者可取消。
func (c *Contract) CancelScheduledTransaction(env *ledger.Env, id uint64) error {
	if err := ledger.RequireNonPayable(env); err != nil {
		return err
	}
	s, ok := c.schedules[id]
	if !ok {
		return ErrNotFound
	}
	if env.Caller() != s.Creator {
		return ErrUnauthorized
	}
	if s.Status != StatusPending {
		return ErrNotPending
	}
	now := env.Now()
	c.update(env, s, func(s *Schedule) {
		s.Status = StatusCancelled
		s.CancelledAt = now
	})
	if err := env.Transfer(s.Creator, s.Value); err != nil {
		return err
	}
	return env.EmitEvent(ContractABI, "TransactionCancelled", ledger.U256(id), s.Creator, new(big.Int).Set(s.Value))
}

// SetDelayBounds 修改允许的延迟范围，仅管理员可调用。
func (c *Contract) SetDelayBounds(env *ledger.Env, minDelay, maxDelay uint64) error {
	if err := c.OnlyOwner(env); err != nil {
		return err
	}
	if maxDelay == 0 || minDelay > maxDelay {
		return ErrInvalidDelayBounds
	}
	prevMin, prevMax := c.minDelay, c.maxDelay
	c.minDelay, c.maxDelay = minDelay, maxDelay
	env.Journal(func() { c.minDelay, c.maxDelay = prevMin, prevMax })
	return env.EmitEvent(ContractABI, "DelayBoundsUpdated", ledger.U256(minDelay), ledger.U256(maxDelay))
}

func (c *Contract) update(env *ledger.Env, s *Schedule, mutate func(*Schedule)) {
	prev := *s
	mutate(s)
	env.Journal(func() { *s = prev })
}

func readiness(s *Schedule, now uint64) error {
	if s.Status != StatusPending {
		return ErrNotPending
	}
	if now < s.ExecuteAfter {
		return ErrTooEarly
	}
	if s.ExecuteWindow > 0 && now-s.ExecuteAfter > s.ExecuteWindow {
		return ErrWindowExpired
	}
	return nil
}

// IsReadyToExecute 判断 id 在账本当前时间是否可执行。
func (c *Contract) IsReadyToExecute(id uint64) bool {
	return c.Readiness(id) == nil
}

// Readiness 返回 id 不可执行的原因，可执行时返回 nil。
func (c *Contract) Readiness(id uint64) error {
	now := c.ledger.Now()
	var err error
	c.ledger.View(func() {
		s, ok := c.schedules[id]
		if !ok {
			err = ErrNotFound
			return
		}
		err = readiness(s, now)
	})
	return err
}

// IsExpired 判断待执行的定时交易窗口是否已关闭。过期交易的托管金额保留到创建者取消为止。
func (c *Contract) IsExpired(id uint64) bool {
	return xerrors.CodeOf(c.Readiness(id)) == CodeWindowExpired
}

// GetSchedule 返回定时交易 id 的副本。
func (c *Contract) GetSchedule(id uint64) (Schedule, error) {
	var (
		out Schedule
		err error
	)
	c.ledger.View(func() {
		s, ok := c.schedules[id]
		if !ok {
			err = ErrNotFound
			return
		}
		out = s.clone()
	})
	return out, err
}

// GetUserSchedules 按创建顺序返回 user 创建的定时交易。
func (c *Contract) GetUserSchedules(user common.Address) []uint64 {
	var out []uint64
	c.ledger.View(func() {
		out = append([]uint64(nil), c.byCreator[user]...)
	})
	return out
}

// ScheduleCount 返回累计创建的定时交易数。
func (c *Contract) ScheduleCount() uint64 {
	var n uint64
	c.ledger.View(func() { n = c.lastID })
	return n
}

// PendingSchedules 升序返回全部待执行的定时交易。
func (c *Contract) PendingSchedules() []uint64 {
	var out []uint64
	c.ledger.View(func() {
		for id, s := range c.schedules {
			if s.Status == StatusPending {
				out = append(out, id)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReadySchedules 升序返回当前可执行的定时交易，最多 limit 个，limit 非正表示不限。
func (c *Contract) ReadySchedules(limit int) []uint64 {
	now := c.ledger.Now()
	var out []uint64
	c.ledger.View(func() {
		for id, s := range c.schedules {
			if readiness(s, now) == nil {
				out = append(out, id)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DelayBounds 返回允许的延迟范围，单位秒。
func (c *Contract) DelayBounds() (minDelay, maxDelay uint64) {
	c.ledger.View(func() { minDelay, maxDelay = c.minDelay, c.maxDelay })
	return minDelay, maxDelay
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
	case "scheduleTransaction":
		req, err := decodeRequest(args)
		if err != nil {
			return nil, err
		}
		id, err := c.ScheduleTransaction(env, req)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(ledger.U256(id))
	case "executeScheduledTransaction":
		id, ok := ledger.Uint64Arg(args[0])
		if !ok {
			return nil, ErrNotFound
		}
		res, err := c.ExecuteScheduledTransaction(env, id)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(res.Success)
	case "cancelScheduledTransaction":
		id, ok := ledger.Uint64Arg(args[0])
		if !ok {
			return nil, ErrNotFound
		}
		if err := c.CancelScheduledTransaction(env, id); err != nil {
			return nil, err
		}
		return method.Outputs.Pack()
	case "isReadyToExecute":
		if err := ledger.RequireNonPayable(env); err != nil {
			return nil, err
		}
		id, _ := ledger.Uint64Arg(args[0])
		s, ok := c.schedules[id]
		return method.Outputs.Pack(ok && readiness(s, env.Now()) == nil)
	}
	return nil, ledger.ErrUnknownMethod
}

func decodeRequest(args []any) (Request, error) {
	target, _ := args[0].(common.Address)
	value, _ := args[1].(*big.Int)
	data, _ := args[2].([]byte)
	executeAfter, ok := ledger.Uint64Arg(args[3])
	if !ok {
		return Request{}, ErrDelayTooLong
	}
	window, ok := ledger.Uint64Arg(args[4])
	if !ok {
		return Request{}, ErrDelayTooLong
	}
	description, _ := args[5].(string)
	return Request{
		Target:        target,
		Value:         value,
		Data:          data,
		ExecuteAfter:  executeAfter,
		ExecuteWindow: window,
		Description:   description,
	}, nil
}
