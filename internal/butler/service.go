package butler

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"AIButler-Chain/internal/batch"
	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/flow"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/observability/metrics"
	"AIButler-Chain/internal/schedule"
	"AIButler-Chain/pkg/logger"
)

// 合约部署名称。
const (
	BatchContractName    = "BatchTransactions"
	ScheduleContractName = "ScheduledTransactions"
	FlowContractName     = "FlowActions"
)

// CodeFaucetDisabled 表示开发水龙头未开启。
const CodeFaucetDisabled xerrors.Code = "BUTLER_FAUCET_DISABLED"

// ErrFaucetDisabled 在未开启水龙头时调用 Fund 返回。
var ErrFaucetDisabled = xerrors.New(CodeFaucetDisabled, "faucet disabled")

func init() {
	xerrors.Register(CodeFaucetDisabled, xerrors.Attributes{
		Message:  "faucet disabled",
		Kind:     xerrors.KindAuthorization,
		Severity: xerrors.SeverityInfo,
	})
}

// Deployment 描述一个已部署的合约。
type Deployment struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// Addresses 汇总三个核心合约的地址。
type Addresses struct {
	Batch    common.Address
	Schedule common.Address
	Flow     common.Address
}

type options struct {
	minDelay uint64
	maxDelay uint64
	faucet   bool
	logger   *slog.Logger
}

// Option 用于定制 Service。
type Option func(*options)

// WithDelayBounds 覆盖定时交易的默认延迟范围（秒）。
func WithDelayBounds(minDelay, maxDelay uint64) Option {
	return func(o *options) {
		o.minDelay = minDelay
		o.maxDelay = maxDelay
	}
}

// WithFaucet 开启开发环境水龙头。
func WithFaucet(enabled bool) Option {
	return func(o *options) {
		o.faucet = enabled
	}
}

// WithLogger 指定服务日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Service 在同一账本上部署批量、定时与工作流三个合约，并以事务为单位对外提供操作。
type Service struct {
	ledger   *ledger.Ledger
	owner    common.Address
	batch    *batch.Contract
	schedule *schedule.Contract
	flow     *flow.Contract
	addrs    Addresses
	faucet   bool
	logger   *slog.Logger
}

// New 部署三个核心合约，owner 成为定时合约与工作流合约的管理员。
func New(l *ledger.Ledger, owner common.Address, opts ...Option) (*Service, error) {
	if l == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "账本未初始化")
	}
	if owner == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "合约管理员地址不能为空")
	}
	o := options{
		minDelay: schedule.DefaultMinDelay,
		maxDelay: schedule.DefaultMaxDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.maxDelay == 0 || o.minDelay > o.maxDelay {
		return nil, schedule.ErrInvalidDelayBounds
	}
	if o.logger == nil {
		o.logger = logger.Named("butler")
	}

	s := &Service{
		ledger:   l,
		owner:    owner,
		batch:    batch.New(l),
		schedule: schedule.New(l, owner, schedule.WithDelayBounds(o.minDelay, o.maxDelay)),
		flow:     flow.New(l, owner),
		faucet:   o.faucet,
		logger:   o.logger,
	}
	s.addrs = Addresses{
		Batch:    l.Deploy(owner, BatchContractName, s.batch),
		Schedule: l.Deploy(owner, ScheduleContractName, s.schedule),
		Flow:     l.Deploy(owner, FlowContractName, s.flow),
	}
	s.logger.Info("核心合约已部署",
		slog.String("owner", owner.Hex()),
		slog.String("batch", s.addrs.Batch.Hex()),
		slog.String("schedule", s.addrs.Schedule.Hex()),
		slog.String("flow", s.addrs.Flow.Hex()))
	return s, nil
}

// Addresses 返回核心合约地址。
func (s *Service) Addresses() Addresses { return s.addrs }

// Owner 返回合约管理员。
func (s *Service) Owner() common.Address { return s.owner }

// Ledger 返回底层账本。
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Deployments 返回核心合约及其 ABI，供事件索引器解码日志。
func (s *Service) Deployments() []Deployment {
	return []Deployment{
		{Name: BatchContractName, Address: s.addrs.Batch, ABI: batch.ContractABI},
		{Name: ScheduleContractName, Address: s.addrs.Schedule, ABI: schedule.ContractABI},
		{Name: FlowContractName, Address: s.addrs.Flow, ABI: flow.ContractABI},
	}
}

// Balance 返回账户余额。
func (s *Service) Balance(addr common.Address) *big.Int {
	return s.ledger.Balance(addr)
}

// Fund 通过开发水龙头为账户充值。
func (s *Service) Fund(addr common.Address, amount *big.Int) error {
	if !s.faucet {
		return ErrFaucetDisabled
	}
	if err := s.ledger.Mint(addr, amount); err != nil {
		return err
	}
	logger.Audit().Info("水龙头充值", slog.String("address", addr.Hex()), slog.String("amount", amount.String()))
	return nil
}

// transact 执行一笔账本交易，并统一记录指标与审计日志。
func (s *Service) transact(ctx context.Context, contract, method string, msg ledger.Message, fn func(env *ledger.Env) error) (*ledger.Receipt, error) {
	start := time.Now()
	receipt, err := s.ledger.Execute(ctx, msg, fn)
	status := "success"
	if err != nil {
		status = string(xerrors.KindOf(err))
	}
	metrics.ObserveTransaction(contract, method, status, time.Since(start))

	attrs := []any{
		slog.String("contract", contract),
		slog.String("method", method),
		slog.String("from", msg.From.Hex()),
	}
	if receipt != nil {
		attrs = append(attrs, slog.String("tx_hash", receipt.TxHash.Hex()), slog.Uint64("block", receipt.BlockNumber))
	}
	if err != nil {
		attrs = append(attrs, slog.String("code", string(xerrors.CodeOf(err))), slog.String("reason", xerrors.Reason(err)))
		s.logger.Debug("交易被回滚", attrs...)
		return receipt, err
	}
	logger.Audit().Info("交易已提交", attrs...)
	return receipt, nil
}
