package keeper

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/observability/alerting"
	"AIButler-Chain/internal/observability/metrics"
	"AIButler-Chain/internal/schedule"
	"AIButler-Chain/pkg/logger"
)

// keeper 相关错误码。
const (
	CodeKeeperExecution xerrors.Code = "KEEPER_EXECUTION_FAILED"
	CodeKeeperPublish   xerrors.Code = "KEEPER_PUBLISH_FAILED"
)

func init() {
	xerrors.Register(CodeKeeperExecution, xerrors.Attributes{
		Message:  "定时交易执行失败",
		Kind:     xerrors.KindInternal,
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeKeeperPublish, xerrors.Attributes{
		Message:   "定时交易投递失败",
		Kind:      xerrors.KindInternal,
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// 单个任务的处理结果，同时作为指标标签。
const (
	OutcomeExecuted = "executed"
	OutcomeReverted = "inner_reverted"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Executor 定义了 keeper 所需的定时交易能力。
type Executor interface {
	ReadySchedules(limit int) []uint64
	ExecuteScheduledTransaction(ctx context.Context, from common.Address, id uint64) (*schedule.ExecutionResult, *ledger.Receipt, error)
}

// Locker 用于多实例部署时选出唯一的轮询者。
type Locker interface {
	// TryAcquire 获取或续约锁，返回当前实例是否持有锁。
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Stats 汇总 keeper 的处理情况。
type Stats struct {
	Enqueued uint64 `json:"enqueued"`
	Executed uint64 `json:"executed"`
	Reverted uint64 `json:"inner_reverted"`
	Skipped  uint64 `json:"skipped"`
	Failed   uint64 `json:"failed"`
}

// Keeper 周期性扫描到期的定时交易，投递到队列并由工作协程以 keeper 账户触发执行。
type Keeper struct {
	executor     Executor
	queue        Queue
	account      common.Address
	interval     time.Duration
	workerCount  int
	batchLimit   int
	locker       Locker
	alerter      alerting.Dispatcher
	logger       *slog.Logger
	inflight     sync.Map
	enqueued     atomic.Uint64
	executed     atomic.Uint64
	reverted     atomic.Uint64
	skipped      atomic.Uint64
	failed       atomic.Uint64
	leaderActive atomic.Bool
}

// Option 定义可选配置。
type Option func(*Keeper)

// WithPollInterval 设置扫描间隔。
func WithPollInterval(interval time.Duration) Option {
	return func(k *Keeper) {
		if interval > 0 {
			k.interval = interval
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) Option {
	return func(k *Keeper) {
		if workers > 0 {
			k.workerCount = workers
		}
	}
}

// WithBatchLimit 设置单次扫描最多投递的定时交易数量。
func WithBatchLimit(limit int) Option {
	return func(k *Keeper) {
		if limit > 0 {
			k.batchLimit = limit
		}
	}
}

// WithLocker 配置分布式锁。
func WithLocker(locker Locker) Option {
	return func(k *Keeper) {
		k.locker = locker
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(k *Keeper) {
		k.alerter = dispatcher
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(k *Keeper) {
		if l != nil {
			k.logger = l
		}
	}
}

// New 构造 Keeper，account 为触发执行时使用的账户。
func New(executor Executor, queue Queue, account common.Address, opts ...Option) (*Keeper, error) {
	if executor == nil || queue == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "keeper 缺少执行器或队列")
	}
	if account == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "keeper 账户地址不能为空")
	}
	k := &Keeper{
		executor:    executor,
		queue:       queue,
		account:     account,
		interval:    5 * time.Second,
		workerCount: 1,
		batchLimit:  100,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	if k.logger == nil {
		k.logger = logger.Named("keeper")
	}
	return k, nil
}

// Account 返回 keeper 账户。
func (k *Keeper) Account() common.Address { return k.account }

// Stats 返回处理统计。
func (k *Keeper) Stats() Stats {
	return Stats{
		Enqueued: k.enqueued.Load(),
		Executed: k.executed.Load(),
		Reverted: k.reverted.Load(),
		Skipped:  k.skipped.Load(),
		Failed:   k.failed.Load(),
	}
}

// Run 启动消费协程与扫描循环，直到 ctx 结束。
func (k *Keeper) Run(ctx context.Context) error {
	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- k.queue.Consume(ctx, k.workerCount, k.handle)
	}()

	k.logger.Info("keeper 已启动",
		slog.String("account", k.account.Hex()),
		slog.Duration("interval", k.interval),
		slog.Int("workers", k.workerCount))

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	defer k.releaseLeadership()

	for {
		if _, err := k.Poll(ctx); err != nil && ctx.Err() == nil {
			k.logger.Error("扫描定时交易失败", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			err := <-consumeErr
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		case err := <-consumeErr:
			if ctx.Err() != nil {
				return nil
			}
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "队列消费已退出")
		case <-ticker.C:
		}
	}
}

// Poll 扫描一次到期的定时交易并投递到队列，返回新投递的数量。
func (k *Keeper) Poll(ctx context.Context) (int, error) {
	if k.locker != nil {
		leader, err := k.locker.TryAcquire(ctx)
		if err != nil {
			return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取 keeper 锁失败")
		}
		if k.leaderActive.Swap(leader) != leader {
			k.logger.Info("keeper 领导权变更", slog.Bool("leader", leader))
		}
		if !leader {
			return 0, nil
		}
	}

	published := 0
	for _, id := range k.executor.ReadySchedules(k.batchLimit) {
		job := strconv.FormatUint(id, 10)
		if _, busy := k.inflight.LoadOrStore(job, struct{}{}); busy {
			continue
		}
		if err := k.queue.Publish(ctx, job); err != nil {
			k.inflight.Delete(job)
			wrapped := xerrors.Wrap(CodeKeeperPublish, err, "投递定时交易 "+job+" 失败")
			k.emitAlert(ctx, job, CodeKeeperPublish, wrapped, "publish")
			return published, wrapped
		}
		published++
	}
	if published > 0 {
		k.enqueued.Add(uint64(published))
		metrics.ObserveKeeperEnqueued(published)
		k.logger.Debug("已投递到期定时交易", slog.Int("count", published))
	}
	return published, nil
}

func (k *Keeper) handle(ctx context.Context, job string) error {
	defer k.inflight.Delete(job)

	id, err := strconv.ParseUint(job, 10, 64)
	if err != nil {
		k.logger.Warn("忽略无效任务", slog.String("job", job))
		k.record(OutcomeFailed)
		return nil
	}

	result, receipt, err := k.executor.ExecuteScheduledTransaction(ctx, k.account, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if skippable(err) {
			k.logger.Debug("跳过定时交易",
				slog.Uint64("schedule_id", id),
				slog.String("reason", xerrors.Reason(err)))
			k.record(OutcomeSkipped)
			return nil
		}
		k.logger.Error("定时交易执行失败",
			slog.Uint64("schedule_id", id),
			slog.String("code", string(xerrors.CodeOf(err))),
			slog.Any("error", err))
		k.record(OutcomeFailed)
		k.emitAlert(ctx, job, CodeKeeperExecution, err, "execute")
		return nil
	}

	attrs := []any{
		slog.Uint64("schedule_id", id),
		slog.String("tx_hash", receipt.TxHash.Hex()),
		slog.Uint64("block", receipt.BlockNumber),
	}
	if !result.Success {
		k.logger.Warn("定时交易目标调用失败，托管金额已退回", append(attrs, slog.String("reason", result.Reason))...)
		k.record(OutcomeReverted)
		return nil
	}
	k.logger.Info("定时交易已由 keeper 执行", attrs...)
	k.record(OutcomeExecuted)
	return nil
}

// skippable 判断错误是否来自正常的竞争或时序，例如其他执行者已抢先执行。
func skippable(err error) bool {
	return errors.Is(err, schedule.ErrNotPending) ||
		errors.Is(err, schedule.ErrTooEarly) ||
		errors.Is(err, schedule.ErrWindowExpired) ||
		errors.Is(err, schedule.ErrNotFound)
}

func (k *Keeper) record(outcome string) {
	switch outcome {
	case OutcomeExecuted:
		k.executed.Add(1)
	case OutcomeReverted:
		k.reverted.Add(1)
	case OutcomeSkipped:
		k.skipped.Add(1)
	case OutcomeFailed:
		k.failed.Add(1)
	}
	metrics.ObserveKeeperJob(outcome)
}

func (k *Keeper) releaseLeadership() {
	if k.locker == nil || !k.leaderActive.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := k.locker.Release(ctx); err != nil {
		k.logger.Warn("释放 keeper 锁失败", slog.Any("error", err))
	}
	k.leaderActive.Store(false)
}

func (k *Keeper) emitAlert(ctx context.Context, job string, code xerrors.Code, cause error, stage string) {
	if k.alerter == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:     code,
		Message:  attrs.Message,
		Severity: attrs.Severity,
		Subject:  "schedule/" + job,
		Metadata: map[string]string{
			"stage":    stage,
			"keeper":   k.account.Hex(),
			"reason":   xerrors.Reason(cause),
			"err_code": string(xerrors.CodeOf(cause)),
		},
		OccurredAt: time.Now(),
	}
	if err := k.alerter.Notify(ctx, event); err != nil {
		k.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("job", job),
			slog.String("stage", stage))
	}
}
