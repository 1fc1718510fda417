package butler

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"AIButler-Chain/internal/batch"
	"AIButler-Chain/internal/flow"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/schedule"
	"AIButler-Chain/pkg/logger"
)

// ExecuteBatch 以 from 身份提交一个批量交易。
func (s *Service) ExecuteBatch(ctx context.Context, from common.Address, value *big.Int, ops []batch.Operation, requireAllSuccess bool) (*batch.Result, *ledger.Receipt, error) {
	var result *batch.Result
	receipt, err := s.transact(ctx, BatchContractName, "executeBatch", ledger.Message{From: from, To: s.addrs.Batch, Value: value}, func(env *ledger.Env) error {
		res, err := s.batch.ExecuteBatch(env, ops, requireAllSuccess)
		result = res
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	logger.Audit().Info("批量交易已执行",
		slog.Uint64("batch_id", result.BatchID),
		slog.String("caller", from.Hex()),
		slog.Int("operations", result.OperationCount),
		slog.Int("succeeded", result.SuccessCount),
		slog.String("refund", result.Refund.String()))
	return result, receipt, nil
}

// EstimateGas 返回批量交易的预估 gas。
func (s *Service) EstimateGas(operationCount int) uint64 {
	return batch.EstimateGas(operationCount)
}

// BatchStats 返回批量交易总数以及指定用户提交的数量。
func (s *Service) BatchStats(user common.Address) (total, userCount uint64) {
	return s.batch.TotalBatchesExecuted(), s.batch.UserBatchCount(user)
}

// ScheduleTransaction 以 from 身份登记一笔定时交易，value 为随交易附带的金额。
func (s *Service) ScheduleTransaction(ctx context.Context, from common.Address, value *big.Int, req schedule.Request) (uint64, *ledger.Receipt, error) {
	var id uint64
	receipt, err := s.transact(ctx, ScheduleContractName, "scheduleTransaction", ledger.Message{From: from, To: s.addrs.Schedule, Value: value}, func(env *ledger.Env) error {
		var err error
		id, err = s.schedule.ScheduleTransaction(env, req)
		return err
	})
	if err != nil {
		return 0, receipt, err
	}
	logger.Audit().Info("定时交易已登记",
		slog.Uint64("schedule_id", id),
		slog.String("creator", from.Hex()),
		slog.String("target", req.Target.Hex()),
		slog.Uint64("execute_after", req.ExecuteAfter),
		slog.Uint64("execute_window", req.ExecuteWindow))
	return id, receipt, nil
}

// ExecuteScheduledTransaction 以 from 身份触发定时交易，任何账户都可以触发。
func (s *Service) ExecuteScheduledTransaction(ctx context.Context, from common.Address, id uint64) (*schedule.ExecutionResult, *ledger.Receipt, error) {
	var result *schedule.ExecutionResult
	receipt, err := s.transact(ctx, ScheduleContractName, "executeScheduledTransaction", ledger.Message{From: from, To: s.addrs.Schedule}, func(env *ledger.Env) error {
		res, err := s.schedule.ExecuteScheduledTransaction(env, id)
		result = res
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	logger.Audit().Info("定时交易已执行",
		slog.Uint64("schedule_id", id),
		slog.String("executor", from.Hex()),
		slog.Bool("success", result.Success),
		slog.String("reason", result.Reason))
	return result, receipt, nil
}

// CancelScheduledTransaction 取消定时交易并退还托管金额，仅创建者可调用。
func (s *Service) CancelScheduledTransaction(ctx context.Context, from common.Address, id uint64) (*ledger.Receipt, error) {
	receipt, err := s.transact(ctx, ScheduleContractName, "cancelScheduledTransaction", ledger.Message{From: from, To: s.addrs.Schedule}, func(env *ledger.Env) error {
		return s.schedule.CancelScheduledTransaction(env, id)
	})
	if err != nil {
		return receipt, err
	}
	logger.Audit().Info("定时交易已取消", slog.Uint64("schedule_id", id), slog.String("creator", from.Hex()))
	return receipt, nil
}

// SetDelayBounds 调整定时交易的延迟范围，仅管理员可调用。
func (s *Service) SetDelayBounds(ctx context.Context, from common.Address, minDelay, maxDelay uint64) (*ledger.Receipt, error) {
	return s.transact(ctx, ScheduleContractName, "setDelayBounds", ledger.Message{From: from, To: s.addrs.Schedule}, func(env *ledger.Env) error {
		return s.schedule.SetDelayBounds(env, minDelay, maxDelay)
	})
}

// IsReadyToExecute 判断定时交易当前是否可执行。
func (s *Service) IsReadyToExecute(id uint64) bool { return s.schedule.IsReadyToExecute(id) }

// ScheduleReadiness 返回定时交易不可执行的原因，可执行时返回 nil。
func (s *Service) ScheduleReadiness(id uint64) error { return s.schedule.Readiness(id) }

// GetSchedule 返回定时交易详情。
func (s *Service) GetSchedule(id uint64) (schedule.Schedule, error) {
	return s.schedule.GetSchedule(id)
}

// GetUserSchedules 返回用户创建的定时交易编号。
func (s *Service) GetUserSchedules(user common.Address) []uint64 {
	return s.schedule.GetUserSchedules(user)
}

// ReadySchedules 返回当前可执行的定时交易编号。
func (s *Service) ReadySchedules(limit int) []uint64 { return s.schedule.ReadySchedules(limit) }

// PendingSchedules 返回所有待执行的定时交易编号。
func (s *Service) PendingSchedules() []uint64 { return s.schedule.PendingSchedules() }

// DelayBounds 返回当前延迟范围。
func (s *Service) DelayBounds() (uint64, uint64) { return s.schedule.DelayBounds() }

// CreateWorkflow 以 from 身份创建工作流。
func (s *Service) CreateWorkflow(ctx context.Context, from common.Address, actions []flow.Action, name string, allowPartialFailure bool) (uint64, *ledger.Receipt, error) {
	var id uint64
	receipt, err := s.transact(ctx, FlowContractName, "createWorkflow", ledger.Message{From: from, To: s.addrs.Flow}, func(env *ledger.Env) error {
		var err error
		id, err = s.flow.CreateWorkflow(env, actions, name, allowPartialFailure)
		return err
	})
	if err != nil {
		return 0, receipt, err
	}
	logger.Audit().Info("工作流已创建",
		slog.Uint64("workflow_id", id),
		slog.String("creator", from.Hex()),
		slog.String("name", name),
		slog.Int("actions", len(actions)))
	return id, receipt, nil
}

// ExecuteWorkflow 执行工作流，仅创建者可调用。
func (s *Service) ExecuteWorkflow(ctx context.Context, from common.Address, value *big.Int, id uint64) (*flow.ExecutionResult, *ledger.Receipt, error) {
	var result *flow.ExecutionResult
	receipt, err := s.transact(ctx, FlowContractName, "executeWorkflow", ledger.Message{From: from, To: s.addrs.Flow, Value: value}, func(env *ledger.Env) error {
		res, err := s.flow.ExecuteWorkflow(env, id)
		result = res
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	s.auditWorkflow(from, result)
	return result, receipt, nil
}

// CreateAndExecuteWorkflow 在同一笔交易内创建并执行工作流。
func (s *Service) CreateAndExecuteWorkflow(ctx context.Context, from common.Address, value *big.Int, actions []flow.Action, name string, allowPartialFailure bool) (*flow.ExecutionResult, *ledger.Receipt, error) {
	var result *flow.ExecutionResult
	receipt, err := s.transact(ctx, FlowContractName, "createAndExecuteWorkflow", ledger.Message{From: from, To: s.addrs.Flow, Value: value}, func(env *ledger.Env) error {
		res, err := s.flow.CreateAndExecuteWorkflow(env, actions, name, allowPartialFailure)
		result = res
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	s.auditWorkflow(from, result)
	return result, receipt, nil
}

func (s *Service) auditWorkflow(from common.Address, result *flow.ExecutionResult) {
	attrs := []any{
		slog.Uint64("workflow_id", result.WorkflowID),
		slog.String("executor", from.Hex()),
		slog.String("status", result.Status.String()),
		slog.Int("succeeded", result.SuccessCount),
	}
	if result.Status == flow.StatusFailed {
		logger.Audit().Warn("工作流部分失败", attrs...)
		return
	}
	logger.Audit().Info("工作流已完成", attrs...)
}

// CancelWorkflow 取消工作流，仅创建者可调用。
func (s *Service) CancelWorkflow(ctx context.Context, from common.Address, id uint64) (*ledger.Receipt, error) {
	receipt, err := s.transact(ctx, FlowContractName, "cancelWorkflow", ledger.Message{From: from, To: s.addrs.Flow}, func(env *ledger.Env) error {
		return s.flow.CancelWorkflow(env, id)
	})
	if err != nil {
		return receipt, err
	}
	logger.Audit().Info("工作流已取消", slog.Uint64("workflow_id", id), slog.String("creator", from.Hex()))
	return receipt, nil
}

// GetWorkflow 返回工作流详情。
func (s *Service) GetWorkflow(id uint64) (flow.Workflow, error) { return s.flow.GetWorkflow(id) }

// GetWorkflowAction 返回工作流中的单个动作。
func (s *Service) GetWorkflowAction(id uint64, index int) (flow.Action, error) {
	return s.flow.GetWorkflowAction(id, index)
}

// GetUserWorkflows 返回用户创建的工作流编号。
func (s *Service) GetUserWorkflows(user common.Address) []uint64 {
	return s.flow.GetUserWorkflows(user)
}

// RegisterConnector 登记协议连接器，仅管理员可调用。
func (s *Service) RegisterConnector(ctx context.Context, from common.Address, name string, connector common.Address) (*ledger.Receipt, error) {
	return s.transact(ctx, FlowContractName, "registerConnector", ledger.Message{From: from, To: s.addrs.Flow}, func(env *ledger.Env) error {
		return s.flow.RegisterConnector(env, name, connector)
	})
}

// UnregisterConnector 注销协议连接器，仅管理员可调用。
func (s *Service) UnregisterConnector(ctx context.Context, from common.Address, name string, connector common.Address) (*ledger.Receipt, error) {
	return s.transact(ctx, FlowContractName, "unregisterConnector", ledger.Message{From: from, To: s.addrs.Flow}, func(env *ledger.Env) error {
		return s.flow.UnregisterConnector(env, name, connector)
	})
}

// IsConnectorRegistered 查询连接器是否已登记。
func (s *Service) IsConnectorRegistered(name string, connector common.Address) bool {
	return s.flow.IsConnectorRegistered(name, connector)
}

// Connectors 返回某协议下登记的连接器。
func (s *Service) Connectors(name string) []common.Address { return s.flow.Connectors(name) }

// ConnectorNames 返回所有已登记连接器的协议名称。
func (s *Service) ConnectorNames() []string { return s.flow.ConnectorNames() }
