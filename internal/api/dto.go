package api

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"AIButler-Chain/internal/batch"
	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/flow"
	"AIButler-Chain/internal/indexer"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/schedule"
)

// ErrorBody 是统一的错误响应。
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 携带错误码与原始失败原因。
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TxHash  string `json:"tx_hash,omitempty"`
}

// ReceiptDTO 描述一笔账本交易的回执。
type ReceiptDTO struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Logs        int    `json:"logs"`
}

func toReceipt(r *ledger.Receipt) *ReceiptDTO {
	if r == nil {
		return nil
	}
	status := "success"
	if !r.Succeeded() {
		status = "failed"
	}
	return &ReceiptDTO{
		TxHash:      r.TxHash.Hex(),
		BlockNumber: r.BlockNumber,
		Timestamp:   r.Timestamp,
		Status:      status,
		Reason:      r.Reason,
		Logs:        len(r.Logs),
	}
}

// OperationRequest 是批量交易中的单个操作。
type OperationRequest struct {
	Target       string `json:"target"`
	Value        string `json:"value"`
	Data         string `json:"data"`
	AllowFailure bool   `json:"allow_failure"`
}

// BatchRequest 提交批量交易。
type BatchRequest struct {
	From              string             `json:"from"`
	Value             string             `json:"value"`
	RequireAllSuccess bool               `json:"require_all_success"`
	Operations        []OperationRequest `json:"operations"`
}

// EstimateRequest 预估批量交易 gas。
type EstimateRequest struct {
	OperationCount int `json:"operation_count"`
}

// OperationResultDTO 描述单个操作的结果。
type OperationResultDTO struct {
	Index      int    `json:"index"`
	Target     string `json:"target"`
	Success    bool   `json:"success"`
	ReturnData string `json:"return_data,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// BatchResponse 是批量交易的执行结果。
type BatchResponse struct {
	BatchID        uint64               `json:"batch_id"`
	OperationCount int                  `json:"operation_count"`
	SuccessCount   int                  `json:"success_count"`
	Refund         string               `json:"refund"`
	Operations     []OperationResultDTO `json:"operations"`
	Receipt        *ReceiptDTO          `json:"receipt"`
}

func toBatchResponse(res *batch.Result, receipt *ledger.Receipt) BatchResponse {
	ops := make([]OperationResultDTO, len(res.Operations))
	for i, op := range res.Operations {
		ops[i] = OperationResultDTO{
			Index:      op.Index,
			Target:     op.Target.Hex(),
			Success:    op.Success,
			ReturnData: encodeBytes(op.ReturnData),
			Reason:     op.Reason,
		}
	}
	return BatchResponse{
		BatchID:        res.BatchID,
		OperationCount: res.OperationCount,
		SuccessCount:   res.SuccessCount,
		Refund:         amountString(res.Refund),
		Operations:     ops,
		Receipt:        toReceipt(receipt),
	}
}

// ScheduleRequest 登记定时交易。Value 为随交易附带的金额，缺省时等于 Amount。
type ScheduleRequest struct {
	From          string `json:"from"`
	Value         string `json:"value"`
	Target        string `json:"target"`
	Amount        string `json:"amount"`
	Data          string `json:"data"`
	ExecuteAfter  uint64 `json:"execute_after"`
	ExecuteWindow uint64 `json:"execute_window"`
	Description   string `json:"description"`
}

// CallerRequest 用于只需要调用者身份的接口。
type CallerRequest struct {
	From string `json:"from"`
}

// ScheduleDTO 描述一条定时交易。
type ScheduleDTO struct {
	ID            uint64 `json:"id"`
	Creator       string `json:"creator"`
	Target        string `json:"target"`
	Amount        string `json:"amount"`
	Data          string `json:"data,omitempty"`
	ExecuteAfter  uint64 `json:"execute_after"`
	ExecuteWindow uint64 `json:"execute_window"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	Ready         bool   `json:"ready"`
	CreatedAt     uint64 `json:"created_at"`
	ExecutedAt    uint64 `json:"executed_at,omitempty"`
	CancelledAt   uint64 `json:"cancelled_at,omitempty"`
	Executor      string `json:"executor,omitempty"`
	Success       bool   `json:"success"`
	ReturnData    string `json:"return_data,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func toScheduleDTO(s schedule.Schedule, ready bool) ScheduleDTO {
	dto := ScheduleDTO{
		ID:            s.ID,
		Creator:       s.Creator.Hex(),
		Target:        s.Target.Hex(),
		Amount:        amountString(s.Value),
		Data:          encodeBytes(s.Data),
		ExecuteAfter:  s.ExecuteAfter,
		ExecuteWindow: s.ExecuteWindow,
		Description:   s.Description,
		Status:        s.Status.String(),
		Ready:         ready,
		CreatedAt:     s.CreatedAt,
		ExecutedAt:    s.ExecutedAt,
		CancelledAt:   s.CancelledAt,
		Success:       s.Success,
		ReturnData:    encodeBytes(s.ReturnData),
		Reason:        s.Reason,
	}
	if s.Executor != (common.Address{}) {
		dto.Executor = s.Executor.Hex()
	}
	return dto
}

// ScheduleResponse 包含定时交易与回执。
type ScheduleResponse struct {
	Schedule ScheduleDTO `json:"schedule"`
	Receipt  *ReceiptDTO `json:"receipt,omitempty"`
}

// ScheduleExecutionResponse 是触发定时交易的结果。
type ScheduleExecutionResponse struct {
	ScheduleID uint64      `json:"schedule_id"`
	Success    bool        `json:"success"`
	ReturnData string      `json:"return_data,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Receipt    *ReceiptDTO `json:"receipt"`
}

// ReadinessResponse 描述定时交易是否可执行。
type ReadinessResponse struct {
	ScheduleID uint64 `json:"schedule_id"`
	Ready      bool   `json:"ready"`
	Reason     string `json:"reason,omitempty"`
}

// ActionRequest 是工作流中的单个动作。
type ActionRequest struct {
	Type        string `json:"type"`
	Target      string `json:"target"`
	Data        string `json:"data"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// WorkflowRequest 创建工作流，Execute 为 true 时在同一交易内执行。
type WorkflowRequest struct {
	From                string          `json:"from"`
	Name                string          `json:"name"`
	AllowPartialFailure bool            `json:"allow_partial_failure"`
	Actions             []ActionRequest `json:"actions"`
	Execute             bool            `json:"execute"`
	Value               string          `json:"value"`
}

// ExecuteWorkflowRequest 执行已创建的工作流。
type ExecuteWorkflowRequest struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

// ActionDTO 描述工作流动作。
type ActionDTO struct {
	Type        string `json:"type"`
	Target      string `json:"target"`
	Data        string `json:"data,omitempty"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

func toActionDTO(a flow.Action) ActionDTO {
	return ActionDTO{
		Type:        a.Type.String(),
		Target:      a.Target.Hex(),
		Data:        encodeBytes(a.Data),
		Value:       amountString(a.Value),
		Description: a.Description,
	}
}

// ActionResultDTO 描述动作执行结果。
type ActionResultDTO struct {
	Index      int    `json:"index"`
	Success    bool   `json:"success"`
	ReturnData string `json:"return_data,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func toActionResults(results []flow.ActionResult) []ActionResultDTO {
	out := make([]ActionResultDTO, len(results))
	for i, r := range results {
		out[i] = ActionResultDTO{Index: r.Index, Success: r.Success, ReturnData: encodeBytes(r.ReturnData), Reason: r.Reason}
	}
	return out
}

// WorkflowDTO 描述一个工作流。
type WorkflowDTO struct {
	ID                  uint64            `json:"id"`
	Creator             string            `json:"creator"`
	Name                string            `json:"name"`
	Actions             []ActionDTO       `json:"actions"`
	AllowPartialFailure bool              `json:"allow_partial_failure"`
	Status              string            `json:"status"`
	CreatedAt           uint64            `json:"created_at"`
	ExecutedAt          uint64            `json:"executed_at,omitempty"`
	SuccessCount        int               `json:"success_count"`
	Results             []ActionResultDTO `json:"results,omitempty"`
}

func toWorkflowDTO(w flow.Workflow) WorkflowDTO {
	actions := make([]ActionDTO, len(w.Actions))
	for i, a := range w.Actions {
		actions[i] = toActionDTO(a)
	}
	return WorkflowDTO{
		ID:                  w.ID,
		Creator:             w.Creator.Hex(),
		Name:                w.Name,
		Actions:             actions,
		AllowPartialFailure: w.AllowPartialFailure,
		Status:              w.Status.String(),
		CreatedAt:           w.CreatedAt,
		ExecutedAt:          w.ExecutedAt,
		SuccessCount:        w.SuccessCount,
		Results:             toActionResults(w.Results),
	}
}

// WorkflowResponse 包含工作流与回执。
type WorkflowResponse struct {
	Workflow WorkflowDTO `json:"workflow"`
	Receipt  *ReceiptDTO `json:"receipt,omitempty"`
}

// WorkflowExecutionResponse 是执行工作流的结果。
type WorkflowExecutionResponse struct {
	WorkflowID   uint64            `json:"workflow_id"`
	Status       string            `json:"status"`
	SuccessCount int               `json:"success_count"`
	Results      []ActionResultDTO `json:"results"`
	Refund       string            `json:"refund"`
	Receipt      *ReceiptDTO       `json:"receipt"`
}

func toWorkflowExecution(res *flow.ExecutionResult, receipt *ledger.Receipt) WorkflowExecutionResponse {
	return WorkflowExecutionResponse{
		WorkflowID:   res.WorkflowID,
		Status:       res.Status.String(),
		SuccessCount: res.SuccessCount,
		Results:      toActionResults(res.Results),
		Refund:       amountString(res.Refund),
		Receipt:      toReceipt(receipt),
	}
}

// ConnectorRequest 登记或注销连接器。
type ConnectorRequest struct {
	From    string `json:"from"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// FundRequest 通过水龙头充值。
type FundRequest struct {
	Amount string `json:"amount"`
}

// AccountResponse 描述账户余额。
type AccountResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// AdvanceClockRequest 推进手动时钟。
type AdvanceClockRequest struct {
	Seconds uint64 `json:"seconds"`
}

// ClockResponse 返回账本当前时间。
type ClockResponse struct {
	Now uint64 `json:"now"`
}

// EventDTO 描述一条已索引的事件。
type EventDTO struct {
	BlockNumber uint64            `json:"block_number"`
	TxHash      string            `json:"tx_hash"`
	LogIndex    uint              `json:"log_index"`
	Contract    string            `json:"contract"`
	Address     string            `json:"address"`
	Event       string            `json:"event"`
	Fields      map[string]string `json:"fields"`
}

func toEventDTO(r indexer.Record) EventDTO {
	return EventDTO{
		BlockNumber: r.BlockNumber,
		TxHash:      r.TxHash.Hex(),
		LogIndex:    r.LogIndex,
		Contract:    r.Contract,
		Address:     r.Address.Hex(),
		Event:       r.Event,
		Fields:      r.Fields,
	}
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, field+" is not a valid address")
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, field+" must be a non-negative decimal amount")
	}
	return amount, nil
}

func parseData(field, value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0x" {
		return nil, nil
	}
	data, err := hexutil.Decode(value)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, field+" must be 0x-prefixed hex")
	}
	return data, nil
}

func parseID(field, value string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, field+" must be an unsigned integer")
	}
	return id, nil
}

func encodeBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hexutil.Encode(b)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
