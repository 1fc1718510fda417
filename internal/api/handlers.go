package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"AIButler-Chain/internal/batch"
	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/flow"
	"AIButler-Chain/internal/indexer"
	"AIButler-Chain/internal/schedule"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"block_number": s.svc.Ledger().BlockNumber(),
	})
}

func (s *Server) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	ops := make([]batch.Operation, len(req.Operations))
	for i, op := range req.Operations {
		target, err := parseAddress("operations.target", op.Target)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		amount, err := parseAmount("operations.value", op.Value)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		data, err := parseData("operations.data", op.Data)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		ops[i] = batch.Operation{Target: target, Value: amount, Data: data, AllowFailure: op.AllowFailure}
	}

	result, receipt, err := s.svc.ExecuteBatch(r.Context(), from, value, ops, req.RequireAllSuccess)
	if err != nil {
		writeError(w, err, toReceipt(receipt))
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(result, receipt))
}

func (s *Server) handleEstimateGas(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	if req.OperationCount < 0 {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "operation_count must not be negative"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"gas": s.svc.EstimateGas(req.OperationCount)})
}

func (s *Server) handleBatchStats(w http.ResponseWriter, r *http.Request) {
	var user common.Address
	if raw := r.URL.Query().Get("address"); raw != "" {
		addr, err := parseAddress("address", raw)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		user = addr
	}
	total, count := s.svc.BatchStats(user)
	writeJSON(w, http.StatusOK, map[string]uint64{
		"total_batches_executed": total,
		"user_batch_count":       count,
	})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	target, err := parseAddress("target", req.Target)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	value := amount
	if req.Value != "" {
		if value, err = parseAmount("value", req.Value); err != nil {
			writeError(w, err, nil)
			return
		}
	}
	data, err := parseData("data", req.Data)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	id, receipt, err := s.svc.ScheduleTransaction(r.Context(), from, value, schedule.Request{
		Target:        target,
		Value:         amount,
		Data:          data,
		ExecuteAfter:  req.ExecuteAfter,
		ExecuteWindow: req.ExecuteWindow,
		Description:   req.Description,
	})
	if err != nil {
		writeError(w, err, toReceipt(receipt))
		return
	}
	stored, err := s.svc.GetSchedule(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, ScheduleResponse{
		Schedule: toScheduleDTO(stored, s.svc.IsReadyToExecute(id)),
		Receipt:  toReceipt(receipt),
	})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	var ids []uint64
	switch {
	case r.URL.Query().Get("creator") != "":
		creator, err := parseAddress("creator", r.URL.Query().Get("creator"))
		if err != nil {
			writeError(w, err, nil)
			return
		}
		ids = s.svc.GetUserSchedules(creator)
	case r.URL.Query().Get("ready") == "true":
		ids = s.svc.ReadySchedules(queryLimit(r, 100))
	default:
		ids = s.svc.PendingSchedules()
	}
	out := make([]ScheduleDTO, 0, len(ids))
	for _, id := range ids {
		stored, err := s.svc.GetSchedule(id)
		if err != nil {
			continue
		}
		out = append(out, toScheduleDTO(stored, s.svc.IsReadyToExecute(id)))
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": out})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	stored, err := s.svc.GetSchedule(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{Schedule: toScheduleDTO(stored, s.svc.IsReadyToExecute(id))})
}

func (s *Server) handleScheduleReady(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	resp := ReadinessResponse{ScheduleID: id, Ready: true}
	if reason := s.svc.ScheduleReadiness(id); reason != nil {
		resp.Ready = false
		resp.Reason = xerrors.Reason(reason)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecuteSchedule(w http.ResponseWriter, r *http.Request) {
	id, from, ok := s.idAndCaller(w, r)
	if !ok {
		return
	}
	result, receipt, err := s.svc.ExecuteScheduledTransaction(r.Context(), from, id)
	if err != nil {
		writeError(w, err, toReceipt(receipt))
		return
	}
	writeJSON(w, http.StatusOK, ScheduleExecutionResponse{
		ScheduleID: id,
		Success:    result.Success,
		ReturnData: encodeBytes(result.ReturnData),
		Reason:     result.Reason,
		Receipt:    toReceipt(receipt),
	})
}

func (s *Server) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	id, from, ok := s.idAndCaller(w, r)
	if !ok {
		return
	}
	receipt, err := s.svc.CancelScheduledTransaction(r.Context(), from, id)
	if err != nil {
		writeError(w, err, toReceipt(receipt))
		return
	}
	stored, err := s.svc.GetSchedule(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{Schedule: toScheduleDTO(stored, false), Receipt: toReceipt(receipt)})
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	actions := make([]flow.Action, len(req.Actions))
	for i, a := range req.Actions {
		kind, err := flow.ParseActionType(a.Type)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		target, err := parseAddress("actions.target", a.Target)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		value, err := parseAmount("actions.value", a.Value)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		data, err := parseData("actions.data", a.Data)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		actions[i] = flow.Action{Type: kind, Target: target, Data: data, Value: value, Description: a.Description}
	}

	if req.Execute {
		value, err := parseAmount("value", req.Value)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		result, receipt, err := s.svc.CreateAndExecuteWorkflow(r.Context(), from, value, actions, req.Name, req.AllowPartialFailure)
		if err != nil {
			writeError(w, err, toReceipt(receipt))
			return
		}
		writeJSON(w, http.StatusCreated, toWorkflowExecution(result, receipt))
		return
	}
	if req.Value != "" && req.Value != "0" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "value is only accepted when execute is true"), nil)
		return
	}

	id, receipt, err := s.svc.CreateWorkflow(r.Context(), from, actions, req.Name, req.AllowPartialFailure)
	if err != nil {
		writeError(w, err, toReceipt(receipt))
		return
	}
	stored, err := s.svc.GetWorkflow(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, WorkflowResponse{Workflow: toWorkflowDTO(stored), Receipt: toReceipt(receipt)})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	creator, err := parseAddress("creator", r.URL.Query().Get("creator"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	ids := s.svc.GetUserWorkflows(creator)
	out := make([]WorkflowDTO, 0, len(ids))
	for _, id := range ids {
		stored, err := s.svc.GetWorkflow(id)
		if err != nil {
			continue
		}
		out = append(out, toWorkflowDTO(stored))
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	stored, err := s.svc.GetWorkflow(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, WorkflowResponse{Workflow: toWorkflowDTO(stored)})
}

func (s *Server) handleGetWorkflowAction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "index must be an integer"), nil)
		return
	}
	action, err := s.svc.GetWorkflowAction(id, index)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toActionDTO(action))
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	var req ExecuteWorkflowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	result, receipt, err := s.svc.ExecuteWorkflow(r.Context(), from, value, id)
	if err != nil {
		writeError(w, err, toReceipt(receipt))
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowExecution(result, receipt))
}

func (s *Server) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id, from, ok := s.idAndCaller(w, r)
	if !ok {
		return
	}
	receipt, err := s.svc.CancelWorkflow(r.Context(), from, id)
	if err != nil {
		writeError(w, err, toReceipt(receipt))
		return
	}
	stored, err := s.svc.GetWorkflow(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, WorkflowResponse{Workflow: toWorkflowDTO(stored), Receipt: toReceipt(receipt)})
}

func (s *Server) handleRegisterConnector(w http.ResponseWriter, r *http.Request) {
	s.changeConnector(w, r, true)
}

func (s *Server) handleUnregisterConnector(w http.ResponseWriter, r *http.Request) {
	s.changeConnector(w, r, false)
}

func (s *Server) changeConnector(w http.ResponseWriter, r *http.Request, register bool) {
	var req ConnectorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	connector, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	change := s.svc.UnregisterConnector
	if register {
		change = s.svc.RegisterConnector
	}
	receipt, err := change(r.Context(), from, req.Name, connector)
	if err != nil {
		writeError(w, err, toReceipt(receipt))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       req.Name,
		"address":    connector.Hex(),
		"registered": s.svc.IsConnectorRegistered(req.Name, connector),
		"receipt":    toReceipt(receipt),
	})
}

func (s *Server) handleConnectors(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	rawAddr := r.URL.Query().Get("address")
	switch {
	case name != "" && rawAddr != "":
		connector, err := parseAddress("address", rawAddr)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"name":       name,
			"address":    connector.Hex(),
			"registered": s.svc.IsConnectorRegistered(name, connector),
		})
	case name != "":
		addrs := s.svc.Connectors(name)
		out := make([]string, len(addrs))
		for i, a := range addrs {
			out[i] = a.Hex()
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "connectors": out})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"names": s.svc.ConnectorNames()})
	}
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Address: addr.Hex(), Balance: s.svc.Balance(addr).String()})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	var req FundRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if err := s.svc.Fund(addr, amount); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Address: addr.Hex(), Balance: s.svc.Balance(addr).String()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, xerrors.New(xerrors.CodeNotFound, "event indexer disabled"), nil)
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{
		Contract: q.Get("contract"),
		Event:    q.Get("event"),
		Limit:    queryLimit(r, 100),
	}
	if raw := q.Get("from_block"); raw != "" {
		from, err := parseID("from_block", raw)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		filter.FromBlock = from
	}
	if raw := q.Get("tx_hash"); raw != "" {
		filter.TxHash = common.HexToHash(raw)
	}
	records, err := s.events.List(r.Context(), filter)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	out := make([]EventDTO, len(records))
	for i, rec := range records {
		out[i] = toEventDTO(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleKeeperStats(w http.ResponseWriter, _ *http.Request) {
	if s.keeper == nil {
		writeError(w, xerrors.New(xerrors.CodeNotFound, "keeper disabled"), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.keeper.Stats())
}

func (s *Server) handleAdvanceClock(w http.ResponseWriter, r *http.Request) {
	var req AdvanceClockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	s.clock.Advance(req.Seconds)
	s.logger.Info("手动时钟已推进", slog.Uint64("seconds", req.Seconds), slog.Uint64("now", s.clock.Now()))
	writeJSON(w, http.StatusOK, ClockResponse{Now: s.clock.Now()})
}

func (s *Server) idAndCaller(w http.ResponseWriter, r *http.Request) (uint64, common.Address, bool) {
	id, err := parseID("id", r.PathValue("id"))
	if err != nil {
		writeError(w, err, nil)
		return 0, common.Address{}, false
	}
	var req CallerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err, nil)
		return 0, common.Address{}, false
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err, nil)
		return 0, common.Address{}, false
	}
	return id, from, true
}

func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
