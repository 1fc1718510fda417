package butler

// Receipt describes the ledger transaction behind a write call.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Logs        int    `json:"logs"`
}

// Operation is one call of a batch. Amounts are decimal strings.
type Operation struct {
	Target       string `json:"target"`
	Value        string `json:"value,omitempty"`
	Data         string `json:"data,omitempty"`
	AllowFailure bool   `json:"allow_failure,omitempty"`
}

// BatchSubmission executes operations inside one transaction.
type BatchSubmission struct {
	From              string      `json:"from"`
	Value             string      `json:"value,omitempty"`
	RequireAllSuccess bool        `json:"require_all_success"`
	Operations        []Operation `json:"operations"`
}

// OperationResult is the outcome of one batch operation.
type OperationResult struct {
	Index      int    `json:"index"`
	Target     string `json:"target"`
	Success    bool   `json:"success"`
	ReturnData string `json:"return_data,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// BatchResult summarises an executed batch.
type BatchResult struct {
	BatchID        uint64            `json:"batch_id"`
	OperationCount int               `json:"operation_count"`
	SuccessCount   int               `json:"success_count"`
	Refund         string            `json:"refund"`
	Operations     []OperationResult `json:"operations"`
	Receipt        *Receipt          `json:"receipt"`
}

// BatchStats reports batch counters.
type BatchStats struct {
	TotalBatchesExecuted uint64 `json:"total_batches_executed"`
	UserBatchCount       uint64 `json:"user_batch_count"`
}

// ScheduleSubmission registers a deferred call. Value defaults to Amount.
type ScheduleSubmission struct {
	From          string `json:"from"`
	Value         string `json:"value,omitempty"`
	Target        string `json:"target"`
	Amount        string `json:"amount,omitempty"`
	Data          string `json:"data,omitempty"`
	ExecuteAfter  uint64 `json:"execute_after"`
	ExecuteWindow uint64 `json:"execute_window,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Schedule is a stored deferred call.
type Schedule struct {
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

// ScheduleResult wraps a schedule and, for writes, its receipt.
type ScheduleResult struct {
	Schedule Schedule `json:"schedule"`
	Receipt  *Receipt `json:"receipt,omitempty"`
}

// ScheduleExecution is the outcome of triggering a schedule.
type ScheduleExecution struct {
	ScheduleID uint64   `json:"schedule_id"`
	Success    bool     `json:"success"`
	ReturnData string   `json:"return_data,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Receipt    *Receipt `json:"receipt"`
}

// Readiness tells whether a schedule can run now.
type Readiness struct {
	ScheduleID uint64 `json:"schedule_id"`
	Ready      bool   `json:"ready"`
	Reason     string `json:"reason,omitempty"`
}

// Action is one workflow step. Type is one of transfer, swap, stake, lend,
// borrow or custom.
type Action struct {
	Type        string `json:"type"`
	Target      string `json:"target"`
	Data        string `json:"data,omitempty"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// WorkflowSubmission creates a workflow, optionally executing it at once.
type WorkflowSubmission struct {
	From                string   `json:"from"`
	Name                string   `json:"name"`
	AllowPartialFailure bool     `json:"allow_partial_failure"`
	Actions             []Action `json:"actions"`
	Execute             bool     `json:"execute,omitempty"`
	Value               string   `json:"value,omitempty"`
}

// ActionResult is the outcome of one workflow action.
type ActionResult struct {
	Index      int    `json:"index"`
	Success    bool   `json:"success"`
	ReturnData string `json:"return_data,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Workflow is a stored workflow.
type Workflow struct {
	ID                  uint64         `json:"id"`
	Creator             string         `json:"creator"`
	Name                string         `json:"name"`
	Actions             []Action       `json:"actions"`
	AllowPartialFailure bool           `json:"allow_partial_failure"`
	Status              string         `json:"status"`
	CreatedAt           uint64         `json:"created_at"`
	ExecutedAt          uint64         `json:"executed_at,omitempty"`
	SuccessCount        int            `json:"success_count"`
	Results             []ActionResult `json:"results,omitempty"`
}

// WorkflowResult wraps a workflow and, for writes, its receipt.
type WorkflowResult struct {
	Workflow Workflow `json:"workflow"`
	Receipt  *Receipt `json:"receipt,omitempty"`
}

// WorkflowExecution is the outcome of running a workflow.
type WorkflowExecution struct {
	WorkflowID   uint64         `json:"workflow_id"`
	Status       string         `json:"status"`
	SuccessCount int            `json:"success_count"`
	Results      []ActionResult `json:"results"`
	Refund       string         `json:"refund"`
	Receipt      *Receipt       `json:"receipt"`
}

// Connector is a registered protocol connector.
type Connector struct {
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Registered bool     `json:"registered"`
	Receipt    *Receipt `json:"receipt,omitempty"`
}

// Account is an address with its balance.
type Account struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// Event is one indexed contract event.
type Event struct {
	BlockNumber uint64            `json:"block_number"`
	TxHash      string            `json:"tx_hash"`
	LogIndex    uint              `json:"log_index"`
	Contract    string            `json:"contract"`
	Address     string            `json:"address"`
	Event       string            `json:"event"`
	Fields      map[string]string `json:"fields"`
}

// EventQuery filters ListEvents.
type EventQuery struct {
	Contract  string
	Event     string
	TxHash    string
	FromBlock uint64
	Limit     int
}

// KeeperStats reports keeper counters.
type KeeperStats struct {
	Enqueued uint64 `json:"enqueued"`
	Executed uint64 `json:"executed"`
	Reverted uint64 `json:"inner_reverted"`
	Skipped  uint64 `json:"skipped"`
	Failed   uint64 `json:"failed"`
}
