// Package butler is a Go client for the AI Butler REST API.
package butler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AI Butler REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// APIError represents a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	TxHash     string `json:"tx_hash,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("butler api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("butler api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the API at rawURL. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Health reports whether the server is up and its current block number.
func (c *Client) Health(ctx context.Context) (uint64, error) {
	var out struct {
		BlockNumber uint64 `json:"block_number"`
	}
	if err := c.get(ctx, "/healthz", nil, &out); err != nil {
		return 0, err
	}
	return out.BlockNumber, nil
}

// ExecuteBatch submits a batch.
func (c *Client) ExecuteBatch(ctx context.Context, batch BatchSubmission) (BatchResult, error) {
	var out BatchResult
	err := c.send(ctx, http.MethodPost, "/api/v1/batches", batch, &out)
	return out, err
}

// EstimateGas returns the advisory gas for n operations.
func (c *Client) EstimateGas(ctx context.Context, n int) (uint64, error) {
	var out struct {
		Gas uint64 `json:"gas"`
	}
	err := c.send(ctx, http.MethodPost, "/api/v1/batches/estimate", map[string]int{"operation_count": n}, &out)
	return out.Gas, err
}

// BatchStats returns the global and per-user batch counters. user may be empty.
func (c *Client) BatchStats(ctx context.Context, user string) (BatchStats, error) {
	var out BatchStats
	query := url.Values{}
	if user != "" {
		query.Set("address", user)
	}
	err := c.get(ctx, "/api/v1/batches/stats", query, &out)
	return out, err
}

// ScheduleTransaction registers a deferred call.
func (c *Client) ScheduleTransaction(ctx context.Context, req ScheduleSubmission) (ScheduleResult, error) {
	var out ScheduleResult
	err := c.send(ctx, http.MethodPost, "/api/v1/schedules", req, &out)
	return out, err
}

// GetSchedule fetches a schedule by id.
func (c *Client) GetSchedule(ctx context.Context, id uint64) (Schedule, error) {
	var out ScheduleResult
	err := c.get(ctx, schedulePath(id, ""), nil, &out)
	return out.Schedule, err
}

// ListSchedules returns the schedules created by creator, or every pending
// schedule when creator is empty.
func (c *Client) ListSchedules(ctx context.Context, creator string) ([]Schedule, error) {
	query := url.Values{}
	if creator != "" {
		query.Set("creator", creator)
	}
	return c.listSchedules(ctx, query)
}

// ReadySchedules returns up to limit schedules that can run now.
func (c *Client) ReadySchedules(ctx context.Context, limit int) ([]Schedule, error) {
	query := url.Values{"ready": {"true"}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return c.listSchedules(ctx, query)
}

func (c *Client) listSchedules(ctx context.Context, query url.Values) ([]Schedule, error) {
	var out struct {
		Schedules []Schedule `json:"schedules"`
	}
	err := c.get(ctx, "/api/v1/schedules", query, &out)
	return out.Schedules, err
}

// ScheduleReadiness explains whether schedule id can run now.
func (c *Client) ScheduleReadiness(ctx context.Context, id uint64) (Readiness, error) {
	var out Readiness
	err := c.get(ctx, schedulePath(id, "ready"), nil, &out)
	return out, err
}

// ExecuteSchedule triggers schedule id on behalf of from.
func (c *Client) ExecuteSchedule(ctx context.Context, from string, id uint64) (ScheduleExecution, error) {
	var out ScheduleExecution
	err := c.send(ctx, http.MethodPost, schedulePath(id, "execute"), caller{From: from}, &out)
	return out, err
}

// CancelSchedule cancels schedule id. Only its creator may do so.
func (c *Client) CancelSchedule(ctx context.Context, from string, id uint64) (ScheduleResult, error) {
	var out ScheduleResult
	err := c.send(ctx, http.MethodPost, schedulePath(id, "cancel"), caller{From: from}, &out)
	return out, err
}

// CreateWorkflow stores a workflow without running it.
func (c *Client) CreateWorkflow(ctx context.Context, req WorkflowSubmission) (WorkflowResult, error) {
	req.Execute = false
	var out WorkflowResult
	err := c.send(ctx, http.MethodPost, "/api/v1/workflows", req, &out)
	return out, err
}

// CreateAndExecuteWorkflow stores a workflow and runs it in one transaction.
func (c *Client) CreateAndExecuteWorkflow(ctx context.Context, req WorkflowSubmission) (WorkflowExecution, error) {
	req.Execute = true
	var out WorkflowExecution
	err := c.send(ctx, http.MethodPost, "/api/v1/workflows", req, &out)
	return out, err
}

// GetWorkflow fetches a workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, id uint64) (Workflow, error) {
	var out WorkflowResult
	err := c.get(ctx, workflowPath(id, ""), nil, &out)
	return out.Workflow, err
}

// GetWorkflowAction fetches action index of workflow id.
func (c *Client) GetWorkflowAction(ctx context.Context, id uint64, index int) (Action, error) {
	var out Action
	err := c.get(ctx, workflowPath(id, "actions/"+strconv.Itoa(index)), nil, &out)
	return out, err
}

// ListWorkflows returns the workflows created by creator.
func (c *Client) ListWorkflows(ctx context.Context, creator string) ([]Workflow, error) {
	var out struct {
		Workflows []Workflow `json:"workflows"`
	}
	err := c.get(ctx, "/api/v1/workflows", url.Values{"creator": {creator}}, &out)
	return out.Workflows, err
}

// ExecuteWorkflow runs workflow id, attaching value.
func (c *Client) ExecuteWorkflow(ctx context.Context, from string, id uint64, value string) (WorkflowExecution, error) {
	var out WorkflowExecution
	body := struct {
		From  string `json:"from"`
		Value string `json:"value,omitempty"`
	}{From: from, Value: value}
	err := c.send(ctx, http.MethodPost, workflowPath(id, "execute"), body, &out)
	return out, err
}

// CancelWorkflow cancels a pending workflow.
func (c *Client) CancelWorkflow(ctx context.Context, from string, id uint64) (WorkflowResult, error) {
	var out WorkflowResult
	err := c.send(ctx, http.MethodPost, workflowPath(id, "cancel"), caller{From: from}, &out)
	return out, err
}

// RegisterConnector adds a connector. from must be the contract owner.
func (c *Client) RegisterConnector(ctx context.Context, from, name, address string) (Connector, error) {
	var out Connector
	err := c.send(ctx, http.MethodPost, "/api/v1/connectors", connectorBody{From: from, Name: name, Address: address}, &out)
	return out, err
}

// UnregisterConnector removes a connector. from must be the contract owner.
func (c *Client) UnregisterConnector(ctx context.Context, from, name, address string) (Connector, error) {
	var out Connector
	err := c.send(ctx, http.MethodDelete, "/api/v1/connectors", connectorBody{From: from, Name: name, Address: address}, &out)
	return out, err
}

// IsConnectorRegistered reports whether address is registered under name.
func (c *Client) IsConnectorRegistered(ctx context.Context, name, address string) (bool, error) {
	var out Connector
	err := c.get(ctx, "/api/v1/connectors", url.Values{"name": {name}, "address": {address}}, &out)
	return out.Registered, err
}

// Connectors lists the addresses registered under name.
func (c *Client) Connectors(ctx context.Context, name string) ([]string, error) {
	var out struct {
		Connectors []string `json:"connectors"`
	}
	err := c.get(ctx, "/api/v1/connectors", url.Values{"name": {name}}, &out)
	return out.Connectors, err
}

// ConnectorNames lists every connector name in use.
func (c *Client) ConnectorNames(ctx context.Context) ([]string, error) {
	var out struct {
		Names []string `json:"names"`
	}
	err := c.get(ctx, "/api/v1/connectors", nil, &out)
	return out.Names, err
}

// Account returns the balance of address.
func (c *Client) Account(ctx context.Context, address string) (Account, error) {
	var out Account
	err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(address), nil, &out)
	return out, err
}

// Fund credits address through the development faucet.
func (c *Client) Fund(ctx context.Context, address, amount string) (Account, error) {
	var out Account
	err := c.send(ctx, http.MethodPost, "/api/v1/accounts/"+url.PathEscape(address)+"/fund", map[string]string{"amount": amount}, &out)
	return out, err
}

// ListEvents queries the event index.
func (c *Client) ListEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	query := url.Values{}
	if q.Contract != "" {
		query.Set("contract", q.Contract)
	}
	if q.Event != "" {
		query.Set("event", q.Event)
	}
	if q.TxHash != "" {
		query.Set("tx_hash", q.TxHash)
	}
	if q.FromBlock > 0 {
		query.Set("from_block", strconv.FormatUint(q.FromBlock, 10))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	var out struct {
		Events []Event `json:"events"`
	}
	err := c.get(ctx, "/api/v1/events", query, &out)
	return out.Events, err
}

// KeeperStats returns the keeper counters.
func (c *Client) KeeperStats(ctx context.Context) (KeeperStats, error) {
	var out KeeperStats
	err := c.get(ctx, "/api/v1/keeper", nil, &out)
	return out, err
}

// AdvanceClock moves a manual ledger clock forward and returns the new time.
// Servers running on the system clock answer 404.
func (c *Client) AdvanceClock(ctx context.Context, seconds uint64) (uint64, error) {
	var out struct {
		Now uint64 `json:"now"`
	}
	err := c.send(ctx, http.MethodPost, "/api/v1/clock/advance", map[string]uint64{"seconds": seconds}, &out)
	return out.Now, err
}

type caller struct {
	From string `json:"from"`
}

type connectorBody struct {
	From    string `json:"from"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

func schedulePath(id uint64, suffix string) string {
	return path.Join("/api/v1/schedules", strconv.FormatUint(id, 10), suffix)
}

func workflowPath(id uint64, suffix string) string {
	return path.Join("/api/v1/workflows", strconv.FormatUint(id, 10), suffix)
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
