package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	mysqldriver "github.com/go-sql-driver/mysql"

	"AIButler-Chain/internal/indexer"
)

func TestEventStoreAppendIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		beginOp(),
		execOp(insertEventSQL, mockResult{lastInsertID: 1, rowsAffected: 1}),
		{typ: opExec, query: insertEventSQL, err: &mysqldriver.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry"}},
		commitOp(),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &EventStore{db: db}
	records := []indexer.Record{
		sampleRecord(1, 0),
		sampleRecord(1, 0),
	}
	if err := store.Append(context.Background(), records); err != nil {
		t.Fatalf("append failed: %v", err)
	}
}

func TestEventStoreAppendRollsBackOnError(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		beginOp(),
		{typ: opExec, query: insertEventSQL, err: fmt.Errorf("connection reset")},
		rollbackOp(),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &EventStore{db: db}
	if err := store.Append(context.Background(), []indexer.Record{sampleRecord(2, 0)}); err == nil {
		t.Fatalf("expected append error")
	}
}

func TestEventStoreList(t *testing.T) {
	t.Parallel()

	hash := common.HexToHash("0x01")
	rows := mockRowsData{
		columns: []string{"block_number", "tx_hash", "log_index", "contract", "address", "event", "fields", "indexed_at"},
		values: [][]driver.Value{
			{int64(3), hash.Hex(), int64(0), "BatchTransactions", common.HexToAddress("0x02").Hex(), "BatchExecuted", `{"batchId":"1"}`, int64(1_700_000_000_000)},
		},
	}
	db, drv := newMockDB(t, []mockOperation{
		queryOp(selectEventColumns+` WHERE block_number >= ? AND contract = ? AND event = ?
    ORDER BY block_number ASC, log_index ASC LIMIT ?`, rows),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &EventStore{db: db}
	list, err := store.List(context.Background(), indexer.Filter{Contract: "BatchTransactions", Event: "BatchExecuted"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one record, got %d", len(list))
	}
	got := list[0]
	if got.BlockNumber != 3 || got.TxHash != hash || got.Fields["batchId"] != "1" {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.IndexedAt.Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Fatalf("unexpected indexed_at %s", got.IndexedAt)
	}
}

func TestEventStoreLatestBlock(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		queryOp(`SELECT COALESCE(MAX(block_number), 0) FROM ledger_events`, mockRowsData{
			columns: []string{"latest"},
			values:  [][]driver.Value{{int64(9)}},
		}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &EventStore{db: db}
	latest, err := store.LatestBlock(context.Background())
	if err != nil {
		t.Fatalf("latest block failed: %v", err)
	}
	if latest != 9 {
		t.Fatalf("expected 9, got %d", latest)
	}
}

func TestRunMigrations(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		execOp(readMigrationStatement(), mockResult{}),
		execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mockResult{rowsAffected: 1}),
		commitOp(),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{"0001"}},
		}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestNormalizeDSN(t *testing.T) {
	t.Parallel()

	dsn, err := normalizeDSN("butler:secret@tcp(127.0.0.1:3306)/butler")
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("expected charset param, got %s", dsn)
	}
	if _, err := normalizeDSN("  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func sampleRecord(block uint64, index uint) indexer.Record {
	return indexer.Record{
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		LogIndex:    index,
		Contract:    "BatchTransactions",
		Address:     common.HexToAddress("0x02"),
		Event:       "BatchExecuted",
		Fields:      map[string]string{"batchId": "1"},
		IndexedAt:   time.UnixMilli(1_700_000_000_000),
	}
}

func readMigrationStatement() string {
	content, err := embeddedMigrations.ReadFile("0001_create_ledger_events.sql")
	if err != nil {
		panic(fmt.Sprintf("failed to read migration: %v", err))
	}
	statements := splitStatements(string(content))
	if len(statements) == 0 {
		panic("no statements in migration")
	}
	return statements[0]
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

func (d *queueDriver) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" && normalizeSQL(op.query) != normalizeSQL(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalizeSQL(op.query), normalizeSQL(query))
	}
	return op, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(context.Context) error { return nil }

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
