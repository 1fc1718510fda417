package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	driver "github.com/go-sql-driver/mysql"

	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/indexer"
)

const errDuplicateEntry = 1062

const insertEventSQL = `INSERT INTO ledger_events
    (block_number, tx_hash, log_index, contract, address, event, fields, indexed_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const selectEventColumns = `SELECT block_number, tx_hash, log_index, contract, address, event, fields, indexed_at
    FROM ledger_events`

// EventStore 使用 MySQL 保存已解码的合约事件。
type EventStore struct {
	db *sql.DB
}

var _ indexer.Store = (*EventStore)(nil)

// NewEventStore 建立连接池并执行迁移。
func NewEventStore(ctx context.Context, cfg Config) (*EventStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &EventStore{db: db}, nil
}

// Append 在一个事务内写入事件，重复的 (tx_hash, log_index) 会被忽略。
func (s *EventStore) Append(ctx context.Context, records []indexer.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	for _, r := range records {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码事件字段失败")
		}
		_, err = tx.ExecContext(ctx, insertEventSQL,
			r.BlockNumber,
			r.TxHash.Hex(),
			r.LogIndex,
			r.Contract,
			r.Address.Hex(),
			r.Event,
			string(fields),
			r.IndexedAt.UnixMilli(),
		)
		if err != nil {
			var mysqlErr *driver.MySQLError
			if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
				continue
			}
			tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入事件失败")
		}
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事件事务失败")
	}
	return nil
}

// List 按区块与日志序号升序查询事件。
func (s *EventStore) List(ctx context.Context, filter indexer.Filter) ([]indexer.Record, error) {
	query, args := buildListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询事件失败")
	}
	defer rows.Close()

	var records []indexer.Record
	for rows.Next() {
		var (
			r         indexer.Record
			txHash    string
			address   string
			fields    string
			indexedAt int64
		)
		if err := rows.Scan(&r.BlockNumber, &txHash, &r.LogIndex, &r.Contract, &address, &r.Event, &fields, &indexedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析事件失败")
		}
		r.TxHash = common.HexToHash(txHash)
		r.Address = common.HexToAddress(address)
		r.IndexedAt = time.UnixMilli(indexedAt).UTC()
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解码事件字段失败")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历事件失败")
	}
	return records, nil
}

// LatestBlock 返回已写入的最高区块号。
func (s *EventStore) LatestBlock(ctx context.Context) (uint64, error) {
	var latest uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(block_number), 0) FROM ledger_events`).Scan(&latest); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询最新区块失败")
	}
	return latest, nil
}

// Close 关闭连接池。
func (s *EventStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildListQuery(filter indexer.Filter) (string, []any) {
	conditions := []string{"block_number >= ?"}
	args := []any{filter.FromBlock}
	if filter.Contract != "" {
		conditions = append(conditions, "contract = ?")
		args = append(args, filter.Contract)
	}
	if filter.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, filter.Event)
	}
	if filter.TxHash != (common.Hash{}) {
		conditions = append(conditions, "tx_hash = ?")
		args = append(args, filter.TxHash.Hex())
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)
	query := selectEventColumns + " WHERE " + strings.Join(conditions, " AND ") +
		" ORDER BY block_number ASC, log_index ASC LIMIT ?"
	return query, args
}
