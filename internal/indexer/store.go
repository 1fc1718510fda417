package indexer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AIButler-Chain/internal/errors"
)

// CodeUndecodableLog 表示日志无法按已登记的 ABI 解码。
const CodeUndecodableLog xerrors.Code = "INDEXER_UNDECODABLE_LOG"

func init() {
	xerrors.Register(CodeUndecodableLog, xerrors.Attributes{
		Message:  "log cannot be decoded",
		Kind:     xerrors.KindValidation,
		Severity: xerrors.SeverityWarning,
	})
}

// Record 是一条已解码的合约事件。
type Record struct {
	BlockNumber uint64            `json:"block_number"`
	TxHash      common.Hash       `json:"tx_hash"`
	LogIndex    uint              `json:"log_index"`
	Contract    string            `json:"contract"`
	Address     common.Address    `json:"address"`
	Event       string            `json:"event"`
	Fields      map[string]string `json:"fields"`
	IndexedAt   time.Time         `json:"indexed_at"`
}

// Filter 描述查询条件，零值字段表示不过滤。
type Filter struct {
	Contract  string
	Event     string
	TxHash    common.Hash
	FromBlock uint64
	Limit     int
}

func (f Filter) match(r Record) bool {
	if f.Contract != "" && f.Contract != r.Contract {
		return false
	}
	if f.Event != "" && f.Event != r.Event {
		return false
	}
	if f.TxHash != (common.Hash{}) && f.TxHash != r.TxHash {
		return false
	}
	return r.BlockNumber >= f.FromBlock
}

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 100
	}
	return f.Limit
}

// Store 持久化已解码的事件。
type Store interface {
	// Append 写入一批事件，同一 (tx_hash, log_index) 重复写入会被忽略。
	Append(ctx context.Context, records []Record) error
	// List 按区块与日志序号升序返回满足条件的事件。
	List(ctx context.Context, filter Filter) ([]Record, error)
	// LatestBlock 返回已索引的最高区块号。
	LatestBlock(ctx context.Context) (uint64, error)
	Close() error
}
