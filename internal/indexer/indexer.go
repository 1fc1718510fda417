package indexer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/pkg/logger"
)

// Source 是可订阅的日志来源，通常为账本。
type Source interface {
	Logs() []*types.Log
	SubscribeLogs(ch chan<- []*types.Log) event.Subscription
}

const defaultRetryInterval = 5 * time.Second

// Indexer 将日志源中的事件持续写入存储。
type Indexer struct {
	source        Source
	store         Store
	decoder       *Decoder
	logger        *slog.Logger
	retryInterval time.Duration
	latest        atomic.Uint64
	skipped       atomic.Uint64
}

// Option 自定义索引器。
type Option func(*Indexer)

// WithRetryInterval 设置写入失败后重新回放日志的间隔。
func WithRetryInterval(interval time.Duration) Option {
	return func(ix *Indexer) {
		if interval > 0 {
			ix.retryInterval = interval
		}
	}
}

// New 创建索引器。
func New(source Source, store Store, decoder *Decoder, opts ...Option) (*Indexer, error) {
	if source == nil || store == nil || decoder == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "索引器缺少日志源、存储或解码器")
	}
	ix := &Indexer{
		source:        source,
		store:         store,
		decoder:       decoder,
		logger:        logger.Named("indexer"),
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ix)
		}
	}
	return ix, nil
}

// Store 返回底层存储。
func (ix *Indexer) Store() Store { return ix.store }

// LatestBlock 返回已处理的最高区块号。
func (ix *Indexer) LatestBlock() uint64 { return ix.latest.Load() }

// Run 先回填历史日志再持续消费新日志，直到 ctx 结束。写入失败后索引器
// 进入落后状态，此后每次收到新日志或重试间隔到期都会从 latest 之后
// 重新回放日志源的全部日志，直到写入成功。
func (ix *Indexer) Run(ctx context.Context) error {
	ch := make(chan []*types.Log, 256)
	sub := ix.source.SubscribeLogs(ch)
	defer sub.Unsubscribe()

	latest, err := ix.store.LatestBlock(ctx)
	if err != nil {
		return err
	}
	ix.latest.Store(latest)
	if err := ix.Ingest(ctx, ix.source.Logs()); err != nil {
		return err
	}
	ix.logger.Info("事件索引器已启动", slog.Uint64("latest_block", ix.latest.Load()))

	retry := time.NewTicker(ix.retryInterval)
	defer retry.Stop()
	behind := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return err
		case logs := <-ch:
			if behind {
				logs = ix.source.Logs()
			}
			behind = !ix.ingestLive(ctx, logs)
		case <-retry.C:
			if behind {
				behind = !ix.ingestLive(ctx, ix.source.Logs())
			}
		}
	}
}

func (ix *Indexer) ingestLive(ctx context.Context, logs []*types.Log) bool {
	if err := ix.Ingest(ctx, logs); err != nil {
		ix.logger.Error("写入事件失败，稍后回放",
			slog.Uint64("latest_block", ix.latest.Load()),
			slog.Any("error", err))
		return false
	}
	return true
}

// Ingest 解码并写入一批日志，已处理过的区块会被跳过。
func (ix *Indexer) Ingest(ctx context.Context, logs []*types.Log) error {
	floor := ix.latest.Load()
	var (
		records []Record
		highest = floor
		now     = time.Now().UTC()
	)
	for _, log := range logs {
		if log.BlockNumber <= floor {
			continue
		}
		if log.BlockNumber > highest {
			highest = log.BlockNumber
		}
		record, err := ix.decoder.Decode(log)
		if err != nil {
			ix.skipped.Add(1)
			ix.logger.Debug("跳过无法解码的日志",
				slog.String("address", log.Address.Hex()),
				slog.String("tx_hash", log.TxHash.Hex()),
				slog.String("reason", xerrors.Reason(err)))
			continue
		}
		record.IndexedAt = now
		records = append(records, record)
	}
	if len(records) > 0 {
		if err := ix.store.Append(ctx, records); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入事件存储失败")
		}
	}
	ix.latest.Store(highest)
	return nil
}

// Skipped 返回无法解码而被跳过的日志数量。
func (ix *Indexer) Skipped() uint64 { return ix.skipped.Load() }
