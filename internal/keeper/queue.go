package keeper

import (
	"context"
)

// Handler 处理来自消息队列的定时交易编号。
type Handler func(ctx context.Context, job string) error

// Producer 负责向队列投递待执行的定时交易。
type Producer interface {
	Publish(ctx context.Context, job string) error
	Close() error
}

// Consumer 负责从队列中消费定时交易。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
