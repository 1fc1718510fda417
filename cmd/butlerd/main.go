package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"AIButler-Chain/internal/api"
	"AIButler-Chain/internal/butler"
	"AIButler-Chain/internal/config"
	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/internal/indexer"
	"AIButler-Chain/internal/keeper"
	"AIButler-Chain/internal/ledger"
	"AIButler-Chain/internal/observability/alerting"
	"AIButler-Chain/internal/observability/metrics"
	"AIButler-Chain/internal/storage/mysql"
	redislock "AIButler-Chain/internal/storage/redis"
	"AIButler-Chain/pkg/logger"
)

// main 是 AI Butler 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("butlerd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("BUTLER_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "butler.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging.Logger()); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("butlerd")

	owner, err := cfg.Ledger.OwnerAddress()
	if err != nil {
		return err
	}

	var (
		clock       ledger.Clock = ledger.SystemClock{}
		manualClock *ledger.ManualClock
	)
	if cfg.Ledger.Clock == "manual" {
		start := cfg.Ledger.StartTime
		if start == 0 {
			start = uint64(time.Now().Unix())
		}
		manualClock = ledger.NewManualClock(start)
		clock = manualClock
	}
	l := ledger.New(clock)

	genesis, err := cfg.Ledger.GenesisAllocations()
	if err != nil {
		return err
	}
	for addr, amount := range genesis {
		if err := l.Mint(addr, amount); err != nil {
			return err
		}
	}

	svc, err := butler.New(l, owner,
		butler.WithDelayBounds(cfg.Contracts.MinDelaySeconds, cfg.Contracts.MaxDelaySeconds),
		butler.WithFaucet(cfg.Ledger.Faucet),
	)
	if err != nil {
		return err
	}

	if err := seedConnectors(ctx, svc, cfg.Connectors.File); err != nil {
		return err
	}

	dispatcher := buildAlerting(cfg.Alerting)

	serverOpts := []api.Option{api.WithTimeouts(cfg.Server.ReadTimeout(), cfg.Server.WriteTimeout())}
	if manualClock != nil {
		serverOpts = append(serverOpts, api.WithManualClock(manualClock))
	}

	if cfg.Indexer.Enabled {
		store, err := openEventStore(ctx, cfg.Indexer)
		if err != nil {
			return err
		}
		defer store.Close()

		decoder := indexer.NewDecoder()
		for _, d := range svc.Deployments() {
			decoder.Register(d.Name, d.Address, d.ABI)
		}
		ix, err := indexer.New(l, store, decoder,
			indexer.WithRetryInterval(time.Duration(cfg.Indexer.RetryIntervalSeconds)*time.Second))
		if err != nil {
			return err
		}
		go func() {
			if err := ix.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("事件索引器异常退出", slog.Any("error", err))
			}
		}()
		serverOpts = append(serverOpts, api.WithEventStore(store))
	}

	if cfg.Keeper.Enabled {
		k, closeKeeper, err := buildKeeper(ctx, cfg.Keeper, svc, dispatcher)
		if err != nil {
			return err
		}
		defer closeKeeper()
		go func() {
			if err := k.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("keeper 异常退出", slog.Any("error", err))
			}
		}()
		serverOpts = append(serverOpts, api.WithKeeper(k))
	}

	if addr := cfg.Observability.MetricsAddress; addr != "" {
		go func() {
			if err := metrics.StartServer(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, svc, serverOpts...)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	lg.Info("butlerd 已退出")
	return nil
}

func seedConnectors(ctx context.Context, svc *butler.Service, path string) error {
	seeds, err := config.LoadConnectors(path)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		if svc.IsConnectorRegistered(seed.Name, seed.Address) {
			continue
		}
		if _, err := svc.RegisterConnector(ctx, svc.Owner(), seed.Name, seed.Address); err != nil {
			return err
		}
	}
	return nil
}

func openEventStore(ctx context.Context, cfg config.IndexerConfig) (indexer.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return indexer.NewMemoryStore(), nil
	case "mysql":
		return mysql.NewEventStore(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的索引存储驱动: "+cfg.Driver)
	}
}

func buildAlerting(cfg config.AlertingConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	for _, hook := range cfg.Webhooks {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:  hook.URL,
			Kind: alerting.Channel(hook.Kind),
		})
	}
	return alerting.NewFanout(notifiers...)
}

func buildKeeper(ctx context.Context, cfg config.KeeperConfig, svc *butler.Service, dispatcher alerting.Dispatcher) (*keeper.Keeper, func(), error) {
	account, err := cfg.AccountAddress()
	if err != nil {
		return nil, nil, err
	}

	var queue keeper.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		queue = keeper.NewMemoryQueue(cfg.Queue.Size)
	case "redis":
		q, err := keeper.NewRedisQueue(ctx, keeper.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		queue = q
	case "rabbitmq":
		q, err := keeper.NewRabbitMQQueue(keeper.RabbitMQConfig{
			URL:        cfg.Queue.RabbitMQ.URL,
			Queue:      cfg.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Queue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return nil, nil, err
		}
		queue = q
	default:
		return nil, nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的队列驱动: "+cfg.Queue.Driver)
	}

	closers := []func() error{queue.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.L().Warn("关闭 keeper 依赖失败", slog.Any("error", err))
			}
		}
	}

	opts := []keeper.Option{
		keeper.WithPollInterval(cfg.PollInterval()),
		keeper.WithWorkerCount(cfg.Workers),
		keeper.WithBatchLimit(cfg.BatchLimit),
		keeper.WithAlertDispatcher(dispatcher),
	}
	if cfg.Lock.Enabled {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
		})
		closers = append(closers, client.Close)
		lock, err := redislock.NewLock(client, redislock.LockConfig{
			Key: cfg.Lock.Key,
			TTL: time.Duration(cfg.Lock.TTLSeconds) * time.Second,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opts = append(opts, keeper.WithLocker(lock))
	}

	k, err := keeper.New(svc, queue, account, opts...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return k, closeAll, nil
}
