package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AIButler-Chain/internal/errors"
	"AIButler-Chain/pkg/logger"
)

// Config 描述了 butler 守护进程启动时需要加载的全部配置。
type Config struct {
	Server        ServerConfig        `json:"server"`
	Logging       LoggingConfig       `json:"logging"`
	Ledger        LedgerConfig        `json:"ledger"`
	Contracts     ContractsConfig     `json:"contracts"`
	Keeper        KeeperConfig        `json:"keeper"`
	Indexer       IndexerConfig       `json:"indexer"`
	Connectors    ConnectorsConfig    `json:"connectors"`
	Alerting      AlertingConfig      `json:"alerting"`
	Observability ObservabilityConfig `json:"observability"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address             string `json:"address"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// ReadTimeout 返回读取超时。
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout 返回写入超时。
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志输出。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Logger 转换为 logger.Config。
func (l LoggingConfig) Logger() logger.Config {
	return logger.Config{
		Level:       l.Level,
		Format:      l.Format,
		OutputPaths: l.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    l.Audit.Enabled,
			Path:       l.Audit.Path,
			MaxSizeMB:  l.Audit.MaxSizeMB,
			MaxBackups: l.Audit.MaxBackups,
			MaxAgeDays: l.Audit.MaxAgeDays,
			Compress:   l.Audit.Compress,
		},
	}
}

// LedgerConfig 描述模拟账本的部署参数。
type LedgerConfig struct {
	// Owner 是核心合约的管理员地址。
	Owner string `json:"owner"`
	// Clock 可选 system 或 manual，manual 仅用于演示与测试。
	Clock     string `json:"clock"`
	StartTime uint64 `json:"start_time"`
	// Faucet 开启后可以通过 API 为账户充值。
	Faucet  bool              `json:"faucet"`
	Genesis map[string]string `json:"genesis"`
}

// OwnerAddress 解析管理员地址。
func (l LedgerConfig) OwnerAddress() (common.Address, error) {
	return parseAddress("ledger.owner", l.Owner)
}

// GenesisAllocations 解析创世分配，金额为十进制字符串。
func (l LedgerConfig) GenesisAllocations() (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(l.Genesis))
	for addr, amount := range l.Genesis {
		parsed, err := parseAddress("ledger.genesis", addr)
		if err != nil {
			return nil, err
		}
		value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
		if !ok || value.Sign() < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("ledger.genesis 金额无效: %s", amount))
		}
		out[parsed] = value
	}
	return out, nil
}

// ContractsConfig 描述合约参数。
type ContractsConfig struct {
	MinDelaySeconds uint64 `json:"min_delay_seconds"`
	MaxDelaySeconds uint64 `json:"max_delay_seconds"`
}

// KeeperConfig 描述定时交易执行器。
type KeeperConfig struct {
	Enabled             bool        `json:"enabled"`
	Account             string      `json:"account"`
	PollIntervalSeconds int         `json:"poll_interval_seconds"`
	Workers             int         `json:"workers"`
	BatchLimit          int         `json:"batch_limit"`
	Queue               QueueConfig `json:"queue"`
	Lock                LockConfig  `json:"lock"`
}

// AccountAddress 解析 keeper 账户地址。
func (k KeeperConfig) AccountAddress() (common.Address, error) {
	return parseAddress("keeper.account", k.Account)
}

// PollInterval 返回扫描间隔。
func (k KeeperConfig) PollInterval() time.Duration {
	return time.Duration(k.PollIntervalSeconds) * time.Second
}

// QueueConfig 选择 keeper 使用的队列实现。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Size     int            `json:"size"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LockConfig 描述多实例部署时的 Redis 选主锁。
type LockConfig struct {
	Enabled    bool   `json:"enabled"`
	Key        string `json:"key"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// IndexerConfig 描述事件索引器。
type IndexerConfig struct {
	Enabled                bool   `json:"enabled"`
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
	RetryIntervalSeconds   int    `json:"retry_interval_seconds"`
}

// ConnectorsConfig 指向连接器种子文件。
type ConnectorsConfig struct {
	File string `json:"file"`
}

// AlertingConfig 描述告警渠道。
type AlertingConfig struct {
	Webhooks []WebhookConfig `json:"webhooks"`
}

// WebhookConfig 描述单个 Webhook。
type WebhookConfig struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// ObservabilityConfig 描述指标服务。
type ObservabilityConfig struct {
	MetricsAddress string `json:"metrics_address"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "配置文件路径为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取配置文件失败")
	}
	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析配置失败")
	}
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 15
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path)
	}

	if c.Ledger.Clock == "" {
		c.Ledger.Clock = "system"
	}

	if c.Contracts.MinDelaySeconds == 0 {
		c.Contracts.MinDelaySeconds = 60
	}
	if c.Contracts.MaxDelaySeconds == 0 {
		c.Contracts.MaxDelaySeconds = 365 * 24 * 60 * 60
	}

	if c.Keeper.PollIntervalSeconds <= 0 {
		c.Keeper.PollIntervalSeconds = 5
	}
	if c.Keeper.Workers <= 0 {
		c.Keeper.Workers = 4
	}
	if c.Keeper.BatchLimit <= 0 {
		c.Keeper.BatchLimit = 100
	}
	if c.Keeper.Queue.Driver == "" {
		c.Keeper.Queue.Driver = "memory"
	}
	if c.Keeper.Queue.Size <= 0 {
		c.Keeper.Queue.Size = 1024
	}
	if c.Keeper.Queue.Redis.BlockWaitSeconds <= 0 {
		c.Keeper.Queue.Redis.BlockWaitSeconds = 5
	}
	if c.Keeper.Lock.TTLSeconds <= 0 {
		c.Keeper.Lock.TTLSeconds = 15
	}

	if c.Indexer.Driver == "" {
		c.Indexer.Driver = "memory"
	}

	if c.Connectors.File != "" {
		c.Connectors.File = resolve(baseDir, c.Connectors.File)
	}
}

// Validate 检查相互依赖的字段。
func (c *Config) Validate() error {
	if _, err := c.Ledger.OwnerAddress(); err != nil {
		return err
	}
	if c.Contracts.MinDelaySeconds > c.Contracts.MaxDelaySeconds {
		return xerrors.New(xerrors.CodeInvalidArgument, "contracts.min_delay_seconds 不能大于 max_delay_seconds")
	}
	switch c.Ledger.Clock {
	case "system", "manual":
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的时钟类型: %s", c.Ledger.Clock))
	}
	if c.Keeper.Enabled {
		if _, err := c.Keeper.AccountAddress(); err != nil {
			return err
		}
		switch c.Keeper.Queue.Driver {
		case "memory", "redis", "rabbitmq":
		default:
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的队列驱动: %s", c.Keeper.Queue.Driver))
		}
		if c.Keeper.Lock.Enabled && c.Keeper.Queue.Redis.Address == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "keeper.lock 需要配置 keeper.queue.redis.address")
		}
	}
	if c.Indexer.Enabled {
		switch c.Indexer.Driver {
		case "memory":
		case "mysql":
			if strings.TrimSpace(c.Indexer.DSN) == "" {
				return xerrors.New(xerrors.CodeInvalidArgument, "indexer.dsn 不能为空")
			}
		default:
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的索引存储驱动: %s", c.Indexer.Driver))
		}
	}
	return nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s 不是合法地址: %q", field, value))
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s 不能为零地址", field))
	}
	return addr, nil
}
