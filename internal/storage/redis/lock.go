package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	xerrors "AIButler-Chain/internal/errors"
)

// DefaultLockKey 是 keeper 选主使用的默认键。
const DefaultLockKey = "butler:keeper:leader"

// refreshScript 仅在锁仍由当前持有者持有时续约。
var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript 仅在锁仍由当前持有者持有时删除。
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockConfig 描述租约锁参数。
type LockConfig struct {
	Key string
	TTL time.Duration
}

// Lock 是基于 SET NX PX 的租约锁，每个实例持有唯一的 token。
type Lock struct {
	client goredis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

// NewLock 创建租约锁。
func NewLock(client goredis.UniversalClient, cfg LockConfig) (*Lock, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "Redis 客户端未初始化")
	}
	key := cfg.Key
	if key == "" {
		key = DefaultLockKey
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Lock{client: client, key: key, token: uuid.NewString(), ttl: ttl}, nil
}

// Token 返回当前实例的持有者标识。
func (l *Lock) Token() string { return l.token }

// TryAcquire 尝试获取锁；若已持有则续约。
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取 Redis 锁失败")
	}
	if ok {
		return true, nil
	}
	renewed, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "续约 Redis 锁失败")
	}
	return renewed == 1, nil
}

// Release 释放锁，不会删除其他实例持有的锁。
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "释放 Redis 锁失败")
	}
	return nil
}
