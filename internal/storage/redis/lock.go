package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript 只在持有者 token 匹配时删除锁，避免释放他人的锁。
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// acquirePollInterval 获取锁失败后的轮询间隔
const acquirePollInterval = 100 * time.Millisecond

// Locker 基于 Redis SET NX 的命名锁
//
// Acquire 在 wait 时限内轮询抢锁；抢不到时返回 ok=false，调用方应
// 回落到无锁路径而不是让请求失败。锁带 TTL，持有者异常退出后自动释放。
type Locker struct {
	rdb *goredis.Client
	log *zap.Logger
}

// NewLocker 创建命名锁服务
func NewLocker(client *Client, log *zap.Logger) *Locker {
	return &Locker{rdb: client.Client(), log: log}
}

// Acquire 尝试获取命名锁。
//
// 返回的 release 函数释放锁（幂等，token 不匹配时 no-op）。
// wait 耗尽仍未抢到锁时返回 (nil, false)。
func (l *Locker) Acquire(ctx context.Context, name string, ttl, wait time.Duration) (release func(), ok bool) {
	key := "lock:" + name
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		acquired, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			l.log.Warn("lock acquire failed, falling back",
				zap.String("lock", name),
				zap.Error(err),
			)
			return nil, false
		}
		if acquired {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
					l.log.Warn("lock release failed",
						zap.String("lock", name),
						zap.Error(err),
					)
				}
			}, true
		}

		if time.Now().After(deadline) {
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(acquirePollInterval):
		}
	}
}
