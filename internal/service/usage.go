package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tenantmail/backend/internal/storage"
)

// incrementBackoff 瞬时并发错误的重试间隔（指数退避）
var incrementBackoff = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
}

// UsageAccountant 定义每租户每日用量计数操作。
//
// Increment 在多个调度器实例（可能跨进程）并发调用同一 (tenant, day)
// 键时不丢失更新。它从不无限阻塞调用方：锁等待和重试都有界，
// 耗尽后降级为"计数尽力而为，记日志继续"。
type UsageAccountant interface {
	// Increment 累加发送计数，返回累加后的 sent_today 和 total_sent。
	Increment(ctx context.Context, tenantID, day string, n int) (sentToday, totalSent int64, err error)
	// IncrementReceived 累加接收计数（入站投递路径）。
	IncrementReceived(ctx context.Context, tenantID, day string, n int) error
	// CheckQuota 检查再发 proposed 个收件人是否超出当日配额。
	// 这是一个时间点检查，与后续的 Increment 没有事务关联，
	// 并发发送可能各自通过检查后合计超出配额（有界超额）。
	CheckQuota(ctx context.Context, tenantID, day string, proposed int) (allowed bool, current int64, err error)
}

// Locker 命名分布式锁能力（可选）。
type Locker interface {
	Acquire(ctx context.Context, name string, ttl, wait time.Duration) (release func(), ok bool)
}

// NewUsageAccountant 在启动时按能力选择计数策略。
//
// locker 为 nil 时使用纯原子 upsert 实现；否则使用锁辅助实现，
// 抢不到锁时回落到原子 upsert 路径。
func NewUsageAccountant(usage storage.UsageRepository, tenants storage.TenantRepository, locker Locker, lockTTL, lockWait time.Duration, log *zap.Logger) UsageAccountant {
	atomic := &atomicAccountant{
		usage:   usage,
		tenants: tenants,
		log:     log,
	}
	if locker == nil {
		return atomic
	}
	return &lockedAccountant{
		atomic:   atomic,
		locker:   locker,
		lockTTL:  lockTTL,
		lockWait: lockWait,
		log:      log,
	}
}

// atomicAccountant 纯原子 upsert 实现。
//
// 正确性完全由存储层的单条 insert-or-add 语句保证，瞬时并发错误
// 按指数退避重试至多 3 次。
type atomicAccountant struct {
	usage   storage.UsageRepository
	tenants storage.TenantRepository
	log     *zap.Logger
}

// Increment 累加发送计数
func (a *atomicAccountant) Increment(ctx context.Context, tenantID, day string, n int) (int64, int64, error) {
	if err := a.addSentWithRetry(ctx, tenantID, day, n); err != nil {
		return 0, 0, err
	}

	// upsert 后重读：返回值可能包含并发调用的增量，阈值通知方
	// 用 new-n 推导 previous，保证单次触发语义。
	counter, err := a.usage.GetUsage(tenantID, day)
	if err != nil {
		return 0, 0, err
	}
	return counter.SentToday, counter.TotalSent, nil
}

// IncrementReceived 累加接收计数
func (a *atomicAccountant) IncrementReceived(ctx context.Context, tenantID, day string, n int) error {
	return a.addWithRetry(ctx, func() error {
		return a.usage.AddReceived(tenantID, day, n)
	})
}

// CheckQuota 检查当日配额
func (a *atomicAccountant) CheckQuota(ctx context.Context, tenantID, day string, proposed int) (bool, int64, error) {
	tenant, err := a.tenants.GetTenant(tenantID)
	if err != nil {
		return false, 0, err
	}

	// 配额为 0 表示不限制
	if tenant.MaxEmailsPerDay <= 0 {
		return true, 0, nil
	}

	counter, err := a.usage.GetUsage(tenantID, day)
	if err != nil {
		return false, 0, err
	}

	if counter.SentToday+int64(proposed) > tenant.MaxEmailsPerDay {
		return false, counter.SentToday, nil
	}
	return true, counter.SentToday, nil
}

func (a *atomicAccountant) addSentWithRetry(ctx context.Context, tenantID, day string, n int) error {
	return a.addWithRetry(ctx, func() error {
		return a.usage.AddSent(tenantID, day, n)
	})
}

// addWithRetry 执行一次原子累加，瞬时并发错误重试至多 3 次。
func (a *atomicAccountant) addWithRetry(ctx context.Context, add func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = add()
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrTransientConcurrency) || attempt >= len(incrementBackoff) {
			return err
		}

		a.log.Debug("transient concurrency error, retrying usage increment",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", incrementBackoff[attempt]),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(incrementBackoff[attempt]):
		}
	}
}

// lockedAccountant 锁辅助实现。
//
// 针对极热租户的纵深防御：先抢每租户命名锁（等待上限 3s）串行化
// 发送方，降低存储层的行争用；抢不到时回落到原子 upsert 路径，
// 而不是让发送失败。锁内仍然只做列级原子累加：入站路径不持锁地
// 累加接收列，整行读-改-写会覆盖它的并发更新。
type lockedAccountant struct {
	atomic   *atomicAccountant
	locker   Locker
	lockTTL  time.Duration
	lockWait time.Duration
	log      *zap.Logger
}

// Increment 累加发送计数（锁路径，失败回落到原子路径）
func (l *lockedAccountant) Increment(ctx context.Context, tenantID, day string, n int) (int64, int64, error) {
	release, ok := l.locker.Acquire(ctx, "usage:"+tenantID, l.lockTTL, l.lockWait)
	if !ok {
		l.log.Debug("usage lock not acquired, falling back to atomic upsert",
			zap.String("tenant_id", tenantID),
		)
		return l.atomic.Increment(ctx, tenantID, day, n)
	}
	defer release()

	return l.atomic.Increment(ctx, tenantID, day, n)
}

// IncrementReceived 接收计数频率低，直接走原子路径
func (l *lockedAccountant) IncrementReceived(ctx context.Context, tenantID, day string, n int) error {
	return l.atomic.IncrementReceived(ctx, tenantID, day, n)
}

// CheckQuota 检查当日配额
func (l *lockedAccountant) CheckQuota(ctx context.Context, tenantID, day string, proposed int) (bool, int64, error) {
	return l.atomic.CheckQuota(ctx, tenantID, day, proposed)
}
