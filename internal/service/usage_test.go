package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
	"tenantmail/backend/internal/storage/memory"
)

func newTestTenant(t *testing.T, store storage.Store, limit int64) *domain.Tenant {
	t.Helper()
	tenant := &domain.Tenant{
		ID:              "tenant-" + t.Name(),
		Name:            "Test Tenant",
		Subdomain:       "test",
		AdminEmail:      "admin@test.example",
		MaxEmailsPerDay: limit,
		IsActive:        true,
	}
	require.NoError(t, store.CreateTenant(tenant))
	return tenant
}

func TestAtomicAccountantIncrement(t *testing.T) {
	t.Run("并发累加不丢失更新", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 0)
		accountant := NewUsageAccountant(store, store, nil, 0, 0, zap.NewNop())

		day := domain.UsageDay(time.Now())
		const goroutines = 50
		const perGoroutine = 20

		var wg sync.WaitGroup
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perGoroutine; j++ {
					_, _, err := accountant.Increment(context.Background(), tenant.ID, day, 1)
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		counter, err := store.GetUsage(tenant.ID, day)
		require.NoError(t, err)
		assert.Equal(t, int64(goroutines*perGoroutine), counter.SentToday)
		assert.Equal(t, int64(goroutines*perGoroutine), counter.TotalSent)
	})

	t.Run("多收件人一次累加", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 0)
		accountant := NewUsageAccountant(store, store, nil, 0, 0, zap.NewNop())
		day := domain.UsageDay(time.Now())

		sentToday, totalSent, err := accountant.Increment(context.Background(), tenant.ID, day, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), sentToday)
		assert.Equal(t, int64(3), totalSent)
	})

	t.Run("不同日期互不影响", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 0)
		accountant := NewUsageAccountant(store, store, nil, 0, 0, zap.NewNop())

		_, _, err := accountant.Increment(context.Background(), tenant.ID, "2026-08-29", 5)
		require.NoError(t, err)
		sentToday, totalSent, err := accountant.Increment(context.Background(), tenant.ID, "2026-08-30", 2)
		require.NoError(t, err)

		// 新的一天从零开始，累计计数按日分桶
		assert.Equal(t, int64(2), sentToday)
		assert.Equal(t, int64(2), totalSent)
	})
}

func TestCheckQuota(t *testing.T) {
	t.Run("配额边界恰好用满时放行", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 10)
		accountant := NewUsageAccountant(store, store, nil, 0, 0, zap.NewNop())
		day := domain.UsageDay(time.Now())

		require.NoError(t, store.AddSent(tenant.ID, day, 9))

		allowed, current, err := accountant.CheckQuota(context.Background(), tenant.ID, day, 1)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, int64(9), current)
	})

	t.Run("超出配额时拒绝", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 10)
		accountant := NewUsageAccountant(store, store, nil, 0, 0, zap.NewNop())
		day := domain.UsageDay(time.Now())

		require.NoError(t, store.AddSent(tenant.ID, day, 9))

		allowed, current, err := accountant.CheckQuota(context.Background(), tenant.ID, day, 2)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, int64(9), current)
	})

	t.Run("配额为零表示不限制", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 0)
		accountant := NewUsageAccountant(store, store, nil, 0, 0, zap.NewNop())
		day := domain.UsageDay(time.Now())

		require.NoError(t, store.AddSent(tenant.ID, day, 100000))

		allowed, _, err := accountant.CheckQuota(context.Background(), tenant.ID, day, 1000)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("租户不存在时返回错误", func(t *testing.T) {
		store := memory.NewStore()
		accountant := NewUsageAccountant(store, store, nil, 0, 0, zap.NewNop())

		_, _, err := accountant.CheckQuota(context.Background(), "missing", "2026-08-30", 1)
		assert.ErrorIs(t, err, storage.ErrTenantNotFound)
	})
}

// flakyUsageRepo 前 failures 次 AddSent 返回瞬时并发错误
type flakyUsageRepo struct {
	storage.UsageRepository
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyUsageRepo) AddSent(tenantID, day string, n int) error {
	f.mu.Lock()
	f.calls++
	shouldFail := f.calls <= f.failures
	f.mu.Unlock()

	if shouldFail {
		return storage.ErrTransientConcurrency
	}
	return f.UsageRepository.AddSent(tenantID, day, n)
}

func TestIncrementRetriesTransientErrors(t *testing.T) {
	t.Run("瞬时并发错误重试后成功", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 0)
		flaky := &flakyUsageRepo{UsageRepository: store, failures: 2}
		accountant := NewUsageAccountant(flaky, store, nil, 0, 0, zap.NewNop())

		sentToday, _, err := accountant.Increment(context.Background(), tenant.ID, "2026-08-30", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), sentToday)
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("重试耗尽后返回错误", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 0)
		flaky := &flakyUsageRepo{UsageRepository: store, failures: 100}
		accountant := NewUsageAccountant(flaky, store, nil, 0, 0, zap.NewNop())

		_, _, err := accountant.Increment(context.Background(), tenant.ID, "2026-08-30", 1)
		assert.ErrorIs(t, err, storage.ErrTransientConcurrency)
	})
}

// stubLocker 可控的命名锁实现
type stubLocker struct {
	acquired bool
	released bool
}

func (s *stubLocker) Acquire(ctx context.Context, name string, ttl, wait time.Duration) (func(), bool) {
	if !s.acquired {
		return nil, false
	}
	return func() { s.released = true }, true
}

// interleavingUsageRepo 在首次 GetUsage 返回后注入一次入站累加，
// 模拟入站投递落在持锁发送计数的读与写之间
type interleavingUsageRepo struct {
	storage.UsageRepository
	store *memory.Store
	once  sync.Once
}

func (r *interleavingUsageRepo) GetUsage(tenantID, day string) (*domain.TenantUsageCounter, error) {
	counter, err := r.UsageRepository.GetUsage(tenantID, day)
	r.once.Do(func() {
		_ = r.store.AddReceived(tenantID, day, 1)
	})
	return counter, err
}

func TestLockedAccountant(t *testing.T) {
	t.Run("抢到锁时累加计数并释放锁", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 0)
		locker := &stubLocker{acquired: true}
		accountant := NewUsageAccountant(store, store, locker, time.Second, time.Second, zap.NewNop())

		sentToday, totalSent, err := accountant.Increment(context.Background(), tenant.ID, "2026-08-30", 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), sentToday)
		assert.Equal(t, int64(2), totalSent)
		assert.True(t, locker.released)
	})

	t.Run("抢不到锁时回落到原子路径", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 0)
		locker := &stubLocker{acquired: false}
		accountant := NewUsageAccountant(store, store, locker, time.Second, time.Second, zap.NewNop())

		sentToday, _, err := accountant.Increment(context.Background(), tenant.ID, "2026-08-30", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), sentToday)
	})

	t.Run("锁内计数不覆盖并发的入站累加", func(t *testing.T) {
		store := memory.NewStore()
		tenant := newTestTenant(t, store, 0)
		repo := &interleavingUsageRepo{UsageRepository: store, store: store}
		locker := &stubLocker{acquired: true}
		accountant := NewUsageAccountant(repo, store, locker, time.Second, time.Second, zap.NewNop())

		sentToday, _, err := accountant.Increment(context.Background(), tenant.ID, "2026-08-30", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), sentToday)

		// 入站路径不持锁地累加接收列，发送计数不得把它覆盖掉
		counter, err := store.GetUsage(tenant.ID, "2026-08-30")
		require.NoError(t, err)
		assert.Equal(t, int64(1), counter.SentToday)
		assert.Equal(t, int64(1), counter.ReceivedToday)
		assert.Equal(t, int64(1), counter.TotalReceived)
	})
}
