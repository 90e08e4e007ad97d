package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage/memory"
)

// recordingSender 记录通知调用
type recordingSender struct {
	mu       sync.Mutex
	subjects []string
	failWith error
}

func (r *recordingSender) SendNotice(to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.subjects = append(r.subjects, subject)
	return nil
}

func thresholdTenant(limit int64) *domain.Tenant {
	return &domain.Tenant{
		ID:              "tenant-1",
		Name:            "Acme",
		AdminEmail:      "admin@acme.example",
		MaxEmailsPerDay: limit,
	}
}

func TestThresholdNotifier(t *testing.T) {
	t.Run("跨越80阈值时通知一次", func(t *testing.T) {
		store := memory.NewStore()
		sender := &recordingSender{}
		notifier := NewThresholdNotifier(sender, store, zap.NewNop())

		notifier.MaybeNotify(context.Background(), thresholdTenant(10), 7, 8)

		require.Len(t, sender.subjects, 1)
		assert.Contains(t, sender.subjects[0], "80%")
	})

	t.Run("一次跨越多个阈值只通知最高的", func(t *testing.T) {
		store := memory.NewStore()
		sender := &recordingSender{}
		notifier := NewThresholdNotifier(sender, store, zap.NewNop())

		// 7/10 -> 10/10 同时跨越 80/90/100，只发 100% 告警
		notifier.MaybeNotify(context.Background(), thresholdTenant(10), 7, 10)

		require.Len(t, sender.subjects, 1)
		assert.Contains(t, sender.subjects[0], "100%")
	})

	t.Run("没有跨越阈值时不通知", func(t *testing.T) {
		store := memory.NewStore()
		sender := &recordingSender{}
		notifier := NewThresholdNotifier(sender, store, zap.NewNop())

		notifier.MaybeNotify(context.Background(), thresholdTenant(10), 8, 8)
		notifier.MaybeNotify(context.Background(), thresholdTenant(100), 10, 20)

		assert.Empty(t, sender.subjects)
	})

	t.Run("已跨越的阈值不重复通知", func(t *testing.T) {
		store := memory.NewStore()
		sender := &recordingSender{}
		notifier := NewThresholdNotifier(sender, store, zap.NewNop())

		notifier.MaybeNotify(context.Background(), thresholdTenant(10), 7, 8)
		// 8 -> 8.5 仍在 80-90 区间内，不应再次告警
		notifier.MaybeNotify(context.Background(), thresholdTenant(100), 80, 85)

		require.Len(t, sender.subjects, 1)
	})

	t.Run("不限配额时静默", func(t *testing.T) {
		store := memory.NewStore()
		sender := &recordingSender{}
		notifier := NewThresholdNotifier(sender, store, zap.NewNop())

		notifier.MaybeNotify(context.Background(), thresholdTenant(0), 0, 100000)

		assert.Empty(t, sender.subjects)
	})

	t.Run("通知成功后写审计日志", func(t *testing.T) {
		store := memory.NewStore()
		sender := &recordingSender{}
		notifier := NewThresholdNotifier(sender, store, zap.NewNop())

		notifier.MaybeNotify(context.Background(), thresholdTenant(10), 0, 9)

		logs, err := store.ListAuditLogs("tenant-1", 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, domain.AuditQuotaAlert, logs[0].Action)
	})

	t.Run("通知失败只记日志不panic", func(t *testing.T) {
		store := memory.NewStore()
		sender := &recordingSender{failWith: errors.New("relay down")}
		notifier := NewThresholdNotifier(sender, store, zap.NewNop())

		assert.NotPanics(t, func() {
			notifier.MaybeNotify(context.Background(), thresholdTenant(10), 7, 10)
		})

		// 发送失败时不写审计
		logs, err := store.ListAuditLogs("tenant-1", 10)
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}
