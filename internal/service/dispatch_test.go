package service

import (
	"context"
	"errors"
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

// fakeTransport 记录投递调用，可注入失败
type fakeTransport struct {
	mu       sync.Mutex
	calls    int
	lastTo   []string
	lastBcc  []string
	failWith error
	notices  []string
}

func (f *fakeTransport) Deliver(ctx context.Context, from *domain.Mailbox, to, cc, bcc []string, subject, textBody, htmlBody string, attachments []*domain.MailAttachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTo = to
	f.lastBcc = bcc
	return f.failWith
}

func (f *fakeTransport) SendNotice(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, to)
	return nil
}

type dispatchFixture struct {
	store      storage.Store
	transport  *fakeTransport
	dispatcher *MailDispatcher
	tenant     *domain.Tenant
	sender     *domain.Mailbox
}

func newDispatchFixture(t *testing.T, dailyLimit int64) *dispatchFixture {
	t.Helper()

	store := memory.NewStore()
	log := zap.NewNop()

	tenant := &domain.Tenant{
		ID:              "tenant-1",
		Name:            "Acme",
		Subdomain:       "acme",
		AdminEmail:      "admin@acme.example",
		MaxEmailsPerDay: dailyLimit,
		IsActive:        true,
	}
	require.NoError(t, store.CreateTenant(tenant))

	sender := &domain.Mailbox{
		ID:       "mailbox-1",
		TenantID: tenant.ID,
		Address:  "alice@acme.example",
		IsActive: true,
	}
	require.NoError(t, store.CreateMailbox(sender))

	transport := &fakeTransport{}
	accountant := NewUsageAccountant(store, store, nil, 0, 0, log)
	dispatcher := NewMailDispatcher(MailDispatcherDeps{
		Store:      store,
		Resolver:   NewRecipientResolver(store, log),
		Assigner:   NewFolderAssigner(store),
		Accountant: accountant,
		Notifier:   NewThresholdNotifier(transport, store, log),
		Transport:  transport,
		Logger:     log,
	})

	return &dispatchFixture{
		store:      store,
		transport:  transport,
		dispatcher: dispatcher,
		tenant:     tenant,
		sender:     sender,
	}
}

func TestDispatcherSend(t *testing.T) {
	t.Run("成功发送后状态为已发送并进已发送文件夹", func(t *testing.T) {
		fx := newDispatchFixture(t, 0)

		result, err := fx.dispatcher.Send(context.Background(), SendInput{
			TenantID: fx.tenant.ID,
			SenderID: fx.sender.ID,
			To:       []string{"bob@external.example"},
			Cc:       []string{"carol@acme.example"},
			Subject:  "hello",
			TextBody: "hi",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, result.Status)
		require.NotNil(t, result.SentAt)
		assert.Equal(t, 1, fx.transport.calls)

		mail, err := fx.store.GetMail(fx.tenant.ID, result.MailID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, mail.Status)
		assert.Len(t, mail.Recipients, 2)

		// 已发送文件夹归位
		folder, err := fx.store.GetFolderByType(fx.sender.ID, domain.FolderSent)
		require.NoError(t, err)
		ids, err := fx.store.ListMailIDsInFolder(folder.ID)
		require.NoError(t, err)
		assert.Contains(t, ids, result.MailID)

		// 按收件人计数：to + cc = 2
		counter, err := fx.store.GetUsage(fx.tenant.ID, domain.UsageDay(time.Now()))
		require.NoError(t, err)
		assert.Equal(t, int64(2), counter.SentToday)
	})

	t.Run("草稿不投递不计数只进草稿箱", func(t *testing.T) {
		fx := newDispatchFixture(t, 0)

		result, err := fx.dispatcher.Send(context.Background(), SendInput{
			TenantID: fx.tenant.ID,
			SenderID: fx.sender.ID,
			Subject:  "draft subject",
			IsDraft:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDraft, result.Status)
		assert.Nil(t, result.SentAt)
		assert.Equal(t, 0, fx.transport.calls)

		folder, err := fx.store.GetFolderByType(fx.sender.ID, domain.FolderDrafts)
		require.NoError(t, err)
		ids, err := fx.store.ListMailIDsInFolder(folder.ID)
		require.NoError(t, err)
		assert.Contains(t, ids, result.MailID)

		counter, err := fx.store.GetUsage(fx.tenant.ID, domain.UsageDay(time.Now()))
		require.NoError(t, err)
		assert.Zero(t, counter.SentToday)
	})

	t.Run("非草稿且无收件人时拒绝", func(t *testing.T) {
		fx := newDispatchFixture(t, 0)

		_, err := fx.dispatcher.Send(context.Background(), SendInput{
			TenantID: fx.tenant.ID,
			SenderID: fx.sender.ID,
			Subject:  "no recipients",
		})
		assert.ErrorIs(t, err, ErrNoRecipients)
		assert.Equal(t, 0, fx.transport.calls)
	})

	t.Run("配额耗尽时拒绝且不落库不投递", func(t *testing.T) {
		fx := newDispatchFixture(t, 5)
		day := domain.UsageDay(time.Now())
		require.NoError(t, fx.store.AddSent(fx.tenant.ID, day, 5))

		_, err := fx.dispatcher.Send(context.Background(), SendInput{
			TenantID: fx.tenant.ID,
			SenderID: fx.sender.ID,
			To:       []string{"bob@external.example"},
		})
		assert.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Equal(t, 0, fx.transport.calls)

		counter, err := fx.store.GetUsage(fx.tenant.ID, day)
		require.NoError(t, err)
		assert.Equal(t, int64(5), counter.SentToday)
	})

	t.Run("停用租户拒绝发送", func(t *testing.T) {
		fx := newDispatchFixture(t, 0)
		fx.tenant.IsActive = false
		require.NoError(t, fx.store.UpdateTenant(fx.tenant))

		_, err := fx.dispatcher.Send(context.Background(), SendInput{
			TenantID: fx.tenant.ID,
			SenderID: fx.sender.ID,
			To:       []string{"bob@external.example"},
		})
		assert.ErrorIs(t, err, ErrTenantInactive)
	})

	t.Run("影子邮箱不能作为发件人", func(t *testing.T) {
		fx := newDispatchFixture(t, 0)
		shadow := &domain.Mailbox{
			ID:       "shadow-1",
			TenantID: fx.tenant.ID,
			Address:  "ghost@external.example",
			IsShadow: true,
		}
		require.NoError(t, fx.store.CreateMailbox(shadow))

		_, err := fx.dispatcher.Send(context.Background(), SendInput{
			TenantID: fx.tenant.ID,
			SenderID: shadow.ID,
			To:       []string{"bob@external.example"},
		})
		assert.ErrorIs(t, err, ErrMailboxInactive)
	})

	t.Run("投递失败时邮件保留为失败状态并写审计", func(t *testing.T) {
		fx := newDispatchFixture(t, 0)
		fx.transport.failWith = NewDeliveryError(DeliveryConnection, errors.New("connection refused"))

		_, err := fx.dispatcher.Send(context.Background(), SendInput{
			TenantID: fx.tenant.ID,
			SenderID: fx.sender.ID,
			To:       []string{"bob@external.example"},
			Subject:  "will fail",
		})
		require.Error(t, err)

		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, DeliveryConnection, de.Category)

		// 邮件行保留为 failed 终态，可诊断可重发
		mails, listErr := fx.store.ListMailsBySender(fx.tenant.ID, fx.sender.ID, 10)
		require.NoError(t, listErr)
		require.Len(t, mails, 1)
		assert.Equal(t, domain.StatusFailed, mails[0].Status)

		logs, auditErr := fx.store.ListAuditLogs(fx.tenant.ID, 10)
		require.NoError(t, auditErr)
		require.Len(t, logs, 1)
		assert.Equal(t, domain.AuditDeliveryFailed, logs[0].Action)

		// 投递失败不计数
		counter, usageErr := fx.store.GetUsage(fx.tenant.ID, domain.UsageDay(time.Now()))
		require.NoError(t, usageErr)
		assert.Zero(t, counter.SentToday)
	})

	t.Run("同一外部地址复用影子邮箱", func(t *testing.T) {
		fx := newDispatchFixture(t, 0)

		for i := 0; i < 2; i++ {
			_, err := fx.dispatcher.Send(context.Background(), SendInput{
				TenantID: fx.tenant.ID,
				SenderID: fx.sender.ID,
				To:       []string{"Bob@External.example"},
			})
			require.NoError(t, err)
		}

		// 地址规范化后只有一个影子邮箱
		shadow, err := fx.store.GetMailboxByAddress(fx.tenant.ID, "bob@external.example")
		require.NoError(t, err)
		assert.True(t, shadow.IsShadow)
		assert.False(t, shadow.IsActive)

		mailboxes, err := fx.store.ListMailboxes(fx.tenant.ID)
		require.NoError(t, err)
		assert.Len(t, mailboxes, 2) // alice + 一个影子
	})

	t.Run("无效收件人地址拒绝", func(t *testing.T) {
		fx := newDispatchFixture(t, 0)

		_, err := fx.dispatcher.Send(context.Background(), SendInput{
			TenantID: fx.tenant.ID,
			SenderID: fx.sender.ID,
			To:       []string{"not-an-address"},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAddress)
		assert.Equal(t, 0, fx.transport.calls)
	})

	t.Run("密送进信封但计入收件人数", func(t *testing.T) {
		fx := newDispatchFixture(t, 0)

		_, err := fx.dispatcher.Send(context.Background(), SendInput{
			TenantID: fx.tenant.ID,
			SenderID: fx.sender.ID,
			To:       []string{"bob@external.example"},
			Bcc:      []string{"secret@external.example"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"secret@external.example"}, fx.transport.lastBcc)

		counter, err := fx.store.GetUsage(fx.tenant.ID, domain.UsageDay(time.Now()))
		require.NoError(t, err)
		assert.Equal(t, int64(2), counter.SentToday)
	})
}
