package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
)

func TestMailboxRepository(t *testing.T) {
	t.Run("同租户同地址创建冲突", func(t *testing.T) {
		store := NewStore()
		mb := &domain.Mailbox{TenantID: "t1", Address: "a@x.example"}
		require.NoError(t, store.CreateMailbox(mb))

		dup := &domain.Mailbox{TenantID: "t1", Address: "a@x.example"}
		assert.ErrorIs(t, store.CreateMailbox(dup), storage.ErrMailboxExists)
	})

	t.Run("不同租户可以有相同地址", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.CreateMailbox(&domain.Mailbox{TenantID: "t1", Address: "a@x.example"}))
		require.NoError(t, store.CreateMailbox(&domain.Mailbox{TenantID: "t2", Address: "a@x.example"}))
	})

	t.Run("跨租户查找只返回激活的非影子邮箱", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.CreateMailbox(&domain.Mailbox{
			TenantID: "t1", Address: "shadow@x.example", IsShadow: true,
		}))

		_, err := store.FindMailboxByAddress("shadow@x.example")
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)

		require.NoError(t, store.CreateMailbox(&domain.Mailbox{
			TenantID: "t2", Address: "real@x.example", IsActive: true,
		}))
		mb, err := store.FindMailboxByAddress("real@x.example")
		require.NoError(t, err)
		assert.Equal(t, "t2", mb.TenantID)
	})
}

func TestMailRepository(t *testing.T) {
	t.Run("邮件与收件人附件一并读回", func(t *testing.T) {
		store := NewStore()
		mail := &domain.Mail{ID: "m1", TenantID: "t1", SenderID: "mb1", Subject: "hi", Status: domain.StatusSent}
		recipients := []*domain.MailRecipient{
			{MailboxID: "mb2", Email: "b@x.example", Type: domain.RecipientTo},
			{MailboxID: "mb3", Email: "c@x.example", Type: domain.RecipientBcc},
		}
		attachments := []*domain.MailAttachment{
			{Filename: "a.txt", ContentType: "text/plain", Size: 3},
		}
		require.NoError(t, store.CreateMail(mail, recipients, attachments))

		got, err := store.GetMail("t1", "m1")
		require.NoError(t, err)
		assert.Len(t, got.Recipients, 2)
		assert.Len(t, got.Attachments, 1)
		assert.Equal(t, "m1", got.Attachments[0].MailID)
	})

	t.Run("跨租户读取被隔离", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.CreateMail(&domain.Mail{ID: "m1", TenantID: "t1"}, nil, nil))

		_, err := store.GetMail("t2", "m1")
		assert.ErrorIs(t, err, storage.ErrMailNotFound)
	})

	t.Run("状态更新写入发送时间", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.CreateMail(&domain.Mail{ID: "m1", TenantID: "t1", Status: domain.StatusFailed}, nil, nil))

		now := time.Now().UTC()
		require.NoError(t, store.UpdateMailStatus("m1", domain.StatusSent, &now))

		got, err := store.GetMail("t1", "m1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, got.Status)
		require.NotNil(t, got.SentAt)
		assert.Equal(t, now, *got.SentAt)
	})
}

func TestFolderRepository(t *testing.T) {
	t.Run("重复放入同一文件夹是幂等no-op", func(t *testing.T) {
		store := NewStore()
		folder := &domain.Folder{MailboxID: "mb1", TenantID: "t1", Type: domain.FolderSent}
		require.NoError(t, store.CreateFolder(folder))

		created, err := store.PlaceMailInFolder(&domain.MailInFolder{MailID: "m1", FolderID: folder.ID, MailboxID: "mb1"})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = store.PlaceMailInFolder(&domain.MailInFolder{MailID: "m1", FolderID: folder.ID, MailboxID: "mb1"})
		require.NoError(t, err)
		assert.False(t, created)

		ids, err := store.ListMailIDsInFolder(folder.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, ids)
	})

	t.Run("按类型查找系统文件夹", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.CreateFolder(&domain.Folder{MailboxID: "mb1", Type: domain.FolderInbox}))

		folder, err := store.GetFolderByType("mb1", domain.FolderInbox)
		require.NoError(t, err)
		assert.Equal(t, domain.FolderInbox, folder.Type)

		_, err = store.GetFolderByType("mb1", domain.FolderDrafts)
		assert.ErrorIs(t, err, storage.ErrFolderNotFound)
	})
}

func TestUsageRepository(t *testing.T) {
	t.Run("计数器不存在时返回零值", func(t *testing.T) {
		store := NewStore()
		counter, err := store.GetUsage("t1", "2026-08-30")
		require.NoError(t, err)
		assert.Zero(t, counter.SentToday)
		assert.Equal(t, "2026-08-30", counter.UsageDate)
	})

	t.Run("并发累加无丢失", func(t *testing.T) {
		store := NewStore()
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.AddSent("t1", "2026-08-30", 1))
				assert.NoError(t, store.AddReceived("t1", "2026-08-30", 2))
			}()
		}
		wg.Wait()

		counter, err := store.GetUsage("t1", "2026-08-30")
		require.NoError(t, err)
		assert.Equal(t, int64(100), counter.SentToday)
		assert.Equal(t, int64(200), counter.ReceivedToday)
		assert.Equal(t, int64(100), counter.TotalSent)
	})
}

func TestAuditRepository(t *testing.T) {
	t.Run("按租户倒序返回审计记录", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.AppendAuditLog(&domain.AuditLog{TenantID: "t1", Action: domain.AuditDeliveryFailed}))
		require.NoError(t, store.AppendAuditLog(&domain.AuditLog{TenantID: "t2", Action: domain.AuditQuotaAlert}))
		require.NoError(t, store.AppendAuditLog(&domain.AuditLog{TenantID: "t1", Action: domain.AuditQuotaAlert}))

		logs, err := store.ListAuditLogs("t1", 10)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, domain.AuditQuotaAlert, logs[0].Action)
		assert.Equal(t, domain.AuditDeliveryFailed, logs[1].Action)
	})
}
