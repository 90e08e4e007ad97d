package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/monitoring"
	"tenantmail/backend/internal/storage"
)

// MailTransport 外发 SMTP 传输能力。
//
// to/cc/bcc 共同构成投递信封；bcc 不出现在报文头。
type MailTransport interface {
	Deliver(ctx context.Context, from *domain.Mailbox, to, cc, bcc []string, subject, textBody, htmlBody string, attachments []*domain.MailAttachment) error
}

// AttachmentStore 附件内容存储能力。
type AttachmentStore interface {
	SaveAttachment(tenantID, mailID string, att *domain.MailAttachment) (string, error)
	DeleteMailAttachments(tenantID, mailID string) error
}

// DeliveryPool 将投递任务移出请求接收路径的协程池能力。
// SubmitWait 阻塞到任务执行完成，保持请求内同步语义。
type DeliveryPool interface {
	SubmitWait(task func())
}

// MailDispatcher 是邮件发送的编排核心，也是 CRUD 层唯一调用的组件。
//
// Send 的各阶段保证见方法注释；共享可变状态只有每租户每日计数器，
// 由 UsageAccountant 背后的原子 upsert 保护。
type MailDispatcher struct {
	tenants     storage.TenantRepository
	mailboxes   storage.MailboxRepository
	mails       storage.MailRepository
	usage       storage.UsageRepository
	audit       storage.AuditRepository
	resolver    *RecipientResolver
	assigner    *FolderAssigner
	accountant  UsageAccountant
	notifier    *ThresholdNotifier
	transport   MailTransport
	attachments AttachmentStore
	pool        DeliveryPool
	metrics     *monitoring.Metrics
	log         *zap.Logger
}

// MailDispatcherDeps MailDispatcher 的依赖集合
type MailDispatcherDeps struct {
	Store       storage.Store
	Resolver    *RecipientResolver
	Assigner    *FolderAssigner
	Accountant  UsageAccountant
	Notifier    *ThresholdNotifier
	Transport   MailTransport
	Attachments AttachmentStore // 可选，nil 时不持久化附件文件
	Pool        DeliveryPool    // 可选，nil 时投递在调用协程内执行
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
}

// NewMailDispatcher 创建邮件调度器
func NewMailDispatcher(deps MailDispatcherDeps) *MailDispatcher {
	return &MailDispatcher{
		tenants:     deps.Store,
		mailboxes:   deps.Store,
		mails:       deps.Store,
		usage:       deps.Store,
		audit:       deps.Store,
		resolver:    deps.Resolver,
		assigner:    deps.Assigner,
		accountant:  deps.Accountant,
		notifier:    deps.Notifier,
		transport:   deps.Transport,
		attachments: deps.Attachments,
		pool:        deps.Pool,
		metrics:     deps.Metrics,
		log:         deps.Logger,
	}
}

// SendInput 定义一次发送请求。
type SendInput struct {
	TenantID    string
	SenderID    string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Priority    domain.MailPriority
	Attachments []*domain.MailAttachment
	IsDraft     bool
}

// SendResult 定义发送结果。
type SendResult struct {
	MailID string            `json:"mailId"`
	Status domain.MailStatus `json:"status"`
	SentAt *time.Time        `json:"sentAt,omitempty"`
}

// Send 执行完整的发送流水线：
// 校验 → 配额预检 → 单事务持久化 → SMTP 投递 → 状态更新 →
// 文件夹归位 → 原子计数 → 阈值通知。
//
// 阶段性保证：
//   - 持久化提交失败时返回 ErrPersistenceFailure，下游什么都不执行；
//   - 投递失败时邮件行保留为 failed 状态（不回滚），写审计后向调用方
//     返回错误，支持诊断与重发；
//   - 计数失败不影响已完成投递的发送结果，记日志后继续（接受的
//     不一致窗口，换取投递与计数解耦）。
func (d *MailDispatcher) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	tenant, err := d.tenants.GetTenant(input.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, ErrTenantInactive
	}

	sender, err := d.mailboxes.GetMailbox(input.TenantID, input.SenderID)
	if err != nil {
		return nil, err
	}
	if !sender.IsActive || sender.IsShadow {
		return nil, ErrMailboxInactive
	}

	if !input.IsDraft && len(input.To) == 0 {
		return nil, ErrNoRecipients
	}

	priority, err := domain.ValidatePriority(input.Priority)
	if err != nil {
		return nil, err
	}

	recipientCount := len(input.To) + len(input.Cc) + len(input.Bcc)
	day := domain.UsageDay(time.Now())

	// 配额预检：失败时不落任何数据。这是时间点检查，与最终计数
	// 没有事务关联，并发发送可能有界超额（每个并发方至多一批）。
	if !input.IsDraft {
		allowed, current, err := d.accountant.CheckQuota(ctx, input.TenantID, day, recipientCount)
		if err != nil {
			return nil, fmt.Errorf("quota check failed: %w", err)
		}
		if !allowed {
			d.metrics.QuotaRejectedInc()
			d.log.Info("send rejected by quota",
				zap.String("tenant_id", input.TenantID),
				zap.Int64("sent_today", current),
				zap.Int64("limit", tenant.MaxEmailsPerDay),
				zap.Int("proposed", recipientCount),
			)
			return nil, ErrQuotaExceeded
		}
	}

	now := time.Now().UTC()
	mail := &domain.Mail{
		ID:       NewMailID(now),
		TenantID: input.TenantID,
		SenderID: sender.ID,
		Subject:  input.Subject,
		TextBody: input.TextBody,
		HTMLBody: input.HTMLBody,
		Priority: priority,
		IsDraft:  input.IsDraft,
	}
	if input.IsDraft {
		mail.Status = domain.StatusDraft
	} else {
		// 投递前先落为 failed，成功后升级为 sent。进程在投递中途
		// 崩溃时邮件停留在可诊断的终态，不会出现悬空状态。
		mail.Status = domain.StatusFailed
	}

	recipients, err := d.resolveRecipients(ctx, input)
	if err != nil {
		return nil, err
	}

	attachments, err := d.persistAttachments(input.TenantID, mail.ID, input.Attachments)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	if err := d.mails.CreateMail(mail, recipients, attachments); err != nil {
		// 事务没提交，已写入的附件文件尽力清理
		if d.attachments != nil {
			_ = d.attachments.DeleteMailAttachments(input.TenantID, mail.ID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	// 草稿短路：不碰 SMTP 也不碰计数器，只放入草稿箱。
	if input.IsDraft {
		if err := d.assigner.PlaceInSystemFolder(ctx, input.TenantID, sender.ID, mail.ID, domain.FolderDrafts); err != nil {
			d.log.Warn("failed to place draft into folder",
				zap.String("mail_id", mail.ID),
				zap.Error(err),
			)
		}
		d.metrics.DraftSavedInc()
		return &SendResult{MailID: mail.ID, Status: domain.StatusDraft}, nil
	}

	if err := d.deliver(ctx, sender, mail, input, attachments); err != nil {
		return nil, err
	}

	sentAt := time.Now().UTC()
	if err := d.mails.UpdateMailStatus(mail.ID, domain.StatusSent, &sentAt); err != nil {
		d.log.Error("failed to mark mail as sent",
			zap.String("mail_id", mail.ID),
			zap.Error(err),
		)
	}

	if err := d.assigner.PlaceInSystemFolder(ctx, input.TenantID, sender.ID, mail.ID, domain.FolderSent); err != nil {
		d.log.Warn("failed to place mail into sent folder",
			zap.String("mail_id", mail.ID),
			zap.Error(err),
		)
	}

	// 计数与阈值通知：投递已经发生，这里的失败不再影响调用方结果。
	sentToday, _, err := d.accountant.Increment(ctx, input.TenantID, day, recipientCount)
	if err != nil {
		d.metrics.AccountingFailureInc()
		d.log.Error("usage accounting failed after successful delivery",
			zap.String("tenant_id", input.TenantID),
			zap.String("mail_id", mail.ID),
			zap.Int("recipients", recipientCount),
			zap.Error(err),
		)
	} else {
		d.notifier.MaybeNotify(ctx, tenant, sentToday-int64(recipientCount), sentToday)
	}

	d.metrics.MailSentInc()
	d.log.Info("mail dispatched",
		zap.String("tenant_id", input.TenantID),
		zap.String("mail_id", mail.ID),
		zap.Int("recipients", recipientCount),
		zap.Int("attachments", len(attachments)),
	)

	return &SendResult{MailID: mail.ID, Status: domain.StatusSent, SentAt: &sentAt}, nil
}

// GetMail 获取邮件详情（失败的邮件也可查，支持诊断与重发）。
func (d *MailDispatcher) GetMail(ctx context.Context, tenantID, mailID string) (*domain.Mail, error) {
	return d.mails.GetMail(tenantID, mailID)
}

// Usage 返回租户今日计数器与配额限制。
func (d *MailDispatcher) Usage(ctx context.Context, tenantID string) (*domain.TenantUsageCounter, *domain.Tenant, error) {
	tenant, err := d.tenants.GetTenant(tenantID)
	if err != nil {
		return nil, nil, err
	}
	counter, err := d.usage.GetUsage(tenantID, domain.UsageDay(time.Now()))
	if err != nil {
		return nil, nil, err
	}
	return counter, tenant, nil
}

// resolveRecipients 逐个解析 to/cc/bcc 地址为收件人记录（收件人扇出）。
func (d *MailDispatcher) resolveRecipients(ctx context.Context, input SendInput) ([]*domain.MailRecipient, error) {
	groups := []struct {
		addrs []string
		typ   domain.RecipientType
	}{
		{input.To, domain.RecipientTo},
		{input.Cc, domain.RecipientCc},
		{input.Bcc, domain.RecipientBcc},
	}

	var recipients []*domain.MailRecipient
	for _, group := range groups {
		for _, addr := range group.addrs {
			mailbox, err := d.resolver.Resolve(ctx, input.TenantID, addr)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve recipient %s: %w", addr, err)
			}
			recipients = append(recipients, &domain.MailRecipient{
				MailboxID: mailbox.ID,
				Email:     domain.NormalizeAddress(addr),
				Type:      group.typ,
			})
		}
	}
	return recipients, nil
}

// persistAttachments 把附件内容写入文件存储，返回带存储路径的记录。
func (d *MailDispatcher) persistAttachments(tenantID, mailID string, attachments []*domain.MailAttachment) ([]*domain.MailAttachment, error) {
	if len(attachments) == 0 {
		return nil, nil
	}

	out := make([]*domain.MailAttachment, 0, len(attachments))
	for _, att := range attachments {
		if att == nil {
			continue
		}
		if d.attachments != nil {
			if _, err := d.attachments.SaveAttachment(tenantID, mailID, att); err != nil {
				return nil, err
			}
		}
		out = append(out, att)
	}
	return out, nil
}

// deliver 通过投递协程池执行 SMTP 投递（池未配置时在当前协程执行），
// 失败时更新邮件状态并写审计。
func (d *MailDispatcher) deliver(ctx context.Context, sender *domain.Mailbox, mail *domain.Mail, input SendInput, attachments []*domain.MailAttachment) error {
	started := time.Now()

	var deliverErr error
	run := func() {
		deliverErr = d.transport.Deliver(ctx, sender, input.To, input.Cc, input.Bcc, input.Subject, input.TextBody, input.HTMLBody, attachments)
	}
	if d.pool != nil {
		d.pool.SubmitWait(run)
	} else {
		run()
	}

	d.metrics.DeliveryObserve(time.Since(started))

	if deliverErr == nil {
		return nil
	}

	category := DeliveryUnknown
	var de *DeliveryError
	if errors.As(deliverErr, &de) {
		category = de.Category
	}

	if err := d.mails.UpdateMailStatus(mail.ID, domain.StatusFailed, nil); err != nil {
		d.log.Error("failed to mark mail as failed",
			zap.String("mail_id", mail.ID),
			zap.Error(err),
		)
	}

	if err := d.audit.AppendAuditLog(&domain.AuditLog{
		TenantID: mail.TenantID,
		MailID:   mail.ID,
		Action:   domain.AuditDeliveryFailed,
		Detail:   fmt.Sprintf("category=%s error=%v", category, deliverErr),
	}); err != nil {
		d.log.Warn("failed to append delivery failure audit log", zap.Error(err))
	}

	d.metrics.MailFailedInc(string(category))
	d.log.Error("mail delivery failed",
		zap.String("tenant_id", mail.TenantID),
		zap.String("mail_id", mail.ID),
		zap.String("category", string(category)),
		zap.Error(deliverErr),
	)

	if de != nil {
		return de
	}
	return NewDeliveryError(category, deliverErr)
}
