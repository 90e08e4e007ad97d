package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
)

// RecipientResolver 将邮箱地址解析为租户内的邮箱身份。
//
// 首次遇到没有真实账号的地址（外部地址或尚未开通的本地地址）时，
// 自动创建一个非激活的影子邮箱占位，保证收件人记录的引用完整性。
// 影子邮箱不计入租户用户配额，也不能登录。
type RecipientResolver struct {
	mailboxes storage.MailboxRepository
	log       *zap.Logger
}

// NewRecipientResolver 创建收件人解析器
func NewRecipientResolver(mailboxes storage.MailboxRepository, log *zap.Logger) *RecipientResolver {
	return &RecipientResolver{
		mailboxes: mailboxes,
		log:       log,
	}
}

// Resolve 解析地址，必要时自动创建影子邮箱。
//
// 同一地址的并发解析可能触发重复创建，唯一约束冲突后重新查询，
// 保证同一地址最终只有一个影子邮箱。
func (r *RecipientResolver) Resolve(ctx context.Context, tenantID, email string) (*domain.Mailbox, error) {
	email = domain.NormalizeAddress(email)
	if err := domain.ValidateAddress(email); err != nil {
		return nil, err
	}

	mailbox, err := r.mailboxes.GetMailboxByAddress(tenantID, email)
	if err == nil {
		return mailbox, nil
	}
	if !errors.Is(err, storage.ErrMailboxNotFound) {
		return nil, err
	}

	shadow := &domain.Mailbox{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Address:  email,
		IsActive: false,
		IsShadow: true,
	}

	if err := r.mailboxes.CreateMailbox(shadow); err != nil {
		if errors.Is(err, storage.ErrMailboxExists) {
			// 并发解析同一地址时输给了对方，复用已有邮箱
			return r.mailboxes.GetMailboxByAddress(tenantID, email)
		}
		return nil, err
	}

	r.log.Debug("shadow mailbox provisioned",
		zap.String("tenant_id", tenantID),
		zap.String("address", email),
		zap.String("mailbox_id", shadow.ID),
	)

	return shadow, nil
}
