package storage

import (
	"errors"
	"time"

	"tenantmail/backend/internal/domain"
)

var (
	// ErrTenantNotFound 租户未找到错误
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrMailboxNotFound 邮箱未找到错误
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrMailboxExists 邮箱已存在错误
	ErrMailboxExists = errors.New("mailbox already exists")
	// ErrMailNotFound 邮件未找到错误
	ErrMailNotFound = errors.New("mail not found")
	// ErrFolderNotFound 文件夹未找到错误
	ErrFolderNotFound = errors.New("folder not found")
	// ErrAttachmentNotFound 附件未找到错误
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrTransientConcurrency 表示底层存储的瞬时并发错误
	// （死锁/序列化冲突/锁等待超时），调用方可安全重试。
	ErrTransientConcurrency = errors.New("transient concurrency error")
)

// TenantRepository 定义租户数据存取操作。
type TenantRepository interface {
	CreateTenant(tenant *domain.Tenant) error
	GetTenant(id string) (*domain.Tenant, error)
	GetTenantBySubdomain(subdomain string) (*domain.Tenant, error)
	UpdateTenant(tenant *domain.Tenant) error
}

// MailboxRepository 定义邮箱数据存取操作。
type MailboxRepository interface {
	CreateMailbox(mailbox *domain.Mailbox) error
	GetMailbox(tenantID, id string) (*domain.Mailbox, error)
	GetMailboxByAddress(tenantID, address string) (*domain.Mailbox, error)
	// FindMailboxByAddress 跨租户按地址查找激活邮箱（入站投递使用）。
	FindMailboxByAddress(address string) (*domain.Mailbox, error)
	ListMailboxes(tenantID string) ([]domain.Mailbox, error)
}

// MailRepository 定义邮件数据存取操作。
//
// CreateMail 在单个事务内写入邮件行、全部收件人行和附件行，
// 提交失败时什么都不落库。
type MailRepository interface {
	CreateMail(mail *domain.Mail, recipients []*domain.MailRecipient, attachments []*domain.MailAttachment) error
	GetMail(tenantID, mailID string) (*domain.Mail, error)
	ListMailsBySender(tenantID, senderID string, limit int) ([]domain.Mail, error)
	UpdateMailStatus(mailID string, status domain.MailStatus, sentAt *time.Time) error
}

// FolderRepository 定义文件夹数据存取操作。
//
// PlaceMailInFolder 是幂等的：同一 (mail, folder) 的第二次放置是
// no-op，返回 created=false 而不是错误。
type FolderRepository interface {
	CreateFolder(folder *domain.Folder) error
	GetFolder(folderID string) (*domain.Folder, error)
	GetFolderByType(mailboxID string, folderType domain.FolderType) (*domain.Folder, error)
	PlaceMailInFolder(entry *domain.MailInFolder) (created bool, err error)
	ListMailIDsInFolder(folderID string) ([]string, error)
}

// UsageRepository 定义用量计数器存取操作。
//
// AddSent/AddReceived 是对 (tenant, day) 行的原子 insert-or-add：
// 行不存在则插入初始值，存在则在一条不可分割的语句内累加，
// 并发调用之间不存在读-改-写竞态。计数器没有整行写回操作：
// 发送列和接收列由互不持锁的路径并发累加，只允许列级更新。
type UsageRepository interface {
	AddSent(tenantID, day string, n int) error
	AddReceived(tenantID, day string, n int) error
	GetUsage(tenantID, day string) (*domain.TenantUsageCounter, error)
}

// AuditRepository 定义审计日志存取操作。
type AuditRepository interface {
	AppendAuditLog(entry *domain.AuditLog) error
	ListAuditLogs(tenantID string, limit int) ([]domain.AuditLog, error)
}

// Store 聚合调度核心需要的全部存储操作。
type Store interface {
	TenantRepository
	MailboxRepository
	MailRepository
	FolderRepository
	UsageRepository
	AuditRepository
	Health() error
	Close() error
}
