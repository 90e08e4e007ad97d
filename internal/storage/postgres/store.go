package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
)

// Store 关系型存储实现（PostgreSQL / MySQL，通过 GORM dialector 区分）
type Store struct {
	db *gorm.DB
}

// NewStoreWithType 按数据库类型创建存储实例
func NewStoreWithType(dbType, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Store, error) {
	var dialector gorm.Dialector
	switch dbType {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	return NewStoreWithDialector(dialector, maxOpenConns, maxIdleConns, connMaxLifetime)
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Tenant{},
		&domain.Mailbox{},
		&domain.Mail{},
		&domain.MailRecipient{},
		&domain.MailAttachment{},
		&domain.Folder{},
		&domain.MailInFolder{},
		&domain.TenantUsageCounter{},
		&domain.AuditLog{},
	)
}

// ========== Tenant Repository ==========

// CreateTenant 创建租户
func (s *Store) CreateTenant(tenant *domain.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return s.db.Create(tenant).Error
}

// GetTenant 根据 ID 获取租户
func (s *Store) GetTenant(id string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := s.db.Where("id = ?", id).First(&tenant).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// GetTenantBySubdomain 根据子域名获取租户
func (s *Store) GetTenantBySubdomain(subdomain string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := s.db.Where("subdomain = ?", subdomain).First(&tenant).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// UpdateTenant 更新租户
func (s *Store) UpdateTenant(tenant *domain.Tenant) error {
	tenant.UpdatedAt = time.Now().UTC()
	return s.db.Save(tenant).Error
}

// ========== Mailbox Repository ==========

// CreateMailbox 创建邮箱
func (s *Store) CreateMailbox(mailbox *domain.Mailbox) error {
	if mailbox.ID == "" {
		mailbox.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	mailbox.CreatedAt = now
	mailbox.UpdatedAt = now

	err := s.db.Create(mailbox).Error
	if err != nil && isDuplicateErr(err) {
		return storage.ErrMailboxExists
	}
	return err
}

// GetMailbox 根据 ID 获取租户内邮箱
func (s *Store) GetMailbox(tenantID, id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&mailbox).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// GetMailboxByAddress 根据地址获取租户内邮箱
func (s *Store) GetMailboxByAddress(tenantID, address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("tenant_id = ? AND address = ?", tenantID, address).First(&mailbox).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// FindMailboxByAddress 跨租户按地址查找激活邮箱（入站投递使用）
func (s *Store) FindMailboxByAddress(address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("address = ? AND is_active = ? AND is_shadow = ?", address, true, false).First(&mailbox).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// ListMailboxes 返回租户的全部邮箱
func (s *Store) ListMailboxes(tenantID string) ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := s.db.Where("tenant_id = ?", tenantID).Find(&mailboxes).Error
	return mailboxes, err
}

// ========== Mail Repository ==========

// CreateMail 在单个事务内创建邮件行、收件人行和附件行。
// 提交失败时整体回滚，什么都不落库。
func (s *Store) CreateMail(mail *domain.Mail, recipients []*domain.MailRecipient, attachments []*domain.MailAttachment) error {
	now := time.Now().UTC()
	if mail.CreatedAt.IsZero() {
		mail.CreatedAt = now
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(mail).Error; err != nil {
			return err
		}

		for _, rcpt := range recipients {
			if rcpt.ID == "" {
				rcpt.ID = uuid.NewString()
			}
			rcpt.MailID = mail.ID
			if err := tx.Create(rcpt).Error; err != nil {
				return err
			}
		}

		for _, att := range attachments {
			if att.ID == "" {
				att.ID = uuid.NewString()
			}
			att.MailID = mail.ID
			if err := tx.Create(att).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// GetMail 获取邮件及其收件人与附件记录
func (s *Store) GetMail(tenantID, mailID string) (*domain.Mail, error) {
	var mail domain.Mail
	err := s.db.Where("id = ? AND tenant_id = ?", mailID, tenantID).First(&mail).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrMailNotFound
		}
		return nil, err
	}

	var recipients []*domain.MailRecipient
	if err := s.db.Where("mail_id = ?", mailID).Find(&recipients).Error; err != nil {
		return nil, err
	}
	mail.Recipients = recipients

	var attachments []*domain.MailAttachment
	if err := s.db.Where("mail_id = ?", mailID).Find(&attachments).Error; err != nil {
		return nil, err
	}
	mail.Attachments = attachments

	return &mail, nil
}

// ListMailsBySender 返回某个发件邮箱的邮件（按创建时间倒序）
func (s *Store) ListMailsBySender(tenantID, senderID string, limit int) ([]domain.Mail, error) {
	if limit <= 0 {
		limit = 50
	}
	var mails []domain.Mail
	err := s.db.Where("tenant_id = ? AND sender_id = ?", tenantID, senderID).
		Order("created_at DESC").
		Limit(limit).
		Find(&mails).Error
	return mails, err
}

// UpdateMailStatus 更新邮件状态与发送时间
func (s *Store) UpdateMailStatus(mailID string, status domain.MailStatus, sentAt *time.Time) error {
	updates := map[string]interface{}{
		"status":   status,
		"is_draft": status == domain.StatusDraft,
	}
	if sentAt != nil {
		updates["sent_at"] = *sentAt
	}

	result := s.db.Model(&domain.Mail{}).Where("id = ?", mailID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMailNotFound
	}
	return nil
}

// ========== Folder Repository ==========

// CreateFolder 创建文件夹
func (s *Store) CreateFolder(folder *domain.Folder) error {
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = time.Now().UTC()
	}
	return s.db.Create(folder).Error
}

// GetFolder 根据 ID 获取文件夹
func (s *Store) GetFolder(folderID string) (*domain.Folder, error) {
	var folder domain.Folder
	err := s.db.Where("id = ?", folderID).First(&folder).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrFolderNotFound
		}
		return nil, err
	}
	return &folder, nil
}

// GetFolderByType 获取邮箱的指定类型系统文件夹
func (s *Store) GetFolderByType(mailboxID string, folderType domain.FolderType) (*domain.Folder, error) {
	var folder domain.Folder
	err := s.db.Where("mailbox_id = ? AND type = ?", mailboxID, folderType).First(&folder).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrFolderNotFound
		}
		return nil, err
	}
	return &folder, nil
}

// PlaceMailInFolder 幂等地将邮件放入文件夹。
// 先做存在性检查，(mail, folder) 已有记录时直接返回 created=false。
func (s *Store) PlaceMailInFolder(entry *domain.MailInFolder) (bool, error) {
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.MailInFolder{}).
			Where("mail_id = ? AND folder_id = ?", entry.MailID, entry.FolderID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.PlacedAt.IsZero() {
			entry.PlacedAt = time.Now().UTC()
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// ListMailIDsInFolder 返回文件夹内全部邮件 ID
func (s *Store) ListMailIDsInFolder(folderID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&domain.MailInFolder{}).
		Where("folder_id = ?", folderID).
		Order("placed_at DESC").
		Pluck("mail_id", &ids).Error
	return ids, err
}

// ========== Usage Repository ==========

// AddSent 原子累加发送计数。
//
// 单条 upsert 语句：行不存在则插入 sent_today = n，存在则在冲突分支里
// 对 sent_today/total_sent 做加法。并发调用之间不存在读-改-写竞态，
// 数据库保证累加严格串行化。瞬时并发错误（死锁/序列化冲突/锁超时）
// 包装为 storage.ErrTransientConcurrency 供上层重试。
func (s *Store) AddSent(tenantID, day string, n int) error {
	now := time.Now().UTC()
	counter := &domain.TenantUsageCounter{
		TenantID:  tenantID,
		UsageDate: day,
		SentToday: int64(n),
		TotalSent: int64(n),
		UpdatedAt: now,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "usage_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"sent_today": gorm.Expr("tenant_usage_counters.sent_today + ?", n),
			"total_sent": gorm.Expr("tenant_usage_counters.total_sent + ?", n),
			"updated_at": now,
		}),
	}).Create(counter).Error

	return wrapTransient(err)
}

// AddReceived 原子累加接收计数（入站投递路径）
func (s *Store) AddReceived(tenantID, day string, n int) error {
	now := time.Now().UTC()
	counter := &domain.TenantUsageCounter{
		TenantID:      tenantID,
		UsageDate:     day,
		ReceivedToday: int64(n),
		TotalReceived: int64(n),
		UpdatedAt:     now,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "usage_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"received_today": gorm.Expr("tenant_usage_counters.received_today + ?", n),
			"total_received": gorm.Expr("tenant_usage_counters.total_received + ?", n),
			"updated_at":     now,
		}),
	}).Create(counter).Error

	return wrapTransient(err)
}

// GetUsage 读取 (租户, 日) 的计数器，行不存在时返回零值计数器
func (s *Store) GetUsage(tenantID, day string) (*domain.TenantUsageCounter, error) {
	var counter domain.TenantUsageCounter
	err := s.db.Where("tenant_id = ? AND usage_date = ?", tenantID, day).First(&counter).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &domain.TenantUsageCounter{TenantID: tenantID, UsageDate: day}, nil
		}
		return nil, err
	}
	return &counter, nil
}

// ========== Audit Repository ==========

// AppendAuditLog 追加一条审计记录
func (s *Store) AppendAuditLog(entry *domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.db.Create(entry).Error
}

// ListAuditLogs 返回租户最近的审计记录
func (s *Store) ListAuditLogs(tenantID string, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []domain.AuditLog
	err := s.db.Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// ========== Health ==========

// Health 检查数据库连接
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
