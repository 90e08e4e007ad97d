package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
)

// Store 内存存储实现
//
// 用于开发环境与单元测试。所有操作在同一把互斥锁下执行，
// 因此计数器累加天然满足原子 insert-or-add 语义。
type Store struct {
	mu          sync.Mutex
	tenants     map[string]*domain.Tenant
	mailboxes   map[string]*domain.Mailbox
	mails       map[string]*domain.Mail
	recipients  map[string][]*domain.MailRecipient  // mailID -> recipients
	attachments map[string][]*domain.MailAttachment // mailID -> attachments
	folders     map[string]*domain.Folder
	placements  map[string][]*domain.MailInFolder // folderID -> entries
	usage       map[string]*domain.TenantUsageCounter
	audits      []*domain.AuditLog
}

// NewStore 创建内存存储
func NewStore() *Store {
	return &Store{
		tenants:     make(map[string]*domain.Tenant),
		mailboxes:   make(map[string]*domain.Mailbox),
		mails:       make(map[string]*domain.Mail),
		recipients:  make(map[string][]*domain.MailRecipient),
		attachments: make(map[string][]*domain.MailAttachment),
		folders:     make(map[string]*domain.Folder),
		placements:  make(map[string][]*domain.MailInFolder),
		usage:       make(map[string]*domain.TenantUsageCounter),
	}
}

func usageKey(tenantID, day string) string {
	return tenantID + "|" + day
}

// ========== Tenant Repository ==========

// CreateTenant 创建租户
func (s *Store) CreateTenant(tenant *domain.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

// GetTenant 根据 ID 获取租户
func (s *Store) GetTenant(id string) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[id]
	if !ok {
		return nil, storage.ErrTenantNotFound
	}
	cp := *tenant
	return &cp, nil
}

// GetTenantBySubdomain 根据子域名获取租户
func (s *Store) GetTenantBySubdomain(subdomain string) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tenant := range s.tenants {
		if tenant.Subdomain == subdomain {
			cp := *tenant
			return &cp, nil
		}
	}
	return nil, storage.ErrTenantNotFound
}

// UpdateTenant 更新租户
func (s *Store) UpdateTenant(tenant *domain.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenant.ID]; !ok {
		return storage.ErrTenantNotFound
	}
	tenant.UpdatedAt = time.Now().UTC()
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

// ========== Mailbox Repository ==========

// CreateMailbox 创建邮箱
func (s *Store) CreateMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mb := range s.mailboxes {
		if mb.TenantID == mailbox.TenantID && mb.Address == mailbox.Address {
			return storage.ErrMailboxExists
		}
	}

	if mailbox.ID == "" {
		mailbox.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	mailbox.CreatedAt = now
	mailbox.UpdatedAt = now

	cp := *mailbox
	s.mailboxes[mailbox.ID] = &cp
	return nil
}

// GetMailbox 根据 ID 获取租户内邮箱
func (s *Store) GetMailbox(tenantID, id string) (*domain.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, ok := s.mailboxes[id]
	if !ok || mailbox.TenantID != tenantID {
		return nil, storage.ErrMailboxNotFound
	}
	cp := *mailbox
	return &cp, nil
}

// GetMailboxByAddress 根据地址获取租户内邮箱
func (s *Store) GetMailboxByAddress(tenantID, address string) (*domain.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mb := range s.mailboxes {
		if mb.TenantID == tenantID && mb.Address == address {
			cp := *mb
			return &cp, nil
		}
	}
	return nil, storage.ErrMailboxNotFound
}

// FindMailboxByAddress 跨租户按地址查找激活邮箱
func (s *Store) FindMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mb := range s.mailboxes {
		if mb.Address == address && mb.IsActive && !mb.IsShadow {
			cp := *mb
			return &cp, nil
		}
	}
	return nil, storage.ErrMailboxNotFound
}

// ListMailboxes 返回租户的全部邮箱
func (s *Store) ListMailboxes(tenantID string) ([]domain.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Mailbox
	for _, mb := range s.mailboxes {
		if mb.TenantID == tenantID {
			out = append(out, *mb)
		}
	}
	return out, nil
}

// ========== Mail Repository ==========

// CreateMail 创建邮件及其收件人与附件记录
func (s *Store) CreateMail(mail *domain.Mail, recipients []*domain.MailRecipient, attachments []*domain.MailAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mail.CreatedAt.IsZero() {
		mail.CreatedAt = time.Now().UTC()
	}

	cp := *mail
	s.mails[mail.ID] = &cp

	for _, rcpt := range recipients {
		if rcpt.ID == "" {
			rcpt.ID = uuid.NewString()
		}
		rcpt.MailID = mail.ID
		rcp := *rcpt
		s.recipients[mail.ID] = append(s.recipients[mail.ID], &rcp)
	}

	for _, att := range attachments {
		if att.ID == "" {
			att.ID = uuid.NewString()
		}
		att.MailID = mail.ID
		acp := *att
		s.attachments[mail.ID] = append(s.attachments[mail.ID], &acp)
	}

	return nil
}

// GetMail 获取邮件及其收件人与附件记录
func (s *Store) GetMail(tenantID, mailID string) (*domain.Mail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mail, ok := s.mails[mailID]
	if !ok || mail.TenantID != tenantID {
		return nil, storage.ErrMailNotFound
	}

	cp := *mail
	cp.Recipients = append([]*domain.MailRecipient(nil), s.recipients[mailID]...)
	cp.Attachments = append([]*domain.MailAttachment(nil), s.attachments[mailID]...)
	return &cp, nil
}

// ListMailsBySender 返回某个发件邮箱的邮件（按创建时间倒序）
func (s *Store) ListMailsBySender(tenantID, senderID string, limit int) ([]domain.Mail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	var out []domain.Mail
	for _, mail := range s.mails {
		if mail.TenantID == tenantID && mail.SenderID == senderID {
			out = append(out, *mail)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateMailStatus 更新邮件状态与发送时间
func (s *Store) UpdateMailStatus(mailID string, status domain.MailStatus, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mail, ok := s.mails[mailID]
	if !ok {
		return storage.ErrMailNotFound
	}
	mail.Status = status
	mail.IsDraft = status == domain.StatusDraft
	if sentAt != nil {
		t := *sentAt
		mail.SentAt = &t
	}
	return nil
}

// ========== Folder Repository ==========

// CreateFolder 创建文件夹
func (s *Store) CreateFolder(folder *domain.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = time.Now().UTC()
	}
	cp := *folder
	s.folders[folder.ID] = &cp
	return nil
}

// GetFolder 根据 ID 获取文件夹
func (s *Store) GetFolder(folderID string) (*domain.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, ok := s.folders[folderID]
	if !ok {
		return nil, storage.ErrFolderNotFound
	}
	cp := *folder
	return &cp, nil
}

// GetFolderByType 获取邮箱的指定类型系统文件夹
func (s *Store) GetFolderByType(mailboxID string, folderType domain.FolderType) (*domain.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, folder := range s.folders {
		if folder.MailboxID == mailboxID && folder.Type == folderType {
			cp := *folder
			return &cp, nil
		}
	}
	return nil, storage.ErrFolderNotFound
}

// PlaceMailInFolder 幂等地将邮件放入文件夹
func (s *Store) PlaceMailInFolder(entry *domain.MailInFolder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.placements[entry.FolderID] {
		if existing.MailID == entry.MailID {
			return false, nil
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.PlacedAt.IsZero() {
		entry.PlacedAt = time.Now().UTC()
	}
	cp := *entry
	s.placements[entry.FolderID] = append(s.placements[entry.FolderID], &cp)
	return true, nil
}

// ListMailIDsInFolder 返回文件夹内全部邮件 ID
func (s *Store) ListMailIDsInFolder(folderID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.placements[folderID]
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.MailID)
	}
	return ids, nil
}

// ========== Usage Repository ==========

// AddSent 原子累加发送计数（互斥锁下的 insert-or-add）
func (s *Store) AddSent(tenantID, day string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(tenantID, day)
	counter, ok := s.usage[key]
	if !ok {
		counter = &domain.TenantUsageCounter{TenantID: tenantID, UsageDate: day}
		s.usage[key] = counter
	}
	counter.SentToday += int64(n)
	counter.TotalSent += int64(n)
	counter.UpdatedAt = time.Now().UTC()
	return nil
}

// AddReceived 原子累加接收计数
func (s *Store) AddReceived(tenantID, day string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(tenantID, day)
	counter, ok := s.usage[key]
	if !ok {
		counter = &domain.TenantUsageCounter{TenantID: tenantID, UsageDate: day}
		s.usage[key] = counter
	}
	counter.ReceivedToday += int64(n)
	counter.TotalReceived += int64(n)
	counter.UpdatedAt = time.Now().UTC()
	return nil
}

// GetUsage 读取计数器，行不存在时返回零值计数器
func (s *Store) GetUsage(tenantID, day string) (*domain.TenantUsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.usage[usageKey(tenantID, day)]
	if !ok {
		return &domain.TenantUsageCounter{TenantID: tenantID, UsageDate: day}, nil
	}
	cp := *counter
	return &cp, nil
}

// ========== Audit Repository ==========

// AppendAuditLog 追加一条审计记录
func (s *Store) AppendAuditLog(entry *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	s.audits = append(s.audits, &cp)
	return nil
}

// ListAuditLogs 返回租户最近的审计记录
func (s *Store) ListAuditLogs(tenantID string, limit int) ([]domain.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	var out []domain.AuditLog
	for i := len(s.audits) - 1; i >= 0 && len(out) < limit; i-- {
		if s.audits[i].TenantID == tenantID {
			out = append(out, *s.audits[i])
		}
	}
	return out, nil
}

// Health 内存存储总是健康的
func (s *Store) Health() error {
	return nil
}

// Close 关闭存储（no-op）
func (s *Store) Close() error {
	return nil
}
