package domain

import "time"

// MailPriority 邮件优先级
type MailPriority string

const (
	PriorityHigh   MailPriority = "high"
	PriorityNormal MailPriority = "normal"
	PriorityLow    MailPriority = "low"
)

// MailStatus 邮件状态
type MailStatus string

const (
	StatusDraft  MailStatus = "draft"
	StatusSent   MailStatus = "sent"
	StatusFailed MailStatus = "failed"
)

// RecipientType 收件人类型
type RecipientType string

const (
	RecipientTo  RecipientType = "to"
	RecipientCc  RecipientType = "cc"
	RecipientBcc RecipientType = "bcc"
)

// Mail 表示一封由租户发出（或收到）的邮件。
//
// ID 是时间有序的全局唯一字符串，格式 YYYYMMDD_HHMMSS_<12-hex>。
// 邮件行由调度器创建，状态流转 draft|sent|failed 只由调度器修改；
// 文件夹归属由 MailInFolder 记录，不改动邮件行本身。
type Mail struct {
	ID        string       `json:"id" gorm:"primaryKey;type:varchar(40)"`
	TenantID  string       `json:"tenantId" gorm:"type:varchar(36);index;not null"`
	SenderID  string       `json:"senderId" gorm:"type:varchar(36);index;not null"` // 发件邮箱ID
	Subject   string       `json:"subject" gorm:"type:varchar(500)"`
	TextBody  string       `json:"textBody,omitempty" gorm:"type:text"`
	HTMLBody  string       `json:"htmlBody,omitempty" gorm:"type:text"`
	Priority  MailPriority `json:"priority" gorm:"type:varchar(10);default:'normal'"`
	Status    MailStatus   `json:"status" gorm:"type:varchar(10);index"`
	IsDraft   bool         `json:"isDraft" gorm:"default:false"`
	SentAt    *time.Time   `json:"sentAt,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	// 关联数据（单独查询，不做 gorm 关联加载）
	Recipients  []*MailRecipient  `json:"recipients,omitempty" gorm:"-"`
	Attachments []*MailAttachment `json:"attachments,omitempty" gorm:"-"`
}

// MailRecipient 表示邮件的一个收件人记录。
//
// 发送时一次性创建，之后不可变。MailboxID 指向真实邮箱或影子邮箱，
// 保证引用完整性；Email 保留原始地址。
type MailRecipient struct {
	ID        string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailID    string        `json:"mailId" gorm:"type:varchar(40);index;not null"`
	MailboxID string        `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	Email     string        `json:"email" gorm:"type:varchar(255);not null"`
	Type      RecipientType `json:"type" gorm:"type:varchar(5);not null"`
}

// MailAttachment 表示邮件附件。
//
// 文件字节由附件记录独占：邮件被永久删除时附件文件一并删除。
type MailAttachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailID      string `json:"mailId" gorm:"type:varchar(40);index;not null"`
	Filename    string `json:"filename" gorm:"type:varchar(255)"`
	ContentType string `json:"contentType" gorm:"type:varchar(100)"`
	Size        int64  `json:"size"`
	StoragePath string `json:"storagePath,omitempty" gorm:"type:varchar(500)"` // 附件根目录下的相对路径
	Content     []byte `json:"-" gorm:"-"`                                     // 附件内容（不存数据库）
}
