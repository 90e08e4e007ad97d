package domain

import "time"

// AuditAction 审计动作
type AuditAction string

const (
	AuditDeliveryFailed AuditAction = "mail.delivery_failed"
	AuditFromRewritten  AuditAction = "mail.from_rewritten"
	AuditQuotaAlert     AuditAction = "tenant.quota_alert"
)

// AuditLog 表示一条审计记录。
//
// 投递失败、发信地址替换等需要事后追查的事件都会落一条审计，
// 失败的邮件行不回滚，配合审计记录支持诊断与重发。
type AuditLog struct {
	ID        string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID  string      `json:"tenantId" gorm:"type:varchar(36);index;not null"`
	MailID    string      `json:"mailId,omitempty" gorm:"type:varchar(40);index"`
	Action    AuditAction `json:"action" gorm:"type:varchar(50);index"`
	Detail    string      `json:"detail" gorm:"type:text"`
	CreatedAt time.Time   `json:"createdAt"`
}
