package domain

import "time"

// FolderType 文件夹类型
type FolderType string

const (
	FolderInbox  FolderType = "inbox"
	FolderSent   FolderType = "sent"
	FolderDrafts FolderType = "drafts"
	FolderCustom FolderType = "custom"
)

// Folder 表示属于某个邮箱的文件夹。
type Folder struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID  string     `json:"tenantId" gorm:"type:varchar(36);index;not null"`
	MailboxID string     `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	Name      string     `json:"name" gorm:"type:varchar(100);not null"`
	Type      FolderType `json:"type" gorm:"type:varchar(10);index"`
	CreatedAt time.Time  `json:"createdAt"`
}

// MailInFolder 记录邮件与文件夹的多对多归属以及已读状态。
//
// 同一 (mail, folder) 至多一条记录，由插入前的存在性检查保证幂等。
type MailInFolder struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailID    string    `json:"mailId" gorm:"type:varchar(40);index;not null"`
	FolderID  string    `json:"folderId" gorm:"type:varchar(36);index;not null"`
	MailboxID string    `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	IsRead    bool      `json:"isRead" gorm:"default:false"`
	PlacedAt  time.Time `json:"placedAt"`
}
