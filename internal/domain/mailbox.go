package domain

import "time"

// Mailbox 表示租户内的收发信身份（区别于登录账号）。
//
// 影子邮箱（IsShadow=true）是系统首次遇到无真实账号的地址时自动创建的
// 占位身份，用于保证收件人记录的引用完整性。影子邮箱永远处于非激活状态，
// 不能登录，也不计入租户的用户配额。
type Mailbox struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID     string    `json:"tenantId" gorm:"type:varchar(36);index;not null;uniqueIndex:idx_tenant_address"`
	Address      string    `json:"address" gorm:"type:varchar(255);not null;uniqueIndex:idx_tenant_address"`
	DisplayName  string    `json:"displayName,omitempty" gorm:"type:varchar(100)"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255)"` // 不返回给前端
	IsActive     bool      `json:"isActive" gorm:"default:true"`
	IsShadow     bool      `json:"isShadow" gorm:"default:false;index"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
