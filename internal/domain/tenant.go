package domain

import "time"

// Tenant 表示一个租户（组织），是数据隔离与配额执行的单位。
//
// 配额字段遵循 0 = 不限制 的约定。
type Tenant struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name            string    `json:"name" gorm:"type:varchar(255);not null"`
	Subdomain       string    `json:"subdomain" gorm:"type:varchar(100);uniqueIndex"`
	AdminEmail      string    `json:"adminEmail" gorm:"type:varchar(255)"` // 配额告警收件地址
	MaxEmailsPerDay int64     `json:"maxEmailsPerDay" gorm:"default:0"`    // 每日发送上限（按收件人计）
	MaxStorage      int64     `json:"maxStorage" gorm:"default:0"`         // 存储上限（字节）
	MaxUsers        int       `json:"maxUsers" gorm:"default:0"`           // 用户数上限（影子邮箱不计入）
	IsActive        bool      `json:"isActive" gorm:"default:true"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
