package domain

import "time"

// TenantUsageCounter 是每个 (租户, 日历日) 一行的用量计数器。
//
// 这是系统中唯一需要并发纪律的共享可变资源：首次发送时 upsert 创建，
// 当日后续发送原子累加，历史行永不删除。sent_today 按收件人数累加，
// 不是按邮件数。
type TenantUsageCounter struct {
	TenantID       string    `json:"tenantId" gorm:"primaryKey;type:varchar(36)"`
	UsageDate      string    `json:"usageDate" gorm:"primaryKey;type:varchar(10)"` // YYYY-MM-DD (UTC)
	SentToday      int64     `json:"sentToday"`
	ReceivedToday  int64     `json:"receivedToday"`
	TotalSent      int64     `json:"totalSent"`
	TotalReceived  int64     `json:"totalReceived"`
	CurrentUsers   int       `json:"currentUsers"`
	CurrentStorage int64     `json:"currentStorage"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (TenantUsageCounter) TableName() string {
	return "tenant_usage_counters"
}

// UsageDay 返回 t 对应的计数器日期键（UTC 日历日）。
func UsageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
