package service

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantInactive 租户已停用
	ErrTenantInactive = errors.New("tenant is deactivated")
	// ErrMailboxInactive 发件邮箱未激活（含影子邮箱）
	ErrMailboxInactive = errors.New("sender mailbox is not active")
	// ErrNoRecipients 非草稿邮件必须至少有一个 To 收件人
	ErrNoRecipients = errors.New("mail must have at least one recipient")
	// ErrQuotaExceeded 租户当日发送配额已用尽
	ErrQuotaExceeded = errors.New("daily send quota exceeded")
	// ErrPersistenceFailure 持久化事务提交失败，下游什么都没执行
	ErrPersistenceFailure = errors.New("mail persistence failed")
)

// DeliveryCategory SMTP 投递失败类别
type DeliveryCategory string

const (
	DeliveryAuthentication DeliveryCategory = "authentication"
	DeliveryConnection     DeliveryCategory = "connection"
	DeliveryProtocol       DeliveryCategory = "protocol"
	DeliveryUnknown        DeliveryCategory = "unknown"
)

// DeliveryError 表示一次带类别的投递失败。
//
// 所有类别对调度器都是同一种失败：邮件行保留为 failed 状态，
// 类别只用于日志、指标与审计。
type DeliveryError struct {
	Category DeliveryCategory
	Err      error
}

// Error 实现 error 接口
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed (%s): %v", e.Category, e.Err)
}

// Unwrap 返回底层错误
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError 创建投递失败错误
func NewDeliveryError(category DeliveryCategory, err error) *DeliveryError {
	return &DeliveryError{Category: category, Err: err}
}
