package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
)

// quotaThresholds 配额告警阈值（百分比），从高到低排列
var quotaThresholds = []int{100, 90, 80}

// NoticeSender 发送系统通知邮件的能力（由外发 SMTP 传输实现）。
type NoticeSender interface {
	SendNotice(to, subject, body string) error
}

// ThresholdNotifier 监视计数器跨越并在用量达到配额的 80/90/100% 时
// 通知租户管理员。
//
// 一次大批量发送可能同时跨越多个阈值，此时只对最高的阈值发一封告警，
// 避免重复打扰。
type ThresholdNotifier struct {
	sender NoticeSender
	audit  storage.AuditRepository
	log    *zap.Logger
}

// NewThresholdNotifier 创建阈值通知器
func NewThresholdNotifier(sender NoticeSender, audit storage.AuditRepository, log *zap.Logger) *ThresholdNotifier {
	return &ThresholdNotifier{
		sender: sender,
		audit:  audit,
		log:    log,
	}
}

// MaybeNotify 在计数器从 previous 变为 current 时检查阈值跨越。
//
// 阈值 t 被跨越的条件是 prevPct < t <= newPct；只通知最高的那个。
// limit <= 0（不限制）时是 no-op。通知失败只记日志，不影响发送结果。
func (tn *ThresholdNotifier) MaybeNotify(ctx context.Context, tenant *domain.Tenant, previous, current int64) {
	limit := tenant.MaxEmailsPerDay
	if limit <= 0 {
		return
	}

	prevPct := float64(previous) / float64(limit) * 100
	newPct := float64(current) / float64(limit) * 100

	crossed := 0
	for _, t := range quotaThresholds {
		if prevPct < float64(t) && newPct >= float64(t) {
			crossed = t
			break // 从高到低遍历，第一个命中的就是最高阈值
		}
	}
	if crossed == 0 {
		return
	}

	tn.log.Info("quota threshold crossed",
		zap.String("tenant_id", tenant.ID),
		zap.Int("threshold", crossed),
		zap.Int64("sent_today", current),
		zap.Int64("limit", limit),
	)

	if tenant.AdminEmail == "" {
		tn.log.Warn("quota threshold crossed but tenant has no admin email",
			zap.String("tenant_id", tenant.ID),
		)
		return
	}

	subject := fmt.Sprintf("[%s] 邮件配额告警：已使用 %d%%", tenant.Name, crossed)
	body := fmt.Sprintf(
		"租户 %s 今日已发送 %d 封（按收件人计），达到每日配额 %d 的 %d%%。\n\n"+
			"达到 100%% 后，后续发送请求将被拒绝，直到次日配额重置。\n",
		tenant.Name, current, limit, crossed,
	)

	if err := tn.sender.SendNotice(tenant.AdminEmail, subject, body); err != nil {
		tn.log.Error("failed to send quota threshold notification",
			zap.String("tenant_id", tenant.ID),
			zap.Int("threshold", crossed),
			zap.Error(err),
		)
		return
	}

	if err := tn.audit.AppendAuditLog(&domain.AuditLog{
		TenantID: tenant.ID,
		Action:   domain.AuditQuotaAlert,
		Detail:   fmt.Sprintf("threshold=%d%% sent_today=%d limit=%d notified=%s", crossed, current, limit, tenant.AdminEmail),
	}); err != nil {
		tn.log.Warn("failed to append quota alert audit log", zap.Error(err))
	}
}
