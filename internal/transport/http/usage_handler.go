package httptransport

import (
	"github.com/gin-gonic/gin"

	"tenantmail/backend/internal/service"
)

// UsageHandler 用量查询处理器
type UsageHandler struct {
	dispatcher *service.MailDispatcher
}

// NewUsageHandler 创建用量处理器
func NewUsageHandler(dispatcher *service.MailDispatcher) *UsageHandler {
	return &UsageHandler{dispatcher: dispatcher}
}

// GetUsage godoc
// @Summary 获取租户今日用量与配额
// @Tags Usage
// @Produce json
// @Router /v1/usage [get]
func (h *UsageHandler) GetUsage(c *gin.Context) {
	counter, tenant, err := h.dispatcher.Usage(c.Request.Context(), c.GetString("tenantID"))
	if err != nil {
		RespondError(c, err)
		return
	}

	var percentUsed float64
	if tenant.MaxEmailsPerDay > 0 {
		percentUsed = float64(counter.SentToday) / float64(tenant.MaxEmailsPerDay) * 100
	}

	Success(c, gin.H{
		"date":          counter.UsageDate,
		"sentToday":     counter.SentToday,
		"receivedToday": counter.ReceivedToday,
		"totalSent":     counter.TotalSent,
		"totalReceived": counter.TotalReceived,
		"dailyLimit":    tenant.MaxEmailsPerDay,
		"percentUsed":   percentUsed,
	})
}
