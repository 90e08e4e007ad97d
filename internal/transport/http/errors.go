package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/service"
	"tenantmail/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 校验错误
	domain.ErrInvalidAddress:  "邮箱地址格式无效",
	domain.ErrInvalidPriority: "邮件优先级无效",
	service.ErrNoRecipients:   "收件人不能为空",

	// 租户/邮箱错误
	storage.ErrTenantNotFound:  "租户不存在",
	storage.ErrMailboxNotFound: "邮箱不存在",
	service.ErrTenantInactive:  "租户已停用",
	service.ErrMailboxInactive: "发件邮箱不可用",

	// 邮件错误
	storage.ErrMailNotFound:       "邮件不存在",
	storage.ErrAttachmentNotFound: "附件不存在",

	// 配额与持久化
	service.ErrQuotaExceeded:      "今日发送配额已用完",
	service.ErrPersistenceFailure: "保存邮件失败",
}

// 通用错误消息
const (
	MsgInvalidRequest     = "请求参数格式错误"
	MsgInvalidCredentials = "邮箱地址或密码错误"
	MsgAttachmentTooLarge = "附件超过大小限制"
	MsgDeliveryFailed     = "邮件投递失败"
	MsgUsageGetFailed     = "获取用量信息失败"
	MsgInternalError      = "服务器内部错误，请稍后重试"
)

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return err.Error()
}

// RespondError 按业务错误类型选择 HTTP 状态码并返回统一响应。
//
// 投递失败单独映射为 502，让调用方能区分"请求不合法"和
// "系统收下了但发不出去"两种情况。
func RespondError(c *gin.Context, err error) {
	msg := GetErrorMessage(err)

	var deliveryErr *service.DeliveryError
	switch {
	case errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, service.ErrNoRecipients):
		BadRequest(c, msg)
	case errors.Is(err, service.ErrTenantInactive),
		errors.Is(err, service.ErrMailboxInactive):
		Forbidden(c, msg)
	case errors.Is(err, storage.ErrTenantNotFound),
		errors.Is(err, storage.ErrMailboxNotFound),
		errors.Is(err, storage.ErrMailNotFound),
		errors.Is(err, storage.ErrAttachmentNotFound):
		NotFound(c, msg)
	case errors.Is(err, service.ErrQuotaExceeded):
		TooManyRequests(c, msg)
	case errors.As(err, &deliveryErr):
		BadGateway(c, MsgDeliveryFailed)
	default:
		InternalError(c, MsgInternalError)
	}
}
