package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tenantmail/backend/internal/auth"
	jwtpkg "tenantmail/backend/internal/auth/jwt"
	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/storage"
)

// AuthHandler 登录认证处理器
type AuthHandler struct {
	mailboxes  storage.MailboxRepository
	jwtManager *jwtpkg.Manager
	log        *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(mailboxes storage.MailboxRepository, jwtManager *jwtpkg.Manager, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		mailboxes:  mailboxes,
		jwtManager: jwtManager,
		log:        log,
	}
}

type loginRequest struct {
	Address  string `json:"address" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Login godoc
// @Summary 邮箱账号登录
// @Tags Auth
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=jwt.TokenPair}
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	mailbox, err := h.mailboxes.FindMailboxByAddress(domain.NormalizeAddress(req.Address))
	if err != nil || !mailbox.IsActive || mailbox.IsShadow || mailbox.PasswordHash == "" {
		// 不区分"账号不存在"和"密码错误"，避免账号枚举
		Unauthorized(c, MsgInvalidCredentials)
		return
	}

	if err := auth.CheckPassword(mailbox.PasswordHash, req.Password); err != nil {
		h.log.Warn("login failed",
			zap.String("address", mailbox.Address),
			zap.String("ip", c.ClientIP()),
		)
		Unauthorized(c, MsgInvalidCredentials)
		return
	}

	pair, err := h.jwtManager.GenerateTokenPair(mailbox.ID, mailbox.TenantID, mailbox.Address)
	if err != nil {
		h.log.Error("failed to generate token pair", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, pair)
}

// Refresh godoc
// @Summary 刷新访问令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Router /v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	token, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		Unauthorized(c, "登录已过期，请重新登录")
		return
	}

	Success(c, gin.H{"accessToken": token})
}
