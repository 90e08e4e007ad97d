package httptransport

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/service"
)

// MailHandler 邮件发送与查询处理器
type MailHandler struct {
	dispatcher        *service.MailDispatcher
	maxAttachmentSize int64
	log               *zap.Logger
}

// NewMailHandler 创建邮件处理器
func NewMailHandler(dispatcher *service.MailDispatcher, maxAttachmentSize int64, log *zap.Logger) *MailHandler {
	return &MailHandler{
		dispatcher:        dispatcher,
		maxAttachmentSize: maxAttachmentSize,
		log:               log,
	}
}

// sendJSONRequest JSON 发送请求体
type sendJSONRequest struct {
	To       []string `json:"to"`
	Cc       []string `json:"cc"`
	Bcc      []string `json:"bcc"`
	Subject  string   `json:"subject"`
	Text     string   `json:"text"`
	HTML     string   `json:"html"`
	Priority string   `json:"priority"`
	IsDraft  bool     `json:"isDraft"`
}

// Send godoc
// @Summary 发送邮件（multipart，支持附件）
// @Description 走完整发送流水线：校验、配额预检、持久化、SMTP 投递、计数
// @Tags Mail
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} Response{data=service.SendResult}
// @Router /v1/mail/send [post]
func (h *MailHandler) Send(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	input := service.SendInput{
		TenantID: c.GetString("tenantID"),
		SenderID: c.GetString("mailboxID"),
		To:       domain.SplitAddressList(formValue(form, "to")),
		Cc:       domain.SplitAddressList(formValue(form, "cc")),
		Bcc:      domain.SplitAddressList(formValue(form, "bcc")),
		Subject:  formValue(form, "subject"),
		TextBody: formValue(form, "text"),
		HTMLBody: formValue(form, "html"),
		Priority: domain.MailPriority(formValue(form, "priority")),
		IsDraft:  strings.EqualFold(formValue(form, "is_draft"), "true"),
	}

	attachments, err := h.readAttachments(form.File["attachments"])
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	input.Attachments = attachments

	h.dispatch(c, input)
}

// SendJSON godoc
// @Summary 发送邮件（JSON，无附件）
// @Tags Mail
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=service.SendResult}
// @Router /v1/mail/send-json [post]
func (h *MailHandler) SendJSON(c *gin.Context) {
	var req sendJSONRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	h.dispatch(c, service.SendInput{
		TenantID: c.GetString("tenantID"),
		SenderID: c.GetString("mailboxID"),
		To:       req.To,
		Cc:       req.Cc,
		Bcc:      req.Bcc,
		Subject:  req.Subject,
		TextBody: req.Text,
		HTMLBody: req.HTML,
		Priority: domain.MailPriority(req.Priority),
		IsDraft:  req.IsDraft,
	})
}

// GetMail godoc
// @Summary 获取邮件详情（失败邮件也可查，用于诊断与重发）
// @Tags Mail
// @Produce json
// @Router /v1/mail/{id} [get]
func (h *MailHandler) GetMail(c *gin.Context) {
	mail, err := h.dispatcher.GetMail(c.Request.Context(), c.GetString("tenantID"), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}

	attachments := make([]gin.H, 0, len(mail.Attachments))
	for _, att := range mail.Attachments {
		attachments = append(attachments, gin.H{
			"id":          att.ID,
			"filename":    att.Filename,
			"contentType": att.ContentType,
			"size":        att.Size,
		})
	}

	recipients := make([]gin.H, 0, len(mail.Recipients))
	for _, rcpt := range mail.Recipients {
		recipients = append(recipients, gin.H{
			"email": rcpt.Email,
			"type":  rcpt.Type,
		})
	}

	Success(c, gin.H{
		"id":          mail.ID,
		"subject":     mail.Subject,
		"text":        mail.TextBody,
		"html":        mail.HTMLBody,
		"priority":    mail.Priority,
		"status":      mail.Status,
		"isDraft":     mail.IsDraft,
		"sentAt":      mail.SentAt,
		"createdAt":   mail.CreatedAt,
		"recipients":  recipients,
		"attachments": attachments,
	})
}

func (h *MailHandler) dispatch(c *gin.Context, input service.SendInput) {
	result, err := h.dispatcher.Send(c.Request.Context(), input)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, result)
}

// readAttachments 读取上传的附件并检查单个附件大小限制
func (h *MailHandler) readAttachments(files []*multipart.FileHeader) ([]*domain.MailAttachment, error) {
	if len(files) == 0 {
		return nil, nil
	}

	attachments := make([]*domain.MailAttachment, 0, len(files))
	for _, fh := range files {
		if h.maxAttachmentSize > 0 && fh.Size > h.maxAttachmentSize {
			return nil, fmt.Errorf("%s：%s", MsgAttachmentTooLarge, fh.Filename)
		}

		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("读取附件失败：%s", fh.Filename)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("读取附件失败：%s", fh.Filename)
		}

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		attachments = append(attachments, &domain.MailAttachment{
			Filename:    fh.Filename,
			ContentType: contentType,
			Size:        int64(len(content)),
			Content:     content,
		})
	}
	return attachments, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}
