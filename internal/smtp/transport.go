package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/textproto"
	"strings"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"tenantmail/backend/internal/config"
	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/service"
	"tenantmail/backend/internal/storage"
)

// AttachmentReader 按存储路径读取附件内容。
type AttachmentReader interface {
	GetAttachment(relPath string) ([]byte, error)
}

// Transport 基于上游 SMTP 中继的外发传输，实现 service.MailTransport
// 和 service.NoticeSender。
type Transport struct {
	host               string
	port               int
	username           string
	password           string
	tlsMode            string // "auto" | "starttls" | "ssl" | "none"
	sendAsAuth         bool
	noticeFrom         string
	insecureSkipVerify bool
	attachments        AttachmentReader
	audit              storage.AuditRepository
	log                *zap.Logger
}

// NewTransport 创建外发 SMTP 传输
func NewTransport(cfg *config.RelayConfig, attachments AttachmentReader, audit storage.AuditRepository, log *zap.Logger) *Transport {
	tlsMode := cfg.TLSMode
	if tlsMode == "" {
		tlsMode = "auto"
	}
	return &Transport{
		host:               cfg.Host,
		port:               cfg.Port,
		username:           cfg.Username,
		password:           cfg.Password,
		tlsMode:            tlsMode,
		sendAsAuth:         cfg.SendAsAuthenticated,
		noticeFrom:         cfg.Username,
		insecureSkipVerify: cfg.InsecureSkipVerify,
		attachments:        attachments,
		audit:              audit,
		log:                log,
	}
}

// Deliver 将邮件投递给上游中继。
//
// 中继要求发件地址与认证账号一致时（SendAsAuthenticated），用认证
// 账号重写 From 并把原地址放进 Reply-To，重写行为写入审计日志。
func (t *Transport) Deliver(ctx context.Context, from *domain.Mailbox, to, cc, bcc []string, subject, textBody, htmlBody string, attachments []*domain.MailAttachment) error {
	fromAddr := from.Address
	var replyTo string
	if t.sendAsAuth && t.username != "" && !strings.EqualFold(t.username, from.Address) {
		fromAddr = t.username
		replyTo = from.Address

		if t.audit != nil {
			if err := t.audit.AppendAuditLog(&domain.AuditLog{
				TenantID: from.TenantID,
				Action:   domain.AuditFromRewritten,
				Detail:   fmt.Sprintf("original=%s rewritten=%s", from.Address, t.username),
			}); err != nil {
				t.log.Warn("failed to append from-rewrite audit log", zap.Error(err))
			}
		}
		t.log.Debug("from address rewritten to authenticated account",
			zap.String("original", from.Address),
			zap.String("rewritten", t.username),
		)
	}

	m, err := t.buildMessage(fromAddr, replyTo, to, cc, bcc, subject, textBody, htmlBody, attachments)
	if err != nil {
		return service.NewDeliveryError(service.DeliveryUnknown, err)
	}

	if err := t.dialAndSend(m); err != nil {
		return classify(err)
	}
	return nil
}

// SendNotice 发送系统通知邮件（配额告警等），无抄送无附件。
func (t *Transport) SendNotice(to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", t.noticeFrom)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := t.dialAndSend(m); err != nil {
		return classify(err)
	}
	return nil
}

// buildMessage 组装 MIME 报文。bcc 只进信封，不出现在报文头。
func (t *Transport) buildMessage(from, replyTo string, to, cc, bcc []string, subject, textBody, htmlBody string, attachments []*domain.MailAttachment) (*mail.Message, error) {
	m := mail.NewMessage()
	m.SetHeader("From", from)
	if replyTo != "" {
		m.SetHeader("Reply-To", replyTo)
	}
	m.SetHeader("To", to...)
	if len(cc) > 0 {
		m.SetHeader("Cc", cc...)
	}
	if len(bcc) > 0 {
		m.SetHeader("Bcc", bcc...)
	}
	m.SetHeader("Subject", subject)

	// 优先 multipart/alternative（纯文本 + HTML）
	if textBody != "" {
		m.SetBody("text/plain", textBody)
		if htmlBody != "" {
			m.AddAlternative("text/html", htmlBody)
		}
	} else if htmlBody != "" {
		m.SetBody("text/html", htmlBody)
	} else {
		m.SetBody("text/plain", "")
	}

	for _, att := range attachments {
		content := att.Content
		if len(content) == 0 && att.StoragePath != "" && t.attachments != nil {
			data, err := t.attachments.GetAttachment(att.StoragePath)
			if err != nil {
				return nil, fmt.Errorf("failed to load attachment %s: %w", att.Filename, err)
			}
			content = data
		}

		settings := []mail.FileSetting{
			mail.Rename(att.Filename),
			// 非 ASCII 文件名按 RFC 2231 编码，保证各邮件客户端正确显示
			mail.SetHeader(map[string][]string{
				"Content-Disposition": {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
			}),
		}
		if att.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{
				"Content-Type": {att.ContentType},
			}))
		}
		m.AttachReader(att.Filename, bytes.NewReader(content), settings...)
	}

	return m, nil
}

func (t *Transport) dialAndSend(m *mail.Message) error {
	d := mail.NewDialer(t.host, t.port, t.username, t.password)
	d.TLSConfig = &tls.Config{
		ServerName:         t.host,
		InsecureSkipVerify: t.insecureSkipVerify,
	}

	switch t.tlsMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// "auto"/"starttls"：go-mail 自行协商 STARTTLS
	}

	return d.DialAndSend(m)
}

// classify 把中继错误归入粗粒度类别，供指标与审计使用。
func classify(err error) *service.DeliveryError {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535:
			return service.NewDeliveryError(service.DeliveryAuthentication, err)
		default:
			return service.NewDeliveryError(service.DeliveryProtocol, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return service.NewDeliveryError(service.DeliveryConnection, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return service.NewDeliveryError(service.DeliveryConnection, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "auth"):
		return service.NewDeliveryError(service.DeliveryAuthentication, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"):
		return service.NewDeliveryError(service.DeliveryConnection, err)
	}
	return service.NewDeliveryError(service.DeliveryUnknown, err)
}
