package smtp

import (
	"context"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"tenantmail/backend/internal/config"
	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/monitoring"
	"tenantmail/backend/internal/service"
	"tenantmail/backend/internal/storage"
)

// Backend 实现 go-smtp 的 Backend 接口，只接收发往本系统邮箱的邮件。
//
// 安全机制：
// 1. Rcpt() 只接受托管域名下已存在的激活邮箱
// 2. 外部地址一律返回 550，服务器不能被当作中继
// 3. 报文大小与收件人数由 go-smtp 服务器参数限制
type Backend struct {
	store      storage.Store
	resolver   *service.RecipientResolver
	assigner   *service.FolderAssigner
	accountant service.UsageAccountant
	fsStore    service.AttachmentStore
	domain     string
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// NewBackend 创建入站 SMTP Backend。
func NewBackend(
	store storage.Store,
	resolver *service.RecipientResolver,
	assigner *service.FolderAssigner,
	accountant service.UsageAccountant,
	fsStore service.AttachmentStore,
	domainName string,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Backend {
	return &Backend{
		store:      store,
		resolver:   resolver,
		assigner:   assigner,
		accountant: accountant,
		fsStore:    fsStore,
		domain:     domainName,
		metrics:    metrics,
		log:        log,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{backend: b}, nil
}

// NewServer 按配置构建 go-smtp 服务器。
func NewServer(backend *Backend, cfg *config.InboundSMTPConfig, development bool) *gosmtp.Server {
	srv := gosmtp.NewServer(backend)
	srv.Addr = cfg.BindAddr
	srv.Domain = cfg.Domain
	srv.AllowInsecureAuth = development
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.MaxMessageBytes = cfg.MaxMessageBytes
	srv.MaxRecipients = cfg.MaxRecipients
	return srv
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []*domain.Mailbox
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = normalizeEnvelope(from)
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 只接受托管域名下已存在的激活邮箱，这是防中继的关键检查。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeEnvelope(to)

	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if s.backend.domain != "" && !strings.EqualFold(parts[1], s.backend.domain) &&
		!strings.HasSuffix(strings.ToLower(parts[1]), "."+strings.ToLower(s.backend.domain)) {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	}

	mailbox, err := s.backend.store.FindMailboxByAddress(addr)
	if err != nil || !mailbox.IsActive || mailbox.IsShadow {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient mailbox not found",
		}
	}

	s.recipients = append(s.recipients, mailbox)
	return nil
}

// Data 处理邮件内容：解析、落库、放入收件箱、累加接收计数。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	parsed, err := ParseMail(raw)
	if err != nil {
		s.backend.log.Warn("failed to parse inbound mail",
			zap.String("from", s.fromAddress),
			zap.Error(err),
		)
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "message content rejected",
		}
	}

	ctx := context.Background()
	for _, rcpt := range s.recipients {
		if err := s.backend.deliverInbound(ctx, s.fromAddress, rcpt, parsed); err != nil {
			s.backend.log.Error("failed to store inbound mail",
				zap.String("tenant_id", rcpt.TenantID),
				zap.String("recipient", rcpt.Address),
				zap.Error(err),
			)
			return &gosmtp.SMTPError{
				Code:         451,
				EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
				Message:      "temporary processing failure",
			}
		}
	}
	return nil
}

// deliverInbound 为单个收件人持久化入站邮件。
//
// 外部发件地址通过解析器落为影子邮箱，保证发件人引用完整性；
// 邮件进收件箱，接收计数走原子累加路径。
func (b *Backend) deliverInbound(ctx context.Context, from string, rcpt *domain.Mailbox, parsed *ParsedMail) error {
	sender, err := b.resolver.Resolve(ctx, rcpt.TenantID, from)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	mail := &domain.Mail{
		ID:       service.NewMailID(now),
		TenantID: rcpt.TenantID,
		SenderID: sender.ID,
		Subject:  parsed.Subject,
		TextBody: parsed.Text,
		HTMLBody: parsed.HTML,
		Priority: domain.PriorityNormal,
		Status:   domain.StatusSent,
		SentAt:   &now,
	}

	var attachments []*domain.MailAttachment
	for _, att := range parsed.Attachments {
		if b.fsStore != nil {
			if _, err := b.fsStore.SaveAttachment(rcpt.TenantID, mail.ID, att); err != nil {
				return err
			}
		}
		attachments = append(attachments, att)
	}

	recipients := []*domain.MailRecipient{{
		MailboxID: rcpt.ID,
		Email:     rcpt.Address,
		Type:      domain.RecipientTo,
	}}

	if err := b.store.CreateMail(mail, recipients, attachments); err != nil {
		if b.fsStore != nil {
			_ = b.fsStore.DeleteMailAttachments(rcpt.TenantID, mail.ID)
		}
		return err
	}

	if err := b.assigner.PlaceInSystemFolder(ctx, rcpt.TenantID, rcpt.ID, mail.ID, domain.FolderInbox); err != nil {
		b.log.Warn("failed to place inbound mail into inbox",
			zap.String("mail_id", mail.ID),
			zap.Error(err),
		)
	}

	if err := b.accountant.IncrementReceived(ctx, rcpt.TenantID, domain.UsageDay(now), 1); err != nil {
		b.log.Error("failed to increment received counter",
			zap.String("tenant_id", rcpt.TenantID),
			zap.Error(err),
		)
	}

	b.metrics.InboundReceivedInc()
	b.log.Info("inbound mail stored",
		zap.String("tenant_id", rcpt.TenantID),
		zap.String("mail_id", mail.ID),
		zap.String("recipient", rcpt.Address),
		zap.Int("attachments", len(attachments)),
	)
	return nil
}

// AuthPlain 处理 PLAIN 认证（入站接收允许匿名）。
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Reset 重置会话状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	return nil
}

func normalizeEnvelope(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
