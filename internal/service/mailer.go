package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"virkum-respond/internal/domain"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// ErrMailerNotConfigured - SMTP не настроен (нет адреса отправителя или пароля)
var ErrMailerNotConfigured = errors.New("smtp mailer is not configured")

// Mailer почтовый релей.
type Mailer interface {
	Send(ctx context.Context, msg domain.OutboundMessage) error
}

// SMTPConfig параметры SMTP-релея.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	Timeout   time.Duration
}

type smtpMailer struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

// NewSMTPMailer создает Mailer поверх go-mail (STARTTLS, логин/пароль).
func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) Mailer {
	if cfg.Username == "" {
		cfg.Username = cfg.FromEmail
	}
	return &smtpMailer{cfg: cfg, logger: logger.Named("smtp_mailer")}
}

// Send отправляет письмо с текстовой и HTML-частью. Одна попытка, новое соединение на письмо.
func (m *smtpMailer) Send(ctx context.Context, out domain.OutboundMessage) error {
	if m.cfg.FromEmail == "" || m.cfg.Password == "" {
		return ErrMailerNotConfigured
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(strings.TrimSpace(out.CompanyName), m.cfg.FromEmail); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(out.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(out.Subject)
	msg.SetBodyString(mail.TypeTextPlain, out.Body)
	msg.AddAlternativeString(mail.TypeTextHTML, renderHTMLBody(out.Body))

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
	}
	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Warn("SMTP send failed", zap.String("host", m.cfg.Host), zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	m.logger.Debug("Email sent", zap.String("company", out.CompanyName))
	return nil
}

// renderHTMLBody превращает текст письма в простой HTML: абзацы по пустым строкам.
func renderHTMLBody(body string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}
