package notify

import (
	"context"
	"fmt"

	"github.com/ktwhotel/concierge/pkg/logging"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender delivers one staff notice.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a plain-text notice. TenantID and UserID travel as
// provider metadata so a bounced or delayed notice can be traced back to
// the LINE conversation that produced it.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	Body     string
	TenantID string
	UserID   string
}

// metadata returns the provider tags for msg, skipping empty values.
func (m EmailMessage) metadata() map[string]string {
	tags := map[string]string{"source": "concierge"}
	if m.TenantID != "" {
		tags["tenant_id"] = m.TenantID
	}
	if m.UserID != "" {
		tags["line_user_id"] = m.UserID
	}
	return tags
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender posts notices through the SendGrid v3 mail API.
type SendGridSender struct {
	client sendgridAPI
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(client sendgridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client: client,
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger.With("provider", "sendgrid"),
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	message := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Body, "")
	message.AddCategories("concierge-front-desk")
	for k, v := range msg.metadata() {
		message.SetCustomArg(k, v)
	}

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected notice", "status", resp.StatusCode, "body", resp.Body, "user_id", msg.UserID)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}
	s.logger.Info("front desk notice sent", "user_id", msg.UserID, "subject", msg.Subject)
	return nil
}

// StubEmailSender logs notices instead of sending them. It is the default
// when no mail provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("front desk notice (not sent)", "to", msg.To, "subject", msg.Subject, "user_id", msg.UserID, "body", msg.Body)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
