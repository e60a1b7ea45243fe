package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

const defaultFromName = "Credit Sales Bot"

// EmailSender delivers one operator email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single-recipient operator email. Severity is carried to
// the provider as a category or tag so alert mail can be filtered.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	Body     string
	HTML     string
	Severity string
}

func (m EmailMessage) html() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Body
}

// SendGridConfig holds the SendGrid credentials and sender identity.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender sends alerts through the SendGrid v3 API.
type SendGridSender struct {
	client sendgridClient
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgridHTTP{sendgrid.NewSendClient(cfg.APIKey)}, cfg, logger)
}

func newSendGridSender(client sendgridClient, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client: client,
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	message := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Body, msg.html())
	if msg.Severity != "" {
		message.AddCategories("alert-" + msg.Severity)
	}
	if msg.Severity == events.SeverityCritical {
		message.SetHeader("X-Priority", "1")
		message.SetHeader("Importance", "high")
	}

	status, body, err := s.client.send(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if status >= 400 {
		s.logger.Error("sendgrid rejected alert", "status", status, "body", body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", status)
	}
	s.logger.Info("operator email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", status)
	return nil
}

// sendgridClient narrows *sendgrid.Client to what the sender needs.
type sendgridClient interface {
	send(ctx context.Context, m *mail.SGMailV3) (status int, body string, err error)
}

type sendgridHTTP struct {
	c *sendgrid.Client
}

func (h sendgridHTTP) send(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
	resp, err := h.c.SendWithContext(ctx, m)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, resp.Body, nil
}

// StubEmailSender logs alerts instead of sending them.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send operator alert", "to", msg.To, "subject", msg.Subject, "severity", msg.Severity)
	return nil
}
