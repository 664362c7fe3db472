// Package email provides transactional email delivery.
//
// The Service interface has two implementations:
//   - SMTPEmailService: standard SMTP (Mailhog in dev, Postmark SMTP in prod)
//   - NoopEmailService: used when SMTP is not configured
package email

import (
	"context"
	"log/slog"
)

// Service defines the interface for sending transactional emails.
// All methods are context-aware for timeout and cancellation support.
type Service interface {
	// SendWelcomeEmail greets a new user and mentions their signup
	// bonus credits.
	SendWelcomeEmail(ctx context.Context, to, name string, bonusCredits int) error

	// SendReportReadyEmail notifies a user that a generated report is
	// ready for download.
	SendReportReadyEmail(ctx context.Context, to, name, reportTitle, reportURL string) error

	// SendAccountLockedEmail warns a user that repeated failed logins
	// locked their account for the given number of minutes.
	SendAccountLockedEmail(ctx context.Context, to, name string, minutes int) error
}

// Email represents a single email message.
type Email struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string // plain text fallback
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname ("localhost" for Mailhog)
	Port     int    // SMTP server port (1025 for Mailhog)
	Username string // empty for Mailhog
	Password string // empty for Mailhog
	From     string // default sender email address
	FromName string // default sender display name
}

const (
	// DefaultFromEmail is the default sender for transactional emails.
	DefaultFromEmail = "noreply@goodbreeze.ai"

	// DefaultFromName is the default sender display name.
	DefaultFromName = "Good Breeze AI"
)

// NoopEmailService discards all emails. It stands in for a real sender
// when SMTP is not configured, so callers never need a nil check.
type NoopEmailService struct {
	logger *slog.Logger
}

// NewNoop creates an email service that logs instead of sending.
func NewNoop(logger *slog.Logger) *NoopEmailService {
	return &NoopEmailService{logger: logger}
}

func (s *NoopEmailService) SendWelcomeEmail(ctx context.Context, to, name string, bonusCredits int) error {
	s.logger.Debug("email disabled, skipping welcome email", "to", to)
	return nil
}

func (s *NoopEmailService) SendReportReadyEmail(ctx context.Context, to, name, reportTitle, reportURL string) error {
	s.logger.Debug("email disabled, skipping report ready email", "to", to)
	return nil
}

func (s *NoopEmailService) SendAccountLockedEmail(ctx context.Context, to, name string, minutes int) error {
	s.logger.Debug("email disabled, skipping account locked email", "to", to)
	return nil
}

var _ Service = (*NoopEmailService)(nil)
