package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// SMTPEmailService sends emails via SMTP.
//
// Works with Mailhog (no auth) in development and any authenticated
// SMTP relay in production. HTML bodies are rendered from templates
// embedded at build time.
type SMTPEmailService struct {
	config    SMTPConfig
	baseURL   string
	templates *template.Template
	logger    *slog.Logger
}

// NewSMTPEmailService creates a new SMTP-based email service.
// The baseURL is used for constructing links in email bodies.
func NewSMTPEmailService(config SMTPConfig, baseURL string, logger *slog.Logger) (*SMTPEmailService, error) {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &SMTPEmailService{
		config:    config,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		templates: templates,
		logger:    logger,
	}, nil
}

// SendWelcomeEmail greets a new user and mentions their signup bonus.
func (s *SMTPEmailService) SendWelcomeEmail(ctx context.Context, to, name string, bonusCredits int) error {
	data := map[string]interface{}{
		"Name":         name,
		"BonusCredits": bonusCredits,
		"DashboardURL": s.baseURL + "/dashboard",
		"Year":         time.Now().Year(),
	}

	htmlBody, err := s.renderTemplate("welcome.html", data)
	if err != nil {
		return fmt.Errorf("failed to render welcome email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

Welcome to Good Breeze AI! We've added %d free report credits to your
account to get you started.

Head to your dashboard to run your first report:

%s

Thanks,
The Good Breeze Team
`, name, bonusCredits, s.baseURL+"/dashboard")

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Welcome to Good Breeze AI",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// SendReportReadyEmail notifies a user that their report is ready.
func (s *SMTPEmailService) SendReportReadyEmail(ctx context.Context, to, name, reportTitle, reportURL string) error {
	data := map[string]interface{}{
		"Name":        name,
		"ReportTitle": reportTitle,
		"ReportURL":   reportURL,
		"Year":        time.Now().Year(),
	}

	htmlBody, err := s.renderTemplate("report_ready.html", data)
	if err != nil {
		return fmt.Errorf("failed to render report ready email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

Your %s is ready! You can download it here:

%s

Download links stay active for 30 days.

Thanks,
The Good Breeze Team
`, name, reportTitle, reportURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  fmt.Sprintf("Your %s is ready", reportTitle),
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// SendAccountLockedEmail warns a user about a lockout on their account.
func (s *SMTPEmailService) SendAccountLockedEmail(ctx context.Context, to, name string, minutes int) error {
	data := map[string]interface{}{
		"Name":    name,
		"Minutes": minutes,
		"Year":    time.Now().Year(),
	}

	htmlBody, err := s.renderTemplate("account_locked.html", data)
	if err != nil {
		return fmt.Errorf("failed to render account locked email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

We noticed several failed sign-in attempts on your account, so we've
temporarily locked it for %d minutes.

If this was you, just wait and try again. If it wasn't, we recommend
changing your password once the lock expires.

Thanks,
The Good Breeze Team
`, name, minutes)

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Your Good Breeze account is temporarily locked",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// send sends an email via SMTP.
func (s *SMTPEmailService) send(ctx context.Context, email Email) error {
	msg := s.buildMessage(email)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Mailhog takes no auth.
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	err := smtp.SendMail(addr, auth, s.config.From, []string{email.To}, msg)
	if err != nil {
		s.logger.Error("failed to send email",
			"to", email.To,
			"subject", email.Subject,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		"to", email.To,
		"subject", email.Subject,
	)

	return nil
}

// buildMessage constructs the raw multipart message with headers.
func (s *SMTPEmailService) buildMessage(email Email) []byte {
	var buf bytes.Buffer

	fromHeader := fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)

	buf.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	boundary := "===============BREEZE_BOUNDARY==============="
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.TextBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.HTMLBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes()
}

func (s *SMTPEmailService) renderTemplate(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var _ Service = (*SMTPEmailService)(nil)
