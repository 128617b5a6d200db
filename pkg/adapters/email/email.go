// Package email is the email adapter (C3): SendGrid primary with SMTP
// fallback. Failures are non-fatal — they are logged into the caller's
// invitation record, never abort the enclosing task.
package email

import (
	"fmt"
	"net/smtp"

	"github.com/kanbanhq/controlplane/pkg/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Adapter sends transactional email (invitations, notifications) through
// SendGrid, falling back to direct SMTP when SendGrid is unconfigured or
// errors.
type Adapter struct {
	FromEmail string

	sendGridAPIKey string

	smtpHost     string
	smtpPort     int
	smtpUsername string
	smtpPassword string
}

// New builds an adapter. Either sendGridAPIKey or the smtp fields may be
// empty; Send degrades to whichever transport is configured.
func New(fromEmail, sendGridAPIKey, smtpHost string, smtpPort int, smtpUsername, smtpPassword string) *Adapter {
	return &Adapter{
		FromEmail:      fromEmail,
		sendGridAPIKey: sendGridAPIKey,
		smtpHost:       smtpHost,
		smtpPort:       smtpPort,
		smtpUsername:   smtpUsername,
		smtpPassword:   smtpPassword,
	}
}

// Result reports which transport (if any) succeeded.
type Result struct {
	Sent     bool
	Provider string
	Error    string
}

// Send delivers an email, trying SendGrid first and falling back to SMTP.
// Never returns an error to the caller — this is always
// non-fatal; inspect Result to decide whether to log a degraded delivery.
func (a *Adapter) Send(to, subject, text, html string) Result {
	if a.sendGridAPIKey != "" {
		if res := a.sendWithSendGrid(to, subject, text, html); res.Sent {
			return res
		} else {
			log.Logger.Warn().Str("to", to).Str("error", res.Error).Msg("sendgrid delivery failed, falling back to smtp")
		}
	}
	return a.sendWithSMTP(to, subject, text, html)
}

func (a *Adapter) sendWithSendGrid(to, subject, text, html string) Result {
	if a.sendGridAPIKey == "" || a.FromEmail == "" {
		return Result{Sent: false, Provider: "sendgrid", Error: "sendgrid not configured"}
	}

	from := mail.NewEmail("kanban control plane", a.FromEmail)
	toEmail := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, toEmail, text, html)

	client := sendgrid.NewSendClient(a.sendGridAPIKey)
	resp, err := client.Send(message)
	if err != nil {
		return Result{Sent: false, Provider: "sendgrid", Error: err.Error()}
	}
	if resp.StatusCode >= 300 {
		return Result{Sent: false, Provider: "sendgrid", Error: fmt.Sprintf("sendgrid status %d", resp.StatusCode)}
	}
	return Result{Sent: true, Provider: "sendgrid"}
}

func (a *Adapter) sendWithSMTP(to, subject, text, _ string) Result {
	if a.FromEmail == "" || a.smtpUsername == "" || a.smtpPassword == "" {
		return Result{Sent: false, Provider: "smtp", Error: "smtp not configured"}
	}

	addr := fmt.Sprintf("%s:%d", a.smtpHost, a.smtpPort)
	auth := smtp.PlainAuth("", a.smtpUsername, a.smtpPassword, a.smtpHost)
	msg := []byte(fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s\r\n", to, a.FromEmail, subject, text))

	if err := smtp.SendMail(addr, auth, a.FromEmail, []string{to}, msg); err != nil {
		return Result{Sent: false, Provider: "smtp", Error: err.Error()}
	}
	return Result{Sent: true, Provider: "smtp"}
}
