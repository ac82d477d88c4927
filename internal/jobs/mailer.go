// mailer.go delivers plain-text email over SMTP for background jobs.
package jobs

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/pwd-registry/pwd-registry/internal/config"
)

// Mailer sends a single plain-text message
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends mail through the configured SMTP relay
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer returns a mailer for cfg, or nil when no host is configured.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	if cfg.Host == "" {
		return nil
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg}
}

// Send composes the message and delivers it
func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := composeMessage(m.cfg.From, to, subject, body)
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if m.cfg.UseTLS {
		return sendMailTLS(addr, m.cfg.Host, auth, m.cfg.From, []string{to}, msg)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}

func composeMessage(from, to, subject, body string) []byte {
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		from, to, sanitizeHeader(subject),
	)
	return []byte(headers + strings.ReplaceAll(body, "\n", "\r\n") + "\r\n")
}

// sanitizeHeader strips CR and LF so a value cannot inject extra headers
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}

// sendMailTLS connects with implicit TLS (SMTPS, port 465). If the TLS dial
// fails it falls back to smtp.SendMail, which upgrades with STARTTLS when the
// server offers it.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
