package alerts

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
)

type MailerConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Mailer sends plain text email over SMTP with TLS. A zero-config
// mailer logs nothing and drops mail, which keeps local development
// from needing an SMTP server.
type Mailer struct {
	cfg MailerConfig
}

func NewMailer(cfg MailerConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) configured() bool {
	return m.cfg.Host != "" && m.cfg.Port != "" && m.cfg.From != ""
}

func (m *Mailer) Send(to, subject, body string) error {
	if !m.configured() {
		return nil
	}
	addr := m.cfg.Host + ":" + m.cfg.Port

	msg := fmt.Sprintf("From: %s\r\n", m.cfg.From)
	msg += fmt.Sprintf("To: %s\r\n", to)
	msg += fmt.Sprintf("Subject: %s\r\n", subject)
	msg += "MIME-Version: 1.0\r\n"
	msg += "Content-Type: text/plain; charset=\"utf-8\"\r\n"
	msg += "\r\n" + body + "\r\n"

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}
