package mail

import (
	"fmt"
	"net/smtp"

	"github.com/ManuelReschke/SubFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// Config holds the SMTP connection settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// LoadConfig reads the SMTP_* environment variables.
func LoadConfig() Config {
	cfg := Config{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   env.GetEnv("SMTP_SENDER", ""),
	}
	if cfg.Sender == "" {
		cfg.Sender = "no-reply@localhost"
	}
	return cfg
}

// Configured reports whether a host is set.
func (c Config) Configured() bool {
	return c.Host != ""
}

// SendFunc delivers a fully formatted message. Matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain text emails via SMTP
type SMTPMailer struct {
	cfg  Config
	send SendFunc
}

// NewSMTPMailer creates a mailer. A nil send uses smtp.SendMail.
func NewSMTPMailer(cfg Config, send SendFunc) *SMTPMailer {
	if send == nil {
		send = smtp.SendMail
	}
	return &SMTPMailer{cfg: cfg, send: send}
}

// SendMail sends one message to a single recipient.
func (m *SMTPMailer) SendMail(to, subject, body string) error {
	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.cfg.Sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := m.send(addr, auth, m.cfg.Sender, []string{to}, msg); err != nil {
		log.Errorf("[Mail] SMTP send error: %v", err)
		return err
	}
	log.Debugf("[Mail] Email sent to %s via %s", to, addr)
	return nil
}
