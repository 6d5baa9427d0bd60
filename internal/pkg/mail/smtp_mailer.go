package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
)

// Mailer delivers a single HTML message.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// Config holds the SMTP connection settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// LoadConfig reads SMTP_* variables. Enabled reports whether a host is set.
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

func (c Config) Enabled() bool {
	return c.Host != ""
}

// SMTPMailer sends emails via SMTP
type SMTPMailer struct {
	cfg      Config
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail}
}

// NewFromEnv returns an SMTP mailer when SMTP_HOST is set and nil otherwise.
func NewFromEnv() Mailer {
	cfg := LoadConfig()
	if !cfg.Enabled() {
		log.Info("[Mail] SMTP_HOST not set, outgoing mail disabled")
		return nil
	}
	return NewSMTPMailer(cfg)
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) error {
	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	msg := buildMessage(m.cfg.Sender, to, subject, htmlBody)

	if err := m.sendMail(addr, auth, m.cfg.Sender, []string{to}, msg); err != nil {
		log.Errorf("[Mail] SMTP send to %s failed: %v", to, err)
		return err
	}
	log.Infof("[Mail] Email sent to %s via %s", to, addr)
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)
}

var welcomeTemplate = template.Must(template.New("welcome").Parse(
	`<p>Hi,</p>
<p>thanks for signing up for {{.Product}} updates. We will let you know as soon as pre-sale spots open up.</p>
<p>If this wasn't you, you can <a href="{{.UnsubscribeURL}}">unsubscribe</a> at any time.</p>`))

// WelcomeMail renders the signup confirmation body.
func WelcomeMail(product, unsubscribeURL string) (string, error) {
	var buf bytes.Buffer
	err := welcomeTemplate.Execute(&buf, struct {
		Product        string
		UnsubscribeURL string
	}{product, unsubscribeURL})
	return buf.String(), err
}

var unsubscribeTemplate = template.Must(template.New("unsubscribe").Parse(
	`<p>Hi,</p>
<p>we received a request to stop sending you {{.Product}} updates.</p>
<p><a href="{{.UnsubscribeURL}}">Confirm unsubscribe</a></p>
<p>If you did not ask for this, you can ignore this email.</p>`))

// UnsubscribeMail renders the body carrying a signed unsubscribe link.
func UnsubscribeMail(product, unsubscribeURL string) (string, error) {
	var buf bytes.Buffer
	err := unsubscribeTemplate.Execute(&buf, struct {
		Product        string
		UnsubscribeURL string
	}{product, unsubscribeURL})
	return buf.String(), err
}
