package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "From: %s\r\n", p.cfg.From)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	if msg.Tag != "" {
		fmt.Fprintf(&b, "X-Tag: %s\r\n", msg.Tag)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	if msg.HTMLBody != "" {
		b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(msg.HTMLBody)
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(msg.TextBody)
	}

	return smtp.SendMail(addr, auth, p.cfg.From, []string{msg.To}, []byte(b.String()))
}
