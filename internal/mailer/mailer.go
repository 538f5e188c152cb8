package mailer

import (
	"context"
	"log/slog"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/jordan-wright/email"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP sends mail through a plain-auth SMTP relay.
type SMTP struct {
	addr     string
	from     string
	username string
	password string
}

// NewSMTP builds an SMTP mailer. addr is host:port.
func NewSMTP(addr, from, username, password string) *SMTP {
	return &SMTP{addr: addr, from: from, username: username, password: password}
}

var _ Mailer = (*SMTP)(nil)

func (s *SMTP) Send(_ context.Context, msg Message) error {
	e := email.NewEmail()
	e.From = s.from
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	e.Headers = textproto.MIMEHeader{}

	var auth smtp.Auth
	if s.username != "" {
		host := s.addr
		if idx := strings.LastIndex(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		auth = smtp.PlainAuth("", s.username, s.password, host)
	}
	return e.Send(s.addr, auth)
}

// Console logs messages instead of delivering them. Used in development.
type Console struct {
	logger *slog.Logger
}

func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger}
}

var _ Mailer = (*Console)(nil)

func (c *Console) Send(_ context.Context, msg Message) error {
	c.logger.Info("email (console backend)",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}
