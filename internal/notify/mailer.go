package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers one message. Implementations should honour ctx cancellation
// where the transport allows it.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the process log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Printf("[INFO] LogMailer: to=%s subject=%q", msg.To, msg.Subject)
	return nil
}

// SMTPMailer sends plain-text mail through a relay. Auth is optional.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
}

func NewSMTPMailer(addr, from, username, password string) *SMTPMailer {
	m := &SMTPMailer{Addr: addr, From: from}
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		m.Auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("smtp: header contains a line break")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return smtp.SendMail(m.Addr, m.Auth, m.From, []string{msg.To}, []byte(b.String()))
}
