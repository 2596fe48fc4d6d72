package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	cfg "github.com/maheshrc27/skyqueue/configs"
)

// Notifier tells the user that a scheduled post went out.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, title, message string) error {
	slog.Info("notification", "title", title, "message", message)
	return nil
}

type EmailNotifier struct {
	smtp cfg.SMTP
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotifier(c cfg.SMTP) *EmailNotifier {
	return &EmailNotifier{smtp: c, send: smtp.SendMail}
}

func (n *EmailNotifier) Notify(_ context.Context, title, message string) error {
	addr := fmt.Sprintf("%s:%d", n.smtp.Host, n.smtp.Port)
	from := n.smtp.From
	if from == "" {
		from = n.smtp.Username
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", n.smtp.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", title))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(message)
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if n.smtp.Username != "" {
		auth = smtp.PlainAuth("", n.smtp.Username, n.smtp.Password, n.smtp.Host)
	}
	if err := n.send(addr, auth, from, []string{n.smtp.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func NewNotifier(c cfg.SMTP) Notifier {
	if c.Enabled() {
		return NewEmailNotifier(c)
	}
	return LogNotifier{}
}
