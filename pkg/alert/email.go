package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/NeuralTrust/TrustShield/pkg/types"
)

type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// sendMailFunc matches smtp.SendMail; injectable for tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel delivers alerts as HTML mail to the operations inbox.
type EmailChannel struct {
	cfg      EmailConfig
	sendMail sendMailFunc
}

func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	return &EmailChannel{
		cfg:      cfg,
		sendMail: smtp.SendMail,
	}
}

func (c *EmailChannel) Name() string {
	return "email"
}

func (c *EmailChannel) Send(ctx context.Context, alert types.SecurityAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if c.cfg.Username != "" {
		auth = smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	}

	subject := fmt.Sprintf("[%s] %s from %s", strings.ToUpper(string(alert.Severity)), alert.EventType, alert.Identifier)
	msg := c.buildMessage(subject, alert)

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	// smtp.SendMail has no context support; run it in a goroutine so the
	// dispatcher's per-channel timeout still bounds the call.
	done := make(chan error, 1)
	go func() {
		done <- c.sendMail(addr, auth, c.cfg.From, c.cfg.To, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email delivery failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *EmailChannel) buildMessage(subject string, alert types.SecurityAlert) []byte {
	var html strings.Builder
	html.WriteString("<h2>" + subject + "</h2><table>")
	html.WriteString(fmt.Sprintf("<tr><td>Event</td><td>%s</td></tr>", alert.EventType))
	html.WriteString(fmt.Sprintf("<tr><td>Identifier</td><td>%s</td></tr>", alert.Identifier))
	if alert.Path != "" {
		html.WriteString(fmt.Sprintf("<tr><td>Request</td><td>%s %s</td></tr>", alert.Method, alert.Path))
	}
	for key, value := range alert.Details {
		html.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%v</td></tr>", key, value))
	}
	html.WriteString(fmt.Sprintf("<tr><td>At</td><td>%s</td></tr>", alert.Timestamp.Format("2006-01-02 15:04:05 MST")))
	html.WriteString("</table>")

	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		c.cfg.From, strings.Join(c.cfg.To, ", "), subject,
	)
	return []byte(headers + html.String())
}
