package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/omi1811/concretethings-sub000/internal/qsm/entity"
)

// EmailTransport sends plain text mail over SMTP.
type EmailTransport struct {
	host string
	port int
	user string
	pass string
	from string
}

func NewEmailTransport(host string, port int, user, pass, from string) *EmailTransport {
	return &EmailTransport{host: host, port: port, user: user, pass: pass, from: from}
}

func (t *EmailTransport) Channel() string {
	return entity.ChannelEmail
}

func (t *EmailTransport) Send(ctx context.Context, user *entity.User, subject, body string) error {
	if t.host == "" {
		return fmt.Errorf("email transport not configured")
	}
	if user.Email == "" {
		return fmt.Errorf("user %s has no email address", user.ID)
	}

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		t.from, user.Email, subject, body))

	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	var auth smtp.Auth
	if t.user != "" {
		auth = smtp.PlainAuth("", t.user, t.pass, t.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, t.from, []string{user.Email}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
