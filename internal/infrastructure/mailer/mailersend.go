// Package mailer delivers account emails through MailerSend, or to the log
// when no API key is configured.
package mailer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
	"github.com/rs/zerolog"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

const sendTimeout = 10 * time.Second

// MailerSend implements ports.Mailer on the MailerSend API.
type MailerSend struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

// New returns a MailerSend mailer, or a LogMailer when apiKey is empty.
func New(apiKey, fromName, fromEmail string, log zerolog.Logger) ports.Mailer {
	if apiKey == "" || fromEmail == "" {
		log.Warn().Msg("MAILERSEND_API_KEY not set, emails will only be logged")
		return NewLogMailer(log)
	}
	return &MailerSend{
		client: mailersend.NewMailersend(apiKey),
		from:   mailersend.From{Name: fromName, Email: fromEmail},
	}
}

func (m *MailerSend) SendWelcome(ctx context.Context, user *domain.User, url string) error {
	msg := welcomeMessage(user, url)
	return m.send(ctx, user, msg)
}

func (m *MailerSend) SendPasswordReset(ctx context.Context, user *domain.User, url string) error {
	msg := resetMessage(user, url)
	return m.send(ctx, user, msg)
}

func (m *MailerSend) send(ctx context.Context, user *domain.User, msg message) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	email := m.client.Email.NewMessage()
	email.SetFrom(m.from)
	email.SetRecipients([]mailersend.Recipient{{Name: user.Name, Email: user.Email}})
	email.SetSubject(msg.subject)
	email.SetText(msg.text)
	email.SetHTML(msg.html)

	res, err := m.client.Email.Send(ctx, email)
	if err != nil {
		return fmt.Errorf("mailersend: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mailersend: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type message struct {
	subject string
	text    string
	html    string
}

func firstName(user *domain.User) string {
	if f := strings.Fields(user.Name); len(f) > 0 {
		return f[0]
	}
	return "there"
}

func welcomeMessage(user *domain.User, url string) message {
	name := firstName(user)
	return message{
		subject: "Welcome to the Natours Family!",
		text:    fmt.Sprintf("Hi %s, welcome to Natours! Upload a photo and start exploring: %s", name, url),
		html: fmt.Sprintf(`<p>Hi %s,</p><p>Welcome to Natours, we're glad to have you.</p>`+
			`<p><a href="%s">Upload your user photo</a> and start exploring.</p>`, name, url),
	}
}

func resetMessage(user *domain.User, url string) message {
	name := firstName(user)
	return message{
		subject: "Your password reset token (valid for only 10 minutes)",
		text: fmt.Sprintf("Hi %s, forgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s\n"+
			"If you didn't forget your password, please ignore this email.", name, url),
		html: fmt.Sprintf(`<p>Hi %s,</p><p>Forgot your password? Reset it here: <a href="%s">%s</a></p>`+
			`<p>If you didn't forget your password, please ignore this email.</p>`, name, url, url),
	}
}
