package mailer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/natours/tours-api/internal/core/domain"
)

// LogMailer writes emails to the log instead of sending them. Used in
// development.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendWelcome(_ context.Context, user *domain.User, url string) error {
	m.write(user, welcomeMessage(user, url), url)
	return nil
}

func (m *LogMailer) SendPasswordReset(_ context.Context, user *domain.User, url string) error {
	m.write(user, resetMessage(user, url), url)
	return nil
}

func (m *LogMailer) write(user *domain.User, msg message, url string) {
	m.log.Info().
		Str("to", user.Email).
		Str("subject", msg.subject).
		Str("url", url).
		Msg("email")
}
