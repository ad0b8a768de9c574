// AngelaMos | 2026
// mailer.go

package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers transactional mail. Delivery is owned by an external
// provider; LogMailer stands in until one is configured.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type LogMailer struct {
	from   string
	logger *slog.Logger
}

func NewLogMailer(from string, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{from: from, logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("send mail: empty recipient")
	}

	m.logger.InfoContext(ctx, "mail queued",
		"from", m.from,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)

	return nil
}

func MagicLinkMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Your sign-in link",
		Body:    fmt.Sprintf("Use this link to sign in: %s", link),
	}
}

func InvitationMessage(to, organization, inviter, role string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("You have been invited to %s", organization),
		Body: fmt.Sprintf(
			"%s invited you to join %s as %s. Sign in to accept or reject.",
			inviter,
			organization,
			role,
		),
	}
}
