package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// Notifier delivers a verification code to a destination address out of
// band. Delivery failures must be surfaced to the caller, not swallowed.
type Notifier interface {
	Send(ctx context.Context, email, code string) error
}

// SMTPNotifier sends verification codes over plain SMTP with AUTH PLAIN.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPNotifier wires an SMTP-backed notifier. host and port address the
// relay, from is the sender identity shown to recipients.
func NewSMTPNotifier(host, port, username, password, from string) *SMTPNotifier {
	return &SMTPNotifier{
		addr: host + ":" + port,
		auth: smtp.PlainAuth("", username, password, host),
		from: from,
	}
}

// Send emails the verification code.
func (n *SMTPNotifier) Send(ctx context.Context, email, code string) error {
	msg := []byte("From: " + n.from + "\r\n" +
		"To: " + email + "\r\n" +
		"Subject: Your Verification Code\r\n" +
		"\r\n" +
		"Your verification code is: " + code + "\r\n")

	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{email}, msg); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}

	return nil
}

// LogNotifier writes codes to the application log instead of delivering
// them. Used when no SMTP relay is configured, so the flow stays exercisable
// in development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the code instead of emailing it.
func (n *LogNotifier) Send(ctx context.Context, email, code string) error {
	n.logger.Info("notify: verification code issued", "email", email, "code", code)
	return nil
}
