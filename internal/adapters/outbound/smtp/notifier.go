// Package smtp delivers transaction confirmations by email.
package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// Compile-time check that Notifier implements outbound.Notifier
var _ outbound.Notifier = (*Notifier)(nil)

// Config holds SMTP notifier configuration.
type Config struct {
	// Host is the SMTP server. When empty the notifier only logs what it
	// would have sent.
	Host     string
	Port     string
	Username string
	Password string

	// From is the sender address. Defaults to Username.
	From string

	Logger *slog.Logger
}

// ConfigDefaults returns sensible defaults for SMTP notifier configuration.
func ConfigDefaults() Config {
	return Config{
		Port: "587",
	}
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier sends confirmation emails over SMTP with STARTTLS.
type Notifier struct {
	config   Config
	sendMail sendMailFunc
	logger   *slog.Logger
}

// NewNotifier creates an SMTP notifier.
func NewNotifier(config Config) *Notifier {
	defaults := ConfigDefaults()
	if config.Port == "" {
		config.Port = defaults.Port
	}
	if config.From == "" {
		config.From = config.Username
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		config:   config,
		sendMail: smtp.SendMail,
		logger:   logger.With("component", "smtp-notifier"),
	}
}

// Send delivers n to its recipient.
func (s *Notifier) Send(ctx context.Context, n entity.Notification) error {
	if n.Email == "" {
		return fmt.Errorf("notification for transaction %s has no recipient", n.Event.TransactionID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.config.Host == "" {
		s.logger.Info("smtp host not configured, skipping email",
			"to", n.Email,
			"subject", n.Subject,
			"transactionId", n.Event.TransactionID)
		return nil
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := net.JoinHostPort(s.config.Host, s.config.Port)
	if err := s.sendMail(addr, auth, s.config.From, []string{n.Email}, buildMessage(s.config.From, n)); err != nil {
		return fmt.Errorf("sending email for transaction %s: %w", n.Event.TransactionID, err)
	}

	s.logger.Debug("sent confirmation email", "to", n.Email, "transactionId", n.Event.TransactionID)
	return nil
}

func buildMessage(from string, n entity.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", n.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(n.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(summary(n.Event))
	return []byte(b.String())
}

// summary renders the body of a confirmation.
func summary(e entity.LedgerEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s of %s %s has been processed.\r\n", e.Type, e.Amount.StringFixed(2), e.Currency)
	if e.Symbol != "" && e.Quantity != nil {
		fmt.Fprintf(&b, "Asset: %s, quantity %s\r\n", e.Symbol, e.Quantity.String())
	}
	fmt.Fprintf(&b, "Wallet balance: %s %s\r\n", e.BalanceAfter.StringFixed(2), e.Currency)
	fmt.Fprintf(&b, "Reference: %s\r\n", e.TransactionID)
	return b.String()
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
