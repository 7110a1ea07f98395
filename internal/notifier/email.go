package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/pfrederiksen/notice-watch/internal/logger"
	"github.com/pfrederiksen/notice-watch/internal/notice"
)

// DefaultTimeout bounds one SMTP session.
const DefaultTimeout = 30 * time.Second

var (
	// ErrMissingCredentials is returned before any connection when the
	// recipient, username or password is not configured.
	ErrMissingCredentials = errors.New("missing SMTP credentials")

	// ErrAuthExhausted is returned when every attempt failed and at least one
	// failure was an authentication rejection.
	ErrAuthExhausted = errors.New("SMTP authentication failed for every candidate")

	// ErrDeliveryFailed is returned when every attempt failed without any
	// authentication rejection.
	ErrDeliveryFailed = errors.New("SMTP delivery failed for every candidate")

	// ErrDeliveryUnknown is returned when no attempt was made at all.
	ErrDeliveryUnknown = errors.New("SMTP delivery failed for an unknown reason")
)

const authGuidance = "check that SMTP_USER is the full mail address (e.g. id@naver.com), " +
	"that SMTP_PASS is an app password if two-step verification is enabled, " +
	"and that IMAP/SMTP access is turned on in the mailbox settings"

// AuthError is a rejection of the AUTH command by the server.
type AuthError struct {
	Code int
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (%d): %v", e.Code, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// EmailConfig holds the SMTP settings of an EmailNotifier.
type EmailConfig struct {
	Host          string
	Port          int
	Security      string
	Timeout       time.Duration
	To            string
	From          string
	User          string
	Password      string
	UserDomain    string
	SubjectPrefix string
	Location      *time.Location
}

// EmailNotifier sends digests over SMTP, searching connection profiles,
// usernames and password variants until one is accepted.
type EmailNotifier struct {
	cfg       EmailConfig
	dial      dialFunc
	now       func() time.Time
	onAttempt func(Profile, error)
}

// EmailOption configures an EmailNotifier.
type EmailOption func(*EmailNotifier)

// WithAttemptObserver registers fn to be called after every delivery
// attempt with its outcome (nil on success).
func WithAttemptObserver(fn func(Profile, error)) EmailOption {
	return func(n *EmailNotifier) {
		n.onAttempt = fn
	}
}

// NewEmailNotifier creates an email notifier.
func NewEmailNotifier(cfg EmailConfig, opts ...EmailOption) *EmailNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	n := &EmailNotifier{
		cfg:  cfg,
		dial: dialSMTP,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify formats the digest and sends it.
func (n *EmailNotifier) Notify(ctx context.Context, notices []notice.Notice, checkedAt time.Time) error {
	subject, body := FormatDigest(notices, checkedAt, n.cfg.Location, n.cfg.SubjectPrefix)
	return n.Send(ctx, subject, body)
}

// Send delivers one message, trying every profile, username and password
// combination in order and stopping at the first success. Attempts
// continue after both authentication and transport failures.
func (n *EmailNotifier) Send(ctx context.Context, subject, body string) error {
	cfg := n.cfg
	if strings.TrimSpace(cfg.To) == "" || strings.TrimSpace(cfg.User) == "" || cfg.Password == "" {
		return fmt.Errorf("%w: SMTP_TO, SMTP_USER and SMTP_PASS are required", ErrMissingCredentials)
	}

	sender := cfg.From
	if strings.TrimSpace(sender) == "" {
		sender = cfg.User
	}
	fromHeader, from := senderAddress(ensureEmailAddress(sender, cfg.Host, cfg.UserDomain))
	msg := buildMessage(fromHeader, cfg.To, subject, body, n.now())

	profiles := connectionProfiles(cfg.Host, cfg.Port, cfg.Security)
	users := loginCandidates(cfg.User, cfg.Host, cfg.UserDomain)
	passwords := passwordCandidates(cfg.Password, cfg.Host)

	logger.Debug("Starting SMTP delivery", logger.Fields{
		"host":       cfg.Host,
		"candidates": describeCandidates(profiles, users, len(passwords)),
	})

	var lastErr, lastAuthErr error
	for _, profile := range profiles {
		for _, user := range users {
			for _, password := range passwords {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("SMTP delivery interrupted: %w", err)
				}

				err := n.attempt(ctx, profile, user, password, from, msg)
				if n.onAttempt != nil {
					n.onAttempt(profile, err)
				}
				if err == nil {
					logger.Info("Sent email digest", logger.Fields{
						"host":    cfg.Host,
						"profile": profile.String(),
						"user":    user,
						"to":      cfg.To,
					})
					return nil
				}

				lastErr = err
				var authErr *AuthError
				if errors.As(err, &authErr) {
					lastAuthErr = err
				}
				logger.Debug("SMTP attempt failed", logger.Fields{
					"host":    cfg.Host,
					"profile": profile.String(),
					"user":    user,
					"auth":    authErr != nil,
					"error":   err.Error(),
				})
			}
		}
	}

	switch {
	case lastAuthErr != nil:
		return fmt.Errorf("%w (%s): %w", ErrAuthExhausted, authGuidance, lastAuthErr)
	case lastErr != nil:
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, lastErr)
	default:
		return ErrDeliveryUnknown
	}
}

// senderAddress splits a sender such as "Board <bot@example.com>" into the
// From header value and the bare envelope address.
func senderAddress(sender string) (header, envelope string) {
	addr, err := mail.ParseAddress(sender)
	if err != nil {
		return sender, sender
	}
	if addr.Name == "" {
		return addr.Address, addr.Address
	}
	return addr.String(), addr.Address
}

// attempt runs one SMTP session. Once DATA is accepted the message counts as
// delivered even if QUIT fails.
func (n *EmailNotifier) attempt(ctx context.Context, profile Profile, user, password, from string, msg []byte) error {
	client, err := n.dial(ctx, n.cfg.Host, profile, n.cfg.Timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	_, mechanisms := client.Extension("AUTH")
	if err := client.Auth(chooseAuth(mechanisms, user, password, n.cfg.Host)); err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) {
			return &AuthError{Code: protoErr.Code, Err: err}
		}
		return fmt.Errorf("AUTH: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(n.cfg.To); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}

	_ = client.Quit()
	return nil
}
