// Package smtp delivers HTML reminder digests over SMTP.
package smtp

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

const defaultTimeout = 30 * time.Second

// Config holds mail transport settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// UseTLS dials with implicit TLS (port 465).  Without it STARTTLS is used
	// whenever the server offers it.
	UseTLS  bool
	Timeout time.Duration
	From    string
}

// Mail is one outgoing message.
type Mail struct {
	To       []string
	Subject  string
	HTMLBody string
}

// Sender sends mail through one SMTP server.  Each Send opens its own
// connection.
type Sender struct {
	cfg    Config
	logger logging.Logger
	now    func() time.Time
	// tlsConfig is overridable for tests.
	tlsConfig *tls.Config
}

func NewSender(cfg Config, logger logging.Logger) (*Sender, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Sender{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.Host == "" {
		return errors.New(errors.ErrCodeValidation, "smtp host is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.Newf(errors.ErrCodeValidation, "smtp port %d out of range", cfg.Port)
	}
	if err := mail.NewMsg().From(cfg.From); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid sender address").WithDetail(cfg.From)
	}
	return nil
}

// client builds a go-mail client for one delivery.
func (s *Sender) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSConfig(s.tlsConfig),
	}
	if s.cfg.UseTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password))
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

// Send delivers m to all recipients.
func (s *Sender) Send(ctx context.Context, m Mail) error {
	if len(m.To) == 0 {
		return errors.New(errors.ErrCodeValidation, "mail has no recipients")
	}
	msg, err := NewMessage(s.cfg.From, m, s.now())
	if err != nil {
		return err
	}

	c, err := s.client()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeNotificationDeliveryFailed, "smtp client setup failed").WithDetail(s.cfg.Host)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, errors.ErrCodeNotificationDeliveryFailed, "smtp delivery failed").WithDetail(s.cfg.Host)
	}

	s.logger.Info("mail sent",
		logging.String("subject", m.Subject),
		logging.Int("recipients", len(m.To)))
	return nil
}

// NewMessage renders m as a single-part HTML message with a base64 body.
func NewMessage(from string, m Mail, date time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithEncoding(mail.EncodingB64), mail.WithCharset(mail.CharsetUTF8))
	if err := msg.From(from); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid sender address").WithDetail(from)
	}
	for _, to := range m.To {
		if err := msg.AddTo(to); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid recipient address").WithDetail(to)
		}
	}
	msg.Subject(m.Subject)
	msg.SetDateWithValue(date)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, m.HTMLBody)
	return msg, nil
}
