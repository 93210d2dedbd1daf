package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 15 * time.Second

type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPSender delivers messages through go-mail. Every send is bounded by the
// caller's context and by opts.Timeout, including the server greeting.
type SMTPSender struct {
	opts SMTPOptions
	send func(ctx context.Context, m *mail.Msg) error
	now  func() time.Time
}

func NewSMTPSender(opts SMTPOptions) *SMTPSender {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSMTPTimeout
	}
	s := &SMTPSender{opts: opts, now: time.Now}
	s.send = s.dialAndSend
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.opts.Host == "" {
		return errors.New("smtp host not configured")
	}
	m, err := s.message(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	if err := s.send(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) message(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.opts.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	m.Subject(stripCRLF(msg.Subject))
	m.SetDateWithValue(s.now().UTC())
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.opts.Port),
		mail.WithTimeout(s.opts.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(s.dialContext),
	}
	if s.opts.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.opts.Username),
			mail.WithPassword(s.opts.Password),
		)
	}
	client, err := mail.NewClient(s.opts.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, m)
}

// dialContext puts a deadline on the whole SMTP conversation so a server
// that accepts but never answers cannot stall the consumer.
func (s *SMTPSender) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(s.opts.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// stripCRLF keeps user supplied values from injecting extra headers.
func stripCRLF(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}
