package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/bulksend/internal/config"
)

// SMTPOption configures the behaviour of the SMTP mailer.
type SMTPOption func(*SMTPMailer)

// WithTLSConfig overrides the TLS configuration used when negotiating STARTTLS.
func WithTLSConfig(cfg *tls.Config) SMTPOption {
	return func(m *SMTPMailer) {
		m.tlsConfig = cfg
	}
}

// WithDialer swaps the network dialer used to establish the SMTP connection.
func WithDialer(d Dialer) SMTPOption {
	return func(m *SMTPMailer) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithAuth supplies a custom SMTP auth strategy. When omitted the mailer uses
// the credentials from the supplied configuration.
func WithAuth(auth smtp.Auth) SMTPOption {
	return func(m *SMTPMailer) {
		m.auth = auth
	}
}

// WithClock replaces the clock used for Date headers.
func WithClock(now func() time.Time) SMTPOption {
	return func(m *SMTPMailer) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHelloName customises the EHLO/HELO identity presented to the server.
func WithHelloName(name string) SMTPOption {
	return func(m *SMTPMailer) {
		if strings.TrimSpace(name) != "" {
			m.helloName = strings.TrimSpace(name)
		}
	}
}

// Dialer abstracts net.Dialer to simplify testing.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SMTPMailer implements Mailer on top of an authenticated SMTP session. The
// session is established once with Open, reused for every Send, and torn down
// with Close; a per-message failure leaves the session usable for the next
// recipient.
type SMTPMailer struct {
	logger    zerolog.Logger
	host      string
	port      int
	from      string
	fromName  string
	noTLS     bool
	auth      smtp.Auth
	tlsConfig *tls.Config
	dialer    Dialer
	now       func() time.Time
	helloName string

	conn   net.Conn
	client *smtp.Client
}

// NewSMTPMailer constructs a Mailer backed by the configured SMTP account.
func NewSMTPMailer(cfg config.SMTPConfig, logger zerolog.Logger, opts ...SMTPOption) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp mailer: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp mailer: invalid port %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp mailer: from address is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("smtp mailer: invalid from address: %w", err)
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	m := &SMTPMailer{
		logger:    logger,
		host:      cfg.Host,
		port:      cfg.Port,
		from:      strings.TrimSpace(cfg.From),
		fromName:  strings.TrimSpace(cfg.FromName),
		noTLS:     cfg.NoTLS,
		dialer:    &net.Dialer{Timeout: 30 * time.Second},
		now:       time.Now,
		helloName: "localhost",
	}

	if strings.TrimSpace(cfg.User) != "" {
		m.auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}

	m.tlsConfig = &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m, nil
}

// Open dials the server and negotiates EHLO, STARTTLS and AUTH. A failure at
// any step closes whatever was established and is reported as a connection
// level error.
func (m *SMTPMailer) Open(ctx context.Context) error {
	if m.client != nil {
		return errors.New("smtp mailer: session already open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	conn, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp mailer: dial %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp mailer: new client: %w", err)
	}

	if err := client.Hello(m.helloName); err != nil {
		client.Close()
		return fmt.Errorf("smtp mailer: hello: %w", err)
	}

	if !m.noTLS {
		if cfg := m.sessionTLSConfig(); cfg != nil {
			if ok, _ := client.Extension("STARTTLS"); ok {
				if err := client.StartTLS(cfg); err != nil {
					client.Close()
					return fmt.Errorf("smtp mailer: starttls: %w", err)
				}
			}
		}
	}

	if m.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(m.auth); err != nil {
				client.Close()
				return fmt.Errorf("smtp mailer: auth: %w", err)
			}
		}
	}

	m.conn = conn
	m.client = client
	m.logger.Debug().Str("addr", addr).Msg("smtp session established")
	return nil
}

// Send delivers one message over the open session.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if m.client == nil {
		return errors.New("smtp mailer: session is not open")
	}
	if msg == nil {
		return errors.New("smtp mailer: message is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rcpt, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("smtp mailer: invalid recipient %q: %w", msg.To, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = m.conn.SetDeadline(deadline)
	}

	message := m.buildMessage(msg)

	if err := m.transmit(rcpt.Address, message); err != nil {
		// Best effort reset so the session stays usable for the next record.
		_ = m.client.Reset()
		return err
	}
	return nil
}

func (m *SMTPMailer) transmit(rcpt string, message []byte) error {
	if err := m.client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp mailer: mail from: %w", err)
	}
	if err := m.client.Rcpt(rcpt); err != nil {
		return fmt.Errorf("smtp mailer: rcpt to %s: %w", rcpt, err)
	}

	writer, err := m.client.Data()
	if err != nil {
		return fmt.Errorf("smtp mailer: data: %w", err)
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return fmt.Errorf("smtp mailer: data write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp mailer: data close: %w", err)
	}
	return nil
}

// Close tears down the session. It is safe to call on a mailer that never
// opened or already closed.
func (m *SMTPMailer) Close() error {
	if m.client == nil {
		return nil
	}
	client := m.client
	m.client = nil
	m.conn = nil

	if err := client.Quit(); err != nil && !errors.Is(err, io.EOF) {
		client.Close()
		return fmt.Errorf("smtp mailer: quit: %w", err)
	}
	return nil
}

func (m *SMTPMailer) buildMessage(msg *Message) []byte {
	textBody := msg.TextBody
	if textBody == "" {
		textBody = StripTags(msg.HTMLBody)
	}

	from := m.from
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", sanitizeHeaderValue(m.fromName), m.from)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	writeHeader := func(key, value string) {
		if value == "" {
			return
		}
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}

	writeHeader("From", from)
	writeHeader("To", sanitizeHeaderValue(msg.To))
	writeHeader("Subject", sanitizeHeaderValue(msg.Subject))
	writeHeader("Date", m.now().UTC().Format(time.RFC1123Z))
	if msg.MessageID != "" {
		writeHeader("Message-Id", fmt.Sprintf("<%s@%s>", sanitizeHeaderValue(msg.MessageID), m.host))
	}
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	textPart, _ := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	_, _ = io.WriteString(textPart, normalizeBody(textBody))

	htmlPart, _ := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	_, _ = io.WriteString(htmlPart, normalizeBody(msg.HTMLBody))

	_ = mw.Close()
	return buf.Bytes()
}

func (m *SMTPMailer) sessionTLSConfig() *tls.Config {
	if m.tlsConfig == nil {
		return nil
	}
	cfg := m.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = m.host
	}
	return cfg
}

// IsHardRejection reports whether the error carries a permanent SMTP status,
// meaning another attempt with the same message cannot succeed.
func IsHardRejection(err error) bool {
	code, ok := smtpCode(err)
	if !ok {
		return false
	}
	switch code {
	case 530, 535, 550, 551, 553:
		return true
	default:
		return code >= 500 && code < 600
	}
}

func smtpCode(err error) (int, bool) {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code, true
	}
	return 0, false
}

func normalizeBody(body string) string {
	if body == "" {
		return ""
	}
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.ReplaceAll(normalized, "\n", "\r\n")
}

func sanitizeHeaderValue(value string) string {
	clean := strings.ReplaceAll(value, "\r", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	return strings.TrimSpace(clean)
}
