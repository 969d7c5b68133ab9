// Package dispatch drives the per-record send loops: render, deliver, pause,
// log. Processing is strictly sequential; the one shared resource on the
// email path is the open SMTP session and it is owned by the single run
// goroutine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/bulksend/internal/contacts"
	emailprovider "github.com/example/bulksend/internal/providers/email"
	"github.com/example/bulksend/internal/render"
	"github.com/example/bulksend/internal/sendlog"
)

// EmailConfig contains the per-run settings of the email dispatcher.
type EmailConfig struct {
	SubjectTemplate string
	BodyTemplate    string
	// Delay is the pause after every send attempt group, failures included,
	// to avoid hammering a struggling transport.
	Delay time.Duration
	// Retries is the number of extra in-run attempts per message. Zero means
	// record-and-continue; "retrying" a batch is otherwise an operator
	// re-invocation.
	Retries int
	// StartRow skips data rows before this 1-indexed position.
	StartRow int
	// Limit stops the run after this many processed records; zero is
	// unlimited.
	Limit int
	// DryRun renders everything but never opens the transport.
	DryRun bool
}

// EmailDependencies collects the collaborators of the email dispatcher.
type EmailDependencies struct {
	Mailer emailprovider.Mailer
	Log    *sendlog.Writer
	Logger zerolog.Logger
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration)
}

// EmailDispatcher sends one rendered email per contact record over a single
// SMTP session.
type EmailDispatcher struct {
	cfg    EmailConfig
	mailer emailprovider.Mailer
	log    *sendlog.Writer
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration)

	connected bool
}

// NewEmailDispatcher validates the configuration and collaborators and
// returns a ready dispatcher.
func NewEmailDispatcher(cfg EmailConfig, deps EmailDependencies) (*EmailDispatcher, error) {
	if cfg.BodyTemplate == "" {
		return nil, WrapConfiguration(errors.New("email dispatch: body template is required"))
	}
	if cfg.Retries < 0 {
		return nil, WrapConfiguration(errors.New("email dispatch: retries cannot be negative"))
	}
	if cfg.Delay < 0 {
		return nil, WrapConfiguration(errors.New("email dispatch: delay cannot be negative"))
	}
	if cfg.Limit < 0 {
		return nil, WrapConfiguration(errors.New("email dispatch: limit cannot be negative"))
	}
	if cfg.StartRow < 1 {
		cfg.StartRow = 1
	}
	if deps.Mailer == nil {
		return nil, WrapConfiguration(errors.New("email dispatch: mailer dependency is required"))
	}
	if deps.Log == nil {
		return nil, WrapConfiguration(errors.New("email dispatch: send log dependency is required"))
	}
	if reflect.ValueOf(deps.Logger).IsZero() {
		deps.Logger = zerolog.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}

	return &EmailDispatcher{
		cfg:    cfg,
		mailer: deps.Mailer,
		log:    deps.Log,
		logger: deps.Logger.With().Str("channel", "email").Str("run_id", uuid.NewString()).Logger(),
		now:    deps.Now,
		sleep:  deps.Sleep,
	}, nil
}

// Run processes the record source to exhaustion. Per-message failures become
// FAILURE log rows and the batch continues; a session that cannot be
// established (or re-established between retries) aborts the run with
// ErrConnection after the current record's row is written. The partial log is
// always preserved.
func (d *EmailDispatcher) Run(ctx context.Context, records RecordSource) (Summary, error) {
	var summary Summary
	defer d.teardown()

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if d.cfg.Limit > 0 && summary.Processed >= d.cfg.Limit {
			break
		}

		rec, err := records.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var rowErr *contacts.RowError
			if !errors.As(err, &rowErr) {
				return summary, fmt.Errorf("email dispatch: read record: %w", err)
			}
			if rowErr.Row < d.cfg.StartRow {
				continue
			}
			summary.Processed++
			summary.record(false)
			if err := d.appendRow("", sendlog.StatusFailure, rowErr.Error()); err != nil {
				return summary, err
			}
			d.logger.Warn().Int("row", rowErr.Row).Msg("malformed contact row")
			continue
		}

		if rec.Row < d.cfg.StartRow {
			continue
		}
		summary.Processed++

		if rec.Address == "" {
			summary.record(false)
			if err := d.appendRow("", sendlog.StatusFailure, "no recipient address"); err != nil {
				return summary, err
			}
			d.logger.Warn().Int("row", rec.Row).Msg("record has no recipient address")
			continue
		}

		vars := render.Vars(rec.Fields)
		subject := render.Render(d.cfg.SubjectTemplate, vars)
		body := render.Render(d.cfg.BodyTemplate, vars)

		if d.cfg.DryRun {
			summary.record(true)
			if err := d.appendRow(rec.Address, sendlog.StatusSuccess, "dry-run"); err != nil {
				return summary, err
			}
			d.logger.Info().Int("row", rec.Row).Str("to", rec.Address).Str("subject", subject).Msg("dry-run")
			continue
		}

		msg := &emailprovider.Message{
			MessageID: uuid.NewString(),
			To:        rec.Address,
			Subject:   subject,
			HTMLBody:  body,
		}

		sendErr := d.sendWithRetries(ctx, msg)
		if sendErr != nil {
			summary.record(false)
			detail := sendErr.Error()
			if appendErr := d.appendRow(rec.Address, sendlog.StatusFailure, detail); appendErr != nil {
				return summary, appendErr
			}
			if errors.Is(sendErr, ErrConnection) {
				d.logger.Error().Err(sendErr).Msg("transport session lost, aborting run")
				return summary, sendErr
			}
			d.logger.Warn().Int("row", rec.Row).Str("to", rec.Address).Err(sendErr).Msg("send failed")
		} else {
			summary.record(true)
			if err := d.appendRow(rec.Address, sendlog.StatusSuccess, ""); err != nil {
				return summary, err
			}
			d.logger.Debug().Int("row", rec.Row).Str("to", rec.Address).Str("message_id", msg.MessageID).Msg("sent")
		}

		d.sleep(ctx, d.cfg.Delay)
	}

	d.logger.Info().
		Int("processed", summary.Processed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("email run complete")
	return summary, nil
}

// RunOne sends a single message to an explicit recipient using the supplied
// variables. It writes exactly one log row. Unlike a batch, a send failure
// here is the whole run and is returned as ErrSend.
func (d *EmailDispatcher) RunOne(ctx context.Context, to string, vars map[string]string) (Summary, error) {
	summary := Summary{Processed: 1}
	defer d.teardown()

	if to == "" {
		return summary, WrapConfiguration(errors.New("email dispatch: recipient is required"))
	}

	merged := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		merged[k] = v
	}
	if _, ok := merged["to"]; !ok {
		merged["to"] = to
	}

	rendered := render.Vars(merged)
	subject := render.Render(d.cfg.SubjectTemplate, rendered)
	body := render.Render(d.cfg.BodyTemplate, rendered)

	if d.cfg.DryRun {
		summary.record(true)
		if err := d.appendRow(to, sendlog.StatusSuccess, "dry-run"); err != nil {
			return summary, err
		}
		d.logger.Info().Str("to", to).Str("subject", subject).Msg("dry-run")
		return summary, nil
	}

	msg := &emailprovider.Message{
		MessageID: uuid.NewString(),
		To:        to,
		Subject:   subject,
		HTMLBody:  body,
	}

	if err := d.sendWithRetries(ctx, msg); err != nil {
		summary.record(false)
		if appendErr := d.appendRow(to, sendlog.StatusFailure, err.Error()); appendErr != nil {
			return summary, appendErr
		}
		return summary, err
	}

	summary.record(true)
	if err := d.appendRow(to, sendlog.StatusSuccess, ""); err != nil {
		return summary, err
	}
	d.logger.Info().Str("to", to).Str("message_id", msg.MessageID).Msg("sent")
	return summary, nil
}

// sendWithRetries delivers one message, retrying up to cfg.Retries times with
// capped exponential backoff. Between attempts the session is torn down and
// redialed, since a failed send often leaves an SMTP session in an unusable
// state. Hard rejections are never retried; the same message cannot succeed.
func (d *EmailDispatcher) sendWithRetries(ctx context.Context, msg *emailprovider.Message) error {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.Retries; attempt++ {
		if attempt > 0 {
			d.sleep(ctx, retryBackoff(attempt))
			d.teardown()
		}

		if err := d.ensureOpen(ctx); err != nil {
			return WrapConnection(err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = d.mailer.Send(ctx, msg)
		if lastErr == nil {
			return nil
		}
		if emailprovider.IsHardRejection(lastErr) {
			return WrapSend(lastErr)
		}
		d.logger.Debug().Int("attempt", attempt+1).Err(lastErr).Msg("send attempt failed")
	}
	return WrapSend(lastErr)
}

func (d *EmailDispatcher) ensureOpen(ctx context.Context) error {
	if d.connected {
		return nil
	}
	if err := d.mailer.Open(ctx); err != nil {
		return err
	}
	d.connected = true
	return nil
}

func (d *EmailDispatcher) teardown() {
	if !d.connected {
		return
	}
	if err := d.mailer.Close(); err != nil {
		d.logger.Debug().Err(err).Msg("smtp session close failed")
	}
	d.connected = false
}

func (d *EmailDispatcher) appendRow(recipient string, status sendlog.Status, detail string) error {
	return d.log.Append(sendlog.Entry{
		Recipient: recipient,
		Status:    status,
		Detail:    detail,
		Timestamp: d.now(),
	})
}
