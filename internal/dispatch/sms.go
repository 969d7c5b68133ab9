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
	smsprovider "github.com/example/bulksend/internal/providers/sms"
	"github.com/example/bulksend/internal/render"
	"github.com/example/bulksend/internal/sendlog"
	"github.com/example/bulksend/internal/util"
)

// SMSConfig contains the per-run settings of the SMS dispatcher.
type SMSConfig struct {
	MessageTemplate string
	Delay           time.Duration
	Retries         int
	StartRow        int
	Limit           int
	DryRun          bool
	// CountryPrefix is prepended to local numbers during normalization,
	// e.g. "+254".
	CountryPrefix string
	// EnsurePlus guarantees normalized numbers start with +.
	EnsurePlus bool
}

// SMSDependencies collects the collaborators of the SMS dispatcher.
type SMSDependencies struct {
	Provider smsprovider.Provider
	Log      *sendlog.Writer
	Logger   zerolog.Logger
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration)
}

// SMSDispatcher sends one rendered text per contact record through the HTTP
// gateway. Every request is independent, so there is no session lifecycle and
// no failure is fatal to the batch.
type SMSDispatcher struct {
	cfg      SMSConfig
	provider smsprovider.Provider
	log      *sendlog.Writer
	logger   zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

// NewSMSDispatcher validates the configuration and collaborators and returns
// a ready dispatcher.
func NewSMSDispatcher(cfg SMSConfig, deps SMSDependencies) (*SMSDispatcher, error) {
	if cfg.MessageTemplate == "" {
		return nil, WrapConfiguration(errors.New("sms dispatch: message template is required"))
	}
	if cfg.Retries < 0 {
		return nil, WrapConfiguration(errors.New("sms dispatch: retries cannot be negative"))
	}
	if cfg.Delay < 0 {
		return nil, WrapConfiguration(errors.New("sms dispatch: delay cannot be negative"))
	}
	if cfg.Limit < 0 {
		return nil, WrapConfiguration(errors.New("sms dispatch: limit cannot be negative"))
	}
	if cfg.StartRow < 1 {
		cfg.StartRow = 1
	}
	if deps.Provider == nil {
		return nil, WrapConfiguration(errors.New("sms dispatch: provider dependency is required"))
	}
	if deps.Log == nil {
		return nil, WrapConfiguration(errors.New("sms dispatch: send log dependency is required"))
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

	return &SMSDispatcher{
		cfg:      cfg,
		provider: deps.Provider,
		log:      deps.Log,
		logger:   deps.Logger.With().Str("channel", "sms").Str("run_id", uuid.NewString()).Logger(),
		now:      deps.Now,
		sleep:    deps.Sleep,
	}, nil
}

// Run processes the record source to exhaustion. Network errors and non-2xx
// gateway responses are both FAILURE rows; the batch always continues.
func (d *SMSDispatcher) Run(ctx context.Context, records RecordSource) (Summary, error) {
	var summary Summary

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
				return summary, fmt.Errorf("sms dispatch: read record: %w", err)
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

		phone := util.NormalizePhone(rec.Address, d.cfg.CountryPrefix, d.cfg.EnsurePlus)
		if phone == "" {
			summary.record(false)
			if err := d.appendRow("", sendlog.StatusFailure, "no recipient address"); err != nil {
				return summary, err
			}
			d.logger.Warn().Int("row", rec.Row).Msg("record has no phone number")
			continue
		}
		if !util.IsE164(phone) {
			d.logger.Debug().Int("row", rec.Row).Str("phone", phone).Msg("number is not E.164, sending anyway")
		}

		body := render.Render(d.cfg.MessageTemplate, render.Vars(rec.Fields))

		if d.cfg.DryRun {
			summary.record(true)
			if err := d.appendRow(phone, sendlog.StatusSuccess, "dry-run"); err != nil {
				return summary, err
			}
			d.logger.Info().Int("row", rec.Row).Str("to", phone).Msg("dry-run")
			continue
		}

		detail, ok := d.sendWithRetries(ctx, &smsprovider.Payload{
			MessageID: uuid.NewString(),
			To:        phone,
			Body:      body,
		})
		summary.record(ok)

		status := sendlog.StatusSuccess
		if !ok {
			status = sendlog.StatusFailure
			d.logger.Warn().Int("row", rec.Row).Str("to", phone).Str("detail", detail).Msg("send failed")
		} else {
			detail = ""
			d.logger.Debug().Int("row", rec.Row).Str("to", phone).Msg("sent")
		}
		if err := d.appendRow(phone, status, detail); err != nil {
			return summary, err
		}

		d.sleep(ctx, d.cfg.Delay)
	}

	d.logger.Info().
		Int("processed", summary.Processed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("sms run complete")
	return summary, nil
}

// sendWithRetries posts one message, retrying transient failures with the
// shared capped backoff. It returns the failure detail for the log when every
// attempt failed.
func (d *SMSDispatcher) sendWithRetries(ctx context.Context, payload *smsprovider.Payload) (string, bool) {
	detail := ""
	for attempt := 0; attempt <= d.cfg.Retries; attempt++ {
		if attempt > 0 {
			d.sleep(ctx, retryBackoff(attempt))
		}
		if err := ctx.Err(); err != nil {
			return err.Error(), false
		}

		resp, err := d.provider.Send(ctx, payload)
		if err == nil {
			return "", true
		}

		switch {
		case resp != nil && resp.Body != "":
			detail = fmt.Sprintf("status %d: %s", resp.Code, resp.Body)
		case resp != nil:
			detail = fmt.Sprintf("status %d", resp.Code)
		default:
			detail = err.Error()
		}
		d.logger.Debug().Int("attempt", attempt+1).Err(err).Msg("send attempt failed")
	}
	return detail, false
}

func (d *SMSDispatcher) appendRow(recipient string, status sendlog.Status, detail string) error {
	return d.log.Append(sendlog.Entry{
		Recipient: recipient,
		Status:    status,
		Detail:    detail,
		Timestamp: d.now(),
	})
}
