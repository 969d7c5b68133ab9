package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/bulksend/internal/config"
)

// maxResponseBytes caps how much of a gateway response body is retained for
// the send log.
const maxResponseBytes = 1024

// GatewayOption customises the gateway provider.
type GatewayOption func(*GatewayProvider)

// WithHTTPClient swaps the HTTP client used for gateway requests.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(p *GatewayProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithGatewayClock overrides the clock used to timestamp responses.
func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(p *GatewayProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// GatewayProvider implements Provider against a Traccar-style HTTP SMS
// gateway: one JSON POST per message, success signalled purely by the
// response status code.
type GatewayProvider struct {
	logger zerolog.Logger
	client *http.Client
	url    string
	token  string
	now    func() time.Time
}

// NewGatewayProvider constructs a Provider for the configured gateway.
func NewGatewayProvider(cfg config.GatewayConfig, logger zerolog.Logger, opts ...GatewayOption) (*GatewayProvider, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("sms gateway: url is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("sms gateway: invalid url %q", cfg.URL)
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	p := &GatewayProvider{
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
		url:    cfg.URL,
		token:  strings.TrimSpace(cfg.Token),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p, nil
}

type gatewayRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send posts one message to the gateway. A non-2xx status is returned as an
// error alongside the response so the caller can log the gateway's detail; a
// transport failure returns no response at all.
func (p *GatewayProvider) Send(ctx context.Context, payload *Payload) (*RawResponse, error) {
	if payload == nil {
		return nil, errors.New("sms gateway: payload is required")
	}
	if strings.TrimSpace(payload.To) == "" {
		return nil, errors.New("sms gateway: recipient is required")
	}

	body, err := json.Marshal(gatewayRequest{To: payload.To, Message: payload.Body})
	if err != nil {
		return nil, fmt.Errorf("sms gateway: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sms gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", p.token)
	}

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms gateway: post: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))

	resp := &RawResponse{
		Code:      httpResp.StatusCode,
		Body:      strings.TrimSpace(string(respBody)),
		Timestamp: p.now(),
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		p.logger.Debug().
			Str("message_id", payload.MessageID).
			Int("status", httpResp.StatusCode).
			Msg("gateway rejected message")
		return resp, fmt.Errorf("sms gateway: status %d", httpResp.StatusCode)
	}

	return resp, nil
}
