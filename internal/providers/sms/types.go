package sms

import (
	"context"
	"time"
)

// Payload encapsulates the data required to send one SMS via the gateway.
type Payload struct {
	MessageID string
	To        string
	Body      string
}

// RawResponse describes the low-level gateway response returned after an SMS
// has been processed. Code is zero when the request never reached the
// gateway.
type RawResponse struct {
	Code      int
	Body      string
	Timestamp time.Time
}

// Provider represents an outbound SMS gateway. Each Send is an independent
// request; there is no session state to manage.
type Provider interface {
	Send(ctx context.Context, payload *Payload) (*RawResponse, error)
}
