package email

import "context"

// Message is the canonical representation of one outbound email handed to the
// mailer. The dispatcher renders templates into this structure; the mailer
// only transports it.
type Message struct {
	MessageID string
	To        string
	Subject   string
	HTMLBody  string
	// TextBody is the plain-text alternative. When empty the mailer derives
	// one from HTMLBody.
	TextBody string
}

// Mailer is a transport session that delivers messages sequentially. Open is
// called once before the first send and Close once after the last, regardless
// of per-message failures in between.
type Mailer interface {
	Open(ctx context.Context) error
	Send(ctx context.Context, msg *Message) error
	Close() error
}
