package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying how a run can fail. Per-message send errors are
// normally absorbed into FAILURE log rows; only connection and configuration
// problems abort a batch.
var (
	// ErrConfiguration marks invalid or incomplete run options, detected
	// before any send happens.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnection marks a transport session that could not be established
	// or re-established. No further message can be sent, so it is fatal.
	ErrConnection = errors.New("connection error")
	// ErrSend marks a per-message transport rejection. It only escapes a run
	// in single-send mode, where the batch is that one message.
	ErrSend = errors.New("send error")
)

// WrapConfiguration annotates an error as a fatal configuration problem.
func WrapConfiguration(err error) error {
	if err == nil {
		return ErrConfiguration
	}
	return fmt.Errorf("%w: %v", ErrConfiguration, err)
}

// WrapConnection annotates an error as a fatal connection problem.
func WrapConnection(err error) error {
	if err == nil {
		return ErrConnection
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// WrapSend annotates an error as a per-message send failure.
func WrapSend(err error) error {
	if err == nil {
		return ErrSend
	}
	return fmt.Errorf("%w: %v", ErrSend, err)
}
