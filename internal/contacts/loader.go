// Package contacts streams recipient records out of CSV contact lists.
//
// Address resolution is a defined external contract, not a heuristic to be
// improved: the email pipeline takes the column whose header is "email"
// (case-insensitive) and otherwise falls back to the first column, while the
// SMS pipeline takes the "phone" column and otherwise falls back to the third
// column. The fallback value is used as-is; nothing checks that it looks like
// an address.
package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMalformedInput marks rows that cannot provide an address because the
// file is too narrow for the positional fallback.
var ErrMalformedInput = errors.New("malformed input")

// RowError reports a malformed data row by its 1-indexed position.
type RowError struct {
	Row    int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// Unwrap lets callers classify row errors with errors.Is.
func (e *RowError) Unwrap() error { return ErrMalformedInput }

// Rule describes how the recipient address is resolved from a row and which
// canonical field names are injected from fixed positions when the header
// does not provide them.
type Rule struct {
	// Header is the case-insensitive column name that carries the address.
	Header string
	// Fallback is the zero-based column used when Header is absent.
	Fallback int
	// Canonical maps column positions to field names guaranteed to exist in
	// every record (unless a real column already claimed the name).
	Canonical map[int]string
}

// EmailRule resolves addresses for the email pipeline.
var EmailRule = Rule{
	Header:   "email",
	Fallback: 0,
	Canonical: map[int]string{
		0: "email",
	},
}

// PhoneRule resolves addresses for the SMS pipeline. The first three columns
// double as first name, last name and phone when the header does not name
// them, matching the documented contact list layout.
var PhoneRule = Rule{
	Header:   "phone",
	Fallback: 2,
	Canonical: map[int]string{
		0: "first_name",
		1: "last_name",
		2: "phone",
	},
}

// Record is one contact row: the resolved recipient address plus every column
// (and canonical field) available to the template renderer. Records are
// immutable once yielded.
type Record struct {
	// Row is the 1-indexed position within the data rows.
	Row int
	// Address is the resolved recipient (email address or phone number). It
	// may be empty when the resolved cell is blank.
	Address string
	// Fields maps column names to this row's values.
	Fields map[string]string
}

// Loader reads contact records sequentially from a CSV file. A consumed
// loader cannot be rewound; open the file again to restart.
type Loader struct {
	file      *os.File
	reader    *csv.Reader
	rule      Rule
	headers   []string
	headerSet map[string]bool // lowercased header names
	addrIdx   int             // resolved header column, -1 when falling back by position
	row       int
}

// Open prepares a loader for the given CSV path. The header row is consumed
// immediately; a missing or empty file is reported here rather than on the
// first Next call.
func Open(path string, rule Rule) (*Loader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("contacts: open %s: %w", path, err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		file.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("contacts: %s has no header row", path)
		}
		return nil, fmt.Errorf("contacts: read header of %s: %w", path, err)
	}

	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}

	addrIdx := -1
	headerSet := make(map[string]bool, len(headers))
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		headerSet[name] = true
		if addrIdx < 0 && name == strings.ToLower(rule.Header) {
			addrIdx = i
		}
	}

	return &Loader{
		file:      file,
		reader:    reader,
		rule:      rule,
		headers:   headers,
		headerSet: headerSet,
		addrIdx:   addrIdx,
	}, nil
}

// Headers returns the header row as read from the file.
func (l *Loader) Headers() []string {
	return append([]string(nil), l.headers...)
}

// Next yields the next contact record in file order. It returns io.EOF when
// the file is exhausted and a *RowError when the positional fallback cannot
// be satisfied for a row.
func (l *Loader) Next() (*Record, error) {
	raw, err := l.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		l.row++
		return nil, &RowError{Row: l.row, Reason: err.Error()}
	}
	l.row++

	// Pad short rows to the header width so every column has a value.
	for len(raw) < len(l.headers) {
		raw = append(raw, "")
	}

	fields := make(map[string]string, len(l.headers)+len(l.rule.Canonical))
	for i, h := range l.headers {
		fields[h] = raw[i]
	}

	address := ""
	if l.addrIdx >= 0 {
		address = raw[l.addrIdx]
	} else {
		if l.rule.Fallback >= len(raw) {
			return nil, &RowError{
				Row:    l.row,
				Reason: fmt.Sprintf("need at least %d columns to resolve %s, have %d", l.rule.Fallback+1, l.rule.Header, len(raw)),
			}
		}
		address = raw[l.rule.Fallback]
	}

	// Canonical names are injected only when no real column claims them,
	// under any casing, so "Phone" as a header keeps its own key.
	for pos, name := range l.rule.Canonical {
		if l.headerSet[name] {
			continue
		}
		if _, claimed := fields[name]; claimed {
			continue
		}
		if pos < len(raw) {
			fields[name] = raw[pos]
		}
	}

	return &Record{Row: l.row, Address: address, Fields: fields}, nil
}

// Close releases the underlying file.
func (l *Loader) Close() error {
	return l.file.Close()
}
