package sendlog_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/bulksend/internal/sendlog"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return rows
}

func TestOpenWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := sendlog.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.Append(sendlog.Entry{
		Recipient: "jo@x.com",
		Status:    sendlog.StatusSuccess,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening an existing log must append, not rewrite the header.
	w, err = sendlog.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w.Append(sendlog.Entry{
		Recipient: "bo@x.com",
		Status:    sendlog.StatusFailure,
		Detail:    "550 no such user",
		Timestamp: time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	w.Close()

	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}

	wantHeader := []string{"recipient", "status", "detail", "timestamp"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Fatalf("header column %d: got %q, want %q", i, rows[0][i], col)
		}
	}
	if rows[1][0] != "jo@x.com" || rows[1][1] != "SUCCESS" || rows[1][3] != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][0] != "bo@x.com" || rows[2][1] != "FAILURE" || rows[2][2] != "550 no such user" {
		t.Fatalf("unexpected second row %v", rows[2])
	}
}

func TestAppendIsDurablePerRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := sendlog.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	if err := w.Append(sendlog.Entry{Recipient: "a@x.com", Status: sendlog.StatusSuccess, Timestamp: time.Now()}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// The row must be readable before the writer is closed.
	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("expected row to be visible before close, got %d rows", len(rows))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := sendlog.Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestDetailWithCommasAndQuotesRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := sendlog.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	detail := `gateway said: "number invalid", code=400`
	if err := w.Append(sendlog.Entry{Recipient: "+1", Status: sendlog.StatusFailure, Detail: detail, Timestamp: time.Now()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	w.Close()

	rows := readRows(t, path)
	if rows[1][2] != detail {
		t.Fatalf("expected detail to round trip, got %q", rows[1][2])
	}
}
