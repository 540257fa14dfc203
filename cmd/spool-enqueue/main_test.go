package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/velmie/spool"
	"github.com/velmie/spool/cmd/internal/backend"
)

func TestDecodeMessages(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr error
	}{
		{name: "single", input: `{"to":["a@example.com"],"body":"hi"}`, want: 1},
		{name: "array", input: ` [{"to":["a@example.com"]},{"cc":["b@example.com"]}] `, want: 2},
		{name: "empty", input: "  ", wantErr: errNoMessages},
		{name: "empty array", input: "[]", wantErr: errNoMessages},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msgs, err := decodeMessages([]byte(test.input))
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("expected %v, got %v", test.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(msgs) != test.want {
				t.Fatalf("expected %d messages, got %d", test.want, len(msgs))
			}
		})
	}

	if _, err := decodeMessages([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRunEnqueuesIntoSQLite(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "messages.json")
	payload := `[{"to":["a@example.com"],"body":"one"},{"to":["b@example.com"],"body":"two"}]`
	if err := os.WriteFile(input, []byte(payload), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	opts := backend.Options{Backend: backend.SQLite, DSN: filepath.Join(dir, "spool.db"), Table: "spool", CreateSchema: true}

	var out bytes.Buffer
	if err := run(context.Background(), opts, input, false, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Fields(out.String())
	if len(lines) != 2 {
		t.Fatalf("expected 2 ids, got %q", out.String())
	}
	for _, line := range lines {
		if _, err := spool.ParseID(line); err != nil {
			t.Fatalf("printed id %q: %v", line, err)
		}
	}

	opts.CreateSchema = false
	store, closer, err := backend.Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closer()
	result, err := spool.MustNew(store).Flush(context.Background(), spool.SendFunc(
		func(context.Context, spool.Message) (int, []string, error) { return 1, nil, nil },
	))
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.Delivered != 2 {
		t.Fatalf("expected 2 delivered, got %+v", result)
	}
}

func TestRunRejectsInvalidMessage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "message.json")
	if err := os.WriteFile(input, []byte(`{"body":"nobody"}`), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}

	err := run(context.Background(), backend.Options{Backend: backend.Memory}, input, false, &bytes.Buffer{})
	if !errors.Is(err, spool.ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}
