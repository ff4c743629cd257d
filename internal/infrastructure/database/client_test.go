package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestIsStreamError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"other", errors.New("constraint failed"), false},
		{"stream", errors.New("hrana: stream not found"), true},
		{"wrapped", errors.Join(errors.New("query"), errors.New("stream not found")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStreamError(tt.err); got != tt.want {
				t.Errorf("IsStreamError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	got, err := WithRetry(ctx, 2, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("stream not found")
		}
		return 42, nil
	})
	if err != nil || got != 42 || calls != 3 {
		t.Errorf("stream errors should be retried: got=%d err=%v calls=%d", got, err, calls)
	}

	calls = 0
	_, err = WithRetry(ctx, 2, func() (int, error) {
		calls++
		return 0, errors.New("syntax error")
	})
	if err == nil || calls != 1 {
		t.Errorf("other errors should not be retried: err=%v calls=%d", err, calls)
	}

	calls = 0
	_, err = WithRetry(ctx, 1, func() (int, error) {
		calls++
		return 0, errors.New("stream not found")
	})
	if err == nil || calls != 2 {
		t.Errorf("retries should stop at maxRetries: err=%v calls=%d", err, calls)
	}
}

func TestNewWithOptions_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "studi.db")
	c, err := New("file:"+path, "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	var fk int
	if err := c.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}
