package util

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0s"},
		{45, "45s"},
		{60, "1m"},
		{2700, "45m"},
		{3600, "1h 00m"},
		{7500, "2h 05m"},
		{-90, "-1m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	rome := time.FixedZone("CET", 3600)
	in := time.Date(2024, 1, 15, 10, 30, 0, 0, rome)

	s := FormatTimestamp(in)
	if s != "2024-01-15T09:30:00Z" {
		t.Errorf("FormatTimestamp() = %q", s)
	}
	got, err := ParseTimestamp(s)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(in) {
		t.Errorf("ParseTimestamp() = %v, want %v", got, in)
	}
}

func TestParseTimestamp_Formats(t *testing.T) {
	want := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	for _, s := range []string{"2024-01-15T09:30:00Z", "2024-01-15T10:30:00+01:00", "2024-01-15 09:30:00"} {
		got, err := ParseTimestamp(s)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) error = %v", s, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("ParseTimestamp(yesterday) succeeded")
	}
}

func TestNullHelpers(t *testing.T) {
	if NullInt(nil).Valid {
		t.Error("NullInt(nil) valid")
	}
	five := 5
	if got := NullIntToPtr(NullInt(&five)); got == nil || *got != 5 {
		t.Errorf("NullInt round trip = %v", got)
	}
	if NullString("").Valid {
		t.Error("NullString(\"\") valid")
	}
	if got := NullStringToString(sql.NullString{}); got != "" {
		t.Errorf("NullStringToString(null) = %q", got)
	}

	ts, err := NullTimeToPtr(sql.NullString{})
	if err != nil || ts != nil {
		t.Errorf("NullTimeToPtr(null) = %v, %v", ts, err)
	}
	now := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	ts, err = NullTimeToPtr(NullTime(&now))
	if err != nil || ts == nil || !ts.Equal(now) {
		t.Errorf("NullTime round trip = %v, %v", ts, err)
	}
	if BoolToInt64(true) != 1 || BoolToInt64(false) != 0 {
		t.Error("BoolToInt64")
	}
}

func TestGetXDGDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	got, err := GetXDGDataDir()
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("/tmp/xdg", "studi") {
		t.Errorf("GetXDGDataDir() = %q", got)
	}
}
