package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLimitsSetRateLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "7", want: 7},
		{raw: " 5 ", want: 5},
		{raw: "0", want: 3, wantErr: true},
		{raw: "-5", want: 3, wantErr: true},
		{raw: "-1", want: 3, wantErr: true},
		{raw: "abc", want: 3, wantErr: true},
		{raw: "", want: 3, wantErr: true},
		{raw: "2.5", want: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			l := NewLimits(3, 100)
			got, err := l.SetRateLimit(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("err = %v, want ErrInvalidValue", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("returned %d, want %d", got, tt.want)
			}
			if l.RateLimit() != tt.want {
				t.Errorf("RateLimit() = %d, want %d", l.RateLimit(), tt.want)
			}
			if l.ResponseLimit() != 100 {
				t.Errorf("ResponseLimit() changed to %d", l.ResponseLimit())
			}
		})
	}
}

func TestLimitsSetResponseLimit(t *testing.T) {
	l := NewLimits(3, 100)

	if got, err := l.SetResponseLimit("256"); err != nil || got != 256 {
		t.Fatalf("SetResponseLimit(256) = %d, %v", got, err)
	}
	for _, bad := range []string{"0", "-5", "abc", ""} {
		if _, err := l.SetResponseLimit(bad); err == nil {
			t.Errorf("SetResponseLimit(%q) accepted", bad)
		}
	}
	if l.ResponseLimit() != 256 {
		t.Errorf("ResponseLimit() = %d, want 256", l.ResponseLimit())
	}
}

func TestReadAPIKeyMissingFile(t *testing.T) {
	key, err := ReadAPIKey(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != PlaceholderAPIKey {
		t.Errorf("key = %q, want placeholder", key)
	}
}

func TestWriteAPIKeyOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "api_key.txt")

	if err := WriteAPIKey(path, "first"); err != nil {
		t.Fatalf("WriteAPIKey: %v", err)
	}
	if err := WriteAPIKey(path, "second\n"); err != nil {
		t.Fatalf("WriteAPIKey: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("file = %q, want second", data)
	}

	key, err := ReadAPIKey(path)
	if err != nil || key != "second" {
		t.Errorf("ReadAPIKey = %q, %v", key, err)
	}

	if err := WriteAPIKey(path, "   "); err == nil {
		t.Error("expected error for blank key")
	}
}
