package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 7 * time.Second},
		{"30", 30 * time.Second},
		{"2m", 2 * time.Minute},
		{"-5", 7 * time.Second},
		{"soon", 7 * time.Second},
	}
	for _, tc := range cases {
		t.Setenv("TEST_DURATION", tc.raw)
		if got := Duration("TEST_DURATION", 7*time.Second); got != tc.want {
			t.Fatalf("Duration(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !Bool("TEST_BOOL", false) {
		t.Fatal("expected yes to parse as true")
	}
	t.Setenv("TEST_BOOL", "garbage")
	if Bool("TEST_BOOL", false) {
		t.Fatal("expected fallback for garbage")
	}
	t.Setenv("TEST_INT", "0")
	if got := Int("TEST_INT", 9); got != 9 {
		t.Fatalf("expected fallback 9 for non-positive, got %d", got)
	}
}

func TestList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ,c")
	got := List("TEST_LIST", "")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("MEDIBOOK_DOTENV_MARKER=loaded\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("MEDIBOOK_DOTENV_MARKER") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("MEDIBOOK_DOTENV_MARKER"); got != "loaded" {
		t.Fatalf("expected marker to be loaded, got %q", got)
	}
}
