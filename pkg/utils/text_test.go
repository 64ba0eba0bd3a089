package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("café au lait", 4); got != "café..." {
		t.Errorf("multibyte: got %q", got)
	}
}

func TestHead(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"revenue", 3, "rev"},
		{"revenue", 100, "revenue"},
		{"€€€€", 2, "€€"},
		{"abc", 0, ""},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := Head(tt.in, tt.n); got != tt.want {
			t.Errorf("Head(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
