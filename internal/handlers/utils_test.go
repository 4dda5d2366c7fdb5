package handlers

import "testing"

func TestExtractCookieToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"session_token=abc123", "abc123"},
		{"theme=dark; session_token=abc123; lang=en", "abc123"},
		{"session_token=abc123; other=x", "abc123"},
		{"other=x", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := extractCookieToken(c.header, "session_token"); got != c.want {
			t.Errorf("extractCookieToken(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}
