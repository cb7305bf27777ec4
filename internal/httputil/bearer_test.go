package httputil

import (
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"Bearer  abc ", "abc"},
		{"Basic abc", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := BearerToken(r); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestTokenMatches(t *testing.T) {
	if !TokenMatches("anything", "") {
		t.Error("empty expected token should match")
	}
	if !TokenMatches("s3cret", "s3cret") {
		t.Error("equal tokens should match")
	}
	if TokenMatches("nope", "s3cret") || TokenMatches("", "s3cret") {
		t.Error("different tokens must not match")
	}
}
