package main

import (
	"context"
	"errors"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "200 OK"},
		{404, "404 Not Found"},
		{503, "503 Service Unavailable"},
		{799, "799"},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.code); got != tt.want {
			t.Errorf("httpStatus(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		status string
		want   int
		ok     bool
	}{
		{"200 OK", 200, true},
		{"429 Too Many Requests", 429, true},
		{"503", 503, true},
		{"OK", 0, false},
		{"Unavailable", 0, false},
		{"2000 things", 0, false},
		{"099 low", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := httpStatusCode(tt.status)
		if got != tt.want || ok != tt.ok {
			t.Errorf("httpStatusCode(%q) = (%d, %v), want (%d, %v)", tt.status, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFallbackStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, "Context deadline exceeded"},
		{"canceled", context.Canceled, "Context canceled"},
		{"plain error", errors.New("oops"), "Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fallbackStatus(tt.err); got != tt.want {
				t.Errorf("fallbackStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}
