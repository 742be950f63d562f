package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		want       string
	}{
		{"remote addr", nil, "192.0.2.10:5000", false, "192.0.2.10"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", false, "2001:db8::1"},
		{"remote addr without port", nil, "192.0.2.10", false, "192.0.2.10"},
		{"forwarded ignored when untrusted", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "10.0.0.1:1", false, "10.0.0.1"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.7, 203.0.113.9"}, "10.0.0.1:1", true, "198.51.100.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.8"}, "10.0.0.1:1", true, "198.51.100.8"},
		{"empty forwarded falls back", map[string]string{"X-Forwarded-For": " , 1.2.3.4"}, "10.0.0.1:1", true, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trustProxy))
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, BearerToken(r), tt.header)
	}
}
