package httpprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExists(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "ok", status: http.StatusOK, want: true},
		{name: "redirect counts as alive", status: http.StatusFound, want: true},
		{name: "client error counts as alive", status: http.StatusNotFound, want: true},
		{name: "server error", status: http.StatusInternalServerError, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := New()
			assert.Equal(t, tt.want, p.Exists(context.Background(), srv.URL))
		})
	}
}

func TestExistsConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := New()
	assert.False(t, p.Exists(context.Background(), url))
}

func TestExistsBadURL(t *testing.T) {
	p := New()
	assert.False(t, p.Exists(context.Background(), "://not-a-url"))
}
