// Package httpprobe implements the boolean health probe used to decide
// whether a toolkit server is ready. All transport errors mean "not ready";
// only the probe's caller decides what to do about that.
package httpprobe

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/fx"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

const _requestTimeout = 5 * time.Second

// Probe answers whether an HTTP endpoint currently responds successfully.
type Probe interface {
	Exists(ctx context.Context, url string) bool
}

type probeImpl struct {
	client *http.Client
}

// New creates a Probe with a bounded per-request timeout.
func New() Probe {
	return &probeImpl{
		client: &http.Client{Timeout: _requestTimeout},
	}
}

// Exists performs a GET against url and reports whether it answered with a
// non-5xx status. Connection errors, timeouts and malformed URLs all read
// as false.
func (p *probeImpl) Exists(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
