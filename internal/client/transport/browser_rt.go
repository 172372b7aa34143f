// Package transport holds the http.RoundTripper used to talk to the device.
package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Header values the device web UI sends with every XHR call.
const (
	UserAgent      = "Mozilla/5.0"
	XRequestedWith = "XMLHttpRequest"
)

// BrowserRoundTripper makes requests look like they come from the device's
// own web UI and logs each exchange at debug level.
type BrowserRoundTripper struct {
	Base   http.RoundTripper
	Logger *zap.SugaredLogger
}

func (b *BrowserRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := b.Base
	if rt == nil {
		rt = http.DefaultTransport
	}

	if req.Header.Get("User-Agent") == "" || req.Header.Get("X-Requested-With") == "" {
		req = req.Clone(req.Context())
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", UserAgent)
		}
		if req.Header.Get("X-Requested-With") == "" {
			req.Header.Set("X-Requested-With", XRequestedWith)
		}
	}

	start := time.Now()
	resp, err := rt.RoundTrip(req)
	if b.Logger != nil {
		if err != nil {
			b.Logger.Debugw("device request failed",
				"method", req.Method, "url", req.URL.String(), "duration", time.Since(start), "error", err)
		} else {
			b.Logger.Debugw("device request",
				"method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "duration", time.Since(start))
		}
	}
	return resp, err
}
