package payflow

import (
	"net/http"
	"time"

	"github.com/requestnet/payflow/logger"
	"github.com/requestnet/payflow/metrics"
)

type Option func(*Widget)

func WithLogger(l logger.Logger) Option {
	return func(w *Widget) {
		w.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(w *Widget) {
		w.metrics = r
	}
}

// WithTimeout bounds every HTTP request to the payout and catalog APIs.
func WithTimeout(t time.Duration) Option {
	return func(w *Widget) {
		w.timeout = t
	}
}

// WithHTTPClient replaces the default HTTP client, taking precedence over
// WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Widget) {
		w.http = c
	}
}

// WithRPCOverride replaces the default RPC endpoint for one network.
func WithRPCOverride(network, rawurl string) Option {
	return func(w *Widget) {
		if w.config.RPCOverrides == nil {
			w.config.RPCOverrides = map[string]string{}
		}
		w.config.RPCOverrides[network] = rawurl
	}
}
