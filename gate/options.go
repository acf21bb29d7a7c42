package gate

import (
	"net/http"
	"time"

	"github.com/paidroute/x402/logger"
	"github.com/paidroute/x402/metrics"
	"github.com/paidroute/x402/replay"
	"github.com/paidroute/x402/validator"
)

// Option configures a Gate beyond its Config.
type Option func(*Gate)

// WithLogger sets the gate logger. The default discards everything.
func WithLogger(log logger.Logger) Option {
	return func(g *Gate) {
		g.log = log
	}
}

// WithMetrics sets the metrics recorder for payment events and latency.
func WithMetrics(rec metrics.Recorder) Option {
	return func(g *Gate) {
		g.rec = rec
	}
}

// WithReplayStore replaces the per-gate in-memory store, e.g. with a
// distributed implementation shared across nodes.
func WithReplayStore(store replay.Store) Option {
	return func(g *Gate) {
		g.replays = store
	}
}

// WithBackends bypasses ValidatorOrder construction entirely and validates
// with exactly the given backends, in order.
func WithBackends(backends ...validator.Backend) Option {
	return func(g *Gate) {
		g.backends = backends
	}
}

// WithHTTPClient sets the HTTP client handed to the facilitator backend,
// replacing its default timeouts.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gate) {
		g.httpClient = client
	}
}

// WithChainReader hands the chain backend an existing RPC client (or a test
// double) instead of dialing Config.RPCURL.
func WithChainReader(reader validator.ChainReader) Option {
	return func(g *Gate) {
		g.chainReader = reader
	}
}

// WithClock overrides the gate's clock for authorization window checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}
