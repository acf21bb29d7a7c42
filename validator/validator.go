// Package validator confirms settled x402 payments.
//
// A Backend reaches a verdict on a single payment: a receipt on success, a
// classed error on failure. The Pipeline runs backends in a configured order
// and moves to the next backend only when the current one cannot reach its
// own infrastructure; every real verdict, positive or negative, is final.
package validator

import (
	"context"
	"errors"
	"time"

	x402 "github.com/paidroute/x402"
	"github.com/paidroute/x402/logger"
	"github.com/paidroute/x402/metrics"
)

// Backend names used in validator-order configuration.
const (
	NameFacilitator = "facilitator"
	NameChain       = "chain"
	NameFormat      = "format"
)

// ErrNotApplicable marks a payment a backend cannot judge, such as a bare
// transaction hash handed to the facilitator backend. The pipeline skips to
// the next backend without recording a verdict.
var ErrNotApplicable = errors.New("validator: backend not applicable")

// Backend confirms a single payment.
type Backend interface {
	// Name identifies the backend in configuration, logs and metrics.
	Name() string

	// Validate confirms the payment and returns its receipt. Returned
	// errors carry a payment error class: unavailable classes let the
	// pipeline try the next backend, all others are terminal.
	Validate(ctx context.Context, payment *x402.Payment, method x402.PaymentMethod) (*x402.PaymentReceipt, error)
}

// Pipeline runs backends in order until one reaches a verdict.
type Pipeline struct {
	backends []Backend
	log      logger.Logger
	rec      metrics.Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger. The default discards everything.
func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithMetrics sets the metrics recorder for per-backend latency.
func WithMetrics(rec metrics.Recorder) Option {
	return func(p *Pipeline) {
		p.rec = rec
	}
}

// NewPipeline builds a pipeline over backends, which are consulted in the
// order given.
func NewPipeline(backends []Backend, opts ...Option) *Pipeline {
	p := &Pipeline{
		backends: backends,
		log:      logger.NoopLogger{},
		rec:      metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Backends returns the configured backends in pipeline order.
func (p *Pipeline) Backends() []Backend {
	return p.backends
}

// Validate runs the payment through the backends. A backend that returns an
// unavailable-class error cascades to the next one; if every backend is
// unavailable, the first such error is returned so the caller reports the
// primary failure. Any other error is a terminal verdict.
func (p *Pipeline) Validate(ctx context.Context, payment *x402.Payment, method x402.PaymentMethod) (*x402.PaymentReceipt, error) {
	if len(p.backends) == 0 {
		return nil, x402.NewError(x402.ClassInternal, "no validation backends configured")
	}

	var firstUnavailable error
	for _, backend := range p.backends {
		start := time.Now()
		receipt, err := backend.Validate(ctx, payment, method)
		p.rec.ObserveLatency(backend.Name(), time.Since(start), map[string]string{
			"network": method.Network,
		})

		switch {
		case err == nil:
			p.log.Debug("payment validated", map[string]any{
				"backend": backend.Name(),
				"network": method.Network,
				"tx":      receipt.TransactionHash,
			})
			return receipt, nil

		case errors.Is(err, ErrNotApplicable):
			p.log.Debug("backend not applicable", map[string]any{
				"backend": backend.Name(),
			})

		case x402.IsUnavailable(err):
			p.log.Warn("validation backend unavailable", map[string]any{
				"backend": backend.Name(),
				"error":   err.Error(),
			})
			if firstUnavailable == nil {
				firstUnavailable = err
			}

		default:
			return nil, err
		}
	}

	if firstUnavailable != nil {
		return nil, firstUnavailable
	}
	return nil, x402.NewError(x402.ClassInternal, "no validation backend could judge the payment")
}
