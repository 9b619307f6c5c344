package submit

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Delivery sends a submission to the first output that accepts it, trying
// outputs in order. Each output is retried; outputs may be guarded by a
// circuit breaker.
type Delivery struct {
	outputs  []Output
	breakers map[string]*CircuitBreaker
	retry    RetryConfig
	log      *zap.Logger
}

// NewDelivery creates a delivery over outputs, primary first.
func NewDelivery(retry RetryConfig, log *zap.Logger, outputs ...Output) *Delivery {
	if log == nil {
		log = zap.NewNop()
	}
	return &Delivery{
		outputs:  outputs,
		breakers: make(map[string]*CircuitBreaker),
		retry:    retry,
		log:      log,
	}
}

// Protect puts the named output behind a circuit breaker.
func (d *Delivery) Protect(output string, cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := NewCircuitBreaker(output, cfg, d.log)
	d.breakers[output] = cb
	return cb
}

// Outputs returns the configured outputs in order.
func (d *Delivery) Outputs() []Output {
	return d.outputs
}

// Deliver returns the name of the output that accepted sub. When all fail
// the errors of every output are combined.
func (d *Delivery) Deliver(ctx context.Context, sub *Submission) (string, error) {
	if len(d.outputs) == 0 {
		return "", ErrNoOutputs
	}

	var errs error
	for _, out := range d.outputs {
		cb := d.breakers[out.Name()]
		err := WithRetry(ctx, out.Name(), d.retry, d.log, func(ctx context.Context) error {
			if cb == nil {
				return out.Send(ctx, sub)
			}
			return cb.Execute(ctx, func(ctx context.Context) error { return out.Send(ctx, sub) })
		})
		if err == nil {
			d.log.Info("Submission delivered", zap.String("id", sub.ID), zap.String("output", out.Name()))
			return out.Name(), nil
		}

		d.log.Warn("Output failed", zap.String("id", sub.ID), zap.String("output", out.Name()), zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", out.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errs
}

// Close closes all outputs.
func (d *Delivery) Close() error {
	var errs error
	for _, out := range d.outputs {
		errs = multierr.Append(errs, out.Close())
	}
	return errs
}
