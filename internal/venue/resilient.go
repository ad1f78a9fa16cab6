package venue

import (
	"context"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Resilient wraps an Adapter with a per-venue circuit breaker and rate
// limiter (SPEC_FULL.md "Resilience: circuit breaker & rate limiting").
// A venue whose calls keep returning model.ErrTransient trips the
// breaker and is excluded from Router eligibility (§4.4(i)) without the
// Router needing its own cooldown bookkeeping.
type Resilient struct {
	Adapter
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewResilient wraps adapter with a circuit breaker tripped after 5
// consecutive failures within a 30s window, and a token-bucket limiter
// at rps (bursting up to burst).
func NewResilient(adapter Adapter, rps float64, burst int, log zerolog.Logger) *Resilient {
	name := string(adapter.Name())
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("venue", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &Resilient{
		Adapter: adapter,
		breaker: cb,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log.With().Str("venue", name).Logger(),
	}
}

// Eligible reports whether this venue is currently safe to route new
// legs to: the adapter reports fresh books (§4.1 UNSAFE marking) and the
// breaker is not open (§4.4(i) "only venues with fresh books and
// non-UNSAFE status are eligible").
func (r *Resilient) Eligible() bool {
	return r.Adapter.Status() == StatusFresh && r.breaker.State() != gobreaker.StateOpen
}

// PlaceOrder rate-limits and circuit-breaks the underlying PlaceOrder
// call. A gobreaker.ErrOpenState or limiter wait timeout is surfaced as
// model.ErrTransient so the Executor's retry/backoff policy (§7) applies
// uniformly.
func (r *Resilient) PlaceOrder(ctx context.Context, req model.VenueOrderRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", model.ErrTransient
	}
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.Adapter.PlaceOrder(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", model.ErrTransient
		}
		return "", err
	}
	return out.(string), nil
}

// CancelOrder rate-limits and circuit-breaks cancellation the same way.
func (r *Resilient) CancelOrder(ctx context.Context, legOrderID string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return model.ErrTransient
	}
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.Adapter.CancelOrder(ctx, legOrderID)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return model.ErrTransient
	}
	return err
}

// Transfer rate-limits and circuit-breaks wallet transfers the same way,
// since they are as failure-prone as order placement over a venue RPC.
func (r *Resilient) Transfer(ctx context.Context, from, to model.WalletID, amount float64) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return model.ErrTransient
	}
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.Adapter.Transfer(ctx, from, to, amount)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return model.ErrTransient
	}
	return err
}
