package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// BreakerOracle fails fast while the wrapped oracle keeps failing, so callers go
// straight to their fallback instead of waiting on a dead provider.
type BreakerOracle struct {
	next RankingOracle
	cb   *gobreaker.CircuitBreaker[string]
}

func NewBreakerOracle(next RankingOracle, s BreakerSettings) *BreakerOracle {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ranking-oracle-" + next.Backend(),
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("oracle circuit breaker state changed")
		},
	})
	return &BreakerOracle{next: next, cb: cb}
}

func (b *BreakerOracle) Backend() string {
	return b.next.Backend()
}

func (b *BreakerOracle) Complete(ctx context.Context, prompt string) (string, error) {
	return b.cb.Execute(func() (string, error) {
		return b.next.Complete(ctx, prompt)
	})
}

func (b *BreakerOracle) State() gobreaker.State {
	return b.cb.State()
}
