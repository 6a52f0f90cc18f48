package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dai-trader/internal/cache"
	"dai-trader/internal/errs"
	"dai-trader/internal/logging"
)

// Provider produces one source's signal for a symbol.
type Provider interface {
	Source() Source
	Signal(ctx context.Context, symbol string) (Signal, error)
}

// MacroProvider reports the economic regime.
type MacroProvider interface {
	Macro(ctx context.Context) (MacroContext, error)
}

// EconomicProvider reports today's event risk.
type EconomicProvider interface {
	Economic(ctx context.Context) (EconomicContext, error)
}

// CryptoProvider reports crypto risk appetite.
type CryptoProvider interface {
	Crypto(ctx context.Context) (CryptoContext, error)
}

// GuardConfig bounds one provider call.
type GuardConfig struct {
	Prefix  string
	TTL     time.Duration
	Timeout time.Duration
}

// Guard wraps a Provider so that it never fails: errors, timeouts and
// panics become the neutral default. Successful results are cached for TTL.
type Guard struct {
	provider Provider
	cache    cache.Cache
	config   GuardConfig
	logger   *logging.Logger
}

// NewGuard guards p. A nil cache disables caching.
func NewGuard(p Provider, c cache.Cache, cfg GuardConfig) *Guard {
	return &Guard{
		provider: p,
		cache:    c,
		config:   cfg,
		logger:   logging.WithComponent("signals").WithField("source", string(p.Source())),
	}
}

// Source is the guarded provider's source.
func (g *Guard) Source() Source { return g.provider.Source() }

// Signal returns the cached or freshly fetched signal, or a degraded
// neutral one.
func (g *Guard) Signal(ctx context.Context, symbol string) Signal {
	src := g.provider.Source()
	key := cache.SignalKey(g.config.Prefix, string(src), symbol)

	if g.cache != nil {
		if raw, ok := g.cache.Get(ctx, key); ok {
			var s Signal
			if err := json.Unmarshal(raw, &s); err == nil {
				return s
			}
		}
	}

	s, err := g.call(ctx, symbol)
	if err != nil {
		g.logger.Warn("signal source failed, using neutral", "symbol", symbol, "error", err)
		n := Neutral(src, "source unavailable")
		n.Degraded = true
		return n
	}

	s.Source = src
	s = s.Normalize()
	if s.Boost == 0 {
		s.Boost = Boost(s)
	}

	if g.cache != nil {
		if raw, err := json.Marshal(s); err == nil {
			g.cache.Set(ctx, key, raw, g.config.TTL)
		}
	}
	return s
}

func (g *Guard) call(ctx context.Context, symbol string) (s Signal, err error) {
	op := "signals." + string(g.provider.Source())
	defer func() {
		if r := recover(); r != nil {
			err = errs.Data(op, fmt.Errorf("panic: %v", r))
		}
	}()

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	s, err = g.provider.Signal(ctx, symbol)
	if err != nil {
		return Signal{}, errs.Data(op, err)
	}
	return s, nil
}

// guardContext runs fetch with the same protections as Guard for a global
// context record.
func guardContext[T any](ctx context.Context, c cache.Cache, cfg GuardConfig, kind string,
	logger *logging.Logger, fetch func(context.Context) (T, error), fallback T) (out T) {

	key := cache.ContextKey(cfg.Prefix, kind)
	if c != nil {
		if raw, ok := c.Get(ctx, key); ok {
			if err := json.Unmarshal(raw, &out); err == nil {
				return out
			}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("context source panicked, using default", "kind", kind, "panic", r)
			out = fallback
		}
	}()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	v, err := fetch(ctx)
	if err != nil {
		logger.Warn("context source failed, using default", "kind", kind, "error", err)
		return fallback
	}
	if c != nil {
		if raw, err := json.Marshal(v); err == nil {
			c.Set(ctx, key, raw, cfg.TTL)
		}
	}
	return v
}
