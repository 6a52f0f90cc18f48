package signals

import (
	"context"
	"sort"
	"sync"
	"time"

	"dai-trader/internal/cache"
	"dai-trader/internal/logging"
)

// CollectorConfig configures caching and timeouts for every source.
type CollectorConfig struct {
	Prefix     string
	SignalTTL  time.Duration
	ContextTTL time.Duration
	Timeout    time.Duration
}

// Collector gathers every registered source for a symbol and the global
// contexts once per cycle.
type Collector struct {
	config   CollectorConfig
	cache    cache.Cache
	guards   []*Guard
	macro    MacroProvider
	economic EconomicProvider
	crypto   CryptoProvider
	logger   *logging.Logger
	mu       sync.RWMutex
}

// NewCollector creates a collector with no sources. A nil cache disables
// caching.
func NewCollector(cfg CollectorConfig, c cache.Cache) *Collector {
	return &Collector{
		config: cfg,
		cache:  c,
		logger: logging.WithComponent("signals"),
	}
}

// AddProvider registers a per-symbol source.
func (c *Collector) AddProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guards = append(c.guards, NewGuard(p, c.cache, GuardConfig{
		Prefix:  c.config.Prefix,
		TTL:     c.config.SignalTTL,
		Timeout: c.config.Timeout,
	}))
}

// SetMacroProvider sets the macro regime source
func (c *Collector) SetMacroProvider(p MacroProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.macro = p
}

// SetEconomicProvider sets the economic calendar source
func (c *Collector) SetEconomicProvider(p EconomicProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.economic = p
}

// SetCryptoProvider sets the crypto sentiment source
func (c *Collector) SetCryptoProvider(p CryptoProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crypto = p
}

// Collect queries every registered source for symbol concurrently.
// Sources without a provider are absent and read as neutral.
func (c *Collector) Collect(ctx context.Context, symbol string) map[Source]Signal {
	c.mu.RLock()
	guards := append([]*Guard(nil), c.guards...)
	c.mu.RUnlock()

	out := make(map[Source]Signal, len(guards))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, g := range guards {
		wg.Add(1)
		go func(g *Guard) {
			defer wg.Done()
			s := g.Signal(ctx, symbol)
			mu.Lock()
			out[g.Source()] = s
			mu.Unlock()
		}(g)
	}
	wg.Wait()

	c.logSignals(symbol, out)
	return out
}

func (c *Collector) logSignals(symbol string, sigs map[Source]Signal) {
	for _, src := range Sources {
		s, ok := sigs[src]
		if !ok || s.Label == LabelNeutral {
			continue
		}
		c.logger.Debug("signal", "symbol", symbol, "source", src, "label", s.Label,
			"confidence", s.Confidence, "boost", s.Boost)
	}
}

// Global fetches the shared contexts and summarizes news across the
// collected symbols.
func (c *Collector) Global(ctx context.Context, perSymbol map[string]map[Source]Signal) Global {
	c.mu.RLock()
	macro, economic, crypto := c.macro, c.economic, c.crypto
	c.mu.RUnlock()

	cfg := GuardConfig{Prefix: c.config.Prefix, TTL: c.config.ContextTTL, Timeout: c.config.Timeout}
	g := Global{
		Macro:    MacroContext{Regime: LabelNeutral},
		Economic: EconomicContext{RiskLevel: RiskLow},
		Crypto:   CryptoContext{Label: LabelNeutral},
		News:     Summarize(perSymbol),
	}

	if macro != nil {
		g.Macro = guardContext(ctx, c.cache, cfg, "macro", c.logger, macro.Macro, g.Macro)
	}
	if economic != nil {
		g.Economic = guardContext(ctx, c.cache, cfg, "economic", c.logger, economic.Economic, g.Economic)
	}
	if crypto != nil {
		g.Crypto = guardContext(ctx, c.cache, cfg, "crypto", c.logger, crypto.Crypto, g.Crypto)
	}
	return g
}

// Summarize lists symbols whose news is confidently bullish or bearish
// (confidence above 60).
func Summarize(perSymbol map[string]map[Source]Signal) NewsSummary {
	var sum NewsSummary
	for symbol, sigs := range perSymbol {
		news, ok := sigs[SourceNews]
		if !ok || news.Confidence <= 60 {
			continue
		}
		switch news.Label {
		case LabelBullish:
			sum.Bullish = append(sum.Bullish, symbol)
		case LabelBearish:
			sum.Bearish = append(sum.Bearish, symbol)
		}
	}
	sort.Strings(sum.Bullish)
	sort.Strings(sum.Bearish)
	return sum
}
