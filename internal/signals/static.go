package signals

import (
	"context"
	"sync"
)

// Static serves fixed signals per symbol. It stands in for sources that
// are not connected and backs tests.
type Static struct {
	source  Source
	signals map[string]Signal
	mu      sync.RWMutex
}

// NewStatic creates a provider for source with no signals; every symbol
// reads neutral until Set.
func NewStatic(source Source) *Static {
	return &Static{source: source, signals: make(map[string]Signal)}
}

// Set fixes the signal returned for symbol.
func (s *Static) Set(symbol string, sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[symbol] = sig
}

func (s *Static) Source() Source { return s.source }

func (s *Static) Signal(_ context.Context, symbol string) (Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sig, ok := s.signals[symbol]; ok {
		return sig, nil
	}
	return Neutral(s.source, "no data"), nil
}

// StaticContext serves fixed global contexts.
type StaticContext struct {
	MacroContext    MacroContext
	EconomicContext EconomicContext
	CryptoContext   CryptoContext
}

func (s *StaticContext) Macro(context.Context) (MacroContext, error) {
	return s.MacroContext, nil
}

func (s *StaticContext) Economic(context.Context) (EconomicContext, error) {
	return s.EconomicContext, nil
}

func (s *StaticContext) Crypto(context.Context) (CryptoContext, error) {
	return s.CryptoContext, nil
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	Src Source
	Fn  func(ctx context.Context, symbol string) (Signal, error)
}

func (p ProviderFunc) Source() Source { return p.Src }

func (p ProviderFunc) Signal(ctx context.Context, symbol string) (Signal, error) {
	return p.Fn(ctx, symbol)
}
