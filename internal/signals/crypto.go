package signals

import (
	"context"

	"dai-trader/internal/binance"
	"dai-trader/internal/errs"
	"dai-trader/internal/logging"
)

// BinanceCrypto derives crypto risk appetite from BTC and ETH exchange
// statistics.
type BinanceCrypto struct {
	client binance.BinanceClient
	logger *logging.Logger
}

// NewBinanceCrypto creates a crypto context source over client.
func NewBinanceCrypto(client binance.BinanceClient) *BinanceCrypto {
	return &BinanceCrypto{client: client, logger: logging.WithComponent("crypto")}
}

// Crypto needs the BTC 24h ticker; the 7-day move and ETH confirmation are
// best effort.
func (b *BinanceCrypto) Crypto(ctx context.Context) (CryptoContext, error) {
	btc, err := b.client.Get24hrTicker(ctx, "BTCUSDT")
	if err != nil {
		return CryptoContext{}, errs.Data("signals.Crypto", err)
	}

	var ethChange float64
	if eth, err := b.client.Get24hrTicker(ctx, "ETHUSDT"); err == nil {
		ethChange = eth.PriceChangePercent
	} else {
		b.logger.Debug("eth ticker unavailable", "error", err)
	}

	var weekChange float64
	if klines, err := b.client.GetKlines(ctx, "BTCUSDT", "1d", 8); err == nil && len(klines) >= 2 {
		first := klines[0].Close
		if first > 0 {
			weekChange = (klines[len(klines)-1].Close - first) / first * 100
		}
	} else if err != nil {
		b.logger.Debug("btc daily klines unavailable", "error", err)
	}

	c := AnalyzeCrypto(btc.PriceChangePercent, weekChange, ethChange)
	b.logger.Info("crypto context", "label", c.Label, "confidence", c.Confidence, "btc_24h", c.BTCChange24h)
	return c, nil
}
