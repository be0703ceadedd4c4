package execution

import (
	"context"
	"fmt"
	"slices"
)

// Metadata is the set of symbols an exchange can trade.
type Metadata struct {
	symbols    map[CurrencyPair]*Symbol
	currencies []string
}

// Symbol returns the tradable symbol for pair.
func (m *Metadata) Symbol(pair CurrencyPair) (*Symbol, bool) {
	s, ok := m.symbols[pair]
	return s, ok
}

// Symbols returns every tradable symbol ordered by pair.
func (m *Metadata) Symbols() []*Symbol {
	symbols := make([]*Symbol, 0, len(m.symbols))
	for _, s := range m.symbols {
		symbols = append(symbols, s)
	}
	slices.SortFunc(symbols, func(a, b *Symbol) int {
		switch {
		case a.Pair.String() < b.Pair.String():
			return -1
		case a.Pair.String() > b.Pair.String():
			return 1
		}
		return 0
	})
	return symbols
}

// SupportedCurrencies returns the sorted currency codes of all tradable symbols.
func (m *Metadata) SupportedCurrencies() []string {
	return slices.Clone(m.currencies)
}

func newMetadata(symbols []*Symbol) *Metadata {
	m := &Metadata{symbols: make(map[CurrencyPair]*Symbol, len(symbols))}

	for _, s := range symbols {
		if s == nil || !s.HasPrecision() {
			continue
		}
		m.symbols[s.Pair] = s

		for _, currency := range []string{s.BaseCurrency, s.QuoteCurrency} {
			if currency != "" && !slices.Contains(m.currencies, currency) {
				m.currencies = append(m.currencies, currency)
			}
		}
	}

	slices.Sort(m.currencies)
	return m
}

// BuildMetadata requests and parses the venue's symbols. Failed attempts are
// retried with exponential backoff up to MetadataRetries times, after which
// ErrMetadataUnavailable is returned. Symbols without a known price or amount
// precision are left out.
func (ex *Exchange) BuildMetadata(ctx context.Context) (*Metadata, error) {
	var lastErr error

	for attempt := 0; attempt < ex.settings.MetadataRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(ex.settings.MetadataRetryDelay, attempt-1)
			if err := sleepContext(ctx, delay); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
			}
		}

		md, err := ex.fetchMetadata(ctx)
		if err == nil {
			ex.metadata.Store(md)
			logger().Info("exchange metadata built",
				"account_id", ex.settings.AccountID,
				"symbols", len(md.symbols),
				"currencies", len(md.currencies),
			)
			return md, nil
		}

		lastErr = err
		logger().Warn("failed to build exchange metadata",
			"account_id", ex.settings.AccountID,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrMetadataUnavailable, ex.settings.AccountID, ex.settings.MetadataRetries, lastErr)
}

func (ex *Exchange) fetchMetadata(ctx context.Context) (*Metadata, error) {
	reqCtx, cancel := context.WithTimeout(ctx, ex.settings.RequestTimeout)
	defer cancel()

	raw, err := ex.client.RequestMetadata(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("request metadata: %w", asVenueError(err))
	}

	symbols, err := ex.client.ParseMetadata(raw)
	if err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return newMetadata(symbols), nil
}

// Metadata returns the last metadata built, or nil before BuildMetadata succeeded.
func (ex *Exchange) Metadata() *Metadata {
	return ex.metadata.Load()
}
