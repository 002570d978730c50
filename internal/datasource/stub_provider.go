package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/ashare/tradeengine/internal/event"
)

// StubProvider is a deterministic in-memory provider for tests: it never
// touches the network or filesystem and returns exactly what was seeded
// (no bars for a symbol with none seeded), or an error for symbols marked
// with FailSymbol and for quotes never seeded, so fallback chains can be
// exercised without fixtures.
type StubProvider struct {
	name   string
	bars   map[string][]event.Bar
	quotes map[string]event.Quote
	fail   map[string]bool
}

// NewStubProvider builds an empty StubProvider named name.
func NewStubProvider(name string) *StubProvider {
	return &StubProvider{
		name:   name,
		bars:   make(map[string][]event.Bar),
		quotes: make(map[string]event.Quote),
		fail:   make(map[string]bool),
	}
}

func (s *StubProvider) Name() string { return s.name }

// SeedBars registers the bars FetchDailyCandles returns for symbol.
func (s *StubProvider) SeedBars(symbol string, bars []event.Bar) *StubProvider {
	s.bars[symbol] = bars
	return s
}

// SeedQuote registers the quote FetchRealtimeQuote returns for symbol.
func (s *StubProvider) SeedQuote(symbol string, q event.Quote) *StubProvider {
	s.quotes[symbol] = q
	return s
}

// FailSymbol forces every fetch for symbol to return an error, to exercise
// fallback-chain behavior in tests.
func (s *StubProvider) FailSymbol(symbol string) *StubProvider {
	s.fail[symbol] = true
	return s
}

func (s *StubProvider) FetchDailyCandles(_ context.Context, symbol string, from, to time.Time) ([]event.Bar, error) {
	if s.fail[symbol] {
		return nil, fmt.Errorf("stub provider %s: forced failure for %s", s.name, symbol)
	}
	var out []event.Bar
	for _, b := range s.bars[symbol] {
		if !b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *StubProvider) FetchBulkDailyCandles(ctx context.Context, symbols []string, from, to time.Time) (map[string][]event.Bar, error) {
	out := make(map[string][]event.Bar, len(symbols))
	for _, symbol := range symbols {
		bars, err := s.FetchDailyCandles(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		out[symbol] = bars
	}
	return out, nil
}

func (s *StubProvider) FetchRealtimeQuote(_ context.Context, symbol string) (event.Quote, error) {
	if s.fail[symbol] {
		return event.Quote{}, fmt.Errorf("stub provider %s: forced failure for %s", s.name, symbol)
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return event.Quote{}, fmt.Errorf("stub provider %s: no seeded quote for %s", s.name, symbol)
	}
	return q, nil
}

func (s *StubProvider) FetchCompanyInfo(_ context.Context, symbol string) (CompanyInfo, error) {
	if s.fail[symbol] {
		return CompanyInfo{}, fmt.Errorf("stub provider %s: forced failure for %s", s.name, symbol)
	}
	return CompanyInfo{Symbol: symbol, IsActive: true}, nil
}
