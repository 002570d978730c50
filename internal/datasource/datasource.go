// Package datasource provides the market/reference data fetch capability:
// a fallback chain of providers (primary -> secondary -> tertiary), each
// fetch coalesced across concurrent callers and backed by the persistent
// cache, generalizing the reference DataProvider/DhanDataProvider pair and
// grounded in the original data-source-manager/realtime-feed/Sina-Finance
// fallback logic this spec was distilled from.
package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/ashare/tradeengine/internal/cache"
	"github.com/ashare/tradeengine/internal/event"
	"golang.org/x/sync/singleflight"
)

// Error marks a data-source-level failure (network, parse, rate limit) as
// distinct from "no data for this query" — callers that implement a
// fallback chain retry the next provider only on Error, not on a clean
// empty result.
type Error struct {
	Provider string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("datasource %s: %v", e.Provider, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// CompanyInfo is static reference data about a listed instrument.
type CompanyInfo struct {
	Symbol   string
	Name     string
	Sector   string
	IsActive bool
}

// Provider is the capability every concrete data source (file-backed,
// vendor REST, deterministic test stub) implements.
type Provider interface {
	Name() string
	FetchDailyCandles(ctx context.Context, symbol string, from, to time.Time) ([]event.Bar, error)
	FetchBulkDailyCandles(ctx context.Context, symbols []string, from, to time.Time) (map[string][]event.Bar, error)
	FetchRealtimeQuote(ctx context.Context, symbol string) (event.Quote, error)
	FetchCompanyInfo(ctx context.Context, symbol string) (CompanyInfo, error)
}

// Chain tries providers in order, falling through to the next on any
// Error, and surfaces a typed ExhaustedError once every provider has
// failed — callers must never silently fabricate data when the whole
// chain is exhausted.
type Chain struct {
	providers []Provider
	cache     *cache.Cache
	group     singleflight.Group
	quoteTTL  time.Duration
	candleTTL time.Duration
}

// New builds a Chain trying providers in the given priority order.
// cacheStore may be nil to disable caching (e.g. in tests).
func New(providers []Provider, cacheStore *cache.Cache) *Chain {
	return &Chain{
		providers: providers,
		cache:     cacheStore,
		quoteTTL:  5 * time.Second,
		candleTTL: 24 * time.Hour,
	}
}

// ExhaustedError reports that every provider in the chain failed.
type ExhaustedError struct {
	Symbol string
	Errs   []error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("datasource: all providers exhausted for %s (%d errors, last: %v)",
		e.Symbol, len(e.Errs), e.Errs[len(e.Errs)-1])
}

// FetchRealtimeQuote returns the latest quote for symbol, coalescing
// concurrent requests for the same symbol into one upstream fetch and
// serving from the short-TTL cache when fresh.
func (c *Chain) FetchRealtimeQuote(ctx context.Context, symbol string) (event.Quote, error) {
	key := "quote:" + symbol

	if c.cache != nil {
		var cached event.Quote
		if found, _ := c.cache.Get(ctx, key, c.quoteTTL, &cached); found {
			return cached, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		var errs []error
		for _, p := range c.providers {
			q, err := p.FetchRealtimeQuote(ctx, symbol)
			if err != nil {
				errs = append(errs, &Error{Provider: p.Name(), Cause: err})
				continue
			}
			if c.cache != nil {
				_ = c.cache.Set(ctx, key, q, c.quoteTTL, "quote", symbol)
			}
			return q, nil
		}
		return event.Quote{}, &ExhaustedError{Symbol: symbol, Errs: errs}
	})
	if err != nil {
		return event.Quote{}, err
	}
	return v.(event.Quote), nil
}

// FetchDailyCandles returns daily bars for symbol in [from, to], trying
// each provider in order on failure and caching the result under the
// configured candle TTL.
func (c *Chain) FetchDailyCandles(ctx context.Context, symbol string, from, to time.Time) ([]event.Bar, error) {
	key := fmt.Sprintf("candles:%s:%s:%s", symbol, from.Format("20060102"), to.Format("20060102"))

	if c.cache != nil {
		var cached []event.Bar
		if found, _ := c.cache.Get(ctx, key, c.candleTTL, &cached); found {
			return cached, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		var errs []error
		for _, p := range c.providers {
			bars, err := p.FetchDailyCandles(ctx, symbol, from, to)
			if err != nil {
				errs = append(errs, &Error{Provider: p.Name(), Cause: err})
				continue
			}
			if c.cache != nil {
				_ = c.cache.Set(ctx, key, bars, c.candleTTL, "candles", symbol)
			}
			return bars, nil
		}
		return nil, &ExhaustedError{Symbol: symbol, Errs: errs}
	})
	if err != nil {
		return nil, err
	}
	return v.([]event.Bar), nil
}

// FetchBulkDailyCandles fetches daily bars for multiple symbols in one
// upstream round trip where the active provider supports it, falling
// through the chain as a whole (not per-symbol) on failure.
func (c *Chain) FetchBulkDailyCandles(ctx context.Context, symbols []string, from, to time.Time) (map[string][]event.Bar, error) {
	var errs []error
	for _, p := range c.providers {
		result, err := p.FetchBulkDailyCandles(ctx, symbols, from, to)
		if err != nil {
			errs = append(errs, &Error{Provider: p.Name(), Cause: err})
			continue
		}
		if c.cache != nil {
			for symbol, bars := range result {
				key := fmt.Sprintf("candles:%s:%s:%s", symbol, from.Format("20060102"), to.Format("20060102"))
				_ = c.cache.Set(ctx, key, bars, c.candleTTL, "candles", symbol)
			}
		}
		return result, nil
	}
	return nil, &ExhaustedError{Symbol: fmt.Sprintf("%v", symbols), Errs: errs}
}

// FetchCompanyInfo returns reference data about symbol, falling through
// the chain on failure. Company info changes rarely, so it is cached for a
// full day.
func (c *Chain) FetchCompanyInfo(ctx context.Context, symbol string) (CompanyInfo, error) {
	key := "company:" + symbol

	if c.cache != nil {
		var cached CompanyInfo
		if found, _ := c.cache.Get(ctx, key, 24*time.Hour, &cached); found {
			return cached, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		var errs []error
		for _, p := range c.providers {
			info, err := p.FetchCompanyInfo(ctx, symbol)
			if err != nil {
				errs = append(errs, &Error{Provider: p.Name(), Cause: err})
				continue
			}
			if c.cache != nil {
				_ = c.cache.Set(ctx, key, info, 24*time.Hour, "company", symbol)
			}
			return info, nil
		}
		return CompanyInfo{}, &ExhaustedError{Symbol: symbol, Errs: errs}
	})
	if err != nil {
		return CompanyInfo{}, err
	}
	return v.(CompanyInfo), nil
}
