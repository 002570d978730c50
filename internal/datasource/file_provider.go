package datasource

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ashare/tradeengine/internal/event"
	"github.com/shopspring/decimal"
)

// FileProvider reads daily bars from per-symbol CSV files under a root
// directory (root/<symbol>.csv, columns date,open,high,low,close,volume,
// amount,pre_close) — the offline provider backing backtests and any
// deployment without a live vendor feed.
type FileProvider struct {
	root string
}

// NewFileProvider builds a FileProvider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{root: dir}
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) FetchDailyCandles(_ context.Context, symbol string, from, to time.Time) ([]event.Bar, error) {
	path := filepath.Join(f.root, symbol+".csv")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file provider: open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("file provider: read %s: %w", path, err)
	}

	var bars []event.Bar
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == "date" {
			continue // header
		}
		if len(row) < 8 {
			continue
		}
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil || date.Before(from) || date.After(to) {
			continue
		}
		volume, _ := strconv.ParseInt(row[5], 10, 64)
		bars = append(bars, event.Bar{
			Symbol:    symbol,
			TradeDate: date,
			Frequency: "1d",
			Open:      parseDecimal(row[1]),
			High:      parseDecimal(row[2]),
			Low:       parseDecimal(row[3]),
			Close:     parseDecimal(row[4]),
			Volume:    volume,
			Amount:    parseDecimal(row[6]),
			PreClose:  parseDecimal(row[7]),
		})
	}
	return bars, nil
}

func (f *FileProvider) FetchBulkDailyCandles(ctx context.Context, symbols []string, from, to time.Time) (map[string][]event.Bar, error) {
	out := make(map[string][]event.Bar, len(symbols))
	for _, symbol := range symbols {
		bars, err := f.FetchDailyCandles(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		out[symbol] = bars
	}
	return out, nil
}

// FetchRealtimeQuote derives a quote from the most recent cached daily bar;
// a file provider has no live feed, so this is the last trading day's close.
func (f *FileProvider) FetchRealtimeQuote(ctx context.Context, symbol string) (event.Quote, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -10)
	bars, err := f.FetchDailyCandles(ctx, symbol, from, to)
	if err != nil {
		return event.Quote{}, err
	}
	if len(bars) == 0 {
		return event.Quote{}, fmt.Errorf("file provider: no recent bars for %s", symbol)
	}
	last := bars[len(bars)-1]
	return event.Quote{
		Symbol:    symbol,
		Price:     last.Close,
		High:      last.High,
		Low:       last.Low,
		Open:      last.Open,
		PrevClose: last.PreClose,
		Volume:    last.Volume,
		Timestamp: last.TradeDate,
	}, nil
}

func (f *FileProvider) FetchCompanyInfo(_ context.Context, symbol string) (CompanyInfo, error) {
	return CompanyInfo{Symbol: symbol, IsActive: true}, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
