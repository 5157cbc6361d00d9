package backtest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"trendcast/internal/market"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DataLoader holds a daily (or other fixed-interval) close series for
// offline evaluation, sorted oldest first.
type DataLoader struct {
	candles   []market.Candle
	StartTime time.Time
	EndTime   time.Time
}

// NewDataLoader creates a new data loader
func NewDataLoader() *DataLoader {
	return &DataLoader{candles: make([]market.Candle, 0)}
}

// LoadFromCSV reads a CSV file with a header row. The time column may be
// named timestamp, time or date; the price column must be named close.
func (dl *DataLoader) LoadFromCSV(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Map header indices
	indices := make(map[string]int)
	for i, col := range header {
		indices[strings.ToLower(strings.TrimSpace(col))] = i
	}
	timeIdx := -1
	for _, name := range []string{"timestamp", "time", "date"} {
		if idx, ok := indices[name]; ok {
			timeIdx = idx
			break
		}
	}
	closeIdx, ok := indices["close"]
	if timeIdx < 0 || !ok {
		return fmt.Errorf("CSV header must include a time column and a close column, got %v", header)
	}

	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV row: %w", err)
		}

		ts, err := parseTime(record[timeIdx])
		if err != nil {
			skipped++
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[closeIdx]), 64)
		if err != nil {
			skipped++
			continue
		}
		dl.candles = append(dl.candles, market.Candle{Time: ts, Close: price})
	}

	dl.finish()
	log.Info().
		Str("file", filePath).
		Int("total_points", len(dl.candles)).
		Int("skipped", skipped).
		Msg("CSV data loaded successfully")

	return nil
}

type jsonCandle struct {
	Time  string  `json:"time"`
	Close float64 `json:"close"`
}

// LoadFromJSON reads a stream of {"time": ..., "close": ...} objects.
func (dl *DataLoader) LoadFromJSON(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	skipped := 0
	for decoder.More() {
		var record jsonCandle
		if err := decoder.Decode(&record); err != nil {
			return fmt.Errorf("failed to decode JSON record: %w", err)
		}
		ts, err := parseTime(record.Time)
		if err != nil {
			skipped++
			continue
		}
		dl.candles = append(dl.candles, market.Candle{Time: ts, Close: record.Close})
	}

	dl.finish()
	log.Info().
		Str("file", filePath).
		Int("total_points", len(dl.candles)).
		Int("skipped", skipped).
		Msg("JSON data loaded successfully")

	return nil
}

// LoadFromSource pulls the most recent count candles from a live venue.
func (dl *DataLoader) LoadFromSource(ctx context.Context, source market.CandleSource, symbol string, count int) error {
	candles, err := source.Candles(ctx, symbol, count)
	if err != nil {
		return fmt.Errorf("failed to load candles from %s: %w", source.Venue(), err)
	}
	dl.candles = append(dl.candles, candles...)

	dl.finish()
	log.Info().
		Str("venue", source.Venue()).
		Str("symbol", symbol).
		Int("total_points", len(dl.candles)).
		Msg("Venue data loaded successfully")

	return nil
}

// Filter keeps candles within [start, end]. A zero bound is open.
func (dl *DataLoader) Filter(start, end time.Time) {
	kept := dl.candles[:0]
	for _, c := range dl.candles {
		if !start.IsZero() && c.Time.Before(start) {
			continue
		}
		if !end.IsZero() && c.Time.After(end) {
			continue
		}
		kept = append(kept, c)
	}
	dl.candles = kept
	dl.finish()
}

// finish sorts by time, drops duplicate timestamps (last one wins) and
// unusable closes, and refreshes the time bounds.
func (dl *DataLoader) finish() {
	sort.SliceStable(dl.candles, func(i, j int) bool {
		return dl.candles[i].Time.Before(dl.candles[j].Time)
	})

	out := dl.candles[:0]
	for _, c := range dl.candles {
		if math.IsNaN(c.Close) || math.IsInf(c.Close, 0) || c.Close <= 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Time.Equal(c.Time) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	dl.candles = out

	dl.StartTime, dl.EndTime = time.Time{}, time.Time{}
	if len(dl.candles) > 0 {
		dl.StartTime = dl.candles[0].Time
		dl.EndTime = dl.candles[len(dl.candles)-1].Time
	}
}

// Candles returns the loaded candles, oldest first.
func (dl *DataLoader) Candles() []market.Candle {
	return dl.candles
}

// GetDataCount returns the total number of data points
func (dl *DataLoader) GetDataCount() int {
	return len(dl.candles)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	// Unix seconds, as exported by most exchange APIs.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
