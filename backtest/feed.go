package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/portfolio/market"
	"github.com/ulikunitz/xz"
)

// CandleFeed yields candles in time order. Implementations return
// (ok=false, err=nil) at EOF.
type CandleFeed interface {
	Next() (c market.Candle, ok bool, err error)
	Close() error
}

// CSVCandleFeed reads candle CSV rows:
//
//	time,symbol,open,high,low,close[,volume]
//
// where time is RFC3339, RFC3339Nano or a bare date (2006-01-02).
//
// Files ending in .xz are decompressed on the fly.
// It optionally filters candles to [From, To) if provided.
// Header row ("time,...") is allowed.
// Empty/short rows are skipped. Rows must be sorted by time.
type CSVCandleFeed struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	line     int
	sawFirst bool
}

func NewCSVCandleFeed(path string, from, to time.Time) (*CSVCandleFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var in io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		zr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz %s: %w", path, err)
		}
		in = zr
	}

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.Comment = '#'

	return &CSVCandleFeed{f: f, r: r, from: from, to: to}, nil
}

func (f *CSVCandleFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *CSVCandleFeed) Next() (market.Candle, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		f.line++
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		c, ok, err := parseCandleRow(row)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("candles line %d: %w", f.line, err)
		}
		if !ok {
			continue
		}
		if !inRange(c.Time, f.from, f.to) {
			continue
		}
		return c, true, nil
	}
}

func parseCandleRow(row []string) (market.Candle, bool, error) {
	// Need at least: time,symbol,open,high,low,close
	if len(row) < 6 {
		return market.Candle{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Candle{}, false, nil
	}
	t, err := parseTime(ts)
	if err != nil {
		return market.Candle{}, false, err
	}

	sym := strings.TrimSpace(row[1])
	if sym == "" {
		return market.Candle{}, false, nil
	}

	var ohlc [4]float64
	for i, name := range []string{"open", "high", "low", "close"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[2+i]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad %s %q: %w", name, row[2+i], err)
		}
		ohlc[i] = v
	}

	c := market.Candle{
		Time:   t,
		Symbol: sym,
		Open:   ohlc[0],
		High:   ohlc[1],
		Low:    ohlc[2],
		Close:  ohlc[3],
	}
	if len(row) > 6 && strings.TrimSpace(row[6]) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[6]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad volume %q: %w", row[6], err)
		}
		c.Volume = v
	}
	return c, true, nil
}

// parseTime accepts RFC3339, RFC3339Nano or a bare UTC date.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// SliceFeed replays candles held in memory.
type SliceFeed struct {
	candles []market.Candle
	i       int
}

func NewSliceFeed(candles []market.Candle) *SliceFeed {
	return &SliceFeed{candles: candles}
}

func (s *SliceFeed) Next() (market.Candle, bool, error) {
	if s.i >= len(s.candles) {
		return market.Candle{}, false, nil
	}
	c := s.candles[s.i]
	s.i++
	return c, true, nil
}

func (s *SliceFeed) Close() error { return nil }

// ReadAll drains a feed.
func ReadAll(f CandleFeed) ([]market.Candle, error) {
	defer f.Close()
	var out []market.Candle
	for {
		c, ok, err := f.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, c)
	}
}
