package backtest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/portfolio/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func TestParseCandleRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		row       []string
		wantOk    bool
		wantErr   bool
		checkFunc func(t *testing.T, c market.Candle)
	}{
		{
			name:   "valid row",
			row:    []string{"2024-01-02T00:00:00Z", "AAPL", "100", "105", "99", "104", "12000"},
			wantOk: true,
			checkFunc: func(t *testing.T, c market.Candle) {
				assert.Equal(t, "AAPL", c.Symbol)
				assert.Equal(t, 100.0, c.Open)
				assert.Equal(t, 104.0, c.Close)
				assert.Equal(t, 12000.0, c.Volume)
			},
		},
		{
			name:   "date only without volume",
			row:    []string{"2024-01-02", "MSFT", "300", "310", "295", "305"},
			wantOk: true,
			checkFunc: func(t *testing.T, c market.Candle) {
				assert.True(t, c.Time.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
				assert.Zero(t, c.Volume)
			},
		},
		{
			name:   "row with whitespace",
			row:    []string{" 2024-01-02 ", " AAPL ", " 1 ", " 2 ", " 0.5 ", " 1.5 ", " "},
			wantOk: true,
			checkFunc: func(t *testing.T, c market.Candle) {
				assert.Equal(t, "AAPL", c.Symbol)
				assert.Equal(t, 1.5, c.Close)
			},
		},
		{name: "too few columns", row: []string{"2024-01-02", "AAPL", "1", "2", "0.5"}},
		{name: "empty row", row: []string{}},
		{name: "empty timestamp", row: []string{"", "AAPL", "1", "2", "0.5", "1.5"}},
		{name: "empty symbol", row: []string{"2024-01-02", "", "1", "2", "0.5", "1.5"}},
		{name: "invalid timestamp", row: []string{"yesterday", "AAPL", "1", "2", "0.5", "1.5"}, wantErr: true},
		{name: "invalid close", row: []string{"2024-01-02", "AAPL", "1", "2", "0.5", "x"}, wantErr: true},
		{name: "invalid volume", row: []string{"2024-01-02", "AAPL", "1", "2", "0.5", "1.5", "lots"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, ok, err := parseCandleRow(tt.row)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOk, ok)
			if tt.checkFunc != nil {
				tt.checkFunc(t, c)
			}
		})
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCSVCandleFeed(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "candles.csv", `time,symbol,open,high,low,close,volume
# comment lines are ignored
2024-01-01,AAPL,100,101,99,100,10
2024-01-01,MSFT,300,301,299,300,10
2024-01-02,AAPL,100,103,99,102,10
short,row
2024-01-03,AAPL,102,104,101,103,10
`)

	t.Run("all rows", func(t *testing.T) {
		t.Parallel()
		f, err := NewCSVCandleFeed(path, time.Time{}, time.Time{})
		require.NoError(t, err)
		candles, err := ReadAll(f)
		require.NoError(t, err)
		require.Len(t, candles, 4)
		assert.Equal(t, "MSFT", candles[1].Symbol)
		assert.Equal(t, 103.0, candles[3].Close)
	})

	t.Run("range filter", func(t *testing.T) {
		t.Parallel()
		f, err := NewCSVCandleFeed(path, day(2), day(3))
		require.NoError(t, err)
		candles, err := ReadAll(f)
		require.NoError(t, err)
		require.Len(t, candles, 1)
		assert.True(t, candles[0].Time.Equal(day(2)))
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := NewCSVCandleFeed(filepath.Join(t.TempDir(), "nope.csv"), time.Time{}, time.Time{})
		assert.Error(t, err)
	})
}

func TestCSVCandleFeedXZ(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte("time,symbol,open,high,low,close\n2024-01-01,AAPL,100,101,99,100\n2024-01-02,AAPL,100,103,99,102\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "candles.csv.xz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	f, err := NewCSVCandleFeed(path, time.Time{}, time.Time{})
	require.NoError(t, err)
	candles, err := ReadAll(f)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 102.0, candles[1].Close)

	plain := writeFile(t, "fake.csv.xz", "not compressed")
	_, err = NewCSVCandleFeed(plain, time.Time{}, time.Time{})
	assert.ErrorContains(t, err, "xz")
}

func TestCSVCandleFeedBadRow(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "bad.csv", "2024-01-01,AAPL,100,101,99,100\n2024-01-02,AAPL,abc,101,99,100\n")

	f, err := NewCSVCandleFeed(path, time.Time{}, time.Time{})
	require.NoError(t, err)
	_, err = ReadAll(f)
	assert.ErrorContains(t, err, "candles line 2")
}

func TestReadStepGroupsByTime(t *testing.T) {
	t.Parallel()
	feed := NewSliceFeed([]market.Candle{
		bar(1, "AAPL", 1, 1), bar(1, "MSFT", 1, 1),
		bar(2, "AAPL", 1, 1),
	})

	step, pending, err := readStep(feed, nil)
	require.NoError(t, err)
	assert.Len(t, step, 2)
	require.NotNil(t, pending)

	step, pending, err = readStep(feed, pending)
	require.NoError(t, err)
	require.Len(t, step, 1)
	assert.True(t, step[0].Time.Equal(day(2)))
	assert.Nil(t, pending)

	step, _, err = readStep(feed, pending)
	require.NoError(t, err)
	assert.Empty(t, step)
}

func TestReadSignals(t *testing.T) {
	t.Parallel()
	in := `time,symbol,action,confidence,risk_stance,size_recommendation,rationale
2024-01-03,MSFT,sell,0.7,,0.5,trim
2024-01-02,AAPL,BUY,0.9,aggressive,,breakout
2024-01-02,AAPL,hold,0.4
`
	sigs, err := ReadSignals(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, sigs, 3)

	assert.Equal(t, "AAPL", sigs[0].Symbol)
	assert.Equal(t, market.Buy, sigs[0].Action)
	assert.Equal(t, market.StanceAggressive, sigs[0].RiskStance)
	assert.Equal(t, "breakout", sigs[0].Rationale)
	assert.Equal(t, "sig-3", sigs[0].ID)

	assert.Equal(t, market.Hold, sigs[1].Action)
	assert.Equal(t, market.StanceUnspecified, sigs[1].RiskStance)

	assert.Equal(t, market.Sell, sigs[2].Action)
	assert.Equal(t, 0.5, sigs[2].SizeRecommendation)
	assert.True(t, sigs[2].Time.Equal(day(3)))
}

func TestReadSignalsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short row", "2024-01-02,AAPL,BUY\n", "at least 4 columns"},
		{"bad action", "2024-01-02,AAPL,SHORT,0.5\n", "unknown action"},
		{"bad confidence", "2024-01-02,AAPL,BUY,high\n", "bad confidence"},
		{"confidence range", "2024-01-02,AAPL,BUY,1.5\n", "outside [0,1]"},
		{"bad stance", "2024-01-02,AAPL,BUY,0.5,reckless\n", "unknown risk stance"},
		{"bad size", "2024-01-02,AAPL,BUY,0.5,,big\n", "bad size_recommendation"},
		{"empty symbol", "2024-01-02,,BUY,0.5\n", "empty symbol"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadSignals(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "signals line 1")
		})
	}
}

func TestLoadSignalsCSV(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "signals.csv", "2024-01-02,AAPL,BUY,0.9\n")

	sigs, err := LoadSignalsCSV(path)
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	_, err = LoadSignalsCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
