package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rustyeddy/portfolio/market"
)

// LoadSignalsCSV reads signal rows:
//
//	time,symbol,action,confidence[,risk_stance,size_recommendation,rationale]
//
// An optional header row is skipped. The result is sorted by time; rows
// with the same time keep file order.
func LoadSignalsCSV(path string) ([]market.Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSignals(f)
}

func ReadSignals(rd io.Reader) ([]market.Signal, error) {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1
	r.Comment = '#'

	var out []market.Signal
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || (line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time")) {
			continue
		}

		sig, err := parseSignalRow(row)
		if err != nil {
			return nil, fmt.Errorf("signals line %d: %w", line, err)
		}
		sig.ID = fmt.Sprintf("sig-%d", line)
		out = append(out, sig)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func parseSignalRow(row []string) (market.Signal, error) {
	if len(row) < 4 {
		return market.Signal{}, fmt.Errorf("want at least 4 columns, got %d", len(row))
	}
	field := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	t, err := parseTime(field(0))
	if err != nil {
		return market.Signal{}, err
	}
	sym := field(1)
	if sym == "" {
		return market.Signal{}, fmt.Errorf("empty symbol")
	}
	action, err := market.ParseAction(field(2))
	if err != nil {
		return market.Signal{}, err
	}
	conf, err := strconv.ParseFloat(field(3), 64)
	if err != nil {
		return market.Signal{}, fmt.Errorf("bad confidence %q: %w", field(3), err)
	}
	if conf < 0 || conf > 1 {
		return market.Signal{}, fmt.Errorf("confidence %v outside [0,1]", conf)
	}
	stance, err := market.ParseRiskStance(field(4))
	if err != nil {
		return market.Signal{}, err
	}

	sig := market.Signal{
		Time:       t,
		Symbol:     sym,
		Action:     action,
		Confidence: conf,
		RiskStance: stance,
		Rationale:  field(6),
	}
	if s := field(5); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Signal{}, fmt.Errorf("bad size_recommendation %q: %w", s, err)
		}
		sig.SizeRecommendation = v
	}
	return sig, nil
}
