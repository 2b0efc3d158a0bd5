package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/ledger"
	"github.com/rustyeddy/portfolio/market"
	"golang.org/x/sync/errgroup"
)

// Transaction reasons set by the runner.
const (
	ReasonSignal = "signal"
	ReasonEnd    = "end_of_backtest"
)

var ErrInconsistent = errors.New("backtest: ledger inconsistent after failed rollback")

// Options controls how the runner behaves.
type Options struct {
	RunID    string // generated when empty
	Lookback int    // candles kept per symbol for risk data
	Parallel bool   // process one step's signals concurrently
	Workers  int

	// If true, close all open positions at the last step's close.
	CloseEnd bool
}

// OptionsFrom maps the backtest section of the configuration.
func OptionsFrom(c config.BacktestConfig) Options {
	return Options{
		Lookback: c.Lookback,
		Parallel: c.Parallel,
		Workers:  c.Workers,
		CloseEnd: c.CloseEnd,
	}
}

// Runner drives a ledger through a candle feed, applying signals as their
// time is reached.
type Runner struct {
	Ledger  *ledger.Ledger
	Feed    CandleFeed
	Signals []market.Signal // sorted by time
	Options Options
	Log     zerolog.Logger

	// Tally, when also registered as a ledger observer, counts closed
	// positions beyond the ledger's bounded history.
	Tally *Tally
}

type runState struct {
	history  map[string][]market.Candle
	last     map[string]float64
	next     int // index of the first unprocessed signal
	rejected atomic.Int64
	signals  int
	peak     float64
	maxDD    float64
	final    ledger.PortfolioState
	seen     bool
}

// Run executes the backtest loop. Each step is the set of candles sharing a
// timestamp:
//  1. refresh market data and marks
//  2. close positions whose exit rule fired
//  3. apply signals dated at or before the step
//  4. record the portfolio state
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Ledger == nil {
		return Result{}, fmt.Errorf("backtest: Ledger is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	defer r.Feed.Close()

	opts := r.Options
	if opts.Lookback < 2 {
		opts.Lookback = 2
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	log := r.Log.With().Str("component", "backtest").Str("run", opts.RunID).Logger()

	st := &runState{
		history: map[string][]market.Candle{},
		last:    map[string]float64{},
		peak:    r.Ledger.InitialCapital(),
	}
	res := Result{RunID: opts.RunID, InitialCapital: r.Ledger.InitialCapital()}

	var pending *market.Candle
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		step, next, err := readStep(r.Feed, pending)
		if err != nil {
			return res, err
		}
		pending = next
		if len(step) == 0 {
			break
		}

		ts := step[0].Time
		if res.Start.IsZero() {
			res.Start = ts
		}
		res.End = ts
		res.Steps++

		if err := r.step(ctx, st, opts, step, log); err != nil {
			return res, err
		}
	}

	if opts.CloseEnd && res.Steps > 0 {
		for _, sym := range r.Ledger.GetOpenPositions() {
			if !r.Ledger.ClosePosition(ctx, res.End, sym, st.last[sym], ReasonEnd) {
				st.rejected.Add(1)
			}
		}
		if !r.Ledger.Consistent() {
			return res, ErrInconsistent
		}
		st.observe(r.Ledger.RecordState(res.End))
	}

	r.finish(&res, st)
	log.Info().
		Int("steps", res.Steps).
		Int("trades", res.Trades).
		Float64("final", res.FinalValue).
		Float64("return", res.TotalReturn).
		Msg("backtest complete")
	return res, nil
}

// readStep collects the candles that share the first candle's timestamp.
// The first candle of the following step is handed back as pending.
func readStep(f CandleFeed, pending *market.Candle) ([]market.Candle, *market.Candle, error) {
	var step []market.Candle
	if pending != nil {
		step = append(step, *pending)
	}
	for {
		c, ok, err := f.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return step, nil, nil
		}
		if len(step) == 0 || c.Time.Equal(step[0].Time) {
			step = append(step, c)
			continue
		}
		if c.Time.Before(step[0].Time) {
			return nil, nil, fmt.Errorf("backtest: candles out of order at %s %s", c.Symbol, c.Time.Format(time.RFC3339))
		}
		return step, &c, nil
	}
}

func (r *Runner) step(ctx context.Context, st *runState, opts Options, step []market.Candle, log zerolog.Logger) error {
	l := r.Ledger
	ts := step[0].Time

	for _, c := range step {
		h := append(st.history[c.Symbol], c)
		if len(h) > opts.Lookback {
			h = h[len(h)-opts.Lookback:]
		}
		st.history[c.Symbol] = h
		st.last[c.Symbol] = c.Close

		l.UpdateMarketData(c.Symbol, h, market.Returns(market.Closes(h)))
		if _, held := l.Position(c.Symbol); held {
			l.UpdatePositionValue(c.Symbol, c.Close)
		}
	}

	for _, p := range l.CheckExitConditions(ts) {
		price, ok := st.last[p.Symbol]
		if !ok {
			price = p.MarkPrice
		}
		log.Info().Str("symbol", p.Symbol).Str("reason", p.ExitReason).Float64("price", price).Msg("exit rule fired")
		if !l.ClosePosition(ctx, ts, p.Symbol, price, p.ExitReason) {
			st.rejected.Add(1)
		}
	}
	if !l.Consistent() {
		return ErrInconsistent
	}

	due := st.due(r.Signals, ts)
	st.signals += len(due)
	if err := r.apply(ctx, st, opts, due, ts, log); err != nil {
		return err
	}
	if !l.Consistent() {
		return ErrInconsistent
	}

	st.observe(l.RecordState(ts))
	return nil
}

// due returns the signals dated at or before ts that have not been applied.
func (st *runState) due(signals []market.Signal, ts time.Time) []market.Signal {
	start := st.next
	for st.next < len(signals) && !signals[st.next].Time.After(ts) {
		st.next++
	}
	return signals[start:st.next]
}

func (r *Runner) apply(ctx context.Context, st *runState, opts Options, due []market.Signal, ts time.Time, log zerolog.Logger) error {
	if !opts.Parallel || len(due) < 2 {
		for _, sig := range due {
			r.applySignal(ctx, st, sig, ts, log)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for _, sig := range due {
		sig := sig
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.applySignal(gctx, st, sig, ts, log)
			return nil
		})
	}
	return g.Wait()
}

// applySignal turns one signal into at most one transaction. BUY sizes via
// the ledger's sizer, SELL closes the position or the recommended fraction
// of it, HOLD does nothing.
func (r *Runner) applySignal(ctx context.Context, st *runState, sig market.Signal, ts time.Time, log zerolog.Logger) {
	l := r.Ledger
	price, ok := st.last[sig.Symbol]
	if !ok || price <= 0 {
		log.Warn().Str("symbol", sig.Symbol).Str("signal", sig.ID).Msg("no price for signal")
		return
	}

	var qty float64
	switch sig.Action {
	case market.Buy:
		size := l.CalculatePositionSize(sig, sig.Confidence, price)
		if size <= 0 {
			log.Debug().Str("symbol", sig.Symbol).Float64("confidence", sig.Confidence).Msg("signal sized to zero")
			return
		}
		qty = size / price
	case market.Sell:
		p, held := l.Position(sig.Symbol)
		if !held {
			log.Debug().Str("symbol", sig.Symbol).Msg("sell signal without position")
			return
		}
		qty = p.Quantity
		if f := sig.SizeRecommendation; f > 0 && f < 1 {
			qty *= f
		}
	default:
		return
	}

	t := ledger.NewTransaction(ts, sig.Symbol, sig.Action, qty, price, l.Config().Costs)
	t.Reason = ReasonSignal
	s := sig
	t.Signal = &s
	if !l.ExecuteTransaction(ctx, t) {
		st.rejected.Add(1)
	}
}

func (st *runState) observe(s ledger.PortfolioState) {
	st.final, st.seen = s, true
	if s.TotalValue > st.peak {
		st.peak = s.TotalValue
	}
	if st.peak > 0 {
		if dd := (st.peak - s.TotalValue) / st.peak; dd > st.maxDD {
			st.maxDD = dd
		}
	}
}

func (r *Runner) finish(res *Result, st *runState) {
	res.FinalValue = res.InitialCapital
	if st.seen {
		res.FinalValue = st.final.TotalValue
		res.TotalReturn = st.final.TotalReturn
		res.RealizedPnL = st.final.RealizedPnL
		res.OpenPositions = st.final.PositionCount
	}
	res.MaxDrawdown = st.maxDD
	res.Rejected = int(st.rejected.Load())
	res.Signals = st.signals

	if r.Tally != nil {
		res.Trades, res.Wins, res.Losses = r.Tally.Counts()
		return
	}
	for _, p := range r.Ledger.ClosedPositions() {
		res.Trades++
		switch {
		case p.RealizedPnL > 0:
			res.Wins++
		case p.RealizedPnL < 0:
			res.Losses++
		}
	}
}
