package replay

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/engine"
	"github.com/rustyeddy/sessiontrader/health"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/router"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/sim"
	"github.com/rustyeddy/sessiontrader/strategies"
)

type sliceFeed struct {
	rows   []Row
	i      int
	closed bool
}

func (f *sliceFeed) Next() (Row, bool, error) {
	if f.i >= len(f.rows) {
		return Row{}, false, nil
	}
	r := f.rows[f.i]
	f.i++
	return r, true, nil
}

func (f *sliceFeed) Close() error {
	f.closed = true
	return nil
}

// onceLong enters long the first time it is asked, at market unless kind
// and price say otherwise.
type onceLong struct {
	stop    float64
	entries int
	kind    strategies.OrderKind
	price   float64
}

func (o *onceLong) Module() strategies.Module { return strategies.MRMid }

func (o *onceLong) Evaluate(v *strategies.View) strategies.Decision {
	if v.Position.Open() || o.entries > 0 {
		return strategies.Decision{}
	}
	price := v.Bar.Close
	if o.price > 0 {
		price = o.price
	}
	return strategies.Decision{Entry: &strategies.Intent{
		Signal:       strategies.SignalID{Module: strategies.MRMid, Direction: market.Long},
		Kind:         o.kind,
		Price:        price,
		StopDistance: o.stop,
		Reason:       "test",
	}}
}

// reasonCount counts transitions by reason.
type reasonCount map[string]int

func (c reasonCount) Record(tr observ.Transition) error {
	c[tr.Reason]++
	return nil
}

type oneModule struct{ sig *onceLong }

func (m oneModule) Get(mod strategies.Module) (strategies.Signal, bool) {
	if mod != strategies.MRMid {
		return nil, false
	}
	return m.sig, true
}

func (m oneModule) Observe(v *strategies.View) {}

func (m oneModule) Entered(in strategies.Intent, at time.Time) { m.sig.entries++ }

// flatBars are one-minute bars around 5000 with an 8 point range, starting
// at 11:00 New York.
func flatBars(t *testing.T, n int) []Row {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	t0 := time.Date(2024, 3, 5, 11, 0, 0, 0, ny).UTC()
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{Bar: market.Bar{
			Time: t0.Add(time.Duration(i) * time.Minute),
			Open: 5000, High: 5004, Low: 4996, Close: 5000, Volume: 100,
		}}
	}
	return rows
}

func newRunner(t *testing.T, rows []Row, sizing risk.Sizing, stop float64) (*Runner, *onceLong) {
	t.Helper()

	clock, err := session.NewClock("America/New_York")
	require.NoError(t, err)
	cls, err := session.NewClassifier(session.DefaultRanges(session.At(16, 55)))
	require.NoError(t, err)
	meta, err := market.Lookup("ES")
	require.NoError(t, err)

	venue := sim.NewEngine(sim.Config{Meta: meta, Cash: 50000})
	gov := risk.NewGovernor(risk.DefaultLimits())
	tracker := edge.NewTracker(60)
	rt, err := router.New(false, router.DefaultForced(), tracker)
	require.NoError(t, err)
	sig := &onceLong{stop: stop}

	e, err := engine.New(engine.Config{
		Clock:         clock,
		Classifier:    cls,
		Instrument:    meta,
		Sizing:        sizing,
		AutoFlat:      session.At(16, 55),
		Reopen:        session.At(18, 0),
		DailyReset:    session.At(17, 5),
		EdgeRecompute: session.At(17, 10),
		LookbackDays:  60,
	}, engine.Deps{
		Broker:   venue,
		Governor: gov,
		Orders:   orders.NewManager(orders.DefaultConfig(), meta, venue, gov),
		Router:   rt,
		Tracker:  tracker,
		Modules:  oneModule{sig: sig},
		Health:   health.NewMonitor(health.DefaultConfig()),
		Recorder: observ.NewRecorder(zerolog.Nop(), nil, nil),
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)

	return &Runner{
		Engine: e,
		Venue:  venue,
		Feed:   &sliceFeed{rows: rows},
		Clock:  clock,
		Meta:   meta,
	}, sig
}

func TestRunnerValidation(t *testing.T) {
	t.Parallel()

	_, err := (&Runner{}).Run(context.Background())
	assert.ErrorContains(t, err, "Engine is required")

	r, _ := newRunner(t, nil, risk.DefaultSizing(), 3)
	r.Feed = nil
	_, err = r.Run(context.Background())
	assert.ErrorContains(t, err, "Feed is required")
}

func TestRunnerStopsOutOneTrade(t *testing.T) {
	t.Parallel()

	rows := flatBars(t, 120)
	r, sig := newRunner(t, rows, risk.DefaultSizing(), 3)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, r.Feed.(*sliceFeed).closed)
	assert.Equal(t, 120, res.Bars)
	assert.Positive(t, res.Warmup)
	assert.Less(t, res.Warmup, 120)
	assert.Equal(t, 1, sig.entries)

	// Long 1 at 5000.25, stopped at 4997.25 on the next bar's low.
	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, 1, res.Losses)
	assert.InDelta(t, -150, res.NetPL, 1e-9)
	assert.InDelta(t, -150, res.ByModule[strategies.MRMid], 1e-9)
	assert.InDelta(t, 50000, res.StartEquity, 1e-9)
	assert.InDelta(t, 49850, res.EndEquity, 1e-9)
	assert.Greater(t, res.MaxDDPct, 0.0)
	assert.Equal(t, risk.Trading, res.State)
	assert.Equal(t, rows[0].Bar.Time, res.Start)
	assert.Equal(t, rows[119].Bar.Time, res.End)

	qty, _ := r.Venue.Position(strategies.SignalID{Module: strategies.MRMid, Direction: market.Long})
	assert.Zero(t, qty)
}

func TestRunnerClosesAtEnd(t *testing.T) {
	t.Parallel()

	rows := flatBars(t, 100)
	r, _ := newRunner(t, rows, risk.Sizing{Mode: risk.Fixed, FixedQty: 1}, 10)
	r.Options = Options{CloseEnd: true}

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	// Bought at the ask, sold at the bid: one tick against.
	assert.Equal(t, 1, res.Trades)
	assert.InDelta(t, -12.5, res.NetPL, 1e-9)
	qty, _ := r.Venue.Position(strategies.SignalID{Module: strategies.MRMid, Direction: market.Long})
	assert.Zero(t, qty)
}

func TestRunnerHeartbeatsEscalateRestingEntry(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name      string
		heartbeat time.Duration
		mit       int
	}{
		{"bars only", 0, 0},
		{"heartbeats", 5 * time.Second, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, sig := newRunner(t, flatBars(t, 120), risk.Sizing{Mode: risk.Fixed, FixedQty: 1}, 3)
			// A buy stop above every bar's high never triggers by itself.
			sig.kind = strategies.StopMarket
			sig.price = 5010
			seen := reasonCount{}
			r.Engine.Recorder.AddSink(seen)
			r.Options = Options{Heartbeat: tc.heartbeat}

			res, err := r.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 1, sig.entries)
			assert.Equal(t, tc.mit, seen[orders.ReasonQueueMIT])
			assert.Equal(t, 1, seen[orders.ReasonQueueCancel])
			assert.Zero(t, seen[health.ReasonDataStale])
			assert.Zero(t, res.Trades)
		})
	}
}

func TestRunnerHeartbeatsSeeFeedGap(t *testing.T) {
	t.Parallel()

	all := flatBars(t, 150)
	rows := append(all[:120:120], all[123:]...)
	r, _ := newRunner(t, rows, risk.DefaultSizing(), 3)
	seen := reasonCount{}
	r.Engine.Recorder.AddSink(seen)
	r.Options = Options{Heartbeat: 5 * time.Second}

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 147, res.Bars)
	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, 1, seen[health.ReasonDataStale])
	assert.Equal(t, 1, seen[health.ReasonDataResumed])
	assert.Equal(t, risk.Trading, res.State)
}

func TestRunnerHonorsContext(t *testing.T) {
	t.Parallel()

	r, _ := newRunner(t, flatBars(t, 10), risk.DefaultSizing(), 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVFeed(t *testing.T) {
	t.Parallel()

	in := `time,open,high,low,close,volume,bid,ask
2024-03-05T16:00:00Z,5000,5004,4996,5001,120,5001,5001.25
2024-03-05 16:01:00,5001,5003,4999,5002,80,,
1709654520,5002,5006,5000,5005,90
`
	// The empty bid/ask columns make the second row fail.
	f := NewCSVFeed(strings.NewReader(in))
	row, ok, err := f.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC), row.Bar.Time)
	assert.Equal(t, market.Quote{Bid: 5001, Ask: 5001.25}, row.Quote)
	assert.Equal(t, 5001.0, row.Bar.Close)

	_, _, err = f.Next()
	assert.ErrorContains(t, err, "line 3")
}

func TestCSVFeedFormats(t *testing.T) {
	t.Parallel()

	in := "2024-03-05 16:01:00,5001,5003,4999,5002,80\n1709654520,5002,5006,5000,5005,90\n"
	f := NewCSVFeed(strings.NewReader(in))

	row, ok, err := f.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 16, 1, 0, 0, time.UTC), row.Bar.Time)
	assert.Equal(t, market.Quote{}, row.Quote)

	row, ok, err = f.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 16, 2, 0, 0, time.UTC), row.Bar.Time)

	_, ok, err = f.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCSVFeedRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, in, want string
	}{
		{"columns", "2024-03-05T16:00:00Z,1,2,3\n", "columns"},
		{"time", "yesterday,5000,5004,4996,5001,1\n", "bad time"},
		{"number", "2024-03-05T16:00:00Z,5000,x,4996,5001,1\n", "column 3"},
		{"ohlc", "2024-03-05T16:00:00Z,5000,4990,4996,5001,1\n", "inconsistent"},
		{"crossed", "2024-03-05T16:00:00Z,5000,5004,4996,5001,1,5002,5001\n", "crossed"},
		{"order", "2024-03-05T16:01:00Z,5000,5004,4996,5001,1\n2024-03-05T16:00:00Z,5000,5004,4996,5001,1\n", "not after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewCSVFeed(strings.NewReader(tt.in))
			var err error
			for err == nil {
				var ok bool
				if _, ok, err = f.Next(); !ok && err == nil {
					t.Fatal("feed ended without an error")
				}
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestOpenCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte("2024-03-05T16:00:00Z,5000,5004,4996,5001,1\n"), 0o644))
	f, err := OpenCSV(path)
	require.NoError(t, err)
	_, ok, err := f.Next()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, f.Close())

	_, err = OpenCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestReportOrg(t *testing.T) {
	t.Parallel()

	rep := Report{
		RunID:      "r1",
		Created:    time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC),
		Dataset:    "es-1m.csv",
		Instrument: "ES",
		Result: Result{
			Start: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC),
			Trades: 3, Wins: 2, Losses: 1, NetPL: 450, GrossWin: 600, GrossLoss: -150,
			ByModule:    map[strategies.Module]float64{strategies.TCPH: 300, strategies.ORBUS: 150},
			StartEquity: 50000, EndEquity: 50450,
			State: risk.Locked, LockReason: risk.ReasonConsecLoss,
		},
	}
	var buf bytes.Buffer
	require.NoError(t, rep.WriteOrg(&buf))
	out := buf.String()

	assert.Contains(t, out, "* REPLAY: ES forced routing")
	assert.Contains(t, out, ":RUN_ID:      r1")
	assert.Contains(t, out, ":STATE:       LOCKED (ConsecLoss)")
	assert.Contains(t, out, "Profit Factor:    *4.00*")
	assert.Contains(t, out, "Win Rate:         *66.67%*")
	assert.Less(t, strings.Index(out, "| ORB_US |"), strings.Index(out, "| TC_PH |"))
}
