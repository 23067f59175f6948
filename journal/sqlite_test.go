package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func trade(id string, closed time.Time, m strategies.Module, pnl float64) edge.TradeRecord {
	rec, _ := edge.NewRecord(id, closed, m.Home(), m, pnl, 500, 600, -100)
	return rec
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, name := range []string{"trades", "transitions", "risk_state", "unlock"} {
		assert.True(t, found[name], name)
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	closed := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(trade("T1", closed, strategies.ORBUS, 250)))
	require.NoError(t, j.Close())

	j, err := NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.GetTrade("T1")
	require.NoError(t, err)
	assert.Equal(t, strategies.ORBUS, got.Module)
	assert.Equal(t, session.USOpen, got.Session)
	assert.InDelta(t, 0.5, got.R, 1e-9)
	assert.InDelta(t, 500, got.Risk, 1e-9)
	assert.InDelta(t, 600, got.MFE, 1e-9)
	assert.InDelta(t, -100, got.MAE, 1e-9)
	assert.True(t, got.CloseTime.Equal(closed))
}

func TestSQLiteDuplicateTrade(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	rec := trade("T1", time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), strategies.MRVWAP, -500)
	require.NoError(t, j.RecordTrade(rec))
	assert.Error(t, j.RecordTrade(rec))
}

func TestSQLiteRecordTransition(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	ts := time.Date(2024, 2, 3, 14, 31, 0, 0, time.UTC)
	err := j.RecordTransition(observ.Transition{
		ID:      "X1",
		Time:    ts,
		Reason:  "EntryFill",
		Module:  strategies.ORBUS,
		Signal:  strategies.SignalID{Module: strategies.ORBUS, Direction: market.Long},
		Session: session.USOpen,
		Entry:   5000.25,
		Stop:    4995,
		Size:    2,
		Risk: risk.Snapshot{
			State:  risk.Trading,
			HWM:    50500,
			Equity: 50250,
		},
	})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		reason, signal, state string
		size                  int
		entry, hwm            float64
		at                    time.Time
	)
	err = db.QueryRow(`SELECT time, reason, signal, size, entry, state, hwm FROM transitions WHERE id = 'X1'`).
		Scan(&at, &reason, &signal, &size, &entry, &state, &hwm)
	require.NoError(t, err)

	assert.True(t, at.Equal(ts))
	assert.Equal(t, "EntryFill", reason)
	assert.Equal(t, "ORB_US_LONG", signal)
	assert.Equal(t, 2, size)
	assert.InDelta(t, 5000.25, entry, 1e-9)
	assert.Equal(t, "TRADING", state)
	assert.InDelta(t, 50500, hwm, 1e-9)
}

func TestSQLiteRiskState(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	_, ok, err := j.LoadRiskState()
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 3, 1, 22, 5, 0, 0, time.UTC)
	require.NoError(t, j.SaveRiskState(risk.Persisted{HWM: 51000, MaxBalance: 51200, UpdatedAt: at}))
	require.NoError(t, j.SaveRiskState(risk.Persisted{
		HWM: 52000, MaxBalance: 52000, Breached: true, BreachReason: risk.ReasonTDDHit, UpdatedAt: at,
	}))

	p, ok, err := j.LoadRiskState()
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 52000, p.HWM, 1e-9)
	assert.True(t, p.Breached)
	assert.Equal(t, risk.ReasonTDDHit, p.BreachReason)
	assert.True(t, p.UpdatedAt.Equal(at))
}

func TestSQLiteUnlock(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	ok, err := j.ConsumeUnlock()
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.RequestUnlock(now))
	require.NoError(t, j.RequestUnlock(now.Add(time.Minute)))

	ok, err = j.ConsumeUnlock()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = j.ConsumeUnlock()
	require.NoError(t, err)
	assert.False(t, ok, "a request is consumed once")
}

func TestSinkWritesTransitions(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	sink := Sink(j)
	require.NoError(t, sink.Record(observ.Transition{ID: "A", Time: time.Now(), Reason: "TradeClosed"}))
	assert.Error(t, sink.Record(observ.Transition{ID: "A", Time: time.Now(), Reason: "TradeClosed"}))
}
