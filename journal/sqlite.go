package journal

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/risk"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// RecordTrade stores a closed trade. Recording the same ID twice is an error.
func (j *SQLite) RecordTrade(t edge.TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, close_time, session, module, r, mfe, mae, pnl, risk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CloseTime.UTC(), t.Session.String(), t.Module.String(),
		t.R, t.MFE, t.MAE, t.PnL, t.Risk,
	)
	return err
}

func (j *SQLite) RecordTransition(tr observ.Transition) error {
	r := tr.Risk
	_, err := j.db.Exec(`
		INSERT INTO transitions
		(id, time, reason, module, signal, session, entry, stop, target, size, pnl,
		 adaptive, score, detail, state, lock_reason, hwm, max_balance, equity,
		 daily_realized, trades_today, consec_losses)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.Time.UTC(), tr.Reason, tr.Module.String(), tr.Signal.String(), tr.Session.String(),
		tr.Entry, tr.Stop, tr.Target, tr.Size, tr.PnL,
		tr.Adaptive, tr.Score, tr.Detail, r.State.String(), r.LockReason,
		r.HWM, r.MaxBalance, r.Equity, r.DailyRealized, r.TradesToday, r.ConsecLosses,
	)
	return err
}

// LoadRiskState returns the saved governor state. ok is false when nothing
// has been saved yet.
func (j *SQLite) LoadRiskState() (p risk.Persisted, ok bool, err error) {
	row := j.db.QueryRow(`
		SELECT hwm, max_balance, breached, breach_reason, updated_at
		FROM risk_state WHERE id = 1`)
	err = row.Scan(&p.HWM, &p.MaxBalance, &p.Breached, &p.BreachReason, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return risk.Persisted{}, false, nil
	}
	if err != nil {
		return risk.Persisted{}, false, err
	}
	return p, true, nil
}

func (j *SQLite) SaveRiskState(p risk.Persisted) error {
	_, err := j.db.Exec(`
		INSERT INTO risk_state (id, hwm, max_balance, breached, breach_reason, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hwm = excluded.hwm,
			max_balance = excluded.max_balance,
			breached = excluded.breached,
			breach_reason = excluded.breach_reason,
			updated_at = excluded.updated_at`,
		p.HWM, p.MaxBalance, p.Breached, p.BreachReason, p.UpdatedAt.UTC(),
	)
	return err
}

// RequestUnlock leaves a manual unlock request for a running engine to
// pick up. Repeated requests collapse into one.
func (j *SQLite) RequestUnlock(at time.Time) error {
	_, err := j.db.Exec(`
		INSERT INTO unlock (id, requested_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET requested_at = excluded.requested_at`,
		at.UTC(),
	)
	return err
}

// ConsumeUnlock reports and clears a pending unlock request.
func (j *SQLite) ConsumeUnlock() (bool, error) {
	res, err := j.db.Exec(`DELETE FROM unlock WHERE id = 1`)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
