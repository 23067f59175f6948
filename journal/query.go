package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

const tradeColumns = `trade_id, close_time, session, module, r, mfe, mae, pnl, risk`

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (edge.TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	rec, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return edge.TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
	}
	return rec, err
}

// ListTradesClosedBetween returns trades whose close_time is within
// [start, end), oldest first. Close times come back in UTC.
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]edge.TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []edge.TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (edge.TradeRecord, error) {
	var (
		rec       edge.TradeRecord
		sess, mod string
	)
	if err := s.Scan(&rec.ID, &rec.CloseTime, &sess, &mod,
		&rec.R, &rec.MFE, &rec.MAE, &rec.PnL, &rec.Risk); err != nil {
		return edge.TradeRecord{}, err
	}
	var err error
	if rec.Session, err = session.Parse(sess); err != nil {
		return edge.TradeRecord{}, fmt.Errorf("trade %s: %w", rec.ID, err)
	}
	if rec.Module, err = strategies.ParseModule(mod); err != nil {
		return edge.TradeRecord{}, fmt.Errorf("trade %s: %w", rec.ID, err)
	}
	return rec, nil
}
