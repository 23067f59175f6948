package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/observ"
)

var (
	tradeHeader      = []string{"trade_id", "close_time", "session", "module", "r", "mfe", "mae", "pnl", "risk"}
	transitionHeader = []string{"id", "time", "reason", "module", "signal", "session", "entry", "stop", "target", "size", "pnl", "adaptive", "score", "detail", "state", "lock_reason", "equity", "hwm"}
)

// CSV writes trades and transitions to two flat files. It has no query
// side and keeps no risk state.
type CSV struct {
	trades      *csv.Writer
	transitions *csv.Writer
	tf, xf      *os.File
}

func NewCSV(tradesPath, transitionsPath string) (*CSV, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	xf, err := os.Create(transitionsPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	j := &CSV{
		trades:      csv.NewWriter(tf),
		transitions: csv.NewWriter(xf),
		tf:          tf,
		xf:          xf,
	}
	if err := j.write(j.trades, tradeHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.write(j.transitions, transitionHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSV) RecordTrade(t edge.TradeRecord) error {
	return j.write(j.trades, []string{
		t.ID,
		t.CloseTime.UTC().Format(time.RFC3339),
		t.Session.String(),
		t.Module.String(),
		f(t.R),
		f(t.MFE),
		f(t.MAE),
		f(t.PnL),
		f(t.Risk),
	})
}

func (j *CSV) RecordTransition(tr observ.Transition) error {
	return j.write(j.transitions, []string{
		tr.ID,
		tr.Time.UTC().Format(time.RFC3339),
		tr.Reason,
		tr.Module.String(),
		tr.Signal.String(),
		tr.Session.String(),
		f(tr.Entry),
		f(tr.Stop),
		f(tr.Target),
		strconv.Itoa(tr.Size),
		f(tr.PnL),
		strconv.FormatBool(tr.Adaptive),
		f(tr.Score),
		tr.Detail,
		tr.Risk.State.String(),
		tr.Risk.LockReason,
		f(tr.Risk.Equity),
		f(tr.Risk.HWM),
	})
}

func (j *CSV) write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSV) Close() error {
	j.trades.Flush()
	j.transitions.Flush()
	for _, err := range []error{j.trades.Error(), j.transitions.Error(), j.tf.Close(), j.xf.Close()} {
		if err != nil {
			return err
		}
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
