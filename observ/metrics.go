package observ

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rustyeddy/sessiontrader/risk"
)

// Metrics exposes the core's counters and the governor's figures:
//
//	sessiontrader_transitions_total{reason}
//	sessiontrader_entries_total{module}
//	sessiontrader_fills_total{side}
//	sessiontrader_trades_total{module,result}
//	sessiontrader_governor_state{state}
//	sessiontrader_equity, _hwm, _max_balance, _daily_realized
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	entries     *prometheus.CounterVec
	fills       *prometheus.CounterVec
	trades      *prometheus.CounterVec
	state       *prometheus.GaugeVec

	equity        prometheus.Gauge
	hwm           prometheus.Gauge
	maxBalance    prometheus.Gauge
	dailyRealized prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessiontrader_transitions_total",
				Help: "Transitions recorded, by reason code",
			},
			[]string{"reason"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessiontrader_entries_total",
				Help: "Entry orders submitted, by module",
			},
			[]string{"module"},
		),
		fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessiontrader_fills_total",
				Help: "Executions received, by side",
			},
			[]string{"side"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessiontrader_trades_total",
				Help: "Closed trades, by module and result",
			},
			[]string{"module", "result"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sessiontrader_governor_state",
				Help: "1 for the governor's current state",
			},
			[]string{"state"},
		),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessiontrader_equity",
			Help: "Account equity",
		}),
		hwm: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessiontrader_hwm",
			Help: "High-water-mark equity",
		}),
		maxBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessiontrader_max_balance",
			Help: "Highest balance seen",
		}),
		dailyRealized: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sessiontrader_daily_realized",
			Help: "Realized P&L since the last daily reset",
		}),
	}
	reg.MustRegister(m.transitions, m.entries, m.fills, m.trades, m.state,
		m.equity, m.hwm, m.maxBalance, m.dailyRealized)
	return m
}

// Transition counts tr and refreshes the risk gauges from its snapshot.
func (m *Metrics) Transition(tr Transition) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(tr.Reason).Inc()
	m.Risk(tr.Risk)
}

// Risk refreshes the governor gauges.
func (m *Metrics) Risk(s risk.Snapshot) {
	if m == nil {
		return
	}
	for _, st := range []risk.State{risk.Trading, risk.Locked, risk.NoTradeWindow} {
		v := 0.0
		if st == s.State {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
	m.equity.Set(s.Equity)
	m.hwm.Set(s.HWM)
	m.maxBalance.Set(s.MaxBalance)
	m.dailyRealized.Set(s.DailyRealized)
}

func (m *Metrics) Entry(module string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(module).Inc()
}

func (m *Metrics) Fill(side string) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(side).Inc()
}

func (m *Metrics) Trade(module string, pnl float64) {
	if m == nil {
		return
	}
	result := "win"
	if pnl < 0 {
		result = "loss"
	}
	m.trades.WithLabelValues(module, result).Inc()
}
