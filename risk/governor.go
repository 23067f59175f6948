package risk

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// State is the governor's externally visible mode.
type State uint8

const (
	Trading State = iota
	Locked
	NoTradeWindow
)

func (s State) String() string {
	switch s {
	case Trading:
		return "TRADING"
	case Locked:
		return "LOCKED"
	case NoTradeWindow:
		return "NO_TRADE_WINDOW"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Snapshot is the risk state attached to every transition record.
type Snapshot struct {
	State         State
	LockReason    string
	Holds         []string
	HWM           float64
	MaxBalance    float64
	Equity        float64
	Unrealized    float64
	DailyRealized float64
	TradesToday   int
	ConsecLosses  int
}

// Persisted is the subset of state that may outlive the process.
type Persisted struct {
	HWM          float64
	MaxBalance   float64
	Breached     bool
	BreachReason string
	UpdatedAt    time.Time
}

// Governor gates entries and detects breaches. A breach lock is sticky: it
// survives daily resets until a manual unlock is requested and consumed at
// a reset. Health holds are separate and released by the health monitor.
// Not safe for concurrent use.
type Governor struct {
	lim Limits

	hwm        float64
	maxBal     float64
	seeded     bool
	equity     float64
	unrealized float64

	dailyRealized float64
	tradesToday   int
	consecLosses  int

	locked          bool
	lockReason      string
	unlockRequested bool
	holds           map[string]bool
	inWindow        bool
}

func NewGovernor(lim Limits) *Governor {
	return &Governor{lim: lim, holds: make(map[string]bool)}
}

// Seed sets the starting peaks. Peaks never move down, so seeding below
// the current figures is ignored.
func (g *Governor) Seed(hwm, maxBalance float64) {
	if !g.seeded || hwm > g.hwm {
		g.hwm = hwm
	}
	if !g.seeded || maxBalance > g.maxBal {
		g.maxBal = maxBalance
	}
	g.seeded = true
}

// Restore applies persisted peaks and, when lockOnBreach is set, locks if
// the previous run ended in a breach.
func (g *Governor) Restore(p Persisted, lockOnBreach bool) bool {
	g.Seed(p.HWM, p.MaxBalance)
	if lockOnBreach && p.Breached {
		return g.Lock(ReasonPriorBreach)
	}
	return false
}

// Persisted returns the state worth saving.
func (g *Governor) Persisted(now time.Time) Persisted {
	return Persisted{
		HWM:          g.hwm,
		MaxBalance:   g.maxBal,
		Breached:     g.locked,
		BreachReason: g.lockReason,
		UpdatedAt:    now,
	}
}

// Observe records an account reading. Peaks are raised first so breaches
// are always measured against the latest high. It returns the breach reason
// when this reading newly locks the governor.
func (g *Governor) Observe(cash, unrealized float64) (string, bool) {
	equity := cash + unrealized
	g.equity = equity
	g.unrealized = unrealized
	if !g.seeded {
		g.hwm, g.maxBal, g.seeded = equity, equity, true
	}
	if equity > g.hwm {
		g.hwm = equity
	}
	if equity > g.maxBal {
		g.maxBal = equity
	}
	if g.locked {
		return "", false
	}

	switch {
	case g.lim.EnableTDD && equity <= g.hwm-g.lim.TrailingDrawdown:
		return ReasonTDDHit, g.Lock(ReasonTDDHit)
	case g.lim.EnableAbsHalt && equity <= g.maxBal-g.lim.AbsHaltDelta:
		return ReasonAbsHalt, g.Lock(ReasonAbsHalt)
	case g.dailyRealized <= -g.lim.DailyLossCap:
		return ReasonDailyCap, g.Lock(ReasonDailyCap)
	case g.consecLosses >= g.lim.MaxConsecLosses:
		return ReasonConsecLoss, g.Lock(ReasonConsecLoss)
	}
	return "", false
}

// CanEnter is the pre-entry gate. The cushion refuses entries before the
// hard drawdown triggers are reached.
func (g *Governor) CanEnter() Decision {
	d := Decision{Allowed: true}
	if g.inWindow {
		d.add(ReasonNoTradeBlock, "inside the scheduled no-trade window")
		return d
	}
	if g.locked {
		d.add(ReasonLocked, "locked: "+g.lockReason)
		return d
	}
	if len(g.holds) > 0 {
		d.add(ReasonHealthHold, fmt.Sprintf("health hold %v", slices.Sorted(maps.Keys(g.holds))))
		return d
	}
	if g.lim.EnableTDD {
		if trig := g.hwm - g.lim.TrailingDrawdown + g.lim.Cushion; g.equity < trig {
			d.add(ReasonTDDCushion, fmt.Sprintf("equity %.2f < %.2f", g.equity, trig))
			return d
		}
	}
	if g.lim.EnableAbsHalt {
		if trig := g.maxBal - g.lim.AbsHaltDelta + g.lim.Cushion; g.equity < trig {
			d.add(ReasonAbsHaltCushion, fmt.Sprintf("equity %.2f < %.2f", g.equity, trig))
		}
	}
	return d
}

// RecordExit books one closing fill's realized P&L.
func (g *Governor) RecordExit(pnl float64) {
	g.dailyRealized += pnl
	if pnl < 0 {
		g.consecLosses++
	} else {
		g.consecLosses = 0
	}
}

// RecordTradeClosed counts a position that returned to flat.
func (g *Governor) RecordTradeClosed() {
	g.tradesToday++
}

// Lock sets the sticky trade lock. It reports whether the governor was
// unlocked before the call.
func (g *Governor) Lock(reason string) bool {
	if g.locked {
		return false
	}
	g.locked = true
	g.lockReason = reason
	return true
}

// Hold blocks entries until Release is called with the same name.
func (g *Governor) Hold(name string) {
	g.holds[name] = true
}

func (g *Governor) Release(name string) {
	delete(g.holds, name)
}

// EnterWindow marks the start of the no-trade window. It reports true only
// on the transition, so the caller flattens once.
func (g *Governor) EnterWindow() bool {
	if g.inWindow {
		return false
	}
	g.inWindow = true
	return true
}

// LeaveWindow ends the no-trade window. Entries resume subject to the lock.
func (g *Governor) LeaveWindow() bool {
	if !g.inWindow {
		return false
	}
	g.inWindow = false
	return true
}

// InWindow reports whether the no-trade window is active.
func (g *Governor) InWindow() bool {
	return g.inWindow
}

// RequestUnlock arms a one-shot unlock for the next daily reset.
func (g *Governor) RequestUnlock() {
	g.unlockRequested = true
}

// DailyReset zeroes the daily counters and consumes a pending unlock
// request. It reports whether the lock was cleared.
func (g *Governor) DailyReset() bool {
	g.dailyRealized = 0
	g.tradesToday = 0
	g.consecLosses = 0

	requested := g.unlockRequested
	g.unlockRequested = false
	if requested && g.locked {
		g.locked = false
		g.lockReason = ""
		return true
	}
	return false
}

// State returns LOCKED for a lock or a health hold, NO_TRADE_WINDOW inside
// the scheduled window, TRADING otherwise.
func (g *Governor) State() State {
	switch {
	case g.locked || len(g.holds) > 0:
		return Locked
	case g.inWindow:
		return NoTradeWindow
	default:
		return Trading
	}
}

// IsLocked reports the sticky lock only.
func (g *Governor) IsLocked() bool {
	return g.locked
}

func (g *Governor) Snapshot() Snapshot {
	return Snapshot{
		State:         g.State(),
		LockReason:    g.lockReason,
		Holds:         slices.Sorted(maps.Keys(g.holds)),
		HWM:           g.hwm,
		MaxBalance:    g.maxBal,
		Equity:        g.equity,
		Unrealized:    g.unrealized,
		DailyRealized: g.dailyRealized,
		TradesToday:   g.tradesToday,
		ConsecLosses:  g.consecLosses,
	}
}
