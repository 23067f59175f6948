package strategies

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/session"
)

// Module identifies one signal generator.
type Module uint8

const (
	NoModule Module = iota
	MRAsia
	BOLondon
	TPEU
	MRVWAP
	AVPre
	ORBUS
	MRMid
	TCPH
)

// Modules lists every module in the order the router iterates them.
var Modules = []Module{MRAsia, BOLondon, TPEU, MRVWAP, AVPre, ORBUS, MRMid, TCPH}

var ErrUnknownModule = errors.New("unknown module")

func (m Module) String() string {
	switch m {
	case NoModule:
		return "NONE"
	case MRAsia:
		return "MR_ASIA"
	case BOLondon:
		return "BO_LONDON"
	case TPEU:
		return "TP_EU"
	case MRVWAP:
		return "MR_VWAP"
	case AVPre:
		return "AV_PRE"
	case ORBUS:
		return "ORB_US"
	case MRMid:
		return "MR_MID"
	case TCPH:
		return "TC_PH"
	default:
		return fmt.Sprintf("Module(%d)", uint8(m))
	}
}

// ParseModule converts a name such as "ORB_US" into a Module.
func ParseModule(name string) (Module, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, m := range Modules {
		if m.String() == n {
			return m, nil
		}
	}
	return NoModule, fmt.Errorf("%w: %q", ErrUnknownModule, name)
}

// MarshalText implements encoding.TextMarshaler.
func (m Module) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Module) UnmarshalText(b []byte) error {
	v, err := ParseModule(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Home is the session the module was designed for and is forced into by
// default.
func (m Module) Home() session.Session {
	switch m {
	case MRAsia:
		return session.Asia
	case BOLondon:
		return session.LondonOpen
	case TPEU, MRVWAP:
		return session.EUMid
	case AVPre:
		return session.USPre
	case ORBUS:
		return session.USOpen
	case MRMid:
		return session.USMid
	case TCPH:
		return session.USPower
	default:
		return session.None
	}
}

// FlattensAtSessionEnd reports whether a position opened by the module is
// closed once the session it was opened in is over. MR_ASIA holds through
// the overnight gap and relies on its timeout instead.
func (m Module) FlattensAtSessionEnd() bool {
	switch m {
	case MRAsia, NoModule:
		return false
	default:
		return true
	}
}

// SignalID names one directional signal of a module, e.g. ORB_US_LONG.
// It keys all per-position state.
type SignalID struct {
	Module    Module
	Direction market.Direction
}

func (s SignalID) String() string {
	if s.Module == NoModule {
		return ""
	}
	return s.Module.String() + "_" + s.Direction.String()
}

// IsZero reports whether s names no signal.
func (s SignalID) IsZero() bool {
	return s.Module == NoModule
}
