// Package router resolves the module that trades a session, either the
// statically forced one or the edge tracker's daily choice.
package router

import (
	"fmt"

	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// DefaultForced maps every session to its designed module.
func DefaultForced() map[session.Session]strategies.Module {
	return map[session.Session]strategies.Module{
		session.Asia:       strategies.MRAsia,
		session.LondonOpen: strategies.BOLondon,
		session.EUMid:      strategies.TPEU,
		session.USPre:      strategies.AVPre,
		session.USOpen:     strategies.ORBUS,
		session.USMid:      strategies.MRMid,
		session.USPower:    strategies.TCPH,
	}
}

// Router is not safe for concurrent use.
type Router struct {
	adaptive bool
	forced   map[session.Session]strategies.Module
	tracker  *edge.Tracker
}

// New validates that every session has a forced module.
func New(adaptive bool, forced map[session.Session]strategies.Module, tr *edge.Tracker) (*Router, error) {
	f := make(map[session.Session]strategies.Module, len(session.All))
	for _, s := range session.All {
		m, ok := forced[s]
		if !ok || m == strategies.NoModule {
			return nil, fmt.Errorf("no forced module for session %s", s)
		}
		f[s] = m
	}
	return &Router{adaptive: adaptive, forced: f, tracker: tr}, nil
}

// Forced returns the statically configured module, NoModule for NONE.
func (r *Router) Forced(s session.Session) strategies.Module {
	return r.forced[s]
}

// Adaptive reports whether daily selection is on.
func (r *Router) Adaptive() bool {
	return r.adaptive
}

// Resolve returns the module that trades s. With adaptive selection on it
// is the last recompute's choice, falling back to the forced module until
// the first recompute has run.
func (r *Router) Resolve(s session.Session) edge.Choice {
	if s == session.None {
		return edge.Choice{}
	}
	if r.adaptive && r.tracker != nil {
		if c, ok := r.tracker.Chosen(s); ok {
			return c
		}
	}
	return edge.Choice{Module: r.Forced(s)}
}
