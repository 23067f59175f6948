package strategies

import (
	"fmt"
	"time"

	"github.com/rustyeddy/sessiontrader/session"
)

// Registry owns one instance of every module.
type Registry struct {
	signals map[Module]Signal
}

// NewRegistry builds all eight modules from p. The classifier supplies the
// session windows the range-building modules anchor to.
func NewRegistry(p Params, c *session.Classifier) (*Registry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	london, ok := c.Range(session.LondonOpen)
	if !ok {
		return nil, fmt.Errorf("no %s range configured", session.LondonOpen)
	}
	open, ok := c.Range(session.USOpen)
	if !ok {
		return nil, fmt.Errorf("no %s range configured", session.USOpen)
	}
	bo, err := NewBOLondon(p.BOLondon, london)
	if err != nil {
		return nil, fmt.Errorf("bo_london: %w", err)
	}
	av, err := NewAVPre(p.AVPre)
	if err != nil {
		return nil, fmt.Errorf("av_pre: %w", err)
	}

	r := &Registry{signals: make(map[Module]Signal, len(Modules))}
	for _, s := range []Signal{
		NewMRAsia(p.MRAsia),
		bo,
		NewTPEU(p.TPEU),
		NewMRVWAP(p.MRVWAP),
		av,
		NewORBUS(p.ORBUS, open),
		NewMRMid(p.MRMid),
		NewTCPH(p.TCPH),
	} {
		r.signals[s.Module()] = s
	}
	return r, nil
}

// Get returns the module implementation.
func (r *Registry) Get(m Module) (Signal, bool) {
	s, ok := r.signals[m]
	return s, ok
}

// Observe feeds the bar to every module that builds state.
func (r *Registry) Observe(v *View) {
	for _, m := range Modules {
		if o, ok := r.signals[m].(Observer); ok {
			o.Observe(v)
		}
	}
}

// Entered tells the owning module its entry was submitted.
func (r *Registry) Entered(in Intent, at time.Time) {
	if l, ok := r.signals[in.Signal.Module].(EntryListener); ok {
		l.Entered(in, at)
	}
}
