package replay

import (
	"io"
	"maps"
	"slices"
	"text/template"
	"time"

	"github.com/rustyeddy/sessiontrader/strategies"
)

// Report is the org-mode summary of one replay run.
type Report struct {
	RunID      string
	Created    time.Time
	Dataset    string
	Instrument string
	Adaptive   bool
	Result     Result
}

type moduleRow struct {
	Module strategies.Module
	PnL    float64
}

// Modules returns the per-module P&L in module order.
func (r Report) Modules() []moduleRow {
	var out []moduleRow
	for _, m := range slices.Sorted(maps.Keys(r.Result.ByModule)) {
		out = append(out, moduleRow{Module: m, PnL: r.Result.ByModule[m]})
	}
	return out
}

var reportFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var reportTmpl = template.Must(template.New("replay").Funcs(reportFuncs).Parse(reportOrg))

// WriteOrg renders the report.
func (r Report) WriteOrg(w io.Writer) error {
	return reportTmpl.Execute(w, r)
}

const reportOrg = `* REPLAY: {{.Instrument}} {{if .Adaptive}}adaptive{{else}}forced{{end}} routing
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:INSTRUMENT:  {{.Instrument}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Result.Start.Format "2006-01-02"}}
:END_DATE:    {{.Result.End.Format "2006-01-02"}}
:BARS:        {{.Result.Bars}}
:START_EQ:    {{printf "%.2f" .Result.StartEquity}}
:END_EQ:      {{printf "%.2f" .Result.EndEquity}}
:NET_PL:      {{printf "%.2f" .Result.NetPL}}
:RETURN_PCT:  {{printf "%.2f" .Result.ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .Result.MaxDDPct}}
:TRADES:      {{.Result.Trades}}
:WINS:        {{.Result.Wins}}
:LOSSES:      {{.Result.Losses}}
:STATE:       {{.Result.State}}{{if .Result.LockReason}} ({{.Result.LockReason}}){{end}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Net P/L:          *{{printf "%.2f" .Result.NetPL}}*
- Return:           *{{printf "%.2f" .Result.ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .Result.MaxDDPct}}%*
- Win Rate:         *{{printf "%.2f" (mul100 .Result.WinRate)}}%*
- Profit Factor:    *{{if ne .Result.ProfitFactor 0.0}}{{printf "%.2f" .Result.ProfitFactor}}{{else}}(no losses){{end}}*

** Modules
| Module | P/L |
|--------+-----|
{{- range .Modules}}
| {{.Module}} | {{printf "%.2f" .PnL}} |
{{- end}}

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Result.Wins}} |
| Losses  | {{.Result.Losses}} |
| Total   | {{.Result.Trades}} |
`
