package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/router"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

var edgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "Rank modules per session from the journal",
	Long: `Rebuild the edge window from journaled trades and print, per session,
every module's trade count, expectancy, Sharpe and score, and the module the
router would pick.

Example:
  sessiontrader edge -c sessiontrader.yaml --at 2024-03-05T17:10:00-05:00`,
	Args: cobra.NoArgs,
	RunE: runEdge,
}

var edgeAt string

func init() {
	rootCmd.AddCommand(edgeCmd)
	edgeCmd.Flags().StringVar(&edgeAt, "at", "", "evaluate the window ending at this RFC3339 time (default: now)")
}

func runEdge(cmd *cobra.Command, args []string) error {
	j, cfg, r, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	now := time.Now()
	if edgeAt != "" {
		if now, err = time.Parse(time.RFC3339, edgeAt); err != nil {
			return fmt.Errorf("--at: %w", err)
		}
	}
	local := r.Clock.Local(now)

	tracker := edge.NewTracker(cfg.Router.LookbackDays)
	recs, err := j.ListTradesClosedBetween(local.AddDate(0, 0, -cfg.Router.LookbackDays), local)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	for _, rec := range recs {
		rec.CloseTime = r.Clock.Local(rec.CloseTime)
		tracker.Record(rec)
	}
	rt, err := router.New(true, r.Forced, tracker)
	if err != nil {
		return err
	}
	choices := tracker.Recompute(local, rt.Forced)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d trades in the %d-day window ending %s\n\n", len(recs), cfg.Router.LookbackDays, local.Format(time.RFC3339))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tMODULE\tTRADES\tEXPECTANCY\tSHARPE\tSCORE\tPICK")
	for _, s := range session.All {
		c := choices[s]
		for _, m := range strategies.Modules {
			st, ok := tracker.Stats(s, m)
			if !ok {
				continue
			}
			pick := ""
			if m == c.Module && c.Adaptive {
				pick = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.3f\t%.3f\t%.3f\t%s\n", s, m, st.Trades, st.Expectancy, st.Sharpe, st.Score, pick)
		}
		if !c.Adaptive {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\tforced\n", s, c.Module)
		}
	}
	return w.Flush()
}
