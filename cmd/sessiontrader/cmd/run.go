package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/sessiontrader/engine"
	"github.com/rustyeddy/sessiontrader/id"
	"github.com/rustyeddy/sessiontrader/journal"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/replay"
	"github.com/rustyeddy/sessiontrader/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay recorded bars through the trading core",
	Long: `Replay a CSV of one-minute bars (time,open,high,low,close,volume[,bid,ask])
through the engine against the paper venue. Transitions are logged and,
depending on journal.type, written to SQLite or CSV.

Example:
  sessiontrader run -c sessiontrader.yaml --data es-1m.csv --report run.org`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runData        string
	runReport      string
	runCloseEnd    bool
	runMetricsAddr string
	runHeartbeat   time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runData, "data", "d", "", "bar CSV to replay (required)")
	runCmd.Flags().StringVar(&runReport, "report", "", "write an org-mode summary to this path")
	runCmd.Flags().BoolVar(&runCloseEnd, "close-end", true, "flatten open positions after the last bar")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve /metrics here, overrides metrics.addr")
	runCmd.Flags().DurationVar(&runHeartbeat, "heartbeat", 5*time.Second, "timer cadence between bars, 0 to drive the engine from bars only")
	_ = runCmd.MarkFlagRequired("data")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, r, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := observ.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observ.NewMetrics(reg)
	addr := cfg.Metrics.Addr
	if runMetricsAddr != "" {
		addr = runMetricsAddr
	}
	if addr != "" {
		srv := serveMetrics(addr, reg, log)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	sinks := []observ.Sink{observ.NewLogSink(log)}
	if j != nil {
		defer j.Close()
		sinks = append(sinks, journal.Sink(j))
	}
	throttle := observ.NewThrottle(r.Throttle, engine.ThrottledReasons...)
	rec := observ.NewRecorder(log, throttle, metrics, sinks...)

	venue := sim.NewEngine(sim.Config{
		Meta:       r.Instrument,
		Cash:       cfg.Account.Balance,
		Commission: cfg.Account.Commission,
	})
	e, err := engine.Assemble(cfg, r, venue, rec, log, j)
	if err != nil {
		return fmt.Errorf("assemble engine: %w", err)
	}

	feed, err := replay.OpenCSV(runData)
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	runner := &replay.Runner{
		Engine:  e,
		Venue:   venue,
		Feed:    feed,
		Clock:   r.Clock,
		Meta:    r.Instrument,
		Options: replay.Options{CloseEnd: runCloseEnd, Heartbeat: runHeartbeat},
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	started := time.Now()
	res, err := runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("replay: %w", err)
	}
	log.Info().
		Int("bars", res.Bars).
		Int("trades", res.Trades).
		Float64("net_pl", res.NetPL).
		Dur("elapsed", time.Since(started)).
		Msg("replay finished")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Bars:          %d (%d warmup)\n", res.Bars, res.Warmup)
	fmt.Fprintf(out, "Trades:        %d (%d wins, %d losses)\n", res.Trades, res.Wins, res.Losses)
	fmt.Fprintf(out, "Net P/L:       %.2f\n", res.NetPL)
	fmt.Fprintf(out, "Equity:        %.2f -> %.2f (max DD %.2f%%)\n", res.StartEquity, res.EndEquity, res.MaxDDPct)
	fmt.Fprintf(out, "Governor:      %s %s\n", res.State, res.LockReason)

	if runReport != "" {
		if err := writeReport(runReport, replay.Report{
			RunID:      id.New(),
			Created:    time.Now(),
			Dataset:    filepath.Base(runData),
			Instrument: r.Instrument.Name,
			Adaptive:   cfg.Router.Adaptive,
			Result:     res,
		}); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(out, "Report:        %s\n", runReport)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server")
		}
	}()
	return srv
}

func writeReport(path string, rep replay.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rep.WriteOrg(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
