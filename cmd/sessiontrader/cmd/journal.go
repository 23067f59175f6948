package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/sessiontrader/config"
	"github.com/rustyeddy/sessiontrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display trade records from the SQLite journal.

Subcommands:
  trade  - Get details of a specific trade by ID
  day    - List trades closed on a specific day

Examples:
  sessiontrader journal trade 01HRX3...
  sessiontrader journal day 2024-03-05`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific trading-zone day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalDayCmd)
}

// openJournal builds the configured journal, nil for "none".
func openJournal(c config.JournalConfig) (journal.Journal, error) {
	switch c.Type {
	case "sqlite":
		return journal.NewSQLite(c.DBPath)
	case "csv":
		return journal.NewCSV(c.TradesFile, c.TransitionsFile)
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown journal type %q", c.Type)
}

// openSQLite opens the configured SQLite journal for the query commands.
func openSQLite() (*journal.SQLite, *config.Config, *config.Resolved, error) {
	cfg, r, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Journal.Type != "sqlite" {
		return nil, nil, nil, fmt.Errorf("journal type is %q; this command needs sqlite", cfg.Journal.Type)
	}
	j, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open db: %w", err)
	}
	return j, cfg, r, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, _, _, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, _, r, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dayBounds(r.Clock.Location(), args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
