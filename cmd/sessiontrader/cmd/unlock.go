package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Request a manual unlock at the next daily reset",
	Long: `Arm a one-shot unlock in the SQLite journal. A running or future engine
consumes it at its next daily reset; a breach lock is never cleared
mid-session.`,
	Args: cobra.NoArgs,
	RunE: runUnlock,
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(cmd *cobra.Command, args []string) error {
	j, _, _, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	if err := j.RequestUnlock(time.Now()); err != nil {
		return fmt.Errorf("request unlock: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Unlock requested; it takes effect at the next daily reset.")
	return nil
}
