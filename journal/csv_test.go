package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/strategies"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	transPath := filepath.Join(dir, "transitions.csv")

	j, err := NewCSV(tradesPath, transPath)
	require.NoError(t, err)

	closed := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	require.NoError(t, j.RecordTrade(trade("T1", closed, strategies.ORBUS, -250)))
	require.NoError(t, j.RecordTransition(observ.Transition{
		ID:     "X1",
		Time:   closed,
		Reason: "Timeout",
		Module: strategies.ORBUS,
		Size:   3,
		Risk:   risk.Snapshot{State: risk.Locked, LockReason: risk.ReasonDailyCap},
	}))
	require.NoError(t, j.Close())

	trades := readCSV(t, tradesPath)
	require.Len(t, trades, 2)
	assert.Equal(t, tradeHeader, trades[0])
	assert.Equal(t, []string{
		"T1", "2024-01-02T15:04:05Z", "US_OPEN", "ORB_US",
		"-0.500000", "600.000000", "-100.000000", "-250.000000", "500.000000",
	}, trades[1])

	trans := readCSV(t, transPath)
	require.Len(t, trans, 2)
	assert.Equal(t, transitionHeader, trans[0])
	row := trans[1]
	assert.Equal(t, "X1", row[0])
	assert.Equal(t, "Timeout", row[2])
	assert.Equal(t, "3", row[9])
	assert.Equal(t, "LOCKED", row[14])
	assert.Equal(t, risk.ReasonDailyCap, row[15])
}

func TestCSVJournalBadPath(t *testing.T) {
	t.Parallel()

	_, err := NewCSV(filepath.Join(t.TempDir(), "missing", "t.csv"), "x.csv")
	assert.Error(t, err)
}
