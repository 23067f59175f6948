package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/sessiontrader/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeBars(t *testing.T, path string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("time,open,high,low,close,volume\n")
	t0 := time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)
	for i := range n {
		px := 5000 + float64(i%7) - 3
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,100\n",
			t0.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), px, px+4, px-4, px)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sessiontrader version "+version)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "st.yaml")

	out, err := execute(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = execute(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Instrument: ES")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("schedule:\n  auto_flat: \"25:00\"\n"), 0o644))
	_, err = execute(t, "config", "validate", "-f", bad)
	assert.ErrorContains(t, err, "validation failed")
}

func TestRunThenQueryJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Journal.DBPath = filepath.Join(dir, "st.db")
	cfg.Log.Level = "warn"
	cfgPath := filepath.Join(dir, "st.yaml")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	data := filepath.Join(dir, "bars.csv")
	writeBars(t, data, 150)
	report := filepath.Join(dir, "run.org")

	out, err := execute(t, "run", "-c", cfgPath, "--data", data, "--report", report)
	require.NoError(t, err)
	assert.Contains(t, out, "Bars:          150")
	assert.Contains(t, out, "Governor:")

	org, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(org), "* REPLAY: ES forced routing")
	assert.Contains(t, string(org), ":DATASET:     bars.csv")

	_, err = execute(t, "journal", "day", "-c", cfgPath, "2024-03-05")
	require.NoError(t, err)

	out, err = execute(t, "edge", "-c", cfgPath, "--at", "2024-03-05T17:10:00-05:00")
	require.NoError(t, err)
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "forced")

	out, err = execute(t, "unlock", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Unlock requested")

	_, err = execute(t, "journal", "trade", "-c", cfgPath, "no-such-trade")
	assert.ErrorContains(t, err, "not found")
}

func TestQueryCommandsNeedSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Journal.Type = "none"
	cfgPath := filepath.Join(dir, "st.json")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	_, err := execute(t, "unlock", "-c", cfgPath)
	assert.ErrorContains(t, err, "needs sqlite")
}
