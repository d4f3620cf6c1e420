package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_CountsOutcomes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	seedSQLite(t, dbPath,
		[]any{"P-100", "WH1", "ACME", "12.50", "2026-08-01", "GASKET"},
		[]any{"P-101", "WH2", "ACME", "7.00", "2026-08-02", "VALVE"},
		[]any{"P-102", "", "ACME", "3.10", "2026-08-03", "BOLT"},
	)

	out, _, err := runCommand(t, "sweep", "--store", "sqlite", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 2 routed, 1 not ready, 0 already routed, 0 failed (3 rows)")
}

func TestSweep_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	seedSQLite(t, dbPath,
		[]any{"P-100", "WH1", "ACME", "12.50", "2026-08-01", "GASKET"},
		[]any{"P-101", "WH2", "ACME", "7.00", "2026-08-02", "VALVE"},
	)

	_, _, err := runCommand(t, "sweep", "--store", "sqlite", "--db", dbPath)
	require.NoError(t, err)

	out, _, err := runCommand(t, "sweep", "--store", "sqlite", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 0 routed, 0 not ready, 2 already routed, 0 failed (2 rows)")
	assert.Len(t, ledgerEntries(t, dbPath), 2)
}

func TestSweep_EmptyDocument(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")

	out, _, err := runCommand(t, "sweep", "--store", "sqlite", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 0 routed, 0 not ready, 0 already routed, 0 failed (0 rows)")
}

func TestSweep_JSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	seedSQLite(t, dbPath,
		[]any{"P-100", "WH1", "ACME", "12.50", "2026-08-01", "GASKET"},
	)

	out, _, err := runCommand(t, "sweep", "--store", "sqlite", "--db", dbPath, "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["routed"])
	assert.Equal(t, float64(0), data["failed"])
}
