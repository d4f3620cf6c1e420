package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = `PART,LOC,CUSTM,PRICE,DATE,DESCR
P-200,WH1,ACME,5.00,2026-08-10,WASHER
P-201,WH1,ACME,6.25,2026-08-11,SPRING
`

func writeCSVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "incoming.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_StagesAndRoutes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	csvPath := writeCSVFile(t, testCSV)

	out, _, err := runCommand(t, "load", "--store", "sqlite", "--db", dbPath, csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ loaded 2 record(s) into INTAKE starting at row 2")
	assert.Contains(t, out, "2 routed, 0 not ready, 0 already routed, 0 failed")

	entries := ledgerEntries(t, dbPath)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].SourceRow)
	assert.Equal(t, 3, entries[1].SourceRow)
}

func TestLoad_AppendsAfterExistingRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	seedSQLite(t, dbPath,
		[]any{"P-100", "WH1", "ACME", "12.50", "2026-08-01", "GASKET"},
	)
	csvPath := writeCSVFile(t, "PART,LOC,CUSTM,PRICE,DATE,DESCR\nP-200,WH1,ACME,5.00,2026-08-10,WASHER\n")

	out, _, err := runCommand(t, "load", "--store", "sqlite", "--db", dbPath, csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ loaded 1 record(s) into INTAKE starting at row 3")
}

func TestLoad_NoHeaderFlag(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	csvPath := writeCSVFile(t, "P-200,WH1,ACME,5.00,2026-08-10,WASHER\n")

	out, _, err := runCommand(t, "load", "--store", "sqlite", "--db", dbPath, "--header=false", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ loaded 1 record(s)")
	assert.Contains(t, out, "1 routed")
}

func TestLoad_HeaderOnlyFile(t *testing.T) {
	csvPath := writeCSVFile(t, "PART,LOC,CUSTM,PRICE,DATE,DESCR\n")

	out, _, err := runCommand(t, "load", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to load")
}

func TestLoad_ShortRecordStaysNotReady(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	csvPath := writeCSVFile(t, "PART,LOC,CUSTM,PRICE,DATE,DESCR\nP-200,WH1,ACME\n")

	out, _, err := runCommand(t, "load", "--store", "sqlite", "--db", dbPath, csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "0 routed, 1 not ready, 0 already routed, 0 failed")
	assert.Empty(t, ledgerEntries(t, dbPath))
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := runCommand(t, "load", filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read CSV")
}

func TestLoad_JSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "doc.db")
	csvPath := writeCSVFile(t, testCSV)

	out, _, err := runCommand(t, "load", "--store", "sqlite", "--db", dbPath, "--format", "json", csvPath)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "INTAKE", data["table"])
	assert.Equal(t, float64(2), data["loaded"])
	assert.Equal(t, float64(2), data["first_row"])

	summary, ok := data["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), summary["routed"])
}
