package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"simpidemic/internal/core"
	"simpidemic/internal/infra/persistence/sqlite"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestTableOutput(t *testing.T) {
	code, out, errOut := runCLI(t, "-days", "40", "-population", "10000", "-infected", "10")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.Contains(lines[0], "susceptible") || !strings.Contains(out, "peak infected") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	// header, 40 days, blank line, summary
	if len(lines) != 43 {
		t.Fatalf("expected 43 lines, got %d", len(lines))
	}
}

func TestCSVOutputWithActionsAndQuery(t *testing.T) {
	code, out, errOut := runCLI(t,
		"-query", "nd=60&kn=table",
		"-contacts", "10",
		"-action", "20:cpd=2",
		"-action", "30:treatmentCapacityPer100K=500",
		"-format", "csv")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 61 || records[0][0] != "day" {
		t.Fatalf("expected header plus 60 rows, got %d", len(records))
	}
}

func TestJSONOutput(t *testing.T) {
	code, out, errOut := runCLI(t, "-days", "45", "-format", "json", "-kernel", "table", "-dither", "1", "-seed", "7")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var run core.Run
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatal(err)
	}
	if run.Kernel != core.KernelTable || run.Result.NumDays != 45 || !strings.Contains(run.Query, "kn=table") {
		t.Fatalf("unexpected run kernel=%s days=%d query=%s", run.Kernel, run.Result.NumDays, run.Query)
	}
}

func TestUsageErrors(t *testing.T) {
	cases := [][]string{
		{"-format", "xml"},
		{"-action", "nonsense"},
		{"-action", "5:mortalityTreated=1"},
		{"-query", "cpd=abc"},
		{"-kernel", "gaussian"},
		{"-export", "docx"},
		{"-unknown"},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, args...); code != 2 {
			t.Fatalf("%v: expected exit 2, got %d", args, code)
		}
	}
	if code, _, _ := runCLI(t, "-population", "5", "-infected", "10"); code != 1 {
		t.Fatalf("invalid population should fail the run with exit 1")
	}
}

func TestSaveAndExport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "scenarios.db")
	blobRoot := filepath.Join(dir, "blobs")
	t.Setenv(core.EnvStorageDriver, "sqlite")
	t.Setenv(core.EnvSQLitePath, dbPath)
	t.Setenv("SIMPIDEMIC_BLOB_DRIVER", "fs")
	t.Setenv("SIMPIDEMIC_BLOB_FS_ROOT", blobRoot)

	code, _, errOut := runCLI(t, "-days", "40", "-save", "cli run", "-export", "csv,png", "-format", "csv")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}

	store, err := sqlite.NewStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	scenarios := store.ListScenarios()
	if len(scenarios) != 1 || scenarios[0].Name != "cli run" || !strings.Contains(scenarios[0].Query, "nd=40") {
		t.Fatalf("unexpected saved scenarios %+v", scenarios)
	}

	matches, _ := filepath.Glob(filepath.Join(blobRoot, "reports", scenarios[0].ID, "*.png"))
	if len(matches) != 1 {
		t.Fatalf("expected one png artifact, got %v", matches)
	}
	if b, err := os.ReadFile(matches[0]); err != nil || !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Fatalf("artifact is not a png: %v", err)
	}
}
