package domain

import (
	"errors"
	"testing"
)

func TestScenarioValidate(t *testing.T) {
	cases := []struct {
		name string
		in   Scenario
		ok   bool
	}{
		{"valid", Scenario{Name: "baseline", Population: 1000, Infected: 20}, true},
		{"defaults", Scenario{Name: "baseline"}, true},
		{"blank name", Scenario{Name: "  "}, false},
		{"negative population", Scenario{Name: "x", Population: -1}, false},
		{"too many infected", Scenario{Name: "x", Population: 10, Infected: 11}, false},
	}
	for _, c := range cases {
		err := c.in.Validate()
		if c.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !errors.Is(err, ErrInvalidScenario) {
			t.Fatalf("%s: expected ErrInvalidScenario, got %v", c.name, err)
		}
	}
}

func TestErrNotFoundUnwrapsToSentinel(t *testing.T) {
	err := error(ErrNotFound{Entity: EntityScenario, ID: "abc"})
	if !errors.Is(err, ErrScenarioNotFound) || errors.Is(err, ErrExportNotFound) {
		t.Fatalf("unexpected unwrap for %v", err)
	}
	if err.Error() != "scenario abc not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(ErrNotFound{Entity: EntityExport, ID: "x"}, ErrExportNotFound) {
		t.Fatalf("export not found should unwrap")
	}
	if (ErrNotFound{Entity: "other"}).Unwrap() != nil {
		t.Fatalf("unknown entity should not unwrap")
	}
}

func TestExportDone(t *testing.T) {
	for status, done := range map[ExportStatus]bool{
		ExportQueued: false, ExportRunning: false, ExportSucceeded: true, ExportFailed: true,
	} {
		if (Export{Status: status}).Done() != done {
			t.Fatalf("status %s: expected done=%v", status, done)
		}
	}
}
