package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) {
	r.msg = fmt.Sprintf(format, args...)
}

func TestPrefixes(t *testing.T) {
	pred := Prefixes("os", "simpidemic/internal/infra")
	cases := []struct {
		path string
		want bool
	}{
		{"os", true},
		{"os/exec", true},
		{"ostrich", false},
		{"simpidemic/internal/infra/blob/s3", true},
		{"simpidemic/internal/infrastructure", false},
		{"simpidemic/internal/engine", false},
	}
	for _, c := range cases {
		if got := pred(c.path); got != c.want {
			t.Fatalf("Prefixes(%q)=%v want %v", c.path, got, c.want)
		}
	}
}

func TestInternalAndInfraPredicates(t *testing.T) {
	if !InternalImportForbidden("simpidemic/internal/engine") || InternalImportForbidden("simpidemic/pkg/domain") {
		t.Fatalf("internal predicate mismatch")
	}
	if !InfraImportForbidden("simpidemic/internal/infra/persistence/sqlite") || InfraImportForbidden("simpidemic/internal/core") {
		t.Fatalf("infra predicate mismatch")
	}
	combined := Any(nil, InfraImportForbidden, Prefixes("net"))
	if !combined("net/http") || !combined("simpidemic/internal/infra") || combined("fmt") {
		t.Fatalf("Any mismatch")
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestScanImportsSkipsTestsAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport \"fmt\"\nfunc A(){fmt.Println()}\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"net/http\"\nvar _ = http.MethodGet\n")
	writeFile(t, dir, "notes.txt", "import \"net/http\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"net/http\"\nvar _ = http.MethodGet\n")
	AssertNoDirectImports(t, dir, Prefixes("net"), "only a.go counts")
}

func TestScanImportsReportsViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport \"os\"\nvar _ = os.Args\n")
	found, err := scanImports(dir, Prefixes("os"))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(found) != 1 || found[0] != "os (in a.go)" {
		t.Fatalf("unexpected findings %v", found)
	}
	var r recorder
	report(&r, "forbidden direct imports", "pure", found)
	if !strings.Contains(r.msg, "os (in a.go)") {
		t.Fatalf("expected failure to be reported")
	}
}

func TestScanImportsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.go", "package\n")
	if _, err := scanImports(dir, Prefixes("os")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := scanImports(filepath.Join(dir, "missing"), Prefixes("os")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestTransitiveDependencyUsesGoList(t *testing.T) {
	orig := listDeps
	t.Cleanup(func() { listDeps = orig })
	listDeps = func(string) ([]byte, error) {
		return []byte("fmt\nsimpidemic/internal/engine\n\n"), nil
	}
	AssertNoTransitiveDependency(t, "./...", InfraImportForbidden, "no infra")

	found := matchLines("fmt\n simpidemic/internal/infra/blob \n", InfraImportForbidden)
	if len(found) != 1 || found[0] != "simpidemic/internal/infra/blob" {
		t.Fatalf("unexpected matches %v", found)
	}
	listDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, err := listDeps("."); err == nil {
		t.Fatalf("stub should fail")
	}
}
