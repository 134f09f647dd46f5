package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGoFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolationsSkipsTests(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "a.go", "package p\n\nimport (\n\t\"fmt\"\n\t\"opsdesk/internal/core\"\n)\n")
	writeGoFile(t, dir, "a_test.go", "package p\n\nimport \"opsdesk/internal/infra/memory\"\n")
	writeGoFile(t, dir, "notes.txt", "import \"opsdesk/internal/x\"")

	viols, err := DirectImportViolations(dir, InternalImport)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "opsdesk/internal/core (in a.go)") {
		t.Fatalf("unexpected violations: %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeGoFile(t, dir, "broken.go", "package p\nimport (")
	if _, err := DirectImportViolations(dir, InternalImport); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := DirectImportViolations(filepath.Join(dir, "missing"), InternalImport); err == nil {
		t.Fatal("expected read error")
	}
}

func TestPredicates(t *testing.T) {
	pred := Either(InternalImport, ThirdPartyExcept("github.com/go-playground/validator/"))
	cases := map[string]bool{
		"encoding/json":                          false,
		"github.com/go-playground/validator/v10": false,
		"opsdesk/internal/core":                  true,
		"opsdesk/pkg/domain":                     true,
		"modernc.org/sqlite":                     true,
		"go.uber.org/zap":                        true,
	}
	for path, want := range cases {
		if got := pred(path); got != want {
			t.Fatalf("pred(%q) = %v, want %v", path, got, want)
		}
	}
	if AnyModuleImport("fmt") || !AnyModuleImport("opsdesk/pkg/domain") {
		t.Fatal("AnyModuleImport misclassified")
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) {
	r.msg = format
}

func TestFailIfViolations(t *testing.T) {
	var r recordingFatal
	failIfViolations(&r, "reason", nil)
	if r.msg != "" {
		t.Fatal("no violations must not fail")
	}
	failIfViolations(&r, "reason", []string{"x"})
	if r.msg == "" {
		t.Fatal("violations must fail")
	}
}

func TestModuleImportsExcept(t *testing.T) {
	pred := ModuleImportsExcept("opsdesk/pkg/domain")
	if pred("opsdesk/pkg/domain") || pred("fmt") || pred("go.uber.org/zap") {
		t.Fatal("allowed imports must pass")
	}
	if !pred("opsdesk/internal/core") {
		t.Fatal("other module packages must be flagged")
	}
}
