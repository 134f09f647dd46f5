// Package testutil holds test helpers that pin the package layering of opsdesk.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// ModulePath is the import prefix of every opsdesk package.
const ModulePath = "opsdesk/"

// ImportPredicate reports whether an import path is off limits.
type ImportPredicate func(importPath string) bool

// AssertNoDirectImports parses the non-test Go files in dir and fails t when
// any import matches forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden ImportPredicate, reason string) {
	t.Helper()
	viols, err := DirectImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan imports in %s: %v", dir, err)
	}
	failIfViolations(t, reason, viols)
}

// DirectImportViolations lists "path (in file.go)" for each forbidden import,
// sorted for stable output.
func DirectImportViolations(dir string, forbidden ImportPredicate) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

// AnyModuleImport matches every opsdesk package.
func AnyModuleImport(path string) bool {
	return strings.HasPrefix(path, ModulePath)
}

// InternalImport matches opsdesk internal packages.
func InternalImport(path string) bool {
	return strings.HasPrefix(path, ModulePath+"internal/")
}

// ModuleImportsExcept matches opsdesk packages other than the listed ones.
func ModuleImportsExcept(allowed ...string) ImportPredicate {
	return func(path string) bool {
		if !AnyModuleImport(path) {
			return false
		}
		for _, a := range allowed {
			if path == a {
				return false
			}
		}
		return true
	}
}

// ThirdPartyExcept matches any non-stdlib import that is not under one of the
// allowed prefixes. Module packages are treated as third party.
func ThirdPartyExcept(allowed ...string) ImportPredicate {
	return func(path string) bool {
		first, _, _ := strings.Cut(path, "/")
		if !strings.Contains(first, ".") && !AnyModuleImport(path) {
			return false
		}
		for _, prefix := range allowed {
			if strings.HasPrefix(path, prefix) {
				return false
			}
		}
		return true
	}
}

// Either matches when any of the predicates matches.
func Either(preds ...ImportPredicate) ImportPredicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
