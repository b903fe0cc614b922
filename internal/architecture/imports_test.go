package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// layerRules lists, per package prefix, the internal packages it must not
// import. Lower layers never reach up into the ones that wire them.
var layerRules = []struct {
	layer      string
	disallowed []string
}{
	{"internal/pkg/", []string{"internal/domain", "internal/clients", "internal/platform", "internal/ingestion", "internal/data", "internal/services", "internal/http", "internal/app"}},
	{"internal/platform/", []string{"internal/clients", "internal/ingestion", "internal/data", "internal/services", "internal/http", "internal/app"}},
	{"internal/clients/", []string{"internal/ingestion", "internal/data", "internal/services", "internal/http", "internal/app"}},
	{"internal/ingestion/", []string{"internal/data", "internal/services", "internal/http", "internal/app", "internal/observability"}},
	{"internal/data/", []string{"internal/clients", "internal/ingestion", "internal/services", "internal/http", "internal/app"}},
	{"internal/jobs/", []string{"internal/services", "internal/http", "internal/app"}},
	{"internal/observability/", []string{"internal/services", "internal/http", "internal/app"}},
	{"internal/services/", []string{"internal/http", "internal/app"}},
	{"internal/http/", []string{"internal/app"}},
}

type fileImports struct {
	rel     string
	imports []string
}

func TestImportBoundaries(t *testing.T) {
	modulePath, files := loadInternalImports(t)

	var violations []string
	for _, f := range files {
		for _, rule := range layerRules {
			if !strings.HasPrefix(f.rel, rule.layer) {
				continue
			}
			for _, imp := range f.imports {
				for _, bad := range rule.disallowed {
					target := modulePath + "/" + bad
					if imp == target || strings.HasPrefix(imp, target+"/") {
						violations = append(violations, fmt.Sprintf("- %s imports %q (layer %s)", f.rel, imp, rule.layer))
					}
				}
			}
		}
	}
	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n%s", strings.Join(violations, "\n"))
	}
}

func TestDomainIsSelfContained(t *testing.T) {
	modulePath, files := loadInternalImports(t)
	internalPrefix := modulePath + "/internal/"
	domainPrefix := modulePath + "/internal/domain"

	var violations []string
	for _, f := range files {
		if !strings.HasPrefix(f.rel, "internal/domain/") {
			continue
		}
		for _, imp := range f.imports {
			if strings.HasPrefix(imp, internalPrefix) && !strings.HasPrefix(imp, domainPrefix) {
				violations = append(violations, fmt.Sprintf("- %s imports %q", f.rel, imp))
			}
		}
	}
	if len(violations) > 0 {
		t.Fatalf("domain packages may only import other domain packages:\n%s", strings.Join(violations, "\n"))
	}
}

func loadInternalImports(t *testing.T) (string, []fileImports) {
	t.Helper()

	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	var out []fileImports
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		fi := fileImports{rel: filepath.ToSlash(rel)}
		for _, spec := range f.Imports {
			if imp, err := strconv.Unquote(spec.Path.Value); err == nil {
				fi.imports = append(fi.imports, imp)
			}
		}
		out = append(out, fi)
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	return modulePath, out
}

func findModuleRoot(start string) (string, error) {
	for dir := start; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if mp, ok := strings.CutPrefix(line, "module "); ok {
			if mp = strings.TrimSpace(mp); mp != "" {
				return mp, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
