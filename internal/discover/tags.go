// Package discover attributes build tags to test functions by reading the
// //go:build constraints of _test.go files.
package discover

import (
	"fmt"
	"go/ast"
	"go/build/constraint"
	"go/parser"
	"go/token"
	"path/filepath"
	"slices"
	"strings"
)

// TestFunc is a top-level test, example, fuzz or benchmark function.
type TestFunc struct {
	Name string
	File string
	Tags []string // configured tags required by the file's constraint
}

// ScanFiles parses each file in dir and returns its test functions. Only tags
// listed in wanted are attached, and only where the constraint requires them
// (a negated tag is not attached).
func ScanFiles(dir string, files []string, wanted []string) ([]TestFunc, error) {
	fset := token.NewFileSet()
	var out []TestFunc
	for _, name := range files {
		path := filepath.Join(dir, name)
		f, err := parser.ParseFile(fset, path, nil, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		tags, err := fileTags(f, wanted)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || !isTestFunc(fn.Name.Name) {
				continue
			}
			out = append(out, TestFunc{Name: fn.Name.Name, File: name, Tags: tags})
		}
	}
	return out, nil
}

// TagIndex maps a test name to its tags.
func TagIndex(funcs []TestFunc) map[string][]string {
	idx := make(map[string][]string, len(funcs))
	for _, fn := range funcs {
		if len(fn.Tags) > 0 {
			idx[fn.Name] = fn.Tags
		}
	}
	return idx
}

func isTestFunc(name string) bool {
	for _, prefix := range []string{"Test", "Example", "Fuzz", "Benchmark"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// fileTags reads the //go:build line preceding the package clause.
func fileTags(f *ast.File, wanted []string) ([]string, error) {
	for _, cg := range f.Comments {
		if cg.Pos() >= f.Package {
			break
		}
		for _, c := range cg.List {
			if !constraint.IsGoBuild(c.Text) {
				continue
			}
			expr, err := constraint.Parse(c.Text)
			if err != nil {
				return nil, fmt.Errorf("invalid build constraint: %w", err)
			}
			var found []string
			collectTags(expr, false, func(tag string) {
				if slices.Contains(wanted, tag) && !slices.Contains(found, tag) {
					found = append(found, tag)
				}
			})
			slices.Sort(found)
			return found, nil
		}
	}
	return nil, nil
}

func collectTags(e constraint.Expr, negated bool, fn func(string)) {
	switch x := e.(type) {
	case *constraint.TagExpr:
		if !negated {
			fn(x.Tag)
		}
	case *constraint.NotExpr:
		collectTags(x.X, !negated, fn)
	case *constraint.AndExpr:
		collectTags(x.X, negated, fn)
		collectTags(x.Y, negated, fn)
	case *constraint.OrExpr:
		collectTags(x.X, negated, fn)
		collectTags(x.Y, negated, fn)
	}
}
