package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// CompileSource compiles every table declared in a CUE document. The
// filename is only used for error positions.
func CompileSource(filename, src string) ([]TableDecl, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileTables(v)
}

// LoadDir loads and compiles the CUE package in dir.
func LoadDir(dir string) ([]TableDecl, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schemas directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileTables(v)
}

// compileTables compiles the "table" struct of v, sorted by table name.
func compileTables(v cue.Value) ([]TableDecl, error) {
	tv := v.LookupPath(cue.ParsePath("table"))
	if !tv.Exists() {
		return nil, &CompileError{Field: "table", Message: "no tables declared", Pos: v.Pos()}
	}
	iter, err := tv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var decls []TableDecl
	for iter.Next() {
		decl, err := CompileTable(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", iter.Label(), err)
		}
		decls = append(decls, *decl)
	}
	slices.SortFunc(decls, func(a, b TableDecl) int { return strings.Compare(a.Name, b.Name) })
	return decls, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
