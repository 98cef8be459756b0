// Package filter decides which scanned files enter the catalog.
package filter

import (
	"path/filepath"

	"github.com/dlclark/regexp2"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"

	"github.com/dedupfs/dfm/pkg/catalog"
)

// Env is the expression environment exposed to user filters.
type Env struct {
	Path string `expr:"Path"`
	Name string `expr:"Name"`
	Ext  string `expr:"Ext"`
	Size int64  `expr:"Size"`
}

type FileFilter struct {
	minSize  int64
	excludes []*regexp2.Regexp
	program  *vm.Program
}

type Options struct {
	MinSize         int64
	ExcludePatterns []string
	Expression      string
}

// New compiles the exclude patterns and the optional filter expression.
func New(opts Options) (*FileFilter, error) {
	f := &FileFilter{minSize: opts.MinSize}

	for _, pattern := range opts.ExcludePatterns {
		re, err := regexp2.Compile(pattern, regexp2.None)
		if err != nil {
			return nil, errors.Wrapf(err, "compile exclude pattern: %q", pattern)
		}
		f.excludes = append(f.excludes, re)
	}

	if opts.Expression != "" {
		program, err := expr.Compile(opts.Expression, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, errors.Wrapf(err, "compile filter expression: %q", opts.Expression)
		}
		f.program = program
	}

	return f, nil
}

// Match reports whether rec should enter the catalog. Expression
// evaluation errors are returned; the scanner logs them and skips the
// file rather than aborting the scan.
func (f *FileFilter) Match(rec *catalog.FileRecord) (bool, error) {
	if f == nil {
		return true, nil
	}

	if rec.Size < f.minSize {
		return false, nil
	}

	for _, re := range f.excludes {
		if ok, err := re.MatchString(rec.Path); err == nil && ok {
			return false, nil
		}
	}

	if f.program != nil {
		env := Env{
			Path: rec.Path,
			Name: filepath.Base(rec.Path),
			Ext:  filepath.Ext(rec.Path),
			Size: rec.Size,
		}

		result, err := expr.Run(f.program, env)
		if err != nil {
			return false, errors.Wrap(err, "evaluate filter expression")
		}

		match, ok := result.(bool)
		if !ok {
			return false, errors.Errorf("filter expression returned %T, expected bool", result)
		}

		return match, nil
	}

	return true, nil
}
