// Package filter compiles event filter expressions.
//
// Filters use expr-lang syntax over these variables:
//
//	kind      "OPEN", "CLOSE", "LSEEK", "READ" or "WRITE"
//	pid       process id
//	tid       thread id
//	fd        file descriptor (-1 for opens)
//	filename  path for opens, "" otherwise
//	ret       syscall return value
//	size      requested size for reads and writes
//
// Example: kind in ["READ", "WRITE"] && fd > 2
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Fields are the values a filter can test.
type Fields struct {
	Kind     string
	Pid      int
	Tid      int
	Fd       int
	Filename string
	Ret      int
	Size     int
}

func (f Fields) env() map[string]interface{} {
	return map[string]interface{}{
		"kind":     f.Kind,
		"pid":      f.Pid,
		"tid":      f.Tid,
		"fd":       f.Fd,
		"filename": f.Filename,
		"ret":      f.Ret,
		"size":     f.Size,
	}
}

// Filter is a compiled expression. A nil *Filter matches everything.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile type-checks source. An empty source yields a nil filter.
func Compile(source string) (*Filter, error) {
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source, expr.Env(Fields{}.env()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", source, err)
	}
	return &Filter{source: source, program: program}, nil
}

// String returns the filter source.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Match evaluates the filter for one event.
func (f *Filter) Match(fields Fields) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, fields.env())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q: %w", f.source, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("filter %q returned %T, expected bool", f.source, out)
	}
	return ok, nil
}
