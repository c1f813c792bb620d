package users

import (
	"ghusers/internal/document"
	"ghusers/internal/errors"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Filter is a compiled boolean expression over a user's ID, Username and
// Status fields, e.g. `Status == "active" && ID > 3`.
type Filter struct {
	source  string
	program *vm.Program
}

func CompileFilter(source string) (*Filter, error) {
	program, err := expr.Compile(source, expr.Env(document.User{}), expr.AsBool())
	if err != nil {
		return nil, errors.ValidationError("invalid filter", map[string]string{"filter": err.Error()})
	}
	return &Filter{source: source, program: program}, nil
}

func (f *Filter) String() string {
	return f.source
}

func (f *Filter) Match(u document.User) (bool, error) {
	out, err := expr.Run(f.program, u)
	if err != nil {
		return false, errors.ValidationError("filter failed", map[string]string{"filter": err.Error()})
	}
	return out.(bool), nil
}

func (f *Filter) Apply(users []document.User) ([]document.User, error) {
	matched := []document.User{}
	for _, u := range users {
		ok, err := f.Match(u)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, u)
		}
	}
	return matched, nil
}
