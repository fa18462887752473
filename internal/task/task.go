package task

import (
	"errors"
	"fmt"
)

type Fitness float64

type Trace map[string]any

// Case is one input tape paired with the bytes the program should emit, in
// order.
type Case struct {
	Input []byte
	Want  []byte
}

type Task interface {
	Name() string
	Cases() []Case
}

var ErrInvalidTask = errors.New("invalid task")

// Static is a task with a fixed case list.
type Static struct {
	name  string
	cases []Case
}

func NewStatic(name string, cases []Case) (*Static, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%w: %s has no cases", ErrInvalidTask, name)
	}
	copied := make([]Case, len(cases))
	for i, c := range cases {
		if len(c.Want) == 0 {
			return nil, fmt.Errorf("%w: %s case %d expects no output", ErrInvalidTask, name, i)
		}
		copied[i] = Case{
			Input: append([]byte(nil), c.Input...),
			Want:  append([]byte(nil), c.Want...),
		}
	}
	return &Static{name: name, cases: copied}, nil
}

func (s *Static) Name() string {
	return s.name
}

func (s *Static) Cases() []Case {
	out := make([]Case, len(s.cases))
	copy(out, s.cases)
	return out
}
