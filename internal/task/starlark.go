package task

import (
	"fmt"
	"os"

	"github.com/reusee/starlarkutil"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// LoadStarlark builds a task from a script declaring:
//
//	name = "reverse"
//	inputs = ["ab", "xyz"]
//	def expect(input):
//	    return input[::-1]
//
// Inputs may be strings, bytes or lists of ints. expect receives each input
// as a string and returns the wanted output in any of those forms. ord and
// chr are overridden to work on raw bytes instead of code points.
func LoadStarlark(path string) (*Static, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseStarlark(path, src)
}

func ParseStarlark(filename string, src []byte) (*Static, error) {
	thread := &starlark.Thread{
		Name:  filename,
		Print: func(*starlark.Thread, string) {},
	}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, predeclared())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTask, filename, err)
	}

	nameValue, ok := globals["name"].(starlark.String)
	if !ok {
		return nil, fmt.Errorf("%w: %s: name must be a string", ErrInvalidTask, filename)
	}
	inputsValue, ok := globals["inputs"].(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("%w: %s: inputs must be a list", ErrInvalidTask, filename)
	}
	expect, ok := globals["expect"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%w: %s: expect must be a function", ErrInvalidTask, filename)
	}

	cases := make([]Case, 0, inputsValue.Len())
	for i := 0; i < inputsValue.Len(); i++ {
		input, err := toBytes(inputsValue.Index(i))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: input %d: %v", ErrInvalidTask, filename, i, err)
		}
		result, err := starlark.Call(thread, expect, starlark.Tuple{starlark.String(input)}, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: expect(input %d): %v", ErrInvalidTask, filename, i, err)
		}
		want, err := toBytes(result)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: expect(input %d): %v", ErrInvalidTask, filename, i, err)
		}
		cases = append(cases, Case{Input: input, Want: want})
	}
	return NewStatic(string(nameValue), cases)
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"ord": starlarkutil.MakeFunc("ord", func(s string) int {
			if len(s) == 0 {
				return 0
			}
			return int(s[0])
		}),
		"chr": starlarkutil.MakeFunc("chr", func(v int) string {
			return string([]byte{byte(v)})
		}),
	}
}

func toBytes(v starlark.Value) ([]byte, error) {
	switch v := v.(type) {
	case starlark.String:
		return []byte(string(v)), nil
	case starlark.Bytes:
		return []byte(string(v)), nil
	case *starlark.List:
		out := make([]byte, v.Len())
		for i := range out {
			n, err := starlark.AsInt32(v.Index(i))
			if err != nil {
				return nil, err
			}
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("byte value %d out of range", n)
			}
			out[i] = byte(n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value %s", v.Type())
	}
}
