package task

var builtinInputs = [][]byte{
	{'A'},
	{'z'},
	{'0'},
	{7},
	{200},
}

func mapCases(name string, fn func(in []byte) []byte) *Static {
	cases := make([]Case, len(builtinInputs))
	for i, in := range builtinInputs {
		cases[i] = Case{Input: in, Want: fn(in)}
	}
	s, err := NewStatic(name, cases)
	if err != nil {
		panic(err)
	}
	return s
}

// Echo copies the input byte to the output: ",." solves it.
func Echo() Task {
	return mapCases("echo", func(in []byte) []byte {
		return append([]byte(nil), in...)
	})
}

// Increment emits each input byte plus one, wrapping at 256: ",+.".
func Increment() Task {
	return mapCases("increment", func(in []byte) []byte {
		out := make([]byte, len(in))
		for i, b := range in {
			out[i] = b + 1
		}
		return out
	})
}

// Constant ignores the input and emits 'A'.
func Constant() Task {
	return mapCases("constant", func([]byte) []byte {
		return []byte{'A'}
	})
}

// DoubleEcho emits each input byte twice: ",..".
func DoubleEcho() Task {
	return mapCases("double-echo", func(in []byte) []byte {
		out := make([]byte, 0, 2*len(in))
		for _, b := range in {
			out = append(out, b, b)
		}
		return out
	})
}

func Builtins() []Task {
	return []Task{Echo(), Increment(), Constant(), DoubleEcho()}
}
