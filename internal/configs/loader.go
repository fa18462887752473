package configs

import (
	"errors"
	"iter"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

var ErrValueNotFound = errors.New("config value not found")

// Loader reads CUE files validated against a closed schema. Earlier files
// take precedence over later ones.
type Loader struct {
	getRoots func() ([]rootInfo, error)
}

func NewLoader(filePaths []string, schemaSrc string) Loader {
	return Loader{
		getRoots: sync.OnceValues(func() (ret []rootInfo, err error) {
			// Schema and files share one runtime so they can be unified.
			ctx := cuecontext.New()
			var schema cue.Value
			if schemaSrc != "" {
				schema = ctx.CompileString("close({" + schemaSrc + "})")
				if err := schema.Err(); err != nil {
					return nil, err
				}
			}

			for _, filePath := range filePaths {
				content, err := os.ReadFile(filePath)
				if err != nil {
					return nil, err
				}

				value := ctx.CompileBytes(content, cue.Filename(filePath))
				if err := value.Err(); err != nil {
					return nil, err
				}

				if schema.Exists() {
					if err := schema.Unify(value).Validate(); err != nil {
						return nil, err
					}
				}

				ret = append(ret, rootInfo{value: value, path: filePath})
			}
			return ret, nil
		}),
	}
}

type rootInfo struct {
	value cue.Value
	path  string
}

func (l Loader) IterCueValues(path string) iter.Seq2[*cue.Value, error] {
	return func(yield func(*cue.Value, error) bool) {
		roots, err := l.getRoots()
		if err != nil {
			yield(nil, err)
			return
		}

		cuePath := cue.ParsePath(path)
		for _, info := range roots {
			value := info.value.LookupPath(cuePath)
			if err := value.Err(); err == nil && value.Exists() {
				if !yield(&value, nil) {
					break
				}
			}
		}
	}
}

func (l Loader) AssignFirst(path string, target any) error {
	for value, err := range l.IterCueValues(path) {
		if err != nil {
			return err
		}
		return value.Decode(target)
	}
	return ErrValueNotFound
}

// Merge decodes every file's value at path into target, last file first, so
// fields set in earlier files win.
func (l Loader) Merge(path string, target any) error {
	var values []*cue.Value
	for value, err := range l.IterCueValues(path) {
		if err != nil {
			return err
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return ErrValueNotFound
	}
	for i := len(values) - 1; i >= 0; i-- {
		if err := values[i].Decode(target); err != nil {
			return err
		}
	}
	return nil
}
