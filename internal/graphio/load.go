package graphio

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaCUE string

// Loader parses circuit files. A Loader holds a CUE context and must not be
// shared between goroutines.
type Loader struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewLoader compiles the embedded schema.
func NewLoader() (*Loader, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile circuit schema: %w", err)
	}
	schema := v.LookupPath(cue.ParsePath("#Circuit"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("lookup #Circuit: %w", err)
	}
	return &Loader{ctx: ctx, schema: schema}, nil
}

// LoadFile reads and loads a .yaml, .yml, .json or .cue file.
func LoadFile(path string) (*Circuit, error) {
	l, err := NewLoader()
	if err != nil {
		return nil, err
	}
	return l.LoadFile(path)
}

// LoadFile reads and loads a circuit file.
func (l *Loader) LoadFile(path string) (*Circuit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("read %s: %v", path, err), Err: err}
	}
	return l.Load(path, data)
}

// Load parses data, picking the syntax from filename's extension.
func (l *Loader) Load(filename string, data []byte) (*Circuit, error) {
	f, err := l.Decode(filename, data)
	if err != nil {
		return nil, err
	}
	return Build(f)
}

// Decode parses and schema-checks data without building the graph.
func (l *Loader) Decode(filename string, data []byte) (*File, error) {
	v, err := l.parse(filename, data)
	if err != nil {
		return nil, err
	}

	u := l.schema.Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}

	var f File
	if err := u.Decode(&f); err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}
	return &f, nil
}

func (l *Loader) parse(filename string, data []byte) (cue.Value, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".cue":
		v := l.ctx.CompileBytes(data, cue.Filename(filename))
		if err := v.Err(); err != nil {
			return cue.Value{}, fromCUE(ErrCodeParseFailed, err)
		}
		return v, nil
	case ".yaml", ".yml", ".json":
		file, err := cueyaml.Extract(filename, data)
		if err != nil {
			return cue.Value{}, fromCUE(ErrCodeParseFailed, err)
		}
		v := l.ctx.BuildFile(file)
		if err := v.Err(); err != nil {
			return cue.Value{}, fromCUE(ErrCodeParseFailed, err)
		}
		return v, nil
	default:
		return cue.Value{}, &LoadError{
			Code:    ErrCodeUnsupported,
			Message: fmt.Sprintf("unsupported circuit file %q: want .yaml, .yml, .json or .cue", filename),
		}
	}
}
