package graphio

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes for circuit loading (E0xx).
const (
	ErrCodeGeneric      = "E001" // generic/unknown error
	ErrCodeReadFailed   = "E002" // file could not be read
	ErrCodeUnsupported  = "E003" // unknown file extension
	ErrCodeParseFailed  = "E004" // YAML or CUE syntax error
	ErrCodeSchema       = "E005" // file does not match #Circuit
	ErrCodeDuplicateID  = "E006" // two nodes share an id
	ErrCodeUnknownNode  = "E007" // edge names a node that does not exist
	ErrCodeInvalidGraph = "E008" // graph fails structural validation
	ErrCodeNoNodes      = "E009" // circuit has no nodes
)

// LoadError is a circuit file error, with a source position when one is
// known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError reports whether err is a LoadError with the given code.
func IsLoadError(err error, code string) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Code == code
}

// fromCUE converts a CUE error to a LoadError carrying its first position.
func fromCUE(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error(), Err: err}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return le
	}
	le.Message = errs[0].Error()
	if positions := cueerrors.Positions(errs[0]); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
