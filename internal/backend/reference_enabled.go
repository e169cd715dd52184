//go:build !noreference

package backend

import (
	"github.com/roach88/redpiler/internal/backend/reference"
	"github.com/roach88/redpiler/internal/blocks"
)

const referenceBuilt = true

type referenceBackend struct {
	*reference.Backend
}

var _ JITBackend = referenceBackend{}

func newReference() JITBackend {
	return referenceBackend{reference.New()}
}

func (r referenceBackend) Inspect(pos blocks.BlockPos) (Inspection, error) {
	in, err := r.Backend.Inspect(pos)
	if err != nil {
		return Inspection{}, err
	}
	return Inspection(in), nil
}
