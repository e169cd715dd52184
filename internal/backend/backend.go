// Package backend is the closed set of simulation backends and the
// Dispatcher that forwards to whichever one is active.
//
// Every backend satisfies JITBackend. The Dispatcher does not hold the
// interface for the hot path: it switches on its Kind and calls the concrete
// type, so the interpreter loop never goes through dynamic dispatch.
package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/redpiler/internal/backend/direct"
	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/graph"
	"github.com/roach88/redpiler/internal/monitor"
	"github.com/roach88/redpiler/internal/world"
)

// Kind names a backend.
type Kind uint8

const (
	Direct Kind = iota
	Reference
)

var kindNames = [...]string{
	Direct:    "direct",
	Reference: "reference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind parses a backend name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown backend %q", s)
}

var (
	// ErrUnavailable is returned for a backend left out of this build.
	ErrUnavailable = errors.New("backend not available in this build")

	ErrNotCompiled     = direct.ErrNotCompiled
	ErrAlreadyCompiled = direct.ErrAlreadyCompiled
	ErrUnknownPosition = direct.ErrUnknownPosition
	ErrNotInteractive  = direct.ErrNotInteractive
)

// Available lists the backends compiled into this binary.
func Available() []Kind {
	kinds := []Kind{Direct}
	if referenceBuilt {
		kinds = append(kinds, Reference)
	}
	return kinds
}

// Inspection is a backend-neutral view of one node.
type Inspection struct {
	Pos          blocks.BlockPos `json:"pos"`
	Node         int             `json:"node"`
	Type         string          `json:"type"`
	Powered      bool            `json:"powered"`
	Locked       bool            `json:"locked,omitempty"`
	OutputPower  uint8           `json:"output_power"`
	DefaultLevel uint8           `json:"default_level"`
	SideLevel    uint8           `json:"side_level"`
	PendingTick  bool            `json:"pending_tick,omitempty"`
}

// JITBackend is the contract every backend implements.
type JITBackend interface {
	Compile(g *graph.Graph, ticks []world.TickEntry, mon *monitor.TaskMonitor) error
	Compiled() bool
	Tick()
	HasPendingTicks() bool
	OnUseBlock(pos blocks.BlockPos) error
	SetPressurePlate(pos blocks.BlockPos, powered bool) error
	Flush(w world.World, ioOnly bool)
	Reset(w world.World, ioOnly bool)
	Inspect(pos blocks.BlockPos) (Inspection, error)
}

// directBackend adapts the interpreter's richer Inspection.
type directBackend struct {
	*direct.Backend
}

func (d directBackend) Inspect(pos blocks.BlockPos) (Inspection, error) {
	in, err := d.Backend.Inspect(pos)
	if err != nil {
		return Inspection{}, err
	}
	return Inspection{
		Pos:          in.Pos,
		Node:         in.Node,
		Type:         in.Type,
		Powered:      in.Powered,
		Locked:       in.Locked,
		OutputPower:  in.OutputPower,
		DefaultLevel: in.DefaultLevel,
		SideLevel:    in.SideLevel,
		PendingTick:  in.PendingTick,
	}, nil
}

var _ JITBackend = directBackend{}

// Dispatcher holds exactly one backend, selected at construction.
type Dispatcher struct {
	kind   Kind
	direct *direct.Backend
	ref    JITBackend
}

var _ JITBackend = (*Dispatcher)(nil)

// New creates a dispatcher for kind.
func New(kind Kind) (*Dispatcher, error) {
	switch kind {
	case Direct:
		return &Dispatcher{kind: Direct, direct: direct.New()}, nil
	case Reference:
		ref := newReference()
		if ref == nil {
			return nil, fmt.Errorf("%s: %w", kind, ErrUnavailable)
		}
		return &Dispatcher{kind: Reference, ref: ref}, nil
	default:
		return nil, fmt.Errorf("%s: %w", kind, ErrUnavailable)
	}
}

// Kind returns the active backend.
func (d *Dispatcher) Kind() Kind {
	return d.kind
}

// DirectBackend returns the interpreter when it is the active backend.
func (d *Dispatcher) DirectBackend() (*direct.Backend, bool) {
	return d.direct, d.kind == Direct
}

func (d *Dispatcher) Compile(g *graph.Graph, ticks []world.TickEntry, mon *monitor.TaskMonitor) error {
	switch d.kind {
	case Direct:
		return d.direct.Compile(g, ticks, mon)
	default:
		return d.ref.Compile(g, ticks, mon)
	}
}

func (d *Dispatcher) Compiled() bool {
	switch d.kind {
	case Direct:
		return d.direct.Compiled()
	default:
		return d.ref.Compiled()
	}
}

func (d *Dispatcher) Tick() {
	switch d.kind {
	case Direct:
		d.direct.Tick()
	default:
		d.ref.Tick()
	}
}

func (d *Dispatcher) HasPendingTicks() bool {
	switch d.kind {
	case Direct:
		return d.direct.HasPendingTicks()
	default:
		return d.ref.HasPendingTicks()
	}
}

func (d *Dispatcher) OnUseBlock(pos blocks.BlockPos) error {
	switch d.kind {
	case Direct:
		return d.direct.OnUseBlock(pos)
	default:
		return d.ref.OnUseBlock(pos)
	}
}

func (d *Dispatcher) SetPressurePlate(pos blocks.BlockPos, powered bool) error {
	switch d.kind {
	case Direct:
		return d.direct.SetPressurePlate(pos, powered)
	default:
		return d.ref.SetPressurePlate(pos, powered)
	}
}

func (d *Dispatcher) Flush(w world.World, ioOnly bool) {
	switch d.kind {
	case Direct:
		d.direct.Flush(w, ioOnly)
	default:
		d.ref.Flush(w, ioOnly)
	}
}

func (d *Dispatcher) Reset(w world.World, ioOnly bool) {
	switch d.kind {
	case Direct:
		d.direct.Reset(w, ioOnly)
	default:
		d.ref.Reset(w, ioOnly)
	}
}

func (d *Dispatcher) Inspect(pos blocks.BlockPos) (Inspection, error) {
	switch d.kind {
	case Direct:
		return directBackend{d.direct}.Inspect(pos)
	default:
		return d.ref.Inspect(pos)
	}
}
