package graphio

import "github.com/roach88/redpiler/internal/blocks"

// File is the decoded form of a circuit file.
type File struct {
	Name  string     `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes []NodeSpec `json:"nodes" yaml:"nodes"`
	Edges []EdgeSpec `json:"edges,omitempty" yaml:"edges,omitempty"`
	Ticks []TickSpec `json:"ticks,omitempty" yaml:"ticks,omitempty"`
}

// NodeSpec describes one node. Pos is required for every kind but
// constant.
type NodeSpec struct {
	ID          string           `json:"id" yaml:"id"`
	Type        string           `json:"type" yaml:"type"`
	Pos         *blocks.BlockPos `json:"pos,omitempty" yaml:"pos,omitempty"`
	Powered     bool             `json:"powered,omitempty" yaml:"powered,omitempty"`
	Locked      bool             `json:"locked,omitempty" yaml:"locked,omitempty"`
	Output      *uint8           `json:"output,omitempty" yaml:"output,omitempty"`
	Delay       uint8            `json:"delay,omitempty" yaml:"delay,omitempty"`
	Mode        string           `json:"mode,omitempty" yaml:"mode,omitempty"`
	FacingDiode bool             `json:"facing_diode,omitempty" yaml:"facing_diode,omitempty"`
	FarInput    *uint8           `json:"far_input,omitempty" yaml:"far_input,omitempty"`
	Connections uint8            `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// EdgeSpec links two nodes by id.
type EdgeSpec struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Side   bool   `json:"side,omitempty" yaml:"side,omitempty"`
	Weight uint8  `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// TickSpec is a tick pending in the world when the circuit is compiled.
type TickSpec struct {
	Pos       blocks.BlockPos `json:"pos" yaml:"pos"`
	TicksLeft uint32          `json:"ticks_left" yaml:"ticks_left"`
	Priority  string          `json:"priority,omitempty" yaml:"priority,omitempty"`
}
