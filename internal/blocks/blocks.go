package blocks

import (
	"fmt"
	"strings"
)

// BlockPos is an integer world coordinate.
type BlockPos struct {
	X int32 `json:"x" yaml:"x"`
	Y int32 `json:"y" yaml:"y"`
	Z int32 `json:"z" yaml:"z"`
}

// Pos is shorthand for BlockPos{x, y, z}.
func Pos(x, y, z int32) BlockPos {
	return BlockPos{X: x, Y: y, Z: z}
}

// String formats the position as "x,y,z".
func (p BlockPos) String() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

// Less orders positions by X, then Y, then Z.
func (p BlockPos) Less(o BlockPos) bool {
	if p.X != o.X {
		return p.X < o.X
	}
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.Z < o.Z
}

// Kind identifies the component a block represents.
type Kind uint8

const (
	Air Kind = iota
	RedstoneWire
	Repeater
	Comparator
	Torch
	Lamp
	Button
	Lever
	PressurePlate
	Trapdoor
	RedstoneBlock
	Solid
)

var kindNames = [...]string{
	Air:           "air",
	RedstoneWire:  "redstone_wire",
	Repeater:      "repeater",
	Comparator:    "comparator",
	Torch:         "redstone_torch",
	Lamp:          "redstone_lamp",
	Button:        "stone_button",
	Lever:         "lever",
	PressurePlate: "stone_pressure_plate",
	Trapdoor:      "iron_trapdoor",
	RedstoneBlock: "redstone_block",
	Solid:         "stone",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves a block name, with or without the "minecraft:" prefix.
func ParseKind(name string) (Kind, error) {
	name = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "minecraft:")
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return Air, fmt.Errorf("unknown block %q", name)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ComparatorMode selects how a comparator combines its rear and side inputs.
type ComparatorMode uint8

const (
	Compare ComparatorMode = iota
	Subtract
)

func (m ComparatorMode) String() string {
	if m == Subtract {
		return "subtract"
	}
	return "compare"
}

// ParseComparatorMode accepts "compare" or "subtract"; empty means compare.
func ParseComparatorMode(s string) (ComparatorMode, error) {
	switch strings.ToLower(s) {
	case "", "compare":
		return Compare, nil
	case "subtract":
		return Subtract, nil
	default:
		return Compare, fmt.Errorf("unknown comparator mode %q", s)
	}
}

func (m ComparatorMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ComparatorMode) UnmarshalText(text []byte) error {
	v, err := ParseComparatorMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Output computes a comparator's output strength from its front and side levels.
func (m ComparatorMode) Output(front, side uint8) uint8 {
	if m == Subtract {
		if front > side {
			return front - side
		}
		return 0
	}
	if front >= side {
		return front
	}
	return 0
}

// Block is the world state of a single component.
//
// Power is the wire strength for redstone wire and the stored output
// strength for comparators. Connections is a bitmask of the four horizontal
// sides a wire visually connects to; a wire with no connections is a dot.
type Block struct {
	Kind        Kind           `json:"kind"`
	Powered     bool           `json:"powered,omitempty"`
	Lit         bool           `json:"lit,omitempty"`
	Locked      bool           `json:"locked,omitempty"`
	Power       uint8          `json:"power,omitempty"`
	Delay       uint8          `json:"delay,omitempty"`
	Mode        ComparatorMode `json:"mode,omitempty"`
	Connections uint8          `json:"connections,omitempty"`
}

// IsDot reports whether the block is a dot-shaped marker block: a redstone
// wire with no side connections. Dots are treated as world-visible I/O.
func IsDot(b Block) bool {
	return b.Kind == RedstoneWire && b.Connections == 0
}

// String renders the block as "name[prop=value,...]" with only the
// properties meaningful to its kind.
func (b Block) String() string {
	var props []string
	switch b.Kind {
	case RedstoneWire:
		props = append(props, fmt.Sprintf("power=%d", b.Power))
	case Repeater:
		props = append(props, fmt.Sprintf("delay=%d", b.Delay), fmt.Sprintf("locked=%t", b.Locked), fmt.Sprintf("powered=%t", b.Powered))
	case Comparator:
		props = append(props, "mode="+b.Mode.String(), fmt.Sprintf("powered=%t", b.Powered), fmt.Sprintf("output=%d", b.Power))
	case Torch, Lamp:
		props = append(props, fmt.Sprintf("lit=%t", b.Lit))
	case Button, Lever, PressurePlate, Trapdoor:
		props = append(props, fmt.Sprintf("powered=%t", b.Powered))
	}
	if len(props) == 0 {
		return b.Kind.String()
	}
	return b.Kind.String() + "[" + strings.Join(props, ",") + "]"
}
