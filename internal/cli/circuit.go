package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/roach88/redpiler/internal/blocks"
	"github.com/roach88/redpiler/internal/engine"
	"github.com/roach88/redpiler/internal/graphio"
	"github.com/roach88/redpiler/internal/store"
)

// interactions turns --use ids and --plate id=on|off pairs into engine
// interactions, uses first.
func interactions(c *graphio.Circuit, uses, plates []string) ([]engine.Interaction, error) {
	out := make([]engine.Interaction, 0, len(uses)+len(plates))
	for _, id := range uses {
		pos, err := c.PosOf(id)
		if err != nil {
			return nil, fmt.Errorf("--use %s: %w", id, err)
		}
		out = append(out, engine.Use(pos))
	}
	for _, arg := range plates {
		id, state, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("--plate %s: want <node>=on|off", arg)
		}
		var powered bool
		switch strings.ToLower(state) {
		case "on", "true", "1":
			powered = true
		case "off", "false", "0":
		default:
			return nil, fmt.Errorf("--plate %s: state must be on or off", arg)
		}
		pos, err := c.PosOf(id)
		if err != nil {
			return nil, fmt.Errorf("--plate %s: %w", id, err)
		}
		out = append(out, engine.Plate(pos, powered))
	}
	return out, nil
}

// parsePos reads "x,y,z".
func parsePos(s string) (blocks.BlockPos, error) {
	var p blocks.BlockPos
	if _, err := fmt.Sscanf(s, "%d,%d,%d", &p.X, &p.Y, &p.Z); err != nil {
		return p, fmt.Errorf("position %q: want x,y,z", s)
	}
	return p, nil
}

// openExistingStore opens a database that must already exist; store.Open
// alone would create an empty one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return store.Open(path)
}
