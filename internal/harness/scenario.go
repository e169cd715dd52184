package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/redpiler/internal/backend"
)

// Scenario is one scripted run of a circuit.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Circuit is the circuit file, relative to the scenario file.
	Circuit string `yaml:"circuit"`

	// Backend selects the backend; empty means direct.
	Backend string `yaml:"backend,omitempty"`

	// IOOnly limits flushes to world boundary blocks.
	IOOnly bool `yaml:"io_only,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step does exactly one thing.
type Step struct {
	Use    string       `yaml:"use,omitempty"`
	Plate  *PlateStep   `yaml:"plate,omitempty"`
	Tick   int          `yaml:"tick,omitempty"`
	Settle int          `yaml:"settle,omitempty"`
	Flush  bool         `yaml:"flush,omitempty"`
	Reset  bool         `yaml:"reset,omitempty"`
	Expect *Expectation `yaml:"expect,omitempty"`
}

// PlateStep sets a pressure plate.
type PlateStep struct {
	Node    string `yaml:"node"`
	Powered bool   `yaml:"powered"`
}

// Expectation checks one node. Unset fields are not checked.
type Expectation struct {
	Node string `yaml:"node"`
	// Powered is the node's powered flag (lit for lamps and torches).
	Powered *bool `yaml:"powered,omitempty"`
	// Power is the node's output strength.
	Power  *uint8 `yaml:"power,omitempty"`
	Locked *bool  `yaml:"locked,omitempty"`
	// Block is the world block at the node's position, rendered with
	// blocks.Block.String. Only flushed state is visible here.
	Block string `yaml:"block,omitempty"`
	// Pending checks whether the node has a tick scheduled.
	Pending *bool `yaml:"pending,omitempty"`
}

// kind names the step's action for logs and errors.
func (s Step) kind() string {
	switch {
	case s.Use != "":
		return "use"
	case s.Plate != nil:
		return "plate"
	case s.Tick > 0:
		return "tick"
	case s.Settle > 0:
		return "settle"
	case s.Flush:
		return "flush"
	case s.Reset:
		return "reset"
	case s.Expect != nil:
		return "expect"
	}
	return ""
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Use != "", s.Plate != nil, s.Tick > 0, s.Settle > 0, s.Flush, s.Reset, s.Expect != nil} {
		if set {
			n++
		}
	}
	return n
}

// LoadScenario reads a scenario file and resolves its circuit path against
// the file's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Circuit != "" && !filepath.IsAbs(sc.Circuit) {
		sc.Circuit = filepath.Join(filepath.Dir(path), sc.Circuit)
	}
	if _, err := os.Stat(sc.Circuit); err != nil {
		return nil, fmt.Errorf("%s: circuit file: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates a scenario. The circuit path is left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// LoadScenarios loads every .yaml and .yml file directly under dir, sorted
// by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Circuit == "" {
		return fmt.Errorf("circuit is required")
	}
	if s.Backend != "" {
		if _, err := backend.ParseKind(s.Backend); err != nil {
			return err
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Tick < 0 || step.Settle < 0 {
			return fmt.Errorf("steps[%d]: tick and settle must be positive", i)
		}
		switch step.actions() {
		case 0:
			return fmt.Errorf("steps[%d]: empty step", i)
		case 1:
		default:
			return fmt.Errorf("steps[%d]: a step does exactly one thing", i)
		}
		if step.Plate != nil && step.Plate.Node == "" {
			return fmt.Errorf("steps[%d].plate: node is required", i)
		}
		if step.Expect != nil {
			if step.Expect.Node == "" {
				return fmt.Errorf("steps[%d].expect: node is required", i)
			}
			e := step.Expect
			if e.Powered == nil && e.Power == nil && e.Locked == nil && e.Block == "" && e.Pending == nil {
				return fmt.Errorf("steps[%d].expect: nothing to check", i)
			}
		}
	}
	return nil
}
