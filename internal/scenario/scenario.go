// Package scenario defines the simulation configurations an experiment suite
// iterates. A scenario is a name plus setup commands applied, in order, after
// the simulation is reset and before it is stepped.
package scenario

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Names of the default scenarios.
const (
	NoSupport        = "no-support"
	StaffSupport     = "staff-support"
	PassengerSupport = "passenger-support"
	AdaptiveSupport  = "adaptive-support"
)

// Setup commands used by the default scenarios.
const (
	EnableStaffCommand     = "set REQUEST_STAFF_SUPPORT TRUE"
	EnablePassengerCommand = "set REQUEST_BYSTANDER_SUPPORT TRUE"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Scenario is immutable once loaded; callers must not modify Commands.
type Scenario struct {
	Name     string   `json:"name" yaml:"name"`
	Commands []string `json:"commands" yaml:"commands"`
}

type catalogue struct {
	Scenarios []Scenario `json:"scenarios" yaml:"scenarios"`
}

// Defaults returns the four support scenarios in their canonical order.
func Defaults() []Scenario {
	list, err := Parse(defaultsYAML, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded scenarios: %v", err))
	}
	return list
}

// LoadFile reads a scenario catalogue (YAML or JSON).
func LoadFile(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a catalogue. ext is a format hint (".yaml", ".yml", ".json");
// empty means detect from content.
func Parse(data []byte, ext string) ([]Scenario, error) {
	var c catalogue
	ext = strings.ToLower(ext)
	isJSON := ext == ".json" || (ext == "" && strings.HasPrefix(strings.TrimSpace(string(data)), "{"))
	if isJSON {
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse scenarios json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse scenarios yaml: %w", err)
		}
	}
	if err := Validate(c.Scenarios); err != nil {
		return nil, err
	}
	return c.Scenarios, nil
}

// Validate checks that names are present and unique.
func Validate(list []Scenario) error {
	if len(list) == 0 {
		return errors.New("no scenarios defined")
	}
	seen := make(map[string]bool, len(list))
	for i, s := range list {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("scenario %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate scenario %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Names returns scenario names in catalogue order.
func Names(list []Scenario) []string {
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name
	}
	return names
}

// Select returns the named scenarios in the order the names are given.
func Select(list []Scenario, names []string) ([]Scenario, error) {
	byName := make(map[string]Scenario, len(list))
	for _, s := range list {
		byName[s.Name] = s
	}
	out := make([]Scenario, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("scenario %q not found (available: %s)", n, strings.Join(Names(list), ", "))
		}
		out = append(out, s)
	}
	return out, nil
}
