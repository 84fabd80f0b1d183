package cmd

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gantrydev/gantry/internal/graph"
)

// manifest is the YAML description of a unit set.
type manifest struct {
	Units []manifestUnit `yaml:"units"`
}

// manifestUnit declares one unit, its dependencies, and an optional shell
// command to execute during a run.
type manifestUnit struct {
	ID         string   `yaml:"id"`
	DependsOn  []string `yaml:"depends_on"`
	Complexity float64  `yaml:"complexity"`
	Run        string   `yaml:"run"`
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if len(m.Units) == 0 {
		return nil, fmt.Errorf("manifest %s declares no units", path)
	}
	for i, unit := range m.Units {
		if unit.ID == "" {
			return nil, fmt.Errorf("manifest %s: unit %d has no id", path, i)
		}
	}
	return &m, nil
}

func (m *manifest) ids() []string {
	ids := make([]string, len(m.Units))
	for i, unit := range m.Units {
		ids[i] = unit.ID
	}
	return ids
}

func (m *manifest) unit(id string) *manifestUnit {
	for i := range m.Units {
		if m.Units[i].ID == id {
			return &m.Units[i]
		}
	}
	return nil
}

// extractor adapts the manifest's declared dependencies to the graph
// builder's extractor interface.
func (m *manifest) extractor() graph.ExtractorFunc {
	return func(_ context.Context, unitID string) ([]string, float64, error) {
		unit := m.unit(unitID)
		if unit == nil {
			return nil, 0, fmt.Errorf("unit %s not in manifest", unitID)
		}
		return unit.DependsOn, unit.Complexity, nil
	}
}
