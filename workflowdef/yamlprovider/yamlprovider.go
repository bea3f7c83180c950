// Package yamlprovider loads workflow definitions from a directory of
// YAML files, one file per workflowId, named "<workflowId>.yaml".
package yamlprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/workrail/engine/workflowdef"
)

// stepGraph is the on-disk shape a workflow file decodes into. It is the
// same linear step-list shape linearinterp.Interpreter knows how to
// advance; a different interpreter would read workflowdef.Def.Raw
// differently.
type stepGraph struct {
	FirstStep string `yaml:"firstStep" json:"firstStep"`
	Steps     []step `yaml:"steps" json:"steps"`
}

type step struct {
	ID                  string `yaml:"id" json:"id"`
	Title               string `yaml:"title" json:"title"`
	Prompt              string `yaml:"prompt" json:"prompt"`
	RequireConfirmation bool   `yaml:"requireConfirmation" json:"requireConfirmation"`
	Next                string `yaml:"next" json:"next"`
	Block               bool   `yaml:"block" json:"block"`
	TerminalBlock       bool   `yaml:"terminalBlock" json:"terminalBlock"`
}

// Provider implements workflowdef.Provider by reading "<dir>/<workflowId>.yaml".
type Provider struct {
	dir string
}

// New returns a Provider rooted at dir.
func New(dir string) *Provider {
	return &Provider{dir: dir}
}

// FetchByID reads and decodes dir/<workflowID>.yaml, re-encoding its step
// graph as the JSON workflowdef.Def.Raw carries so the rest of the engine
// never needs to know the definition arrived as YAML.
func (p *Provider) FetchByID(ctx context.Context, workflowID string) (workflowdef.Def, error) {
	path := filepath.Join(p.dir, workflowID+".yaml")
	content, err := os.ReadFile(path)
	if err != nil {
		return workflowdef.Def{}, fmt.Errorf("yamlprovider: read %s: %w", path, err)
	}

	var g stepGraph
	if err := yaml.Unmarshal(content, &g); err != nil {
		return workflowdef.Def{}, fmt.Errorf("yamlprovider: parse %s: %w", path, err)
	}
	if g.FirstStep == "" {
		return workflowdef.Def{}, fmt.Errorf("yamlprovider: %s: missing firstStep", path)
	}

	raw, err := json.Marshal(g)
	if err != nil {
		return workflowdef.Def{}, fmt.Errorf("yamlprovider: reencode %s: %w", path, err)
	}
	return workflowdef.Def{
		WorkflowID: workflowID,
		SourceKind: "yaml_file",
		SourceRef:  path,
		FirstStep:  g.FirstStep,
		Raw:        raw,
	}, nil
}
