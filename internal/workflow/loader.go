// Package workflow loads declarative workflow files into WorkflowSpec
// values. All file I/O lives here; the scheduler only ever sees parsed,
// structurally valid specs.
package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

// DefaultGlobalTimeout applies when a workflow file omits global_timeout.
const DefaultGlobalTimeout = 3600 * time.Second

type yamlTask struct {
	ID        string                       `yaml:"id"`
	Tool      string                       `yaml:"tool"`
	DependsOn []string                     `yaml:"depends_on"`
	Target    *string                      `yaml:"target"`
	Timeout   *int                         `yaml:"timeout"`
	Options   map[string]types.OptionValue `yaml:"options"`
}

type yamlWorkflow struct {
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description"`
	GlobalTimeout *int       `yaml:"global_timeout"`
	Tasks         []yamlTask `yaml:"tasks"`
}

// Load reads and validates a workflow file.
func Load(path string) (*types.WorkflowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals workflow YAML and applies defaults. Structural
// validation happens here; graph validation is the scheduler's job.
func Parse(data []byte) (*types.WorkflowSpec, error) {
	var raw yamlWorkflow
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse workflow YAML: %w", err)
	}

	if raw.Name == "" {
		return nil, fmt.Errorf("workflow has no name")
	}
	if len(raw.Tasks) == 0 {
		return nil, fmt.Errorf("workflow %q has no tasks", raw.Name)
	}

	spec := &types.WorkflowSpec{
		Name:          raw.Name,
		Description:   raw.Description,
		GlobalTimeout: DefaultGlobalTimeout,
	}
	if raw.GlobalTimeout != nil {
		if *raw.GlobalTimeout <= 0 {
			return nil, fmt.Errorf("workflow %q: global_timeout must be positive", raw.Name)
		}
		spec.GlobalTimeout = time.Duration(*raw.GlobalTimeout) * time.Second
	}

	for _, t := range raw.Tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("workflow %q: task with empty id", raw.Name)
		}
		if t.Tool == "" {
			return nil, fmt.Errorf("workflow %q: task %q has no tool", raw.Name, t.ID)
		}
		task := types.TaskSpec{
			ID:        t.ID,
			Tool:      t.Tool,
			DependsOn: t.DependsOn,
			Options:   t.Options,
		}
		if t.Target != nil {
			task.Target = *t.Target
		}
		if t.Timeout != nil {
			if *t.Timeout <= 0 {
				return nil, fmt.Errorf("workflow %q: task %q timeout must be positive", raw.Name, t.ID)
			}
			task.Timeout = time.Duration(*t.Timeout) * time.Second
		}
		spec.Tasks = append(spec.Tasks, task)
	}

	return spec, nil
}
