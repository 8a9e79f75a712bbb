package scheduler

import (
	"fmt"
	"sort"

	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

// WorkflowCycleError rejects a workflow whose dependency relation is not a
// DAG. Task names one task that sits on a cycle.
type WorkflowCycleError struct {
	Workflow string
	Task     string
}

func (e *WorkflowCycleError) Error() string {
	return fmt.Sprintf("workflow %q has a dependency cycle involving task %q", e.Workflow, e.Task)
}

// WorkflowValidationError rejects a structurally broken workflow before
// anything is spawned.
type WorkflowValidationError struct {
	Workflow string
	Reason   string
}

func (e *WorkflowValidationError) Error() string {
	return fmt.Sprintf("workflow %q is invalid: %s", e.Workflow, e.Reason)
}

// buildLayers validates the dependency relation and returns a topological
// layering via Kahn's algorithm: every task in layer N depends only on
// tasks in earlier layers. Layers are sorted by id for deterministic
// iteration; execution order within a layer is still unspecified.
func buildLayers(spec *types.WorkflowSpec) ([][]string, error) {
	seen := make(map[string]bool, len(spec.Tasks))
	for _, t := range spec.Tasks {
		if t.ID == "" {
			return nil, &WorkflowValidationError{Workflow: spec.Name, Reason: "task with empty id"}
		}
		if seen[t.ID] {
			return nil, &WorkflowValidationError{
				Workflow: spec.Name,
				Reason:   fmt.Sprintf("duplicate task id %q", t.ID),
			}
		}
		seen[t.ID] = true
	}

	indegree := make(map[string]int, len(spec.Tasks))
	dependents := make(map[string][]string, len(spec.Tasks))
	for _, t := range spec.Tasks {
		indegree[t.ID] += 0
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return nil, &WorkflowValidationError{
					Workflow: spec.Name,
					Reason:   fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep),
				}
			}
			if dep == t.ID {
				return nil, &WorkflowCycleError{Workflow: spec.Name, Task: t.ID}
			}
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var layers [][]string
	visited := 0

	frontier := make([]string, 0, len(indegree))
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		sort.Strings(frontier)
		layers = append(layers, frontier)
		visited += len(frontier)

		var next []string
		for _, id := range frontier {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	if visited != len(spec.Tasks) {
		// Any task whose indegree never reached zero is on a cycle.
		var cycleTasks []string
		for id, deg := range indegree {
			if deg > 0 {
				cycleTasks = append(cycleTasks, id)
			}
		}
		sort.Strings(cycleTasks)
		return nil, &WorkflowCycleError{Workflow: spec.Name, Task: cycleTasks[0]}
	}

	return layers, nil
}

// transitiveDependents collects every task that directly or indirectly
// depends on root.
func transitiveDependents(spec *types.WorkflowSpec, root string) []string {
	dependents := make(map[string][]string, len(spec.Tasks))
	for _, t := range spec.Tasks {
		for _, dep := range t.DependsOn {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var out []string
	visited := map[string]bool{root: true}
	queue := append([]string(nil), dependents[root]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		out = append(out, id)
		queue = append(queue, dependents[id]...)
	}
	sort.Strings(out)
	return out
}
