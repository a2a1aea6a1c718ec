package orchestrator

import (
	"sort"

	"github.com/aescanero/carecoord/pkg/domain"
	"go.uber.org/zap"
)

// Dependencies maps a task id to the ids of the tasks producing its inputs.
type Dependencies map[string][]string

// Sequencer orders plan entries by data dependency and priority.
type Sequencer struct {
	logger *zap.Logger
}

// NewSequencer creates a new task sequencer.
func NewSequencer(logger *zap.Logger) *Sequencer {
	return &Sequencer{logger: logger}
}

// Sequence runs the topological pass and then the priority pass.
//
// The priority pass reorders each priority band on its own and does not
// re-check dependencies, so two equal-priority tasks that depend on each other
// through a different band can end up out of dependency order.
func (s *Sequencer) Sequence(plan []domain.PlanEntry) ([]domain.PlanEntry, error) {
	deps := BuildDependencies(plan)

	ordered, err := TopologicalOrder(plan, deps)
	if err != nil {
		s.logger.Warn("plan sequencing failed", zap.Error(err))
		return nil, err
	}

	sequenced := PriorityOrder(ordered, deps)

	ids := make([]string, len(sequenced))
	for i, task := range sequenced {
		ids[i] = task.TaskID()
	}
	s.logger.Debug("plan sequenced", zap.Strings("order", ids))

	return sequenced, nil
}

// BuildDependencies indexes every declared output by its producing task and
// resolves each task's inputs against that index. Inputs nobody produces are
// ignored. When several tasks declare the same output the last one wins.
func BuildDependencies(plan []domain.PlanEntry) Dependencies {
	producers := make(map[string]string)
	for _, task := range plan {
		for _, output := range task.Outputs {
			producers[output] = task.TaskID()
		}
	}

	deps := make(Dependencies, len(plan))
	for _, task := range plan {
		id := task.TaskID()
		if _, ok := deps[id]; !ok {
			deps[id] = []string{}
		}
		for _, input := range task.Inputs {
			producer, ok := producers[input]
			if !ok || contains(deps[id], producer) {
				continue
			}
			deps[id] = append(deps[id], producer)
		}
	}

	return deps
}

// TopologicalOrder performs a depth-first ordering of plan over deps. Entries
// sharing a task id are emitted together at that id's position. A task seen
// again while still on the DFS path fails the whole call with a *CycleError.
func TopologicalOrder(plan []domain.PlanEntry, deps Dependencies) ([]domain.PlanEntry, error) {
	byID := make(map[string][]domain.PlanEntry, len(plan))
	for _, task := range plan {
		id := task.TaskID()
		byID[id] = append(byID[id], task)
	}

	ordered := make([]domain.PlanEntry, 0, len(plan))
	visited := make(map[string]bool, len(byID))
	onPath := make(map[string]bool)
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		if onPath[id] {
			return &CycleError{Path: cyclePath(path, id)}
		}
		if visited[id] {
			return nil
		}

		onPath[id] = true
		path = append(path, id)

		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		delete(onPath, id)
		visited[id] = true
		ordered = append(ordered, byID[id]...)

		return nil
	}

	for _, task := range plan {
		if err := visit(task.TaskID()); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}

// PriorityOrder groups tasks into high, medium and low bands and sorts each
// band by ascending dependency count. The sort is stable, so ties keep their
// topological order.
func PriorityOrder(ordered []domain.PlanEntry, deps Dependencies) []domain.PlanEntry {
	bands := map[domain.Priority][]domain.PlanEntry{}
	for _, task := range ordered {
		p := task.Priority.Normalize()
		bands[p] = append(bands[p], task)
	}

	result := make([]domain.PlanEntry, 0, len(ordered))
	for _, p := range []domain.Priority{domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow} {
		band := bands[p]
		sort.SliceStable(band, func(i, j int) bool {
			return len(deps[band[i].TaskID()]) < len(deps[band[j].TaskID()])
		})
		result = append(result, band...)
	}

	return result
}

// cyclePath returns the part of path starting at id, closed with id.
func cyclePath(path []string, id string) []string {
	for i, p := range path {
		if p == id {
			cycle := make([]string, 0, len(path)-i+1)
			cycle = append(cycle, path[i:]...)
			return append(cycle, id)
		}
	}
	return []string{id, id}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
