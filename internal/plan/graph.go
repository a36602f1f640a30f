package plan

import "fmt"

// executionGroup is a set of arena indices that run concurrently. Groups run
// sequentially in the order returned.
type executionGroup []int

// topoGroups orders a plan's actions for execution. Actions are arena-indexed
// into the plan's slice; dependency edges are index references.
//
// Layering is by dependency depth: an action's layer is one past its
// dependency's. Within a layer, actions sharing a non-empty ParallelGroup
// form one concurrent group; actions without a group run as singletons.
// Group order within a layer follows first appearance in the plan, which
// keeps aggregation deterministic.
func topoGroups(p *Plan) ([]executionGroup, error) {
	index := make(map[string]int, len(p.Actions))
	for i, a := range p.Actions {
		if _, dup := index[a.ID]; dup {
			return nil, fmt.Errorf("duplicate action id %q", a.ID)
		}
		index[a.ID] = i
	}

	depth := make([]int, len(p.Actions))
	maxDepth := 0
	for i, a := range p.Actions {
		if a.DependsOn == "" {
			continue
		}
		dep, ok := index[a.DependsOn]
		if !ok {
			return nil, fmt.Errorf("action %q depends on unknown action %q", a.ID, a.DependsOn)
		}
		if dep >= i {
			return nil, fmt.Errorf("action %q depends on a later action %q", a.ID, a.DependsOn)
		}
		depth[i] = depth[dep] + 1
		if depth[i] > maxDepth {
			maxDepth = depth[i]
		}
	}

	var groups []executionGroup
	for layer := 0; layer <= maxDepth; layer++ {
		grouped := make(map[string]int) // parallel_group id -> groups index
		for i, a := range p.Actions {
			if depth[i] != layer {
				continue
			}
			if a.ParallelGroup == "" {
				groups = append(groups, executionGroup{i})
				continue
			}
			if gi, ok := grouped[a.ParallelGroup]; ok {
				groups[gi] = append(groups[gi], i)
				continue
			}
			grouped[a.ParallelGroup] = len(groups)
			groups = append(groups, executionGroup{i})
		}
	}
	return groups, nil
}
