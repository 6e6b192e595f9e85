package orchestrator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mtzanidakis/studioflow/internal/apperr"
)

// stepID is the name After references use: the explicit ID, or the agent.
func (s Step) stepID() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Agent
}

// planTiers groups step indexes into tiers. Steps within a tier run
// concurrently and each tier starts once the previous one is done.
// Without any After references every step is its own tier, in order.
func planTiers(steps []Step) ([][]int, error) {
	planned := false
	for _, s := range steps {
		if len(s.After) > 0 {
			planned = true
			break
		}
	}
	if !planned {
		tiers := make([][]int, len(steps))
		for i := range steps {
			tiers[i] = []int{i}
		}
		return tiers, nil
	}

	index := make(map[string]int, len(steps))
	for i, s := range steps {
		id := s.stepID()
		if _, dup := index[id]; dup {
			return nil, apperr.Validation("workflow step %q is defined twice; set distinct ids", id)
		}
		index[id] = i
	}

	edges := make(map[int][]int) // from -> []to
	inDegree := make([]int, len(steps))
	for i, s := range steps {
		for _, dep := range s.After {
			from, ok := index[dep]
			if !ok {
				return nil, apperr.Validation("workflow step %q waits for unknown step %q", s.stepID(), dep)
			}
			if from == i {
				return nil, apperr.Validation("workflow step %q waits for itself", dep)
			}
			edges[from] = append(edges[from], i)
			inDegree[i]++
		}
	}

	// Kahn's algorithm, grouping by depth
	depth := make([]int, len(steps))
	var queue []int
	for i, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}
	processed := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		processed++

		for _, next := range edges[node] {
			inDegree[next]--
			if depth[node]+1 > depth[next] {
				depth[next] = depth[node] + 1
			}
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed != len(steps) {
		return nil, apperr.Wrap(apperr.KindValidation, errCycle, "plan workflow")
	}

	maxDepth := 0
	for _, d := range depth {
		maxDepth = max(maxDepth, d)
	}
	tiers := make([][]int, maxDepth+1)
	for i, d := range depth {
		tiers[d] = append(tiers[d], i)
	}
	for _, t := range tiers {
		sort.Ints(t)
	}
	return tiers, nil
}

var errCycle = errors.New("step dependencies contain a cycle")

func describeTiers(steps []Step, tiers [][]int) []string {
	out := make([]string, 0, len(tiers))
	for _, t := range tiers {
		ids := make([]string, 0, len(t))
		for _, i := range t {
			ids = append(ids, steps[i].stepID())
		}
		out = append(out, fmt.Sprint(ids))
	}
	return out
}
