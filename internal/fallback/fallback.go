// Package fallback supplies the deterministic dispatch schedulers invoked
// by the resilience controller when the CP solver driver cannot return even
// a feasible solution within budget. Every strategy here is built on
// internal/solver's shared placement core so it yields the same solution
// shape as the CP path, just under looser constraints or a cheaper
// dispatch order.
package fallback

import (
	"context"
	"sort"

	"github.com/northcloud/vulcan-scheduler/internal/cpmodel"
	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/solver"
)

// Quality scores by strategy severity. CP optimal/feasible scores (1.0,
// 0.7) are assigned by the caller that knows the solver's termination;
// these are strictly below 0.7 since every fallback only runs once the CP
// path has already failed outright.
const (
	QualityGreedyPriority  = 0.5
	QualityCriticalPathFirst = 0.55
	QualityRelaxed         = 0.3
)

// Strategy is one fallback heuristic.
type Strategy struct {
	Name    string
	Quality float64
	order   func(model cpmodel.Model) []cpmodel.TaskModel
	opts    solver.PlaceOptions
}

// GreedyPriorityDispatch orders ready tasks by highest priority, then
// lowest slack (due minus planned duration, a static approximation of
// earliest-possible-end ahead of actually placing anything), then lowest
// sequence, and places them under the full constraint set.
func GreedyPriorityDispatch() Strategy {
	return Strategy{
		Name:    "greedy_priority_dispatch",
		Quality: QualityGreedyPriority,
		order:   greedyPriorityOrder,
		opts:    solver.PlaceOptions{EnforceWIP: true, EnforceCalendar: true, PreferEfficiency: true},
	}
}

// CriticalPathFirst orders tasks on the longest-path (by planned duration)
// chain through the precedence graph ahead of everything else, then orders
// the remainder by longest remaining path, priority weight and sequence.
func CriticalPathFirst() Strategy {
	return Strategy{
		Name:    "critical_path_first",
		Quality: QualityCriticalPathFirst,
		order:   criticalPathOrder,
		opts:    solver.PlaceOptions{EnforceWIP: true, EnforceCalendar: true, PreferEfficiency: true},
	}
}

// Relaxed is the last-resort strategy: it drops operator-skill preference
// (any qualified operator will do, not the best fit) and the zone WIP
// limit, honoring only precedence, resource no-overlap and the business
// calendar.
func Relaxed() Strategy {
	return Strategy{
		Name:    "relaxed",
		Quality: QualityRelaxed,
		order:   greedyPriorityOrder,
		opts:    solver.PlaceOptions{EnforceWIP: false, EnforceCalendar: true, PreferEfficiency: false},
	}
}

// Default returns the three strategies in the escalation order the
// resilience controller should try them.
func Default() []Strategy {
	return []Strategy{GreedyPriorityDispatch(), CriticalPathFirst(), Relaxed()}
}

// Run places model's tasks under the strategy's dispatch order and
// constraint set. It ignores ctx cancellation mid-placement since Place
// is a single deterministic pass, not an iterative search; ctx is
// accepted to match the resilience controller's Fallback[T].Run shape.
func (s Strategy) Run(_ context.Context, model cpmodel.Model) (solver.Solution, float64, error) {
	order := s.order(model)
	sol, _, err := solver.Place(model, order, s.opts)
	if err != nil {
		return solver.Solution{}, 0, err
	}
	return sol, s.Quality, nil
}

func greedyPriorityOrder(model cpmodel.Model) []cpmodel.TaskModel {
	ordered := append([]cpmodel.TaskModel(nil), model.Tasks...)
	sort.SliceStable(ordered, func(i, k int) bool {
		a, b := ordered[i], ordered[k]
		if a.PriorityWeight != b.PriorityWeight {
			return a.PriorityWeight > b.PriorityWeight
		}
		slackA := a.DueMinute - a.Duration()
		slackB := b.DueMinute - b.Duration()
		if slackA != slackB {
			return slackA < slackB
		}
		return a.SequenceInJob < b.SequenceInJob
	})
	return ordered
}

// criticalPathOrder computes the longest remaining path (by planned
// duration) through each task, using the precedence edges model.Build
// derives, and sorts the critical-path tasks first, then by longest
// remaining path descending, priority weight descending and sequence
// ascending.
func criticalPathOrder(model cpmodel.Model) []cpmodel.TaskModel {
	successorsOf := make(map[domain.ID][]domain.ID)
	for _, p := range model.Precedences {
		successorsOf[p.PredecessorTaskID] = append(successorsOf[p.PredecessorTaskID], p.SuccessorTaskID)
	}

	byID := make(map[domain.ID]cpmodel.TaskModel, len(model.Tasks))
	for _, t := range model.Tasks {
		byID[t.TaskID] = t
	}

	longestFrom := make(map[domain.ID]int, len(model.Tasks))
	var visit func(id domain.ID) int
	visit = func(id domain.ID) int {
		if v, ok := longestFrom[id]; ok {
			return v
		}
		t := byID[id]
		best := 0
		for _, succ := range successorsOf[id] {
			if v := visit(succ); v > best {
				best = v
			}
		}
		total := t.Duration() + best
		longestFrom[id] = total
		return total
	}
	for _, t := range model.Tasks {
		visit(t.TaskID)
	}

	criticalLength := 0
	for _, v := range longestFrom {
		if v > criticalLength {
			criticalLength = v
		}
	}

	ordered := append([]cpmodel.TaskModel(nil), model.Tasks...)
	sort.SliceStable(ordered, func(i, k int) bool {
		a, b := ordered[i], ordered[k]
		aCritical := longestFrom[a.TaskID] == criticalLength
		bCritical := longestFrom[b.TaskID] == criticalLength
		if aCritical != bCritical {
			return aCritical
		}
		if longestFrom[a.TaskID] != longestFrom[b.TaskID] {
			return longestFrom[a.TaskID] > longestFrom[b.TaskID]
		}
		if a.PriorityWeight != b.PriorityWeight {
			return a.PriorityWeight > b.PriorityWeight
		}
		return a.SequenceInJob < b.SequenceInJob
	})
	return ordered
}
