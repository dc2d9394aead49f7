package solver

import (
	"math"
	"sort"
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/cpmodel"
	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
)

func minutesDuration(m int) time.Duration {
	return time.Duration(m) * time.Minute
}

// PlaceOptions configures how strictly Place enforces the non-precedence,
// non-overlap constraints of spec.md §4.2. The fallback heuristics (spec.md
// §4.4) reuse this same placement core with progressively looser options
// rather than re-deriving the constraint logic, so the CP path and every
// fallback strategy "yield the same solution shape" as required.
type PlaceOptions struct {
	// EnforceWIP checks the per-zone WIP limit. Dropped by the relaxed
	// fallback strategy.
	EnforceWIP bool
	// EnforceCalendar rejects placements overlapping non-working minutes.
	EnforceCalendar bool
	// PreferEfficiency picks the highest-efficiency operator per skill
	// slot (closer to optimal processing time); when false, the first
	// candidate in slot order is used, which is what the relaxed strategy
	// wants (only the minimum requirement matters, not best fit).
	PreferEfficiency bool
}

type interval struct{ start, end int }

func overlaps(a, b interval) bool { return a.start < b.end && b.start < a.end }

// Place runs one deterministic pass of list-scheduling over tasks in the
// given order: each task is placed on the earliest feasible (machine,
// operator-set) pairing that satisfies precedence, resource exclusivity,
// calendar containment (if enforced), and WIP (if enforced). It returns the
// task ids it could not place within the horizon, if any.
func Place(model cpmodel.Model, order []cpmodel.TaskModel, opts PlaceOptions) (Solution, []domain.ID, error) {
	machineBusy := make(map[domain.ID][]interval)
	operatorBusy := make(map[domain.ID][]interval)
	zoneBusy := make(map[string][]interval)
	taskEnd := make(map[domain.ID]int)

	predecessorsOf := make(map[domain.ID][]domain.ID)
	for _, p := range model.Precedences {
		predecessorsOf[p.SuccessorTaskID] = append(predecessorsOf[p.SuccessorTaskID], p.PredecessorTaskID)
	}

	zoneLimit := make(map[string]int)
	for _, z := range model.ZoneLimits {
		zoneLimit[z.Zone] = z.WIPLimit
	}

	assignments := make(map[domain.ID]Assignment, len(order))
	var infeasible []domain.ID

	for _, t := range order {
		earliestStart := 0
		for _, predID := range predecessorsOf[t.TaskID] {
			if end, ok := taskEnd[predID]; ok && end > earliestStart {
				earliestStart = end
			}
		}

		placed, ok := placeOneTask(model, t, earliestStart, opts, zoneLimit, machineBusy, operatorBusy, zoneBusy)
		if !ok {
			infeasible = append(infeasible, t.TaskID)
			continue
		}

		assignments[t.TaskID] = placed
		taskEnd[t.TaskID] = placed.EndMinute
		machineBusy[placed.MachineID] = append(machineBusy[placed.MachineID], interval{placed.StartMinute, placed.EndMinute})
		for _, opID := range placed.OperatorIDs {
			operatorBusy[opID] = append(operatorBusy[opID], interval{placed.StartMinute, placed.EndMinute})
		}
		if t.Zone != "" {
			zoneBusy[t.Zone] = append(zoneBusy[t.Zone], interval{placed.StartMinute, placed.EndMinute})
		}
	}

	if len(infeasible) > 0 {
		return Solution{}, infeasible, infraerrors.New(infraerrors.KindNoFeasibleSolution,
			"could not place every task within the horizon under the given constraints")
	}

	return buildSolution(model, order, assignments), nil, nil
}

// placeOneTask finds the earliest feasible placement for one task across its
// candidate machines, trying them in cost order so that among equally early
// placements the cheapest machine wins (a tie-break toward the secondary cost
// objective of spec.md §4.2).
func placeOneTask(
	model cpmodel.Model,
	t cpmodel.TaskModel,
	earliestStart int,
	opts PlaceOptions,
	zoneLimit map[string]int,
	machineBusy, operatorBusy map[domain.ID][]interval,
	zoneBusy map[string][]interval,
) (Assignment, bool) {
	machines := append([]cpmodel.CandidateMachine(nil), t.CandidateMachines...)
	sort.Slice(machines, func(i, k int) bool { return machines[i].CostPerMin < machines[k].CostPerMin })
	if len(machines) == 0 {
		return Assignment{}, false
	}

	operatorIDs, efficiency, ok := pickOperators(t.CandidateOperatorSlots, opts.PreferEfficiency)
	if !ok {
		return Assignment{}, false
	}

	processingAdjusted := t.ProcessingMinutes
	if efficiency > 0 {
		processingAdjusted = int(math.Ceil(float64(t.ProcessingMinutes) / efficiency))
	}
	duration := t.SetupMinutes + processingAdjusted

	var best Assignment
	found := false
	for _, m := range machines {
		start := earliestStart
		for attempts := 0; attempts < model.HorizonMinutes+1; attempts++ {
			end := start + duration
			if end > model.HorizonMinutes {
				break // this machine cannot fit the task; try the next one
			}

			if opts.EnforceCalendar && model.Calendar != nil {
				if badMinute, ok := firstNonWorkingMinute(model, start, end, t.LunchPauseable); ok {
					start = badMinute + 1
					continue
				}
			}

			window := interval{start, end}
			if conflictEnd, conflicts := firstConflict(machineBusy[m.MachineID], window); conflicts {
				start = conflictEnd
				continue
			}

			operatorConflict := false
			for _, opID := range operatorIDs {
				if conflictEnd, conflicts := firstConflict(operatorBusy[opID], window); conflicts {
					start = conflictEnd
					operatorConflict = true
					break
				}
			}
			if operatorConflict {
				continue
			}

			if opts.EnforceWIP && t.Zone != "" {
				if limit, hasLimit := zoneLimit[t.Zone]; hasLimit {
					if conflictEnd, exceeds := firstZoneOverflow(zoneBusy[t.Zone], window, limit); exceeds {
						start = conflictEnd
						continue
					}
				}
			}

			if !found || start < best.StartMinute {
				best = Assignment{
					TaskID:            t.TaskID,
					JobID:             t.JobID,
					MachineID:         m.MachineID,
					OperatorIDs:       operatorIDs,
					StartMinute:       start,
					EndMinute:         end,
					SetupMinutes:      t.SetupMinutes,
					ProcessingMinutes: processingAdjusted,
				}
				found = true
			}
			break
		}
	}

	return best, found
}

// pickOperators chooses one operator per required skill slot, returning the
// chosen operator ids and their average processing efficiency. Returns
// ok=false if any slot has no candidates (operator coverage unsatisfiable).
func pickOperators(slots [][]cpmodel.CandidateOperator, preferEfficiency bool) ([]domain.ID, float64, bool) {
	if len(slots) == 0 {
		return nil, 1.0, true
	}

	ids := make([]domain.ID, 0, len(slots))
	var totalEfficiency float64
	for _, slot := range slots {
		if len(slot) == 0 {
			return nil, 0, false
		}
		candidates := append([]cpmodel.CandidateOperator(nil), slot...)
		if preferEfficiency {
			sort.Slice(candidates, func(i, k int) bool { return candidates[i].Efficiency > candidates[k].Efficiency })
		}
		chosen := candidates[0]
		ids = append(ids, chosen.OperatorID)
		totalEfficiency += chosen.Efficiency
	}
	return ids, totalEfficiency / float64(len(slots)), true
}

// firstConflict reports the latest end minute among the intervals in busy
// that overlap window, if any overlaps.
func firstConflict(busy []interval, window interval) (int, bool) {
	latestEnd := -1
	for _, b := range busy {
		if overlaps(b, window) && b.end > latestEnd {
			latestEnd = b.end
		}
	}
	if latestEnd < 0 {
		return 0, false
	}
	return latestEnd, true
}

// firstZoneOverflow counts every busy interval that overlaps window, plus the
// window itself; if that count exceeds limit it reports the earliest end
// minute among the overlapping intervals. The count does not check whether
// those intervals overlap each other, so it can reject a window whose
// concurrency at every single instant is within limit.
func firstZoneOverflow(busy []interval, window interval, limit int) (int, bool) {
	overlapping := make([]interval, 0, len(busy))
	for _, b := range busy {
		if overlaps(b, window) {
			overlapping = append(overlapping, b)
		}
	}
	if len(overlapping)+1 <= limit {
		return 0, false
	}
	sort.Slice(overlapping, func(i, k int) bool { return overlapping[i].end < overlapping[k].end })
	return overlapping[0].end, true
}

// firstNonWorkingMinute scans [start,end) for the first minute that is not
// a working minute under the model's calendar, returning it if found.
// Lunch-pauseable tasks may straddle the lunch window, so those minutes are
// not treated as non-working for them.
func firstNonWorkingMinute(model cpmodel.Model, start, end int, lunchPauseable bool) (int, bool) {
	for m := start; m < end; m++ {
		wall := model.Origin.Add(minutesDuration(m))
		if model.Calendar.IsWorking(wall) {
			continue
		}
		if lunchPauseable && model.Calendar.IsWorkingIgnoringLunch(wall) {
			continue
		}
		return m, true
	}
	return 0, false
}

// buildSolution derives the metrics spec.md §4.3 asks the solver driver to
// extract from a completed placement.
func buildSolution(model cpmodel.Model, order []cpmodel.TaskModel, assignments map[domain.ID]Assignment) Solution {
	machineByID := make(map[domain.ID]cpmodel.CandidateMachine)
	operatorByID := make(map[domain.ID]cpmodel.CandidateOperator)
	for _, t := range order {
		for _, m := range t.CandidateMachines {
			machineByID[m.MachineID] = m
		}
		for _, slot := range t.CandidateOperatorSlots {
			for _, o := range slot {
				operatorByID[o.OperatorID] = o
			}
		}
	}

	makespan := 0
	totalCost := 0.0
	machineBusyMinutes := make(map[domain.ID]int)
	operatorBusyMinutes := make(map[domain.ID]int)
	jobLastEnd := make(map[domain.ID]int)
	jobDue := make(map[domain.ID]int)

	for _, t := range order {
		jobDue[t.JobID] = t.DueMinute
	}

	for _, a := range assignments {
		if a.EndMinute > makespan {
			makespan = a.EndMinute
		}
		if a.EndMinute > jobLastEnd[a.JobID] {
			jobLastEnd[a.JobID] = a.EndMinute
		}

		duration := a.SetupMinutes + a.ProcessingMinutes
		machineBusyMinutes[a.MachineID] += duration
		if mc, ok := machineByID[a.MachineID]; ok {
			totalCost += mc.CostPerMin * float64(duration)
		}
		for _, opID := range a.OperatorIDs {
			operatorBusyMinutes[opID] += a.ProcessingMinutes
			if oc, ok := operatorByID[opID]; ok {
				totalCost += oc.RatePerMin * float64(a.ProcessingMinutes)
			}
		}
	}

	jobTardiness := make(map[domain.ID]int, len(jobLastEnd))
	for jobID, lastEnd := range jobLastEnd {
		tardiness := lastEnd - jobDue[jobID]
		if tardiness < 0 {
			tardiness = 0
		}
		jobTardiness[jobID] = tardiness
	}

	horizon := model.HorizonMinutes
	machineUtil := make(map[domain.ID]float64, len(machineBusyMinutes))
	for id, busy := range machineBusyMinutes {
		if horizon > 0 {
			machineUtil[id] = float64(busy) / float64(horizon)
		}
	}
	operatorUtil := make(map[domain.ID]float64, len(operatorBusyMinutes))
	for id, busy := range operatorBusyMinutes {
		if horizon > 0 {
			operatorUtil[id] = float64(busy) / float64(horizon)
		}
	}

	return Solution{
		Assignments:         assignments,
		MakespanMinutes:     makespan,
		JobTardinessMinutes: jobTardiness,
		TotalCost:           totalCost,
		MachineUtilization:  machineUtil,
		OperatorUtilization: operatorUtil,
	}
}
