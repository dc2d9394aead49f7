// Package optimization is the top-level service unifying the constraint
// model builder, solver driver, resilience controller, fallback
// heuristics, unit of work, and event bus into the single entry point
// spec.md §2 describes: every solve goes through the resilience
// controller, there is no "plain" path that skips retries/breaker/
// fallbacks (spec.md §9's open-question resolution folds the source's
// two overlapping service tiers into this one service).
package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/northcloud/vulcan-scheduler/internal/apitypes"
	"github.com/northcloud/vulcan-scheduler/internal/calendar"
	"github.com/northcloud/vulcan-scheduler/internal/cpmodel"
	"github.com/northcloud/vulcan-scheduler/internal/domain"
	"github.com/northcloud/vulcan-scheduler/internal/eventbus"
	"github.com/northcloud/vulcan-scheduler/internal/fallback"
	"github.com/northcloud/vulcan-scheduler/internal/infraerrors"
	"github.com/northcloud/vulcan-scheduler/internal/logger"
	"github.com/northcloud/vulcan-scheduler/internal/metrics"
	"github.com/northcloud/vulcan-scheduler/internal/repository"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/controller"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/memguard"
	"github.com/northcloud/vulcan-scheduler/internal/solver"
	"github.com/northcloud/vulcan-scheduler/internal/unitofwork"
)

// Limits are the advertised and enforced request limits of spec.md §6.
type Limits struct {
	MaxJobsPerRequest int
	MaxTasksPerJob    int
	MaxHorizonDays    int
	MaxSolveSeconds   float64
	MaxMemoryMB       int
	MaxRetryAttempts  int
}

// DefaultLimits returns spec.md §6's advertised limits.
func DefaultLimits() Limits {
	return Limits{
		MaxJobsPerRequest: 50,
		MaxTasksPerJob:    100,
		MaxHorizonDays:    90,
		MaxSolveSeconds:   3600,
		MaxMemoryMB:       4096,
		MaxRetryAttempts:  5,
	}
}

// Config configures an OptimizationService.
type Config struct {
	Limits           Limits
	DefaultCalendar  calendar.Config
	ControllerConfig controller.Config
	UnitOfWorkConfig unitofwork.RunConfig
}

// OptimizationService is the single entry point for solving, re-solving,
// and health reporting (spec.md §2, §4.5, §6).
type OptimizationService struct {
	repos      repository.Repositories
	bus        *eventbus.Bus
	tx         unitofwork.TxController
	log        logger.Logger
	cfg        Config
	controller *controller.Controller
	driver     *solver.Driver
	cron       *cron.Cron
	metrics    *metrics.Metrics
}

// Option configures an OptimizationService.
type Option func(*OptimizationService)

// WithEngine overrides the solver engine (defaults to solver.NewBuiltinEngine()).
func WithEngine(engine solver.Engine) Option {
	return func(s *OptimizationService) { s.driver = solver.New(engine) }
}

// WithTxController overrides the unit of work's transaction backend
// (defaults to unitofwork.NoopTxController{}, appropriate for
// memstore-backed repositories).
func WithTxController(tx unitofwork.TxController) Option {
	return func(s *OptimizationService) { s.tx = tx }
}

// WithMetrics attaches a Prometheus metrics registry; every Solve records
// its terminal status, duration, and quality score, and the resilience
// controller's circuit breaker/retry/fallback activity is reflected into
// it as each solve completes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *OptimizationService) { s.metrics = m }
}

// New constructs an OptimizationService.
func New(repos repository.Repositories, bus *eventbus.Bus, log logger.Logger, cfg Config, opts ...Option) *OptimizationService {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}

	s := &OptimizationService{
		repos:      repos,
		bus:        bus,
		tx:         unitofwork.NoopTxController{},
		log:        log,
		cfg:        cfg,
		controller: controller.New(cfg.ControllerConfig),
		driver:     solver.New(solver.NewBuiltinEngine()),
		cron:       cron.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartPeriodicResolve registers a cron-scheduled re-solve of every active
// job and starts the scheduler. The spec expression follows the standard
// five-field cron syntax (e.g. "0 */4 * * *" for every four hours).
func (s *OptimizationService) StartPeriodicResolve(spec string, onResult func(apitypes.SolveResponse, error)) error {
	_, err := s.cron.AddFunc(spec, func() {
		resp, err := s.ResolveActiveJobs(context.Background())
		if onResult != nil {
			onResult(resp, err)
		}
	})
	if err != nil {
		return fmt.Errorf("optimization: invalid cron spec %q: %w", spec, err)
	}
	s.cron.Start()
	return nil
}

// StopPeriodicResolve stops the cron scheduler, waiting for any running
// job to finish.
func (s *OptimizationService) StopPeriodicResolve() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ResolveActiveJobs re-solves a schedule covering every currently active
// job, requesting every one of each job's tasks with the job's own due date
// (the periodic trigger re-optimizes the whole active backlog rather than
// one named request).
func (s *OptimizationService) ResolveActiveJobs(ctx context.Context) (apitypes.SolveResponse, error) {
	jobs, err := s.repos.Jobs.ListActive(ctx)
	if err != nil {
		return apitypes.SolveResponse{}, infraerrors.Wrap(infraerrors.KindDatabaseError, "list active jobs", err)
	}

	req := apitypes.SolveRequest{
		ProblemName:       "periodic-resolve",
		ScheduleStartTime: time.Now(),
		OptimizationParameters: apitypes.OptimizationParameters{
			MaxTimeSeconds: 60,
			HorizonDays:    s.cfg.Limits.MaxHorizonDays,
		},
	}
	for _, j := range jobs {
		var seqs []int
		for _, t := range j.OrderedTasks() {
			seqs = append(seqs, t.SequenceInJob)
		}
		req.Jobs = append(req.Jobs, apitypes.JobRequest{
			JobNumber:     j.JobNumber,
			Priority:      string(j.Priority),
			DueDate:       j.DueDate,
			Quantity:      j.Quantity,
			TaskSequences: seqs,
		})
	}

	return s.Solve(ctx, req)
}

// Solve runs one optimization request end to end: validate limits, build
// the CP model from persisted aggregates, run the solver driver under
// the full resilience stack (retry, circuit breaker, timeout, memory
// guard, fallback sequencing), persist the resulting Schedule inside a
// unit of work, and return the conceptual response of spec.md §6.
func (s *OptimizationService) Solve(ctx context.Context, req apitypes.SolveRequest) (apitypes.SolveResponse, error) {
	started := time.Now()

	if err := s.validateRequest(req); err != nil {
		return apitypes.SolveResponse{ProblemName: req.ProblemName, Success: false, Message: err.Error()}, err
	}

	cal, err := s.calendarFor(req)
	if err != nil {
		return apitypes.SolveResponse{}, infraerrors.Wrap(infraerrors.KindValidation, "build business calendar", err)
	}

	horizonMinutes := req.OptimizationParameters.HorizonDays * 24 * 60
	if horizonMinutes <= 0 {
		horizonMinutes = s.cfg.Limits.MaxHorizonDays * 24 * 60
	}

	jobByNumber := make(map[string]*domain.Job, len(req.Jobs))
	model, err := s.buildModel(ctx, req, cal, horizonMinutes, jobByNumber)
	if err != nil {
		return apitypes.SolveResponse{ProblemName: req.ProblemName, Success: false, Message: err.Error()}, err
	}

	params := solver.Params{
		MaxTimeSeconds: req.OptimizationParameters.MaxTimeSeconds,
		NumWorkers:     req.OptimizationParameters.NumWorkers,
		MemoryLimitMB:  s.cfg.Limits.MaxMemoryMB,
	}

	outcome, solveErr := s.runResilientSolve(ctx, req.ProblemName, model, params)

	resp := s.buildResponse(req, outcome, solveErr, started)
	s.recordMetrics(req.ProblemName, resp, outcome)
	if solveErr != nil {
		return resp, solveErr
	}

	schedule, err := s.persist(ctx, req, model, outcome.Value, jobByNumber)
	if err != nil {
		return resp, err
	}
	resp.Message = fmt.Sprintf("schedule %s persisted", schedule.ID)

	return resp, nil
}

func (s *OptimizationService) validateRequest(req apitypes.SolveRequest) error {
	limits := s.cfg.Limits
	if len(req.Jobs) == 0 {
		return infraerrors.New(infraerrors.KindValidation, "at least one job is required")
	}
	if len(req.Jobs) > limits.MaxJobsPerRequest {
		return infraerrors.New(infraerrors.KindValidation, fmt.Sprintf("request carries %d jobs, limit is %d", len(req.Jobs), limits.MaxJobsPerRequest))
	}
	for _, j := range req.Jobs {
		if len(j.TaskSequences) > limits.MaxTasksPerJob {
			return infraerrors.New(infraerrors.KindValidation, fmt.Sprintf("job %s carries %d tasks, limit is %d", j.JobNumber, len(j.TaskSequences), limits.MaxTasksPerJob))
		}
		for _, seq := range j.TaskSequences {
			if seq < 1 || seq > 100 {
				return infraerrors.New(infraerrors.KindValidation, fmt.Sprintf("job %s: sequence_in_job %d out of [1,100]", j.JobNumber, seq))
			}
		}
	}
	if req.OptimizationParameters.MaxTimeSeconds > limits.MaxSolveSeconds {
		return infraerrors.New(infraerrors.KindValidation, fmt.Sprintf("max_time_seconds %v exceeds limit %v", req.OptimizationParameters.MaxTimeSeconds, limits.MaxSolveSeconds))
	}
	if req.OptimizationParameters.HorizonDays > limits.MaxHorizonDays {
		return infraerrors.New(infraerrors.KindValidation, fmt.Sprintf("horizon_days %d exceeds limit %d", req.OptimizationParameters.HorizonDays, limits.MaxHorizonDays))
	}
	return nil
}

func (s *OptimizationService) calendarFor(req apitypes.SolveRequest) (*calendar.BusinessCalendar, error) {
	cfg := s.cfg.DefaultCalendar
	if bc := req.BusinessConstraints; bc != nil {
		cfg.WorkStartHour = bc.WorkStartHour
		cfg.WorkEndHour = bc.WorkEndHour
		cfg.LunchStartHour = bc.LunchStartHour
		cfg.LunchDurationMinutes = bc.LunchDurationMinutes
		for _, dayOffset := range bc.HolidayDays {
			cfg.HolidayDates = append(cfg.HolidayDates, req.ScheduleStartTime.AddDate(0, 0, dayOffset))
		}
	}
	return calendar.New(cfg)
}

// buildModel resolves each requested job/task against the persisted
// aggregates and repository-held resources, translating them through
// cpmodel.Builder. Jobs are looked up by job_number; task_sequences
// (when given) scope the solve to a subset of an existing job's tasks.
func (s *OptimizationService) buildModel(ctx context.Context, req apitypes.SolveRequest, cal *calendar.BusinessCalendar, horizonMinutes int, jobByNumber map[string]*domain.Job) (cpmodel.Model, error) {
	machines, err := s.repos.Machines.ListAvailable(ctx)
	if err != nil {
		return cpmodel.Model{}, infraerrors.Wrap(infraerrors.KindDatabaseError, "list available machines", err)
	}
	operators, err := s.repos.Operators.ListAvailable(ctx)
	if err != nil {
		return cpmodel.Model{}, infraerrors.Wrap(infraerrors.KindDatabaseError, "list available operators", err)
	}

	objective := cpmodel.ObjectiveWeights{
		Makespan:           req.OptimizationParameters.PrimaryObjectiveWeight,
		Tardiness:          1 - req.OptimizationParameters.PrimaryObjectiveWeight,
		EnableHierarchical: req.OptimizationParameters.EnableHierarchicalOptimization,
		SecondaryTolerance: req.OptimizationParameters.CostOptimizationTolerance,
	}
	if objective.Makespan == 0 && objective.Tardiness == 0 {
		objective.Makespan, objective.Tardiness = 1, 1
	}

	builder := cpmodel.NewBuilder(req.ScheduleStartTime, horizonMinutes, cal, objective)

	for _, jr := range req.Jobs {
		job, err := s.repos.Jobs.GetByJobNumber(ctx, jr.JobNumber)
		if err != nil {
			return cpmodel.Model{}, infraerrors.Wrap(infraerrors.KindEntityNotFound, fmt.Sprintf("job %s", jr.JobNumber), err)
		}
		jobByNumber[jr.JobNumber] = job

		wanted := make(map[int]bool, len(jr.TaskSequences))
		for _, seq := range jr.TaskSequences {
			wanted[seq] = true
		}

		for _, task := range job.OrderedTasks() {
			if len(wanted) > 0 && !wanted[task.SequenceInJob] {
				continue
			}

			// An empty candidateMachines here (no available machine capable of
			// task.OperationID) is not a builder error: it yields an
			// unsatisfiable TaskModel that the solver/fallback layers report as
			// part of an ordinary INFEASIBLE/NO_FEASIBLE_SOLUTION outcome, the
			// same way an empty operator slot does (cpmodel.Builder.AddTask).
			candidateMachines := candidateMachinesFor(machines, task.OperationID)

			operatorSlots := candidateOperatorSlotsFor(operators, task.SkillRequirements)

			zone := ""
			if len(candidateMachines) > 0 {
				zone = machineZone(machines, candidateMachines[0].MachineID)
			}

			if err := builder.AddTask(task, job, candidateMachines, operatorSlots, zone, false); err != nil {
				return cpmodel.Model{}, err
			}
		}
	}

	return builder.Build()
}

func candidateMachinesFor(machines []*domain.Machine, operationID string) []cpmodel.CandidateMachine {
	var out []cpmodel.CandidateMachine
	for _, m := range machines {
		if !m.HasCapability(operationID) {
			continue
		}
		out = append(out, cpmodel.CandidateMachine{MachineID: m.ID, CostPerMin: 1.0})
	}
	return out
}

func machineZone(machines []*domain.Machine, id domain.ID) string {
	for _, m := range machines {
		if m.ID == id {
			return m.Zone
		}
	}
	return ""
}

func candidateOperatorSlotsFor(operators []*domain.Operator, requirements []domain.SkillRequirement) [][]cpmodel.CandidateOperator {
	if len(requirements) == 0 {
		return nil
	}

	slots := make([][]cpmodel.CandidateOperator, 0, len(requirements))
	for _, req := range requirements {
		var slot []cpmodel.CandidateOperator
		for _, op := range operators {
			skill, score, ok := op.BestMatch(req)
			if !ok {
				continue
			}
			slot = append(slot, cpmodel.CandidateOperator{
				OperatorID: op.ID,
				Efficiency: skill.Effectiveness(),
				RatePerMin: 1.0 * score,
			})
		}
		slots = append(slots, slot)
	}
	return slots
}

// runResilientSolve wraps the solver driver and the fallback escalation
// ladder behind the resilience controller (spec.md §4.5).
func (s *OptimizationService) runResilientSolve(ctx context.Context, key string, model cpmodel.Model, params solver.Params) (controller.Outcome[solver.Solution], error) {
	size := memguard.ModelSize{
		NumTasks:       len(model.Tasks),
		NumMachines:    countDistinctMachines(model),
		NumOperators:   countDistinctOperators(model),
		HorizonMinutes: model.HorizonMinutes,
	}

	primary := func(ctx context.Context) (solver.Solution, float64, error) {
		result, err := s.driver.Run(ctx, model, params, nil)
		if err != nil {
			return solver.Solution{}, 0, err
		}
		switch result.Termination {
		case solver.TerminationOptimal:
			return result.Solution, 1.0, nil
		case solver.TerminationFeasible:
			return result.Solution, 0.7, nil
		default:
			return solver.Solution{}, 0, infraerrors.New(infraerrors.KindNoFeasibleSolution,
				fmt.Sprintf("solver terminated %s", result.Termination))
		}
	}

	var fallbacks []controller.Fallback[solver.Solution]
	for _, strategy := range fallback.Default() {
		strategy := strategy
		fallbacks = append(fallbacks, controller.Fallback[solver.Solution]{
			Name: strategy.Name,
			Run: func(ctx context.Context) (solver.Solution, float64, error) {
				return strategy.Run(ctx, model)
			},
		})
	}

	return controller.Execute(ctx, s.controller, key, size, primary, fallbacks)
}

func countDistinctMachines(model cpmodel.Model) int {
	seen := make(map[domain.ID]bool)
	for _, t := range model.Tasks {
		for _, m := range t.CandidateMachines {
			seen[m.MachineID] = true
		}
	}
	return len(seen)
}

func countDistinctOperators(model cpmodel.Model) int {
	seen := make(map[domain.ID]bool)
	for _, t := range model.Tasks {
		for _, slot := range t.CandidateOperatorSlots {
			for _, o := range slot {
				seen[o.OperatorID] = true
			}
		}
	}
	return len(seen)
}

// persist opens a unit of work, records the solved Schedule and the
// per-task scheduling on each Job aggregate, and publishes
// EventScheduleOptimized once committed.
func (s *OptimizationService) persist(ctx context.Context, req apitypes.SolveRequest, model cpmodel.Model, sol solver.Solution, jobByNumber map[string]*domain.Job) (*domain.Schedule, error) {
	now := req.ScheduleStartTime
	end := model.Origin.Add(time.Duration(sol.MakespanMinutes) * time.Minute)
	if !end.After(now) {
		end = now.Add(time.Minute)
	}

	var jobIDs []domain.ID
	for _, j := range jobByNumber {
		jobIDs = append(jobIDs, j.ID)
	}

	schedule, err := domain.NewSchedule(req.ProblemName, "optimization service output", now, end, jobIDs, now)
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.KindValidation, "construct schedule", err)
	}
	var totalTardiness float64
	for _, t := range sol.JobTardinessMinutes {
		totalTardiness += float64(t)
	}
	schedule.Metrics = domain.ScheduleMetrics{
		MakespanMinutes: float64(sol.MakespanMinutes),
		TotalTardiness:  totalTardiness,
		TotalCost:       sol.TotalCost,
	}

	metrics, runErr := unitofwork.Run(ctx, s.tx, s.repos, s.bus, s.cfg.UnitOfWorkConfig, func(ctx context.Context, uow *unitofwork.UnitOfWork) error {
		repos := uow.Repositories()

		for taskID, a := range sol.Assignments {
			assignment, err := domain.NewScheduleAssignment(taskID, a.MachineID, a.OperatorIDs,
				model.Origin.Add(time.Duration(a.StartMinute)*time.Minute),
				float64(a.SetupMinutes), float64(a.ProcessingMinutes), len(a.OperatorIDs) > 0)
			if err != nil {
				return err
			}
			if err := schedule.SetAssignment(assignment); err != nil {
				return err
			}
		}

		if err := repos.Schedules.Create(ctx, schedule); err != nil {
			return err
		}
		uow.Flush()

		for jobNumber, job := range jobByNumber {
			updated := false
			for _, task := range job.OrderedTasks() {
				a, ok := sol.Assignments[task.ID]
				if !ok {
					continue
				}
				start := model.Origin.Add(time.Duration(a.StartMinute) * time.Minute)
				taskEnd := model.Origin.Add(time.Duration(a.EndMinute) * time.Minute)
				if err := task.SetSchedule(a.MachineID, start, taskEnd); err != nil {
					return err
				}
				updated = true
			}
			if !updated {
				continue
			}
			if err := repos.Jobs.Update(ctx, job); err != nil {
				return infraerrors.Wrap(infraerrors.KindDatabaseError, fmt.Sprintf("update job %s", jobNumber), err)
			}
			uow.Flush()
		}

		uow.Publish(domain.NewDomainEvent(domain.EventScheduleOptimized, schedule.ID, domain.ScheduleOptimizedPayload{
			Status:       string(schedule.Status),
			QualityScore: 1.0,
		}, now))
		return nil
	})
	if runErr != nil {
		return nil, runErr
	}

	s.log.Info("schedule optimized", logger.String("problem_name", req.ProblemName), logger.Int("flushed", metrics.FlushedCount))
	return schedule, nil
}

func (s *OptimizationService) buildResponse(req apitypes.SolveRequest, outcome controller.Outcome[solver.Solution], solveErr error, started time.Time) apitypes.SolveResponse {
	elapsed := time.Since(started).Seconds()

	resp := apitypes.SolveResponse{
		ProblemName:           req.ProblemName,
		ProcessingTimeSeconds: elapsed,
		Resilience: apitypes.ResilienceInfo{
			FallbackUsed:            outcome.FallbackUsed,
			FallbackName:            outcome.FallbackName,
			CircuitBreakerTriggered: outcome.CircuitBreakerTriggered,
			RetryAttempts:           outcome.RetryAttempts,
			QualityScore:            outcome.QualityScore,
			Warnings:                outcome.Warnings,
		},
	}

	if solveErr != nil {
		resp.Success = false
		resp.Status = apitypes.StatusInfeasible
		resp.Message = solveErr.Error()
		return resp
	}

	sol := outcome.Value
	resp.Success = true
	switch {
	case outcome.FallbackUsed:
		resp.Status = apitypes.StatusFallbackSuccess
	case outcome.QualityScore >= 1.0:
		resp.Status = apitypes.StatusOptimal
	default:
		resp.Status = apitypes.StatusFeasible
	}

	onTime, late := 0, 0
	for _, t := range sol.JobTardinessMinutes {
		if t > 0 {
			late++
		} else {
			onTime++
		}
	}

	var machineUtilSum, operatorUtilSum float64
	for _, u := range sol.MachineUtilization {
		machineUtilSum += u
	}
	for _, u := range sol.OperatorUtilization {
		operatorUtilSum += u
	}
	var machineUtilAvg, operatorUtilAvg float64
	if n := len(sol.MachineUtilization); n > 0 {
		machineUtilAvg = machineUtilSum / float64(n) * 100
	}
	if n := len(sol.OperatorUtilization); n > 0 {
		operatorUtilAvg = operatorUtilSum / float64(n) * 100
	}

	var totalTardiness float64
	for _, t := range sol.JobTardinessMinutes {
		totalTardiness += float64(t)
	}

	resp.Metrics = apitypes.Metrics{
		MakespanMinutes:            float64(sol.MakespanMinutes),
		TotalTardinessMinutes:      totalTardiness,
		TotalOperatorCost:          sol.TotalCost,
		MachineUtilizationPercent:  machineUtilAvg,
		OperatorUtilizationPercent: operatorUtilAvg,
		JobsOnTime:                 onTime,
		JobsLate:                   late,
		SolveTimeSeconds:           elapsed,
		SolverStatus:               string(resp.Status),
	}

	return resp
}

// recordMetrics reflects one completed solve attempt into the attached
// metrics.Metrics registry, a no-op when WithMetrics was not supplied.
func (s *OptimizationService) recordMetrics(key string, resp apitypes.SolveResponse, outcome controller.Outcome[solver.Solution]) {
	if s.metrics == nil {
		return
	}

	s.metrics.RecordSolve(string(resp.Status), resp.ProcessingTimeSeconds, resp.Resilience.QualityScore)

	// RetryAttempts counts the first attempt too; only the repeats are retries.
	for i := 1; i < resp.Resilience.RetryAttempts; i++ {
		s.metrics.RecordRetryAttempt(key)
	}
	if resp.Resilience.CircuitBreakerTriggered {
		s.metrics.RecordCircuitBreakerTrip(key)
	}
	if resp.Resilience.FallbackUsed {
		s.metrics.RecordFallbackAttempt(resp.Resilience.FallbackName, resp.Success)
	}

	state := 0.0
	switch s.controller.Breakers().Get(key).State().String() {
	case "half-open":
		state = 1
	case "open":
		state = 2
	}
	s.metrics.RecordCircuitBreakerState(key, state)
}
