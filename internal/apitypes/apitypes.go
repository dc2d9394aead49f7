// Package apitypes holds the request/response DTOs the optimization
// service speaks, independent of any transport (spec.md §6: the
// interfaces here are conceptual, not bound to an HTTP router).
package apitypes

import "time"

// JobRequest is one job within a SolveRequest.
type JobRequest struct {
	JobNumber      string          `json:"job_number"`
	Priority       string          `json:"priority"`
	DueDate        time.Time       `json:"due_date"`
	Quantity       int             `json:"quantity"`
	CustomerName   string          `json:"customer_name,omitempty"`
	PartNumber     string          `json:"part_number,omitempty"`
	TaskSequences  []int           `json:"task_sequences"`
}

// BusinessConstraints overrides the default BusinessCalendar for one
// solve request.
type BusinessConstraints struct {
	WorkStartHour       float64 `json:"work_start_hour"`
	WorkEndHour         float64 `json:"work_end_hour"`
	LunchStartHour      float64 `json:"lunch_start_hour"`
	LunchDurationMinutes float64 `json:"lunch_duration_minutes"`
	HolidayDays         []int   `json:"holiday_days,omitempty"` // day offsets from schedule_start_time
}

// OptimizationParameters bounds one solve attempt (spec.md §6 limits:
// max_time_seconds <= 3600, horizon_days <= 90).
type OptimizationParameters struct {
	MaxTimeSeconds                 float64 `json:"max_time_seconds"`
	NumWorkers                     int     `json:"num_workers"`
	HorizonDays                    int     `json:"horizon_days"`
	EnableHierarchicalOptimization bool    `json:"enable_hierarchical_optimization"`
	PrimaryObjectiveWeight         float64 `json:"primary_objective_weight"`
	CostOptimizationTolerance      float64 `json:"cost_optimization_tolerance"`
}

// SolveRequest is the conceptual request accepted by the optimization
// service (spec.md §6).
type SolveRequest struct {
	ProblemName           string                  `json:"problem_name"`
	ScheduleStartTime      time.Time               `json:"schedule_start_time"`
	Jobs                   []JobRequest            `json:"jobs"`
	BusinessConstraints    *BusinessConstraints    `json:"business_constraints,omitempty"`
	OptimizationParameters OptimizationParameters  `json:"optimization_parameters"`
}

// SolveStatus mirrors solver.Termination plus the fallback outcome
// (spec.md §6: OPTIMAL, FEASIBLE, INFEASIBLE, TIMEOUT, FALLBACK_SUCCESS).
type SolveStatus string

const (
	StatusOptimal        SolveStatus = "OPTIMAL"
	StatusFeasible        SolveStatus = "FEASIBLE"
	StatusInfeasible      SolveStatus = "INFEASIBLE"
	StatusTimeout          SolveStatus = "TIMEOUT"
	StatusFallbackSuccess SolveStatus = "FALLBACK_SUCCESS"
)

// JobSummary is one job's per-job outcome within a SolveResponse.
type JobSummary struct {
	JobNumber       string  `json:"job_number"`
	PlannedEnd      time.Time `json:"planned_end"`
	TardinessMinutes float64 `json:"tardiness_minutes"`
	OnTime          bool    `json:"on_time"`
}

// Metrics is the aggregate metrics sub-object of a SolveResponse.
type Metrics struct {
	MakespanMinutes            float64 `json:"makespan_minutes"`
	TotalTardinessMinutes      float64 `json:"total_tardiness_minutes"`
	TotalOperatorCost          float64 `json:"total_operator_cost"`
	MachineUtilizationPercent  float64 `json:"machine_utilization_percent"`
	OperatorUtilizationPercent float64 `json:"operator_utilization_percent"`
	JobsOnTime                 int     `json:"jobs_on_time"`
	JobsLate                   int     `json:"jobs_late"`
	CriticalPathJobs           []string `json:"critical_path_jobs,omitempty"`
	SolveTimeSeconds           float64 `json:"solve_time_seconds"`
	SolverStatus               string  `json:"solver_status"`
	GapPercent                 float64 `json:"gap_percent"`
}

// ResilienceInfo decorates a SolveResponse with the resilience
// diagnostics of spec.md §4.5.
type ResilienceInfo struct {
	FallbackUsed            bool     `json:"fallback_used"`
	FallbackName            string   `json:"fallback_name,omitempty"`
	CircuitBreakerTriggered bool     `json:"circuit_breaker_triggered"`
	RetryAttempts           int      `json:"retry_attempts"`
	QualityScore            float64  `json:"quality_score"`
	Warnings                []string `json:"warnings,omitempty"`
}

// SolveResponse is the conceptual response returned by the optimization
// service (spec.md §6).
type SolveResponse struct {
	ProblemName           string         `json:"problem_name"`
	Status                SolveStatus    `json:"status"`
	Success               bool           `json:"success"`
	Message               string         `json:"message,omitempty"`
	Jobs                  []JobSummary   `json:"jobs"`
	Metrics               Metrics        `json:"metrics"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	Resilience            ResilienceInfo `json:"resilience_info"`
}

// ErrorResponse is the machine-readable error shape every user-visible
// failure carries (spec.md §7).
type ErrorResponse struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// CircuitBreakerStatus summarizes one keyed breaker for HealthResponse.
type CircuitBreakerStatus struct {
	Key              string `json:"key"`
	State            string `json:"state"`
	ConsecutiveFails int    `json:"consecutive_fails"`
}

// RetryStatistics summarizes retry behavior for HealthResponse.
type RetryStatistics struct {
	TotalAttempts    int `json:"total_attempts"`
	TotalExhausted   int `json:"total_exhausted"`
}

// ServiceHealth summarizes solve throughput for HealthResponse.
type ServiceHealth struct {
	SuccessRate        float64 `json:"success_rate"`
	AverageTimeSeconds float64 `json:"average_time_seconds"`
	ActiveBreakers     int     `json:"active_circuit_breakers"`
}

// OverallStatus is HealthResponse.OverallStatus.
type OverallStatus string

const (
	HealthHealthy  OverallStatus = "healthy"
	HealthDegraded OverallStatus = "degraded"
	HealthUnhealthy OverallStatus = "unhealthy"
)

// HealthResponse is the conceptual health/observability response of
// spec.md §6.
type HealthResponse struct {
	ServiceHealth   ServiceHealth          `json:"service_health"`
	CircuitBreakers []CircuitBreakerStatus `json:"circuit_breakers"`
	RetryStatistics RetryStatistics        `json:"retry_statistics"`
	OverallStatus   OverallStatus          `json:"overall_status"`
}
