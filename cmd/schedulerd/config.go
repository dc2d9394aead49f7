// Command schedulerd is the scheduling engine's host process: it loads
// configuration, wires the repository backend (PostgreSQL or in-memory),
// the event bus, the resilience-wrapped optimization service, and serves
// health/metrics over HTTP until signaled to stop.
package main

import (
	"time"

	"github.com/northcloud/vulcan-scheduler/internal/calendar"
	"github.com/northcloud/vulcan-scheduler/internal/logger"
	"github.com/northcloud/vulcan-scheduler/internal/optimization"
	"github.com/northcloud/vulcan-scheduler/internal/postgres"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/circuitbreaker"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/controller"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/retry"
	"github.com/northcloud/vulcan-scheduler/internal/resilience/timeout"
	"github.com/northcloud/vulcan-scheduler/internal/server"
	"github.com/northcloud/vulcan-scheduler/internal/unitofwork"
)

// Config is schedulerd's top-level process configuration, loaded from
// YAML and overridden by environment variables via internal/config.
type Config struct {
	Logging  logger.Config `yaml:"logging"`
	Server   server.Config `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Calendar CalendarConfig `yaml:"calendar"`
	Limits   optimization.Limits `yaml:"limits"`
	Resilience ResilienceConfig `yaml:"resilience"`
	UnitOfWork UnitOfWorkConfig `yaml:"unit_of_work"`
}

// DatabaseConfig selects and configures the repository backend. Backend
// "memory" runs the engine against internal/memstore (useful for local
// development and the functional tests); any other value requires a
// reachable PostgreSQL instance.
type DatabaseConfig struct {
	Backend  string          `yaml:"backend" env:"DB_BACKEND"`
	Postgres postgres.Config `yaml:"postgres"`
}

// CalendarConfig is the YAML-friendly mirror of calendar.Config (time.Time
// holiday values and *time.Location aren't directly YAML-unmarshalable,
// so schedulerd decodes them itself in toCalendarConfig).
type CalendarConfig struct {
	WorkStartHour        float64  `yaml:"work_start_hour"`
	WorkEndHour          float64  `yaml:"work_end_hour"`
	LunchStartHour       float64  `yaml:"lunch_start_hour"`
	LunchDurationMinutes float64  `yaml:"lunch_duration_minutes"`
	HolidayDates         []string `yaml:"holiday_dates"`
	LocationName         string   `yaml:"location"`
}

// ResilienceConfig is the YAML-friendly mirror of controller.Config.
type ResilienceConfig struct {
	MaxRetryAttempts     int           `yaml:"max_retry_attempts"`
	RetryInitialDelay    time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay        time.Duration `yaml:"retry_max_delay"`
	RetryMultiplier      float64       `yaml:"retry_multiplier"`
	RetryJitter          float64       `yaml:"retry_jitter"`
	BreakerFailureThreshold int        `yaml:"breaker_failure_threshold"`
	BreakerSuccessThreshold int        `yaml:"breaker_success_threshold"`
	BreakerOpenTimeout      time.Duration `yaml:"breaker_open_timeout"`
	SolveCeiling            time.Duration `yaml:"solve_ceiling"`
	SolveGrace              time.Duration `yaml:"solve_grace"`
	MemoryLimitMB           int           `yaml:"memory_limit_mb"`
}

// UnitOfWorkConfig is the YAML-friendly mirror of unitofwork.RunConfig.
type UnitOfWorkConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// SetDefaults fills every zero-valued section with the engine's
// production defaults; environment overrides are re-applied on top of
// these by internal/config.LoadWithDefaults.
func SetDefaults(c *Config) {
	c.Logging.SetDefaults()
	c.Server.SetDefaults()
	c.Database.Postgres.SetDefaults()

	if c.Database.Backend == "" {
		c.Database.Backend = "memory"
	}

	if c.Calendar.WorkEndHour == 0 {
		c.Calendar.WorkStartHour = 8
		c.Calendar.WorkEndHour = 17
		c.Calendar.LunchStartHour = 12
		c.Calendar.LunchDurationMinutes = 30
	}
	if c.Calendar.LocationName == "" {
		c.Calendar.LocationName = "UTC"
	}

	if c.Limits == (optimization.Limits{}) {
		c.Limits = optimization.DefaultLimits()
	}

	r := &c.Resilience
	if r.MaxRetryAttempts == 0 {
		r.MaxRetryAttempts = 3
	}
	if r.RetryInitialDelay == 0 {
		r.RetryInitialDelay = 100 * time.Millisecond
	}
	if r.RetryMaxDelay == 0 {
		r.RetryMaxDelay = 30 * time.Second
	}
	if r.RetryMultiplier == 0 {
		r.RetryMultiplier = 2.0
	}
	if r.RetryJitter == 0 {
		r.RetryJitter = 0.1
	}
	if r.BreakerFailureThreshold == 0 {
		r.BreakerFailureThreshold = 5
	}
	if r.BreakerSuccessThreshold == 0 {
		r.BreakerSuccessThreshold = 2
	}
	if r.BreakerOpenTimeout == 0 {
		r.BreakerOpenTimeout = 30 * time.Second
	}
	if r.SolveCeiling == 0 {
		r.SolveCeiling = 5 * time.Minute
	}
	if r.SolveGrace == 0 {
		r.SolveGrace = 10 * time.Second
	}
	if r.MemoryLimitMB == 0 {
		r.MemoryLimitMB = 4096
	}

	if c.UnitOfWork.MaxAttempts == 0 {
		c.UnitOfWork.MaxAttempts = 3
	}
}

// toCalendarConfig decodes the YAML-friendly CalendarConfig into the
// calendar package's native Config, parsing holiday dates and the IANA
// location name.
func toCalendarConfig(c CalendarConfig) (calendar.Config, error) {
	loc, err := time.LoadLocation(c.LocationName)
	if err != nil {
		return calendar.Config{}, err
	}

	holidays := make([]time.Time, 0, len(c.HolidayDates))
	for _, d := range c.HolidayDates {
		t, err := time.ParseInLocation("2006-01-02", d, loc)
		if err != nil {
			return calendar.Config{}, err
		}
		holidays = append(holidays, t)
	}

	return calendar.Config{
		WorkStartHour:        c.WorkStartHour,
		WorkEndHour:          c.WorkEndHour,
		LunchStartHour:       c.LunchStartHour,
		LunchDurationMinutes: c.LunchDurationMinutes,
		HolidayDates:         holidays,
		Location:             loc,
	}, nil
}

// toControllerConfig builds the resilience controller's native Config
// from the process-level ResilienceConfig.
func toControllerConfig(r ResilienceConfig) controller.Config {
	return controller.Config{
		Retry: retry.Config{
			MaxAttempts:  r.MaxRetryAttempts,
			InitialDelay: r.RetryInitialDelay,
			MaxDelay:     r.RetryMaxDelay,
			Multiplier:   r.RetryMultiplier,
			Jitter:       r.RetryJitter,
			IsRetryable:  retry.IsTransient,
		},
		CircuitBreaker: circuitbreaker.Config{
			FailureThreshold: r.BreakerFailureThreshold,
			SuccessThreshold: r.BreakerSuccessThreshold,
			Timeout:          r.BreakerOpenTimeout,
		},
		Timeout: timeout.Config{
			Ceiling: r.SolveCeiling,
			Grace:   r.SolveGrace,
		},
		MemoryLimitMB: r.MemoryLimitMB,
	}
}

// toUnitOfWorkConfig builds the unit of work's native RunConfig.
func toUnitOfWorkConfig(u UnitOfWorkConfig) unitofwork.RunConfig {
	return unitofwork.RunConfig{MaxAttempts: u.MaxAttempts}
}
