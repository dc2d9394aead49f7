package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/northcloud/vulcan-scheduler/internal/apitypes"
	"github.com/northcloud/vulcan-scheduler/internal/config"
	"github.com/northcloud/vulcan-scheduler/internal/eventbus"
	"github.com/northcloud/vulcan-scheduler/internal/health"
	"github.com/northcloud/vulcan-scheduler/internal/logger"
	"github.com/northcloud/vulcan-scheduler/internal/memstore"
	"github.com/northcloud/vulcan-scheduler/internal/metrics"
	"github.com/northcloud/vulcan-scheduler/internal/optimization"
	"github.com/northcloud/vulcan-scheduler/internal/postgres"
	"github.com/northcloud/vulcan-scheduler/internal/repository"
	"github.com/northcloud/vulcan-scheduler/internal/server"
	"github.com/northcloud/vulcan-scheduler/internal/unitofwork"
)

// processEnv holds operational knobs that intentionally live outside the
// YAML-layered Config: they tune the Go runtime itself rather than engine
// behavior, so they're parsed straight from the environment with
// caarlos0/env rather than threaded through internal/config's YAML+env
// layering.
type processEnv struct {
	MaxProcs int `env:"GOMAXPROCS"`
}

func main() {
	var penv processEnv
	if err := env.Parse(&penv); err != nil {
		panic(err)
	}
	if penv.MaxProcs > 0 {
		runtime.GOMAXPROCS(penv.MaxProcs)
	}

	path := config.GetConfigPath("config.yaml")
	cfg, err := config.LoadWithDefaults[Config](path, SetDefaults)
	if err != nil {
		// No config file is a normal dev-mode path; fall back to an
		// all-defaults Config rather than refusing to start.
		if !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
		cfg = &Config{}
		SetDefaults(cfg)
	}

	log := logger.Must(cfg.Logging)
	defer func() { _ = log.Sync() }()

	calCfg, err := toCalendarConfig(cfg.Calendar)
	if err != nil {
		log.Fatal("invalid calendar configuration", logger.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	bus := eventbus.New()
	checker := health.NewChecker()

	repos, tx, closeBackend := wireBackend(cfg, log, checker)
	defer closeBackend()

	svcCfg := optimization.Config{
		Limits:           cfg.Limits,
		DefaultCalendar:  calCfg,
		ControllerConfig: toControllerConfig(cfg.Resilience),
		UnitOfWorkConfig: toUnitOfWorkConfig(cfg.UnitOfWork),
	}

	svc := optimization.New(repos, bus, log, svcCfg,
		optimization.WithTxController(tx),
		optimization.WithMetrics(m),
	)

	if err := svc.StartPeriodicResolve("@every 5m", func(resp apitypes.SolveResponse, err error) {
		if err != nil {
			log.Error("periodic re-solve failed", logger.Error(err))
			return
		}
		log.Info("periodic re-solve completed", logger.String("status", string(resp.Status)))
	}); err != nil {
		log.Error("failed to start periodic re-solve", logger.Error(err))
	}
	defer svc.StopPeriodicResolve()

	mux := http.NewServeMux()
	mux.Handle("/healthz", checker.HTTPHandler())
	mux.Handle("/livez", health.LivenessHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := server.New(cfg.Server, mux)

	log.Info("schedulerd starting",
		logger.String("address", cfg.Server.Address),
		logger.String("backend", cfg.Database.Backend),
	)

	if err := server.RunWithGracefulShutdown(context.Background(), httpServer, log, cfg.Server.ShutdownTimeout); err != nil {
		log.Fatal("server exited with error", logger.Error(err))
	}
}

// wireBackend selects the repository backend named by cfg.Database.Backend,
// registering a liveness check appropriate to it, and returns a cleanup
// function the caller must defer.
func wireBackend(cfg *Config, log logger.Logger, checker *health.Checker) (repository.Repositories, unitofwork.TxController, func()) {
	if cfg.Database.Backend == "memory" {
		checker.RegisterFunc("repositories", func(ctx context.Context) error { return nil })
		return memstore.NewRepositories(), unitofwork.NoopTxController{}, func() {}
	}

	conn, err := postgres.NewConnection(cfg.Database.Postgres)
	if err != nil {
		log.Fatal("failed to connect to database", logger.Error(err))
	}

	checker.RegisterFunc("postgres", conn.Ping)

	return postgres.NewRepositories(conn), postgres.NewSavepointTx(conn), func() { _ = conn.Close() }
}
