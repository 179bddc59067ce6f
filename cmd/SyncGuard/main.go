// Package main is the entry point of the SyncGuard service.
// It runs the daily KPI sync scheduler next to the admin HTTP API and the gRPC health endpoint.
package main

import (
	"flag"
	"os"
	_ "time/tzdata" // sync.timezone must resolve on hosts without zoneinfo

	"SyncGuard/internal/conf"
	"SyncGuard/internal/data"
	zapLogger "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "SyncGuard"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string
	// flagmigrate creates the owned tables and exits.
	flagmigrate bool

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
	flag.BoolVar(&flagmigrate, "migrate", false, "create or update the kpi_daily_actuals and circuit_audit_logs tables, then exit")
}

func newApp(logger log.Logger, d *data.Data, gs *grpc.Server, hs *http.Server, sched *Scheduler) *kratos.App {
	if !d.RedisAvailable() {
		log.NewHelper(logger).Warnw("msg", "running without Redis: breaker, limiter and run statistics are local to this process")
	}
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			gs,
			hs,
			sched,
		),
	)
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable support
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	logger := zapLogger.NewKratosAdapter(zapLog)
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	if flagmigrate {
		if err := migrate(bc.Data, logger); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		return
	}

	zapLogger.NewLogHelper(logger).Startup("SyncGuard service starting",
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"log.env", bc.Log.Env,
		"http.addr", bc.Server.HTTP.Addr,
		"grpc.addr", bc.Server.GRPC.Addr,
		"sync.schedule", bc.Sync.Schedule,
		"sync.timezone", bc.Sync.Timezone,
	)

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Sync, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}

func migrate(c *conf.Data, logger log.Logger) error {
	db, cleanup, err := data.NewMySQLClient(c, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := data.AutoMigrate(db); err != nil {
		return err
	}
	log.NewHelper(logger).Infow("msg", "migration finished")
	return nil
}
