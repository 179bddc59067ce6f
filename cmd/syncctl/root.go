package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SyncGuard/internal/conf"
	"SyncGuard/internal/service"
	pkglog "SyncGuard/pkg/log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	outputTable = "table"
	outputJSON  = "json"

	defaultConfigPath = "configs/config.yaml"
	defaultOperator   = "syncctl"
)

// serviceFactory builds the sync service and returns its cleanup.
type serviceFactory func(cfgFile string, verbose bool) (*service.SyncService, func(), error)

// cli holds the global flags shared by every subcommand.
type cli struct {
	cfgFile  string
	output   string
	verbose  bool
	operator string

	newService serviceFactory
}

// Execute runs the root command
func Execute() error {
	// Load .env file early so SYNCGUARD_* variables are available to viper
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand(&cli{newService: buildService}).ExecuteContext(ctx)
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate the SyncGuard KPI sync",
		Long: `syncctl inspects and operates the daily KPI sync: circuit breaker and rate
limiter state, run health, failed tenants and manual runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.output != outputTable && c.output != outputJSON {
				return fmt.Errorf("unsupported output %q (want %s or %s)", c.output, outputTable, outputJSON)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", defaultConfigPath, "config file")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", outputTable, "output format: table or json")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "print service logs")
	root.PersistentFlags().StringVar(&c.operator, "operator", defaultOperatorName(), "operator recorded in the audit log")

	root.AddCommand(
		newHealthCommand(c),
		newServicesCommand(c),
		newStatsCommand(c),
		newResetCommand(c),
		newProbeCommand(c),
		newFailedCommand(c),
		newTrendsCommand(c),
		newBatchesCommand(c),
		newDashboardCommand(c),
		newRunningCommand(c),
		newSyncCommand(c),
		newAuditCommand(c),
	)
	return root
}

func defaultOperatorName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return defaultOperator
}

// run builds the service, tags the context with the operator and calls fn.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, svc *service.SyncService, p *printer) error) error {
	svc, cleanup, err := c.newService(c.cfgFile, c.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize sync service: %w", err)
	}
	defer cleanup()

	ctx := pkglog.WithRequestContext(cmd.Context(), pkglog.GenerateRequestID(), c.operator)
	return fn(ctx, svc, newPrinter(cmd.OutOrStdout(), c.output == outputJSON))
}

// buildService loads the configuration and wires the service against the real stores.
func buildService(cfgFile string, verbose bool) (*service.SyncService, func(), error) {
	bc, err := conf.NewBootstrap(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 命令行默认只输出错误日志，避免污染表格和 JSON 输出
	logConf := *bc.Log
	logConf.Level = "error"
	if verbose {
		logConf.Level = "debug"
	}
	zapLog, err := pkglog.NewZapLogger(&logConf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize zap logger: %w", err)
	}
	logger := pkglog.NewKratosAdapter(zapLog)

	svc, cleanup, err := wireService(bc.Data, bc.Sync, logger)
	if err != nil {
		_ = zapLog.Sync()
		return nil, nil, err
	}
	return svc, func() {
		cleanup()
		_ = zapLog.Sync()
	}, nil
}
