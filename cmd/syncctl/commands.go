package main

import (
	"context"
	"errors"
	"fmt"

	"SyncGuard/internal/biz"
	"SyncGuard/internal/service"

	"github.com/spf13/cobra"
)

// errHealthCritical makes `syncctl health` exit non-zero so cron jobs and probes can alert on it.
var errHealthCritical = errors.New("sync health is critical")

// tenantFlag returns the --tenant value, or nil when the flag was not given.
func tenantFlag(cmd *cobra.Command) (*int64, error) {
	if !cmd.Flags().Changed("tenant") {
		return nil, nil
	}
	id, err := cmd.Flags().GetInt64("tenant")
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, fmt.Errorf("--tenant must be a positive integer, got %d", id)
	}
	return &id, nil
}

func addTenantFlag(cmd *cobra.Command) {
	cmd.Flags().Int64("tenant", 0, "business (tenant) id; global scope when omitted")
}

func addDateFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "date", "", "calendar date YYYY-MM-DD (default today in the sync timezone)")
}

func newHealthCommand(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the health verdict of a sync day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				hs, err := svc.Health(ctx, date)
				if err != nil {
					return err
				}
				if err := p.health(hs); err != nil {
					return err
				}
				if hs.Status == biz.HealthCritical {
					return errHealthCritical
				}
				return nil
			})
		},
	}
	addDateFlag(cmd, &date)
	return cmd
}

func newServicesCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the registered sync services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(_ context.Context, svc *service.SyncService, p *printer) error {
				return p.services(svc.Services())
			})
		},
	}
}

func newStatsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <service>",
		Short: "Show circuit breaker and rate limiter stats of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := tenantFlag(cmd)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				stats, err := svc.Stats(ctx, args[0], tenant)
				if err != nil {
					return err
				}
				return p.stats(stats)
			})
		},
	}
	addTenantFlag(cmd)
	return cmd
}

func newResetCommand(c *cli) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset [service]",
		Short: "Reset the circuit breaker of a service, or of every service with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("give either a service or --all, not both")
			}
			if !all && len(args) != 1 {
				return errors.New("a service name or --all is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := tenantFlag(cmd)
			if err != nil {
				return err
			}
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				reply, err := svc.Reset(ctx, name, all, tenant)
				if err != nil {
					return err
				}
				return p.reset(reply)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reset every registered service")
	addTenantFlag(cmd)
	return cmd
}

func newProbeCommand(c *cli) *cobra.Command {
	var autoReset bool
	cmd := &cobra.Command{
		Use:   "probe <service>",
		Short: "Check whether an open service is reachable again",
		Long: `probe sends one request to the configured probe target of the service, but only
while its circuit breaker is open. With --auto-reset a reachable target closes the breaker.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := tenantFlag(cmd)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				reply, err := svc.Probe(ctx, args[0], tenant, autoReset)
				if err != nil {
					return err
				}
				return p.probe(reply)
			})
		},
	}
	cmd.Flags().BoolVar(&autoReset, "auto-reset", false, "reset the breaker when the target answers")
	addTenantFlag(cmd)
	return cmd
}

func newFailedCommand(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List tenants without a synced KPI for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				failed, err := svc.FailedTenants(ctx, date)
				if err != nil {
					return err
				}
				return p.failed(failed)
			})
		},
	}
	addDateFlag(cmd, &date)
	return cmd
}

func newTrendsCommand(c *cli) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show success rate and duration of the last days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				trends, err := svc.Trends(ctx, days)
				if err != nil {
					return err
				}
				return p.trends(trends)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days (1-90)")
	return cmd
}

func newBatchesCommand(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Show the batch records of a sync day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				batches, err := svc.Batches(ctx, date)
				if err != nil {
					return err
				}
				return p.batches(batches)
			})
		},
	}
	addDateFlag(cmd, &date)
	return cmd
}

func newDashboardCommand(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show health, progress, integrations and trends of a sync day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				d, err := svc.Dashboard(ctx, date)
				if err != nil {
					return err
				}
				return p.dashboard(d)
			})
		},
	}
	addDateFlag(cmd, &date)
	return cmd
}

func newRunningCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "Show whether a daily sync is in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				reply, err := svc.Running(ctx)
				if err != nil {
					return err
				}
				return p.running(reply)
			})
		},
	}
}

func newSyncCommand(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the KPI sync now, for every active tenant or one --tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := tenantFlag(cmd)
			if err != nil {
				return err
			}
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				reply, err := svc.Sync(ctx, date, tenant)
				if err != nil {
					return err
				}
				return p.sync(reply)
			})
		},
	}
	addDateFlag(cmd, &date)
	addTenantFlag(cmd)
	return cmd
}

func newAuditCommand(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit <service>",
		Short: "Show the latest circuit breaker audit entries of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, svc *service.SyncService, p *printer) error {
				events, err := svc.AuditEvents(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return p.audit(events)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries (max 200)")
	return cmd
}
