package server

import (
	"context"
	"strconv"
	"strings"

	"SyncGuard/internal/service"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operations of the sync admin API, used for middleware selection.
const (
	OperationHealth    = "/syncguard.v1.Sync/Health"
	OperationServices  = "/syncguard.v1.Sync/Services"
	OperationStats     = "/syncguard.v1.Sync/Stats"
	OperationReset     = "/syncguard.v1.Sync/Reset"
	OperationProbe     = "/syncguard.v1.Sync/Probe"
	OperationFailed    = "/syncguard.v1.Sync/Failed"
	OperationTrends    = "/syncguard.v1.Sync/Trends"
	OperationBatches   = "/syncguard.v1.Sync/Batches"
	OperationDashboard = "/syncguard.v1.Sync/Dashboard"
	OperationRunning   = "/syncguard.v1.Sync/Running"
	OperationRun       = "/syncguard.v1.Sync/Run"
	OperationAudit     = "/syncguard.v1.Sync/Audit"
)

// RegisterSyncHTTPServer mounts the /v1/sync routes.
func RegisterSyncHTTPServer(s *http.Server, svc *service.SyncService) {
	r := s.Route("/")
	r.GET("/v1/sync/health", syncHandler(OperationHealth, func(ctx context.Context, hc http.Context) (interface{}, error) {
		return svc.Health(ctx, hc.Query().Get("date"))
	}))
	r.GET("/v1/sync/services", syncHandler(OperationServices, func(context.Context, http.Context) (interface{}, error) {
		return map[string][]string{"services": svc.Services()}, nil
	}))
	r.GET("/v1/sync/stats/{service}", syncHandler(OperationStats, func(ctx context.Context, hc http.Context) (interface{}, error) {
		tenant, err := tenantParam(hc)
		if err != nil {
			return nil, err
		}
		return svc.Stats(ctx, hc.Vars().Get("service"), tenant)
	}))

	reset := syncHandler(OperationReset, func(ctx context.Context, hc http.Context) (interface{}, error) {
		tenant, err := tenantParam(hc)
		if err != nil {
			return nil, err
		}
		all, err := boolParam(hc, "all")
		if err != nil {
			return nil, err
		}
		name := hc.Vars().Get("service")
		if name == "" && !all {
			return nil, errors.BadRequest("MISSING_SERVICE", "service or all=true is required")
		}
		return svc.Reset(ctx, name, all, tenant)
	})
	r.POST("/v1/sync/reset", reset)
	r.POST("/v1/sync/reset/{service}", reset)

	r.POST("/v1/sync/probe/{service}", syncHandler(OperationProbe, func(ctx context.Context, hc http.Context) (interface{}, error) {
		tenant, err := tenantParam(hc)
		if err != nil {
			return nil, err
		}
		autoReset, err := boolParam(hc, "auto_reset")
		if err != nil {
			return nil, err
		}
		return svc.Probe(ctx, hc.Vars().Get("service"), tenant, autoReset)
	}))
	r.GET("/v1/sync/failed", syncHandler(OperationFailed, func(ctx context.Context, hc http.Context) (interface{}, error) {
		failed, err := svc.FailedTenants(ctx, hc.Query().Get("date"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"count": len(failed), "tenants": failed}, nil
	}))
	r.GET("/v1/sync/trends", syncHandler(OperationTrends, func(ctx context.Context, hc http.Context) (interface{}, error) {
		days, err := intParam(hc, "days")
		if err != nil {
			return nil, err
		}
		trends, err := svc.Trends(ctx, days)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"trends": trends}, nil
	}))
	r.GET("/v1/sync/batches", syncHandler(OperationBatches, func(ctx context.Context, hc http.Context) (interface{}, error) {
		batches, err := svc.Batches(ctx, hc.Query().Get("date"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"batches": batches}, nil
	}))
	r.GET("/v1/sync/dashboard", syncHandler(OperationDashboard, func(ctx context.Context, hc http.Context) (interface{}, error) {
		return svc.Dashboard(ctx, hc.Query().Get("date"))
	}))
	r.GET("/v1/sync/running", syncHandler(OperationRunning, func(ctx context.Context, _ http.Context) (interface{}, error) {
		return svc.Running(ctx)
	}))
	r.POST("/v1/sync/run", syncHandler(OperationRun, func(ctx context.Context, hc http.Context) (interface{}, error) {
		tenant, err := tenantParam(hc)
		if err != nil {
			return nil, err
		}
		return svc.Sync(ctx, hc.Query().Get("date"), tenant)
	}))
	r.GET("/v1/sync/audit/{service}", syncHandler(OperationAudit, func(ctx context.Context, hc http.Context) (interface{}, error) {
		limit, err := intParam(hc, "limit")
		if err != nil {
			return nil, err
		}
		events, err := svc.AuditEvents(ctx, hc.Vars().Get("service"), limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"events": events}, nil
	}))
}

// syncHandler runs fn inside the server middleware chain and renders its reply.
func syncHandler(operation string, fn func(ctx context.Context, hc http.Context) (interface{}, error)) http.HandlerFunc {
	return func(hc http.Context) error {
		http.SetOperation(hc, operation)
		h := hc.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return fn(ctx, hc)
		})
		out, err := h(hc, hc.Request())
		if err != nil {
			return err
		}
		return hc.Result(200, out)
	}
}

func tenantParam(hc http.Context) (*int64, error) {
	raw := hc.Query().Get("tenant")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.BadRequest("INVALID_TENANT", "tenant must be a positive integer: "+raw)
	}
	return &id, nil
}

func intParam(hc http.Context, name string) (int, error) {
	raw := hc.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.BadRequest("INVALID_"+strings.ToUpper(name), name+" must be an integer: "+raw)
	}
	return v, nil
}

func boolParam(hc http.Context, name string) (bool, error) {
	raw := hc.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.BadRequest("INVALID_"+strings.ToUpper(name), name+" must be a boolean: "+raw)
	}
	return v, nil
}
