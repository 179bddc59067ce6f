package server

import (
	"context"

	"SyncGuard/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthServer answers grpc.health.v1 checks with NOT_SERVING while today's sync
// health is critical.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer

	svc    *service.SyncService
	logger *log.Helper
}

// NewHealthServer creates a new health server.
func NewHealthServer(svc *service.SyncService, logger log.Logger) *HealthServer {
	return &HealthServer{svc: svc, logger: log.NewHelper(logger)}
}

// Check implements grpc_health_v1.HealthServer. The empty service name and "syncguard"
// are known; anything else is NOT_FOUND.
func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && name != "syncguard" {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
	}

	st := grpc_health_v1.HealthCheckResponse_SERVING
	if !h.svc.Serving(ctx) {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		h.logger.Warnw("msg", "health check reports NOT_SERVING: sync health is critical")
	}
	return &grpc_health_v1.HealthCheckResponse{Status: st}, nil
}
