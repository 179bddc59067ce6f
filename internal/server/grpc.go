package server

import (
	"SyncGuard/internal/conf"
	"SyncGuard/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer new a gRPC server serving grpc.health.v1 from the sync health verdict.
func NewGRPCServer(c *conf.Server, syncService *service.SyncService, logger log.Logger) *grpc.Server {
	var opts = []grpc.ServerOption{
		grpc.Middleware(
			recovery.Recovery(),
		),
		// the built-in health server always reports SERVING
		grpc.CustomHealth(),
	}
	if c.GRPC != nil {
		if c.GRPC.Network != "" {
			opts = append(opts, grpc.Network(c.GRPC.Network))
		}
		if c.GRPC.Addr != "" {
			opts = append(opts, grpc.Address(c.GRPC.Addr))
		}
		if c.GRPC.Timeout > 0 {
			opts = append(opts, grpc.Timeout(c.GRPC.Timeout))
		}
	}
	srv := grpc.NewServer(opts...)

	grpc_health_v1.RegisterHealthServer(srv, NewHealthServer(syncService, logger))

	return srv
}
