package server

import (
	"SyncGuard/internal/conf"
	"SyncGuard/internal/metrics"
	"SyncGuard/internal/server/middleware"
	"SyncGuard/internal/service"
	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, syncService *service.SyncService, reg *prometheus.Registry, logger log.Logger) *http.Server {
	// 创建增强的日志辅助器
	logHelper := pkglog.NewLogHelper(logger)

	var adminToken string
	if c.HTTP != nil {
		adminToken = c.HTTP.AdminToken
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper), // 请求日志中间件：Request ID、耗时、状态码
			// 只有会改变状态的接口需要管理 token
			selector.Server(middleware.Auth(adminToken, logHelper)).
				Path(OperationReset, OperationProbe, OperationRun).
				Build(),
		),
	}
	if c.HTTP != nil {
		if c.HTTP.Network != "" {
			opts = append(opts, http.Network(c.HTTP.Network))
		}
		if c.HTTP.Addr != "" {
			opts = append(opts, http.Address(c.HTTP.Addr))
		}
		if c.HTTP.Timeout > 0 {
			opts = append(opts, http.Timeout(c.HTTP.Timeout))
		}
	}
	srv := http.NewServer(opts...)

	RegisterSyncHTTPServer(srv, syncService)
	srv.Handle("/metrics", metrics.Handler(reg))

	return srv
}
