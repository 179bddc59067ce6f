package middleware

import (
	"context"
	"net"
	"strings"
	"time"

	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// RequestIDHeader 请求 ID 的请求头，同时回写到响应
const RequestIDHeader = "X-Request-ID"

// syncParams 日志中带上的同步相关查询参数
var syncParams = []string{"date", "tenant", "all", "auto_reset", "days"}

// Logging 返回记录 /v1/sync 请求日志的中间件
// 沿用调用方的 X-Request-ID（没有就生成），并把操作名和同步参数写进日志
//
// 日志输出示例:
//
//	🟢 GET /v1/sync/health - 200 (12ms) | RequestID: mgrn0zfqda
//	🐌 [mgrn0zfqda] Slow request detected | POST /v1/sync/run | 13438ms
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			start := time.Now()

			var (
				method, target, operation string
				kvs                       []interface{}
				requestID                 string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				operation = tr.Operation()
				method, target = "RPC", operation
				requestID = tr.RequestHeader().Get(RequestIDHeader)

				if ht, ok := tr.(http.Transporter); ok {
					r := ht.Request()
					method, target = r.Method, r.URL.Path
					q := r.URL.Query()
					for _, p := range syncParams {
						if v := q.Get(p); v != "" {
							kvs = append(kvs, p, v)
						}
					}
					kvs = append(kvs, "ip", clientIP(r), "user_agent", r.UserAgent())
				}
				if requestID == "" {
					requestID = pkglog.GenerateRequestID()
				}
				tr.ReplyHeader().Set(RequestIDHeader, requestID)
			}
			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, pkglog.GetOperator(ctx))

			reply, err := handler(ctx, req)

			status := 200
			if err != nil {
				status = int(errors.FromError(err).Code)
				kvs = append(kvs, "reason", errors.Reason(err))
			}
			if operation != "" {
				kvs = append(kvs, "operation", operation)
			}

			logger.RequestWithContext(ctx, method, target, status, time.Since(start).Milliseconds(), kvs...)
			return reply, err
		}
	}
}

// clientIP X-Real-IP > X-Forwarded-For 第一个 > RemoteAddr（去掉端口）
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
