// Package middleware provides HTTP middleware for admin authentication and request logging.
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	// OperatorHeader 标识发起管理操作的人员，写入审计日志
	OperatorHeader = "X-Operator"

	defaultOperator = "admin"
)

// Auth 返回管理接口的认证中间件
// 校验 Bearer token（或 X-API-Key），并把操作者写入 Request Context
//
// 日志输出示例:
//
//	🔏 Admin request authorized for ops@example.com (sg-admin***) in 0ms | {"type":"audit","operator":"ops@example.com"}
//
// token 为空时不做校验，只记录操作者
func Auth(token string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				apiKey    string
				operator  string
				userAgent string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					r := ht.Request()

					// 支持 "Bearer {token}" 格式
					if authHeader := r.Header.Get("Authorization"); authHeader != "" {
						apiKey = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
					}
					if apiKey == "" {
						apiKey = r.Header.Get("X-API-Key")
					}

					operator = strings.TrimSpace(r.Header.Get(OperatorHeader))
					userAgent = r.Header.Get("User-Agent")
				}
			}

			if token != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(token)) != 1 {
				logger.Audit("Rejected admin request: invalid token",
					"api_key_masked", maskAPIKey(apiKey),
					"user_agent", userAgent,
				)
				return nil, errors.Unauthorized("UNAUTHORIZED", "invalid admin token")
			}

			if operator == "" {
				operator = defaultOperator
			}

			maskedKey := maskAPIKey(apiKey)
			authDuration := time.Since(startTime).Milliseconds()
			logger.Audit(
				"Admin request authorized for "+operator+" ("+maskedKey+") in "+formatDuration(authDuration),
				"operator", operator,
				"api_key_masked", maskedKey,
				"duration_ms", authDuration,
			)
			if userAgent != "" {
				logger.API("   User-Agent: \""+userAgent+"\"", "user_agent", userAgent)
			}

			// 保留 Logging 中间件生成的 Request ID
			ctx = pkglog.WithRequestContext(ctx, pkglog.GetRequestID(ctx), operator)

			return handler(ctx, req)
		}
	}
}

// maskAPIKey 脱敏 API Key，仅显示前 8 位
// 示例: "sg-admin-1234567890" -> "sg-admin***"
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "***"
}

// formatDuration 格式化持续时间为易读格式
// 示例: 5ms, 150ms, 2.5s
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000.0)
}
