package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper 扩展 Kratos log.Helper，提供按类别打点的日志方法
// 每个方法都会附带 "type" 字段，触发 EmojiConsoleEncoder 的表情符号映射
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func withType(msg, typ string, kvs []interface{}) []interface{} {
	all := make([]interface{}, 0, len(kvs)+4)
	all = append(all, "msg", msg)
	all = append(all, kvs...)
	return append(all, "type", typ)
}

// API 记录 API 相关日志（🔗）
func (h *LogHelper) API(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "api", kvs)...)
}

// Request 记录 HTTP 请求日志（根据状态码选择表情符号）
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	all := withType(msg, "request", kvs)
	all = append(all,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(all...)
}

// Success 记录成功操作日志（✅）
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "success", kvs)...)
}

// RateLimit 记录速率限制日志（🚦）
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	h.Warnw(withType(msg, "rate_limit", kvs)...)
}

// Circuit 记录熔断器状态变化（🔌）
func (h *LogHelper) Circuit(msg string, kvs ...interface{}) {
	h.Warnw(withType(msg, "circuit", kvs)...)
}

// Sync 记录 KPI 同步过程日志（🔄）
func (h *LogHelper) Sync(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "sync", kvs)...)
}

// Monitor 记录同步健康检查日志（📊）
func (h *LogHelper) Monitor(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "monitor", kvs)...)
}

// Alert 记录需要人工介入的告警（🚨）
func (h *LogHelper) Alert(msg string, kvs ...interface{}) {
	h.Errorw(withType(msg, "alert", kvs)...)
}

// Database 记录数据库操作日志（💾）
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "database", kvs)...)
}

// Redis 记录 Redis 操作日志（📦）
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "redis", kvs)...)
}

// Scheduler 记录调度器相关日志（🎯）
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "scheduler", kvs)...)
}

// Startup 记录启动相关日志（🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "startup", kvs)...)
}

// Audit 记录审计日志（📋）
func (h *LogHelper) Audit(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "audit", kvs)...)
}

// ========== Context-Aware 日志方法 ==========

// SlowRequest 记录慢请求警告（🐌）
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)

	all := withType(msg, "slow_request", kvs)
	all = append(all,
		"request_id", reqCtx.RequestID,
		"operator", reqCtx.Operator,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
	)
	h.Warnw(all...)
}

// RequestWithContext 记录带 Context 的 HTTP 请求日志，超过 1000ms 额外记录慢请求
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s",
		method, url, status, durationMs, reqCtx.RequestID)

	all := withType(msg, "request", kvs)
	all = append(all,
		"request_id", reqCtx.RequestID,
		"operator", reqCtx.Operator,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(all...)

	if durationMs > 1000 {
		h.SlowRequest(ctx, method, url, durationMs, 1000)
	}
}

// SyncProgress 记录批次同步进度（🔄），RunID 取自 Context
func (h *LogHelper) SyncProgress(ctx context.Context, batch, totalBatches, success, failed int, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	var pct float64
	if totalBatches > 0 {
		pct = float64(batch) / float64(totalBatches) * 100
	}

	msg := fmt.Sprintf("[%s] Batch %d/%d done | success: %d, failed: %d (%.1f%%)",
		reqCtx.RunID, batch, totalBatches, success, failed, pct)

	all := withType(msg, "sync", kvs)
	all = append(all,
		"run_id", reqCtx.RunID,
		"batch", batch,
		"total_batches", totalBatches,
		"success_count", success,
		"failed_count", failed,
	)
	h.Infow(all...)
}
