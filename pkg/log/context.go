package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey 是用于存储 RequestContext 的私有 key 类型
type contextKey string

const requestContextKey contextKey = "syncguard_request_context"

// RequestContext 存储请求或同步任务的追踪信息
type RequestContext struct {
	RequestID string    // 10 位短 ID，如 mgrn0zfqda
	Operator  string    // 发起操作的管理员或 "system"
	RunID     string    // 批量同步任务 ID
	StartTime time.Time // 开始时间
}

var (
	randSource  = rand.NewSource(time.Now().UnixNano())
	randMutex   sync.Mutex
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID 生成 10 位 base36 随机请求 ID
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext 将 RequestContext 注入到 Context 中
func WithRequestContext(ctx context.Context, requestID, operator string) context.Context {
	return context.WithValue(ctx, requestContextKey, &RequestContext{
		RequestID: requestID,
		Operator:  operator,
		StartTime: time.Now(),
	})
}

// WithRunID 为批量同步任务附加 RunID，保留已有的请求信息
func WithRunID(ctx context.Context, runID string) context.Context {
	current := GetRequestContext(ctx)
	next := *current
	next.RunID = runID
	if next.StartTime.IsZero() {
		next.StartTime = time.Now()
	}
	return context.WithValue(ctx, requestContextKey, &next)
}

// GetRequestContext 从 Context 中提取 RequestContext，不存在时返回默认值
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{RequestID: "unknown", Operator: "system"}
}

// GetRequestID 从 Context 中提取 Request ID
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetOperator 从 Context 中提取操作者
func GetOperator(ctx context.Context) string {
	return GetRequestContext(ctx).Operator
}

// GetElapsedTime 获取已执行时间（毫秒）
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
