package biz

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"SyncGuard/pkg/metadata"
)

// Registered service names
const (
	ServiceInstagram = "instagram_api"
	ServiceFacebook  = "facebook_api"
	ServicePOS       = "pos_system"
)

// Data quality scores stored with each actual.
const (
	QualityMeasured = 100
	// QualityEstimated marks a value computed from a fallback input (e.g. followers
	// instead of reach).
	QualityEstimated = 70
)

// MetricResult is the outcome of computing one metric. Success with a nil Value never
// happens; a nil Value means the inputs were insufficient, which is not an error.
type MetricResult struct {
	MetricCode   string
	Success      bool
	Value        *float64
	Message      string
	QualityScore int
	Metadata     *metadata.SyncMetadata
}

// SyncStrategy turns one mirrored data source into KPI values.
type SyncStrategy interface {
	// ServiceName is the breaker/limiter key and the stored data_source.
	ServiceName() string
	// SupportedMetrics lists metric codes in their fixed sync order.
	SupportedMetrics() []string
	// IsAvailable reports whether the tenant has an active connection for this source.
	IsAvailable(ctx context.Context, tenantID int64) (bool, error)
	// SyncOneMetric computes one metric of date. Unexpected failures are returned as
	// errors; insufficient inputs as an unsuccessful result.
	SyncOneMetric(ctx context.Context, tenantID int64, metricCode string, date time.Time) (*MetricResult, error)
}

// StrategyRegistry holds strategies keyed by service name, in registration order.
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[string]SyncStrategy
	order      []string
}

// NewStrategyRegistry creates a registry holding the given strategies.
// It panics on a duplicate service name.
func NewStrategyRegistry(strategies ...SyncStrategy) *StrategyRegistry {
	r := &StrategyRegistry{strategies: make(map[string]SyncStrategy, len(strategies))}
	for _, s := range strategies {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// NewDefaultStrategyRegistry registers the built-in sources.
func NewDefaultStrategyRegistry(ig *InstagramStrategy, fb *FacebookStrategy, pos *PosStrategy) *StrategyRegistry {
	return NewStrategyRegistry(ig, fb, pos)
}

// Register adds a strategy. Service names must be unique.
func (r *StrategyRegistry) Register(s SyncStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.ServiceName()
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("strategy %s already registered", name)
	}
	r.strategies[name] = s
	r.order = append(r.order, name)
	return nil
}

// Get returns the strategy registered for service.
func (r *StrategyRegistry) Get(service string) (SyncStrategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[service]
	return s, ok
}

// Services returns the registered service names.
func (r *StrategyRegistry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the registered strategies.
func (r *StrategyRegistry) All() []SyncStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SyncStrategy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.strategies[name])
	}
	return out
}

// metricFunc computes one metric. A nil value means insufficient data.
type metricFunc[S any] func(ctx context.Context, src S, date time.Time) (*float64, int, error)

// formulaTable maps metric codes to formulas and remembers their order.
type formulaTable[S any] struct {
	codes    []string
	formulas map[string]metricFunc[S]
}

func newFormulaTable[S any]() *formulaTable[S] {
	return &formulaTable[S]{formulas: make(map[string]metricFunc[S])}
}

func (t *formulaTable[S]) add(code string, fn metricFunc[S]) *formulaTable[S] {
	t.codes = append(t.codes, code)
	t.formulas[code] = fn
	return t
}

func (t *formulaTable[S]) supported() []string {
	out := make([]string, len(t.codes))
	copy(out, t.codes)
	return out
}

// evaluate runs the formula for code and shapes the result.
func (t *formulaTable[S]) evaluate(ctx context.Context, code string, src S, date time.Time, meta *metadata.SyncMetadata) (*MetricResult, error) {
	fn, ok := t.formulas[code]
	if !ok {
		return &MetricResult{MetricCode: code, Message: "metric not supported"}, nil
	}

	value, quality, err := fn(ctx, src, date)
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s: %w", code, err)
	}
	if value == nil {
		return &MetricResult{MetricCode: code, Message: "insufficient data to calculate metric"}, nil
	}

	return &MetricResult{
		MetricCode:   code,
		Success:      true,
		Value:        value,
		Message:      "metric synced",
		QualityScore: quality,
		Metadata:     meta,
	}, nil
}

// noData is the formula of metrics without mirrored inputs.
func noData[S any](context.Context, S, time.Time) (*float64, int, error) {
	return nil, 0, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// measured returns round2(v) with the measured quality score.
func measured(v float64) (*float64, int, error) {
	r := round2(v)
	return &r, QualityMeasured, nil
}

// percent returns num/den*100, or nil when den is zero.
func percent(num, den float64) (*float64, int, error) {
	if den == 0 {
		return nil, 0, nil
	}
	return measured(num / den * 100)
}

// ratio returns num/den, or nil when den is zero.
func ratio(num, den float64) (*float64, int, error) {
	if den == 0 {
		return nil, 0, nil
	}
	return measured(num / den)
}

// positive returns v, or nil when v is not positive.
func positive(v float64) (*float64, int, error) {
	if v <= 0 {
		return nil, 0, nil
	}
	return measured(v)
}
