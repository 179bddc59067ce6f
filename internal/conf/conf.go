package conf

import "time"

// Bootstrap is the root configuration of the SyncGuard service.
type Bootstrap struct {
	Server *Server
	Data   *Data
	Sync   *Sync
	Log    *Log
}

// Server holds transport settings.
type Server struct {
	HTTP *HTTPServer
	GRPC *GRPCServer
}

// HTTPServer configures the admin HTTP listener.
type HTTPServer struct {
	Network string
	Addr    string
	Timeout time.Duration
	// AdminToken protects the mutating admin routes (breaker reset, manual sync).
	// Empty disables the check.
	AdminToken string
}

// GRPCServer configures the gRPC listener that serves grpc.health.v1.
type GRPCServer struct {
	Network string
	Addr    string
	Timeout time.Duration
}

// Data holds storage settings.
type Data struct {
	Database *Database
	Redis    *Redis
	// LocalCacheSize bounds the in-process key-value fallback used when Redis is unavailable.
	LocalCacheSize int
}

// Database configures the relational store.
type Database struct {
	Driver string
	Source string
	// MaxOpenConns caps concurrent connections; batches run one query per tenant.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis configures the shared key-value store.
type Redis struct {
	Network      string
	Addr         string
	Password     string
	DB           int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// Sync holds the resilience and orchestration settings.
type Sync struct {
	CircuitBreaker     *CircuitBreaker
	RateLimiter        *RateLimiter
	Monitor            *Monitor
	Probe              *Probe
	BatchSize          int
	MaxParallelBatches int
	Schedule           string
	Timezone           string
	RunTimeout         time.Duration
}

// CircuitBreaker configures the shared circuit breaker.
type CircuitBreaker struct {
	Enabled          bool
	FailureThreshold int
	Timeout          time.Duration
	SuccessThreshold int
	// ProbeTTL bounds how long a half-open trial marker lives.
	ProbeTTL time.Duration
}

// RateLimiter configures the fixed-window limiter.
type RateLimiter struct {
	Window       time.Duration
	MaxAttempts  int
	DefaultLimit int
	// Limits maps a service name to its per-window call budget.
	Limits map[string]int
}

// Monitor holds the sync health thresholds.
type Monitor struct {
	SuccessRateWarning    float64
	SuccessRateCritical   float64
	AvgDurationWarning    float64
	AvgDurationCritical   float64
	FailedTenantsWarning  int
	FailedTenantsCritical int
}

// Probe configures the reachability check used by the operator probe command.
type Probe struct {
	Timeout  time.Duration
	ProxyURL string
	// Targets maps a service name to the URL requested by a probe.
	Targets map[string]string
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
