// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	rateLimitPrefix   = "sync.rate_limiter.limits."
	probeTargetPrefix = "sync.probe.targets."
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with SYNCGUARD_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or SYNCGUARD_DATA_DATABASE_SOURCE: MySQL connection string
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SYNCGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Direct names kept for deployments that share env files with the main platform
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "SYNCGUARD_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "SYNCGUARD_DATA_REDIS_ADDR")
	_ = v.BindEnv("data.redis.password", "REDIS_PASSWORD", "SYNCGUARD_DATA_REDIS_PASSWORD")
	_ = v.BindEnv("server.http.admin_token", "SYNCGUARD_ADMIN_TOKEN")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			HTTP: &HTTPServer{
				Network:    v.GetString("server.http.network"),
				Addr:       v.GetString("server.http.addr"),
				Timeout:    v.GetDuration("server.http.timeout"),
				AdminToken: v.GetString("server.http.admin_token"),
			},
			GRPC: &GRPCServer{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: v.GetDuration("server.grpc.timeout"),
			},
		},
		Data: &Data{
			Database: &Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),

				MaxOpenConns:    v.GetInt("data.database.max_open_conns"),
				MaxIdleConns:    v.GetInt("data.database.max_idle_conns"),
				ConnMaxLifetime: v.GetDuration("data.database.conn_max_lifetime"),
			},
			Redis: &Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				DB:           v.GetInt("data.redis.db"),
				ReadTimeout:  v.GetDuration("data.redis.read_timeout"),
				WriteTimeout: v.GetDuration("data.redis.write_timeout"),
				PoolSize:     v.GetInt("data.redis.pool_size"),
			},
			LocalCacheSize: v.GetInt("data.local_cache_size"),
		},
		Sync: &Sync{
			CircuitBreaker: &CircuitBreaker{
				Enabled:          v.GetBool("sync.circuit_breaker.enabled"),
				FailureThreshold: v.GetInt("sync.circuit_breaker.failure_threshold"),
				Timeout:          v.GetDuration("sync.circuit_breaker.timeout"),
				SuccessThreshold: v.GetInt("sync.circuit_breaker.success_threshold"),
				ProbeTTL:         v.GetDuration("sync.circuit_breaker.probe_ttl"),
			},
			RateLimiter: &RateLimiter{
				Window:       v.GetDuration("sync.rate_limiter.window"),
				MaxAttempts:  v.GetInt("sync.rate_limiter.max_attempts"),
				DefaultLimit: v.GetInt("sync.rate_limiter.default_limit"),
				Limits:       intMap(v, rateLimitPrefix),
			},
			Monitor: &Monitor{
				SuccessRateWarning:    v.GetFloat64("sync.monitor.success_rate_warning"),
				SuccessRateCritical:   v.GetFloat64("sync.monitor.success_rate_critical"),
				AvgDurationWarning:    v.GetFloat64("sync.monitor.avg_duration_warning"),
				AvgDurationCritical:   v.GetFloat64("sync.monitor.avg_duration_critical"),
				FailedTenantsWarning:  v.GetInt("sync.monitor.failed_tenants_warning"),
				FailedTenantsCritical: v.GetInt("sync.monitor.failed_tenants_critical"),
			},
			Probe: &Probe{
				Timeout:  v.GetDuration("sync.probe.timeout"),
				ProxyURL: v.GetString("sync.probe.proxy_url"),
				Targets:  stringMap(v, probeTargetPrefix),
			},
			BatchSize:          v.GetInt("sync.batch_size"),
			MaxParallelBatches: v.GetInt("sync.max_parallel_batches"),
			Schedule:           v.GetString("sync.schedule"),
			Timezone:           v.GetString("sync.timezone"),
			RunTimeout:         v.GetDuration("sync.run_timeout"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8000")
	v.SetDefault("server.http.timeout", 30*time.Second)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 30*time.Second)

	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.database.max_open_conns", 20)
	v.SetDefault("data.database.max_idle_conns", 5)
	v.SetDefault("data.database.conn_max_lifetime", time.Hour)
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.db", 0)
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.pool_size", 20)
	v.SetDefault("data.local_cache_size", 10000)

	v.SetDefault("sync.circuit_breaker.enabled", true)
	v.SetDefault("sync.circuit_breaker.failure_threshold", 5)
	v.SetDefault("sync.circuit_breaker.timeout", 300*time.Second)
	v.SetDefault("sync.circuit_breaker.success_threshold", 3)
	v.SetDefault("sync.circuit_breaker.probe_ttl", 60*time.Second)

	v.SetDefault("sync.rate_limiter.window", 60*time.Second)
	v.SetDefault("sync.rate_limiter.max_attempts", 3)
	v.SetDefault("sync.rate_limiter.default_limit", 100)
	v.SetDefault(rateLimitPrefix+"instagram_api", 200)
	v.SetDefault(rateLimitPrefix+"facebook_api", 200)
	v.SetDefault(rateLimitPrefix+"pos_system", 1000)

	v.SetDefault("sync.monitor.success_rate_warning", 80.0)
	v.SetDefault("sync.monitor.success_rate_critical", 60.0)
	v.SetDefault("sync.monitor.avg_duration_warning", 300.0)
	v.SetDefault("sync.monitor.avg_duration_critical", 600.0)
	v.SetDefault("sync.monitor.failed_tenants_warning", 10)
	v.SetDefault("sync.monitor.failed_tenants_critical", 30)

	v.SetDefault("sync.probe.timeout", 5*time.Second)
	v.SetDefault("sync.probe.proxy_url", "")
	v.SetDefault(probeTargetPrefix+"instagram_api", "https://graph.instagram.com")
	v.SetDefault(probeTargetPrefix+"facebook_api", "https://graph.facebook.com")

	v.SetDefault("sync.batch_size", 20)
	v.SetDefault("sync.max_parallel_batches", 1)
	v.SetDefault("sync.schedule", "0 0 5 * * *")
	v.SetDefault("sync.timezone", "Asia/Tashkent")
	v.SetDefault("sync.run_timeout", 2*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// intMap collects every key under prefix (defaults, file and env) into a map.
func intMap(v *viper.Viper, prefix string) map[string]int {
	out := make(map[string]int)
	for _, key := range subKeys(v, prefix) {
		out[key] = v.GetInt(prefix + key)
	}
	return out
}

func stringMap(v *viper.Viper, prefix string) map[string]string {
	out := make(map[string]string)
	for _, key := range subKeys(v, prefix) {
		out[key] = v.GetString(prefix + key)
	}
	return out
}

func subKeys(v *viper.Viper, prefix string) []string {
	var keys []string
	for _, key := range v.AllKeys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing or invalid fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	if bc.Sync == nil {
		missingFields = append(missingFields, "sync")
	} else {
		if bc.Sync.BatchSize <= 0 {
			missingFields = append(missingFields, "sync.batch_size (must be > 0)")
		}
		if cb := bc.Sync.CircuitBreaker; cb == nil || cb.FailureThreshold <= 0 || cb.SuccessThreshold <= 0 {
			missingFields = append(missingFields, "sync.circuit_breaker thresholds (must be > 0)")
		}
		if rl := bc.Sync.RateLimiter; rl == nil || rl.Window <= 0 {
			missingFields = append(missingFields, "sync.rate_limiter.window (must be > 0)")
		}
		if m := bc.Sync.Monitor; m != nil && m.SuccessRateCritical > m.SuccessRateWarning {
			missingFields = append(missingFields, "sync.monitor.success_rate_critical (must be <= warning)")
		}
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
