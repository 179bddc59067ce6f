// Package data provides data access layer implementations.
// It handles database connections, the shared key-value store and data persistence.
package data

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewKVStore,
	NewMySQLClient,
)

// Data contains all data layer dependencies.
type Data struct {
	// redisClient is nil when Redis is unavailable
	redisClient *redis.Client
	kv          KVStore
	db          *gorm.DB
}

// NewData creates a new Data instance with all data layer dependencies.
// Redis connection failure does not prevent application startup (graceful degradation).
func NewData(logger log.Logger, rdb *redis.Client, kv KVStore, db *gorm.DB) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, breaker and limiter state is local to this process")
	}

	d := &Data{
		redisClient: rdb,
		kv:          kv,
		db:          db,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
	}

	return d, cleanup, nil
}

// KV returns the shared key-value store.
func (d *Data) KV() KVStore {
	return d.kv
}

// DB returns the database handle.
func (d *Data) DB() *gorm.DB {
	return d.db
}

// RedisAvailable reports whether the KV store is shared across processes.
func (d *Data) RedisAvailable() bool {
	return d.redisClient != nil
}

// OwnedModels are the tables this service writes.
func OwnedModels() []interface{} {
	return []interface{}{&KpiDailyActual{}, &CircuitAuditLog{}}
}

// PlatformModels are the platform tables this service only reads.
func PlatformModels() []interface{} {
	return []interface{}{
		&Business{}, &BusinessKpiConfiguration{}, &KpiTarget{},
		&InstagramBusinessAccount{}, &InstagramPost{}, &InstagramStory{},
		&FacebookPage{}, &FacebookPost{}, &FacebookCampaign{}, &FacebookAd{},
		&Integration{}, &PosTransaction{}, &PosTransactionItem{},
		&RestaurantTable{}, &StaffShift{},
	}
}

// AutoMigrate creates or updates the owned tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(OwnedModels()...)
}
