package data

import (
	"fmt"
	"time"

	"SyncGuard/internal/conf"
	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultMaxOpenConns = 20
	defaultMaxIdleConns = 5
)

// normalizeDSN parses the configured DSN and forces the options the KPI and
// platform tables rely on: DATE/DATETIME columns scan into time.Time, and
// timestamps round-trip in UTC regardless of the server's session zone.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// NewMySQLClient opens the platform database that holds tenants, the
// per-platform source tables and kpi_daily_actuals.
func NewMySQLClient(c *conf.Data, l log.Logger) (*gorm.DB, func(), error) {
	events := pkglog.NewLogHelper(l)

	if c == nil || c.Database == nil || c.Database.Source == "" {
		return nil, nil, fmt.Errorf("database configuration is required")
	}
	if c.Database.Driver != "" && c.Database.Driver != "mysql" {
		return nil, nil, fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	dsn, err := normalizeDSN(c.Database.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}

	db, err := gorm.Open(mysql.Open(dsn), newGormConfig(l))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	maxOpen, maxIdle := c.Database.MaxOpenConns, c.Database.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = min(defaultMaxIdleConns, maxOpen)
	}
	lifetime := c.Database.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	events.Database("mysql connected", "dsn", dsn, "max_open_conns", maxOpen, "max_idle_conns", maxIdle)

	return db, func() {
		if err := sqlDB.Close(); err != nil {
			events.Errorw("msg", "failed to close MySQL", "error", err)
		}
	}, nil
}

func newGormConfig(l log.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			gormWriter{helper: log.NewHelper(log.With(l, "type", "database"))},
			logger.Config{
				SlowThreshold:             500 * time.Millisecond, // aggregation queries scan a whole day
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}
}

// gormWriter sends gorm's slow-query and error lines to the service logger.
type gormWriter struct {
	helper *log.Helper
}

func (g gormWriter) Printf(format string, v ...interface{}) {
	g.helper.Warnf(format, v...)
}
