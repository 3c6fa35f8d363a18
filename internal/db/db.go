package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/envutil"
	"github.com/yungbote/video-gateway/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver     string
	DSN        string
	SQLitePath string
}

// ConfigFromEnv returns ok=false when no database is configured, which puts the
// gateway into storage-only mode.
func ConfigFromEnv() (Config, bool) {
	cfg := Config{
		Driver:     strings.ToLower(envutil.String("DB_DRIVER", "")),
		DSN:        envutil.String("DATABASE_URL", ""),
		SQLitePath: envutil.String("SQLITE_PATH", ""),
	}
	if cfg.Driver == DriverSQLite || (cfg.Driver == "" && cfg.DSN == "" && cfg.SQLitePath != "") {
		cfg.Driver = DriverSQLite
		if cfg.SQLitePath == "" {
			cfg.SQLitePath = "video-gateway.db"
		}
		return cfg, true
	}
	if cfg.DSN == "" {
		host := envutil.String("POSTGRES_HOST", "")
		if host == "" {
			return cfg, false
		}
		cfg.DSN = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=%s",
			envutil.String("POSTGRES_USER", "postgres"),
			os.Getenv("POSTGRES_PASSWORD"),
			host,
			envutil.String("POSTGRES_PORT", "5432"),
			envutil.String("POSTGRES_NAME", "video_gateway"),
			envutil.String("POSTGRES_SSLMODE", "disable"),
		)
	}
	cfg.Driver = DriverPostgres
	return cfg, true
}

type Service struct {
	db     *gorm.DB
	log    *logger.Logger
	driver string
}

func Open(ctx context.Context, log *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := log.With("service", "DBService", "driver", cfg.Driver)

	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.SQLitePath + "?_busy_timeout=5000&_foreign_keys=on")
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	serviceLog.Info("Connecting to database...")
	gdb, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// One writer at a time; concurrent background tasks otherwise hit SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return &Service{db: gdb, log: serviceLog, driver: cfg.Driver}, nil
}

// Wrap adopts an already-open connection (tests).
func Wrap(gdb *gorm.DB, log *logger.Logger) *Service {
	return &Service{db: gdb, log: log.With("service", "DBService"), driver: gdb.Dialector.Name()}
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Driver() string { return s.driver }

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := AutoMigrate(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

// AutoMigrate creates the tables and the partial unique index that allows at
// most one queued or processing job per (file, quality).
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&media.FileRecord{},
		&media.FileRendition{},
		&media.TranscodingJob{},
		&media.AnalyticsEvent{},
		&media.Session{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := gdb.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_transcoding_job_active
		ON transcoding_job (file_id, quality)
		WHERE status IN ('queued', 'processing')
	`).Error; err != nil {
		return fmt.Errorf("create idx_transcoding_job_active: %w", err)
	}
	return nil
}
