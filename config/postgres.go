package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgrepo "github.com/yoockh/groupspeak/internal/repositories/postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var PostgresDB *gorm.DB

type PostgresPool struct {
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
	SlowQuery       time.Duration `env:"SLOW_QUERY" envDefault:"500ms"`
}

// InitPostgres opens the pool, pings it and migrates the session tables.
// Slow queries and errors go to w when it is set.
func InitPostgres(uri string, pool PostgresPool, w gormlogger.Writer) error {
	if uri == "" {
		return errors.New("POSTGRES_URI is not set")
	}

	gl := gormlogger.Default.LogMode(gormlogger.Warn)
	if w != nil {
		gl = gormlogger.New(w, gormlogger.Config{
			SlowThreshold:             pool.SlowQuery,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(uri), &gorm.Config{
		Logger:  gl,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	if err := pgrepo.AutoMigrate(db.WithContext(ctx)); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}

	PostgresDB = db
	return nil
}
