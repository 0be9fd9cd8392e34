package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nomadaapp/nomada/app/models"
	"github.com/nomadaapp/nomada/internal/pkg/env"
	"github.com/nomadaapp/nomada/internal/pkg/logging"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

func GetDB() *gorm.DB {
	return DB
}

// DSN builds the MySQL data source name from DB_* variables.
func DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// SetupDatabase connects with retries and migrates the schema.
func SetupDatabase() error {
	log := logging.Component("database")
	dsn := DSN()

	level := gormlogger.Warn
	if env.IsDev() {
		level = gormlogger.Info
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			// Duplicate keys surface as gorm.ErrDuplicatedKey.
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(level),
		})
		if err == nil {
			if err = Migrate(DB); err != nil {
				return err
			}
			log.Info().Str("host", env.GetEnv("DB_HOST", "127.0.0.1")).Msg("database ready")
			return nil
		}

		log.Warn().Err(err).Int("try", i+1).Int("max", maxRetries).Msg("failed to connect to database")
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return fmt.Errorf("connect database: %w", err)
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Subscriber{},
		&models.KVEntry{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
