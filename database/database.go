package database

import (
	"database/sql"
	"fmt"
	"log"

	"arm_shn/config"
	"arm_shn/models"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// createDatabaseIfNotExists создает базу данных через служебное подключение, если ее нет
func createDatabaseIfNotExists(db *sql.DB, dbname string) error {
	// Проверяем, существует ли база данных
	var exists bool
	query := "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1);"
	if err := db.QueryRow(query, dbname).Scan(&exists); err != nil {
		return fmt.Errorf("ошибка при проверке существования базы данных: %w", err)
	}

	if exists {
		log.Printf("✅ База данных '%s' уже существует", dbname)
		return nil
	}

	// Имя базы нельзя передать параметром запроса
	createQuery := fmt.Sprintf("CREATE DATABASE %q;", dbname)
	if _, err := db.Exec(createQuery); err != nil {
		return fmt.Errorf("не удалось создать базу данных '%s': %w", dbname, err)
	}

	log.Printf("✅ База данных '%s' успешно создана", dbname)
	return nil
}

// CreateDatabaseIfNotExists создает базу данных PostgreSQL, если она не существует
func CreateDatabaseIfNotExists(cfg *config.Config) error {
	db, err := sql.Open("postgres", cfg.GetMaintenanceDSN())
	if err != nil {
		return fmt.Errorf("не удалось подключиться к PostgreSQL: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("не удалось проверить подключение к PostgreSQL: %w", err)
	}

	return createDatabaseIfNotExists(db, cfg.Database.Name)
}

// Open открывает подключение к базе данных по типу из конфигурации
func Open(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.App.Debug {
		logLevel = logger.Info
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var dialector gorm.Dialector
	switch cfg.Database.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.SQLitePath + "?_foreign_keys=on")
	default:
		if cfg.Database.AutoCreate {
			if err := CreateDatabaseIfNotExists(cfg); err != nil {
				return nil, err
			}
		}
		dialector = postgres.Open(cfg.GetDatabaseDSN())
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к базе данных: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить пул соединений: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Printf("✅ Успешно подключено к базе данных (%s)", cfg.Database.Type)
	return db, nil
}

// ConnectDatabase открывает базу, выполняет миграции и заполняет справочники
func ConnectDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("ошибка автомиграции: %w", err)
	}
	if err := CreatePerformanceIndexes(db); err != nil {
		return nil, err
	}
	if err := SeedReferenceData(db); err != nil {
		return nil, err
	}

	DB = db
	return db, nil
}

// GetDB возвращает экземпляр базы данных
func GetDB() *gorm.DB {
	return DB
}

// Migrate выполняет автомиграцию всех моделей
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return err
	}

	log.Println("✅ Автомиграция моделей выполнена успешно")
	return nil
}

// SeedReferenceData создает склад и станции из фиксированного списка
func SeedReferenceData(db *gorm.DB) error {
	if _, err := models.EnsureStock(db); err != nil {
		return err
	}

	for _, choice := range models.StationChoices {
		station := models.Station{Code: choice.Code}
		err := db.Where(models.Station{Code: choice.Code}).
			Attrs(models.Station{Name: choice.Name}).
			FirstOrCreate(&station).Error
		if err != nil {
			return fmt.Errorf("ошибка при создании станции %s: %w", choice.Code, err)
		}
	}
	return nil
}
