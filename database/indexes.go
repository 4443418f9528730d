package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// PerformanceIndexes составные индексы для частых выборок
var PerformanceIndexes = []DatabaseIndex{
	// Поиск приборов на месте и в АВЗ при сборке и отправке КИП
	{
		Name:    "idx_devices_station_place",
		Table:   "devices",
		Columns: []string{"station_id", "mounting_address_id"},
	},
	{
		Name:    "idx_devices_avz_type_status",
		Table:   "devices",
		Columns: []string{"avz_id", "device_type_id", "status"},
	},
	{
		Name:    "idx_devices_stock_type_contact",
		Table:   "devices",
		Columns: []string{"stock_id", "device_type_id", "contact_type"},
	},

	// Пересчет статусов
	{
		Name:    "idx_devices_status_next_check",
		Table:   "devices",
		Columns: []string{"status", "next_check_date"},
	},

	// Проверка повторного адреса в строках КИП
	{
		Name:    "idx_device_kip_reports_target",
		Table:   "device_kip_reports",
		Columns: []string{"station_id", "mounting_address"},
	},
	{
		Name:    "idx_racks_station_number",
		Table:   "racks",
		Columns: []string{"station_id", "number"},
	},
	{
		Name:    "idx_places_rack_number",
		Table:   "places",
		Columns: []string{"rack_id", "number"},
	},
	{
		Name:    "idx_device_operations_device_created",
		Table:   "device_operations",
		Columns: []string{"device_id", "created_at"},
	},
}

// CreatePerformanceIndexes создает индексы для оптимизации производительности
func CreatePerformanceIndexes(db *gorm.DB) error {
	for _, index := range PerformanceIndexes {
		if err := CreateIndex(db, index); err != nil {
			log.Printf("Failed to create index %s: %v", index.Name, err)
			// Продолжаем создание других индексов даже если один упал
			continue
		}
	}

	log.Printf("Performance indexes creation completed")
	return nil
}

// CreateIndex создает отдельный индекс
func CreateIndex(db *gorm.DB, index DatabaseIndex) error {
	uniqueStr := ""
	if index.Unique {
		uniqueStr = "UNIQUE "
	}
	sql := fmt.Sprintf(
		"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		uniqueStr, index.Name, index.Table, strings.Join(index.Columns, ", "),
	)
	return db.Exec(sql).Error
}

// DropIndex удаляет индекс
func DropIndex(db *gorm.DB, indexName string) error {
	sql := fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)
	return db.Exec(sql).Error
}
