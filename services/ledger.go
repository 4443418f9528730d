package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arm_shn/models"
)

// ConsumptionLedger учет приборов из отчета КИП, уже использованных в рамках отчета механика
type ConsumptionLedger interface {
	// WithTx возвращает журнал, работающий в переданной транзакции
	WithTx(tx *gorm.DB) ConsumptionLedger
	IsConsumed(ctx context.Context, mechanicReportID, deviceID uint) (bool, error)
	Consume(ctx context.Context, mechanicReportID, deviceID uint, kipReportID *uint) error
	Consumed(ctx context.Context, mechanicReportID uint) ([]uint, error)
}

// GormLedger журнал использования, хранящийся в таблице consumption_ledger
type GormLedger struct {
	DB *gorm.DB
}

// NewGormLedger создает новый экземпляр GormLedger
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{DB: db}
}

// WithTx возвращает журнал, работающий в переданной транзакции
func (l *GormLedger) WithTx(tx *gorm.DB) ConsumptionLedger {
	return &GormLedger{DB: tx}
}

// IsConsumed проверяет, использован ли прибор в рамках отчета механика
func (l *GormLedger) IsConsumed(ctx context.Context, mechanicReportID, deviceID uint) (bool, error) {
	var count int64
	err := txFrom(ctx, l.DB).Model(&models.LedgerEntry{}).
		Where("mechanic_report_id = ? AND device_id = ?", mechanicReportID, deviceID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ошибка при проверке журнала использования: %w", err)
	}
	return count > 0, nil
}

// Consume отмечает прибор как использованный. Повторная отметка не считается ошибкой.
func (l *GormLedger) Consume(ctx context.Context, mechanicReportID, deviceID uint, kipReportID *uint) error {
	entry := models.LedgerEntry{
		MechanicReportID: mechanicReportID,
		DeviceID:         deviceID,
		KipReportID:      kipReportID,
	}
	err := txFrom(ctx, l.DB).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("ошибка при записи в журнал использования: %w", err)
	}
	return nil
}

// Consumed возвращает идентификаторы использованных приборов отчета механика
func (l *GormLedger) Consumed(ctx context.Context, mechanicReportID uint) ([]uint, error) {
	var ids []uint
	err := txFrom(ctx, l.DB).Model(&models.LedgerEntry{}).
		Where("mechanic_report_id = ?", mechanicReportID).
		Order("id ASC").
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при чтении журнала использования: %w", err)
	}
	return ids, nil
}
