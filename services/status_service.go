package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"arm_shn/logger"
	"arm_shn/models"
)

// StatusService пересчет статусов приборов по срокам проверки
type StatusService struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Clock  Clock

	// сводка, кэш которой сбрасывается после изменения статусов
	Statistics *StatisticsService
}

// NewStatusService создает новый экземпляр StatusService
func NewStatusService(db *gorm.DB, log *zap.Logger, clock Clock) *StatusService {
	return &StatusService{DB: db, Logger: logger.OrNop(log), Clock: clock}
}

// sweepExcluded статусы, которые пересчет не трогает
var sweepExcluded = []models.DeviceStatus{
	models.StatusSent, models.StatusInProgress, models.StatusDecommissioned, models.StatusReplaced,
}

// RecomputeDueStatuses пересчитывает статусы приборов вне склада со сроком проверки.
// Возвращает количество измененных приборов по новым статусам.
func (s *StatusService) RecomputeDueStatuses(ctx context.Context, today time.Time) (map[models.DeviceStatus]int64, error) {
	today = models.DateOf(today)
	changed := make(map[models.DeviceStatus]int64)

	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		var devices []models.Device
		err := tx.Select("id", "status", "next_check_date").
			Where("stock_id IS NULL AND next_check_date IS NOT NULL").
			Where("status NOT IN ?", sweepExcluded).
			Find(&devices).Error
		if err != nil {
			return fmt.Errorf("ошибка при выборке приборов для пересчета: %w", err)
		}

		groups := make(map[models.DeviceStatus][]uint)
		for _, d := range devices {
			status := models.ComputeStatus(d.NextCheckDate, today)
			if status != d.Status {
				groups[status] = append(groups[status], d.ID)
			}
		}

		for status, ids := range groups {
			result := tx.Model(&models.Device{}).Where("id IN ?", ids).Update("status", status)
			if result.Error != nil {
				return fmt.Errorf("ошибка при обновлении статуса %q: %w", status, result.Error)
			}
			changed[status] = result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("статусы пересчитаны", zap.Time("today", today), zap.Any("changed", changed))
	if len(changed) > 0 && s.Statistics != nil {
		if err := s.Statistics.Invalidate(ctx); err != nil {
			s.Logger.Warn("не удалось сбросить кэш статистики", zap.Error(err))
		}
	}
	return changed, nil
}

// RecomputeNow пересчитывает статусы на текущую дату
func (s *StatusService) RecomputeNow(ctx context.Context) (map[models.DeviceStatus]int64, error) {
	return s.RecomputeDueStatuses(ctx, s.Clock.Today())
}
