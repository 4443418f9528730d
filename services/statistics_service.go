package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"arm_shn/models"
)

const statisticsCacheKey = "statistics"

// StationStatistics приборы станции по статусам
type StationStatistics struct {
	StationID   uint                          `json:"station_id"`
	StationName string                        `json:"station_name"`
	Total       int64                         `json:"total"`
	ByStatus    map[models.DeviceStatus]int64 `json:"by_status"`
}

// Statistics сводка по приборам и отчетам
type Statistics struct {
	GeneratedAt         time.Time                     `json:"generated_at"`
	TotalDevices        int64                         `json:"total_devices"`
	InStock             int64                         `json:"in_stock"`
	ByStatus            map[models.DeviceStatus]int64 `json:"by_status"`
	DueThisMonth        int64                         `json:"due_this_month"`
	EditableKipReports  int64                         `json:"editable_kip_reports"`
	OpenMechanicReports int64                         `json:"open_mechanic_reports"`
	Stations            []StationStatistics           `json:"stations"`
}

// StatisticsService сводная статистика с кэшированием в Redis
type StatisticsService struct {
	DB    *gorm.DB
	Cache *CacheService
	Clock Clock
}

// NewStatisticsService создает новый экземпляр StatisticsService
func NewStatisticsService(db *gorm.DB, cache *CacheService, clock Clock) *StatisticsService {
	return &StatisticsService{DB: db, Cache: cache, Clock: clock}
}

// Get возвращает сводку, при наличии Redis из кэша
func (s *StatisticsService) Get(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	err := s.Cache.remember(ctx, statisticsCacheKey, CacheTTLShort, &stats, func() error {
		computed, err := s.compute(ctx)
		if err != nil {
			return err
		}
		stats = *computed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Invalidate сбрасывает кэш сводки
func (s *StatisticsService) Invalidate(ctx context.Context) error {
	return s.Cache.Del(ctx, statisticsCacheKey)
}

type statusCount struct {
	StationID *uint
	Status    models.DeviceStatus
	Count     int64
}

func (s *StatisticsService) compute(ctx context.Context) (*Statistics, error) {
	db := txFrom(ctx, s.DB)
	today := s.Clock.Today()
	stats := &Statistics{
		GeneratedAt: s.Clock.Now(),
		ByStatus:    make(map[models.DeviceStatus]int64),
	}

	var rows []statusCount
	err := db.Model(&models.Device{}).
		Select("station_id, status, COUNT(*) AS count").
		Group("station_id, status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при подсчете приборов: %w", err)
	}

	perStation := make(map[uint]*StationStatistics)
	for _, r := range rows {
		stats.TotalDevices += r.Count
		stats.ByStatus[r.Status] += r.Count
		if r.StationID == nil {
			continue
		}
		st, ok := perStation[*r.StationID]
		if !ok {
			st = &StationStatistics{StationID: *r.StationID, ByStatus: make(map[models.DeviceStatus]int64)}
			perStation[*r.StationID] = st
		}
		st.Total += r.Count
		st.ByStatus[r.Status] += r.Count
	}

	if err := db.Model(&models.Device{}).Where("stock_id IS NOT NULL").Count(&stats.InStock).Error; err != nil {
		return nil, fmt.Errorf("ошибка при подсчете приборов на складе: %w", err)
	}

	from := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	err = db.Model(&models.Device{}).
		Where("stock_id IS NULL AND next_check_date >= ? AND next_check_date < ?", from, from.AddDate(0, 1, 0)).
		Count(&stats.DueThisMonth).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при подсчете приборов к проверке: %w", err)
	}

	if err := db.Model(&models.KipReport{}).Where("editable = ?", true).Count(&stats.EditableKipReports).Error; err != nil {
		return nil, fmt.Errorf("ошибка при подсчете отчетов КИП: %w", err)
	}
	if err := db.Model(&models.MechanicReport{}).Where("closed = ?", false).Count(&stats.OpenMechanicReports).Error; err != nil {
		return nil, fmt.Errorf("ошибка при подсчете отчетов механика: %w", err)
	}

	var stations []models.Station
	if err := db.Order("id ASC").Find(&stations).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении станций: %w", err)
	}
	for _, station := range stations {
		st, ok := perStation[station.ID]
		if !ok {
			st = &StationStatistics{StationID: station.ID, ByStatus: map[models.DeviceStatus]int64{}}
		}
		st.StationName = station.Name
		stats.Stations = append(stats.Stations, *st)
	}
	return stats, nil
}
