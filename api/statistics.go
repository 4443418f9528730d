package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"arm_shn/services"
)

// StatisticsAPI сводная статистика и обслуживание статусов
type StatisticsAPI struct {
	Statistics *services.StatisticsService
	Status     *services.StatusService
}

// NewStatisticsAPI создает новый экземпляр StatisticsAPI
func NewStatisticsAPI(statistics *services.StatisticsService, status *services.StatusService) *StatisticsAPI {
	return &StatisticsAPI{Statistics: statistics, Status: status}
}

// GetStatistics возвращает сводку по приборам и отчетам
func (api *StatisticsAPI) GetStatistics(c *gin.Context) {
	stats, err := api.Statistics.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// RecomputeStatuses пересчитывает статусы приборов на текущую дату
func (api *StatisticsAPI) RecomputeStatuses(c *gin.Context) {
	changed, err := api.Status.RecomputeNow(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateStatistics(c, api.Statistics)
	c.JSON(http.StatusOK, gin.H{"message": "Статусы пересчитаны", "data": changed})
}

// invalidateStatistics сбрасывает кэш статистики после изменения приборов.
// Ошибка кэша не влияет на результат запроса.
func invalidateStatistics(c *gin.Context, stats *services.StatisticsService) {
	if stats == nil {
		return
	}
	if err := stats.Invalidate(c.Request.Context()); err != nil {
		_ = c.Error(err)
	}
}
