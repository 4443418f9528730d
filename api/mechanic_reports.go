package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"arm_shn/services"
)

// MechanicReportAPI отчеты механиков и действия на линии
type MechanicReportAPI struct {
	Mechanic   *services.MechanicService
	Statistics *services.StatisticsService
}

// NewMechanicReportAPI создает новый экземпляр MechanicReportAPI
func NewMechanicReportAPI(mechanic *services.MechanicService, statistics *services.StatisticsService) *MechanicReportAPI {
	return &MechanicReportAPI{Mechanic: mechanic, Statistics: statistics}
}

// CreateMechanicReport создает отчет механика вручную
func (api *MechanicReportAPI) CreateMechanicReport(c *gin.Context) {
	var input services.MechanicReportInput
	if !bindJSON(c, &input) {
		return
	}
	report, err := api.Mechanic.CreateReport(c.Request.Context(), input, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Отчет механика создан", "data": report})
}

// GetMechanicReports возвращает отчеты механиков с фильтрацией
func (api *MechanicReportAPI) GetMechanicReports(c *gin.Context) {
	var filter services.MechanicReportFilter
	var ok bool
	if filter.StationID, ok = queryUint(c, "station_id"); !ok {
		return
	}
	if filter.Closed, ok = queryBool(c, "closed"); !ok {
		return
	}
	page := parsePagination(c)
	filter.Limit, filter.Offset = page.Limit, page.Offset()

	reports, total, err := api.Mechanic.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports, "pagination": page.response(total)})
}

// GetMechanicReport возвращает отчет механика с приборами и комментариями
func (api *MechanicReportAPI) GetMechanicReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	report, err := api.Mechanic.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	consumed, err := api.Mechanic.Consumed(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report, "consumed_device_ids": consumed})
}

// CloseMechanicReport закрывает отчет механика
func (api *MechanicReportAPI) CloseMechanicReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	report, err := api.Mechanic.Close(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Отчет механика закрыт", "data": report})
}

// AddComment добавляет комментарий к отчету механика
func (api *MechanicReportAPI) AddComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !bindJSON(c, &req) {
		return
	}
	comment, err := api.Mechanic.AddComment(c.Request.Context(), id, GetUserID(c), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Комментарий добавлен", "data": comment})
}

// fieldAction действие механика над прибором отчета
type fieldAction func(ctx context.Context, reportID, deviceID uint, kipID *uint, userID *uint) (*services.Result, error)

// InstallDevice устанавливает присланный прибор
func (api *MechanicReportAPI) InstallDevice(c *gin.Context) {
	api.runFieldAction(c, api.Mechanic.Install)
}

// SwapDevice заменяет прибор на линии прибором из отчета КИП
func (api *MechanicReportAPI) SwapDevice(c *gin.Context) {
	api.runFieldAction(c, api.Mechanic.Swap)
}

// MarkDefect отмечает прибор как бракованный
func (api *MechanicReportAPI) MarkDefect(c *gin.Context) {
	api.runFieldAction(c, api.Mechanic.MarkDefect)
}

func (api *MechanicReportAPI) runFieldAction(c *gin.Context, action fieldAction) {
	reportID, ok := parseID(c, "id")
	if !ok {
		return
	}
	deviceID, ok := parseID(c, "device_id")
	if !ok {
		return
	}
	kipID, ok := queryUint(c, "kip_report_id")
	if !ok {
		return
	}

	result, err := action(c.Request.Context(), reportID, deviceID, kipID, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Success {
		invalidateStatistics(c, api.Statistics)
	}
	c.JSON(http.StatusOK, gin.H{"success": result.Success, "message": result.Message})
}
