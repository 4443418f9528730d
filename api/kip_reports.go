package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"arm_shn/services"
)

// KipReportAPI сборка и отправка отчетов КИП
type KipReportAPI struct {
	Kip        *services.KipService
	Statistics *services.StatisticsService
}

// NewKipReportAPI создает новый экземпляр KipReportAPI
func NewKipReportAPI(kip *services.KipService, statistics *services.StatisticsService) *KipReportAPI {
	return &KipReportAPI{Kip: kip, Statistics: statistics}
}

type kipReportRequest struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
}

// CreateKipReport создает пустой отчет КИП
func (api *KipReportAPI) CreateKipReport(c *gin.Context) {
	var req kipReportRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := api.Kip.Create(c.Request.Context(), GetUserID(c), req.Title, req.Explanation)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Отчет КИП создан", "data": report})
}

// GetKipReports возвращает отчеты КИП
func (api *KipReportAPI) GetKipReports(c *gin.Context) {
	editable, ok := queryBool(c, "editable")
	if !ok {
		return
	}
	page := parsePagination(c)
	reports, total, err := api.Kip.List(c.Request.Context(), editable, page.Limit, page.Offset())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports, "pagination": page.response(total)})
}

// GetKipReport возвращает отчет КИП со строками
func (api *KipReportAPI) GetKipReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	report, err := api.Kip.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

type linesRequest struct {
	Lines []services.LineInput `json:"lines" binding:"required,min=1"`
}

// AddLines добавляет строки в отчет КИП. Либо принимаются все строки, либо ни одна.
func (api *KipReportAPI) AddLines(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req linesRequest
	if !bindJSON(c, &req) {
		return
	}
	lines, err := api.Kip.AddLines(c.Request.Context(), id, req.Lines)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Строки добавлены", "data": lines})
}

// RemoveLine удаляет строку из отчета КИП
func (api *KipReportAPI) RemoveLine(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := parseID(c, "line_id")
	if !ok {
		return
	}
	if err := api.Kip.RemoveLine(c.Request.Context(), id, lineID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Строка удалена"})
}

type crateRequest struct {
	DeviceIDs []uint `json:"device_ids" binding:"required,min=1"`
}

// AddToCrate добавляет выбранные приборы склада в редактируемый отчет КИП
func (api *KipReportAPI) AddToCrate(c *gin.Context) {
	var req crateRequest
	if !bindJSON(c, &req) {
		return
	}
	report, added, err := api.Kip.AddDevicesToCrate(c.Request.Context(), GetUserID(c), req.DeviceIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Приборы добавлены в ящик КИП",
		"data":    report,
		"added":   added,
	})
}

// Dispatch отправляет ящик КИП на станции
func (api *KipReportAPI) Dispatch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	reports, err := api.Kip.Dispatch(c.Request.Context(), id, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateStatistics(c, api.Statistics)

	// станция -> отчет механика
	c.JSON(http.StatusOK, gin.H{
		"message":          "Ящик КИП отправлен",
		"mechanic_reports": reports,
	})
}
