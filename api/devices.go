package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arm_shn/models"
	"arm_shn/services"
)

// DeviceAPI операции с приборами
type DeviceAPI struct {
	Devices    *services.DeviceService
	Statistics *services.StatisticsService
}

// NewDeviceAPI создает новый экземпляр DeviceAPI
func NewDeviceAPI(devices *services.DeviceService, statistics *services.StatisticsService) *DeviceAPI {
	return &DeviceAPI{Devices: devices, Statistics: statistics}
}

// CreateDevice создает прибор
func (api *DeviceAPI) CreateDevice(c *gin.Context) {
	var input services.DeviceInput
	if !bindJSON(c, &input) {
		return
	}
	device, err := api.Devices.Create(c.Request.Context(), input, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateStatistics(c, api.Statistics)
	c.JSON(http.StatusCreated, gin.H{"message": "Прибор создан", "data": device})
}

// GetDevices возвращает список приборов с фильтрацией
func (api *DeviceAPI) GetDevices(c *gin.Context) {
	filter := services.DeviceFilter{
		ContactType: models.ContactType(c.Query("contact_type")),
		Search:      c.Query("search"),
	}
	var ok bool
	if filter.StationID, ok = queryUint(c, "station_id"); !ok {
		return
	}
	if filter.DeviceTypeID, ok = queryUint(c, "device_type_id"); !ok {
		return
	}
	if filter.InStock, ok = queryBool(c, "in_stock"); !ok {
		return
	}
	if raw, exists := c.GetQuery("status"); exists {
		status := models.DeviceStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("due_month"); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный параметр due_month"})
			return
		}
		filter.DueMonth = month
	}
	page := parsePagination(c)
	filter.Limit, filter.Offset = page.Limit, page.Offset()

	devices, total, err := api.Devices.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": devices, "pagination": page.response(total)})
}

// GetDevice возвращает прибор
func (api *DeviceAPI) GetDevice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	device, err := api.Devices.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": device})
}

// UpdateDevice изменяет прибор
func (api *DeviceAPI) UpdateDevice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var input services.DeviceInput
	if !bindJSON(c, &input) {
		return
	}
	device, err := api.Devices.Update(c.Request.Context(), id, input, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateStatistics(c, api.Statistics)
	c.JSON(http.StatusOK, gin.H{"message": "Прибор обновлен", "data": device})
}

// SendToStock возвращает прибор на склад
func (api *DeviceAPI) SendToStock(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	device, err := api.Devices.SendToStock(c.Request.Context(), id, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	invalidateStatistics(c, api.Statistics)
	c.JSON(http.StatusOK, gin.H{"message": "Прибор возвращен на склад", "data": device})
}

// GetDeviceHistory возвращает журнал перемещений прибора
func (api *DeviceAPI) GetDeviceHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	history, err := api.Devices.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}
