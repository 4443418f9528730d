package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"arm_shn/config"
	"arm_shn/database"
	"arm_shn/middleware"
	"arm_shn/services"
)

// Services сервисы, обслуживаемые HTTP API
type Services struct {
	Locations  *services.LocationService
	Devices    *services.DeviceService
	Kip        *services.KipService
	Mechanic   *services.MechanicService
	Status     *services.StatusService
	Statistics *services.StatisticsService
}

// RouterOptions инфраструктура маршрутизатора
type RouterOptions struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Auth     *middleware.Auth
	Security config.SecurityConfig
}

// RegisterRoutes регистрирует маршруты API
func RegisterRoutes(r *gin.Engine, svc Services, opts RouterOptions) {
	r.GET("/ping", func(c *gin.Context) {
		status := database.HealthCheck(c.Request.Context(), opts.DB, opts.Redis)
		code := http.StatusOK
		if status["database"] != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   "success",
			"message":  "pong",
			"database": status["database"],
			"redis":    status["redis"],
		})
	})

	locations := NewLocationAPI(svc.Locations)
	devices := NewDeviceAPI(svc.Devices, svc.Statistics)
	kip := NewKipReportAPI(svc.Kip, svc.Statistics)
	mechanic := NewMechanicReportAPI(svc.Mechanic, svc.Statistics)
	statistics := NewStatisticsAPI(svc.Statistics, svc.Status)

	apiGroup := r.Group("/api")
	if opts.Auth != nil {
		apiGroup.Use(opts.Auth.Identify())
	}
	apiGroup.Use(middleware.ModerateRateLimit(opts.Redis, opts.Security))
	strict := middleware.StrictRateLimit(opts.Redis)

	apiGroup.GET("/stations", locations.GetStations)
	apiGroup.GET("/stations/:id", locations.GetStation)
	apiGroup.POST("/stations/:id/avz", locations.CreateAVZ)
	apiGroup.GET("/avz/:id", locations.GetAVZ)
	apiGroup.POST("/racks", locations.CreateRack)
	apiGroup.GET("/racks", locations.GetRacks)
	apiGroup.POST("/places", locations.CreatePlace)
	apiGroup.GET("/places", locations.GetPlaces)
	apiGroup.GET("/device-types", locations.GetDeviceTypes)
	apiGroup.POST("/device-types", locations.CreateDeviceType)
	apiGroup.GET("/users", locations.GetUsers)
	apiGroup.POST("/users", locations.CreateUser)

	apiGroup.POST("/devices", devices.CreateDevice)
	apiGroup.GET("/devices", devices.GetDevices)
	apiGroup.GET("/devices/:id", devices.GetDevice)
	apiGroup.PUT("/devices/:id", devices.UpdateDevice)
	apiGroup.POST("/devices/:id/stock", devices.SendToStock)
	apiGroup.GET("/devices/:id/history", devices.GetDeviceHistory)

	apiGroup.POST("/kip-reports", kip.CreateKipReport)
	apiGroup.GET("/kip-reports", kip.GetKipReports)
	apiGroup.POST("/kip-reports/crate", kip.AddToCrate)
	apiGroup.GET("/kip-reports/:id", kip.GetKipReport)
	apiGroup.POST("/kip-reports/:id/lines", kip.AddLines)
	apiGroup.DELETE("/kip-reports/:id/lines/:line_id", kip.RemoveLine)
	apiGroup.POST("/kip-reports/:id/dispatch", strict, kip.Dispatch)

	apiGroup.POST("/mechanic-reports", mechanic.CreateMechanicReport)
	apiGroup.GET("/mechanic-reports", mechanic.GetMechanicReports)
	apiGroup.GET("/mechanic-reports/:id", mechanic.GetMechanicReport)
	apiGroup.POST("/mechanic-reports/:id/close", mechanic.CloseMechanicReport)
	apiGroup.POST("/mechanic-reports/:id/comments", mechanic.AddComment)
	apiGroup.POST("/mechanic-reports/:id/devices/:device_id/install", strict, mechanic.InstallDevice)
	apiGroup.POST("/mechanic-reports/:id/devices/:device_id/swap", strict, mechanic.SwapDevice)
	apiGroup.POST("/mechanic-reports/:id/devices/:device_id/defect", strict, mechanic.MarkDefect)

	apiGroup.POST("/maintenance/recompute-statuses", strict, statistics.RecomputeStatuses)
	apiGroup.GET("/statistics", statistics.GetStatistics)
}
