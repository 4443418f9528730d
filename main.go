package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"arm_shn/api"
	"arm_shn/config"
	"arm_shn/database"
	"arm_shn/logger"
	"arm_shn/middleware"
	"arm_shn/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("❌ Ошибка загрузки конфигурации:", err)
	}
	cfg.LogConfig()

	zapLog, err := logger.New(cfg.Logging, cfg.IsProduction())
	if err != nil {
		log.Fatal("❌ Ошибка инициализации логгера:", err)
	}
	defer zapLog.Sync()

	db, err := database.ConnectDatabase(cfg)
	if err != nil {
		zapLog.Fatal("ошибка подключения к базе данных", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.Timeout)
		rdb, err = database.InitRedis(ctx, cfg.Redis)
		cancel()
		if err != nil {
			// без Redis работают без кэша и ограничения частоты
			zapLog.Warn("Redis недоступен", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var (
		notifier services.Notifier
		telegram *services.TelegramNotifier
	)
	if cfg.Telegram.BotToken != "" {
		telegram, err = services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, zapLog)
		if err != nil {
			zapLog.Warn("уведомления Telegram отключены", zap.Error(err))
			telegram = nil
		} else {
			notifier = telegram
		}
	}

	clock := services.Clock(time.Now)
	statistics := services.NewStatisticsService(db, services.NewCacheService(rdb, zapLog), clock)
	statusService := services.NewStatusService(db, zapLog, clock)
	statusService.Statistics = statistics
	svc := api.Services{
		Locations:  services.NewLocationService(db),
		Devices:    services.NewDeviceService(db, zapLog, clock),
		Kip:        services.NewKipService(db, zapLog, clock, notifier),
		Mechanic:   services.NewMechanicService(db, zapLog, clock, services.NewGormLedger(db), notifier),
		Status:     statusService,
		Statistics: statistics,
	}

	if cfg.Scheduler.Enabled {
		scheduler, err := services.NewStatusScheduler(statusService, cfg.Scheduler.StatusSweepSpec, cfg.Scheduler.Timezone, zapLog)
		if err != nil {
			zapLog.Fatal("ошибка настройки пересчета статусов", zap.Error(err))
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(zapLog))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	api.RegisterRoutes(r, svc, api.RouterOptions{
		DB:       db,
		Redis:    rdb,
		Auth:     middleware.NewAuth(cfg.JWT, !cfg.IsProduction()),
		Security: cfg.Security,
	})

	srv := &http.Server{
		Addr:    cfg.App.Host + ":" + cfg.App.Port,
		Handler: r,
	}

	go func() {
		zapLog.Info("🚀 Сервер запущен", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("ошибка HTTP сервера", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLog.Info("остановка сервера")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLog.Error("ошибка остановки сервера", zap.Error(err))
	}
	if telegram != nil {
		if err := telegram.Close(ctx); err != nil {
			zapLog.Warn("не все уведомления отправлены", zap.Error(err))
		}
	}
}
