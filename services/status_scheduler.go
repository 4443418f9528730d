package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"arm_shn/logger"
)

// StatusScheduler запускает пересчет статусов по расписанию
type StatusScheduler struct {
	statusService *StatusService
	cron          *cron.Cron
	logger        *zap.Logger
	entryID       cron.EntryID
}

// NewStatusScheduler создает планировщик с расписанием в формате cron с секундами
func NewStatusScheduler(statusService *StatusService, spec, timezone string, log *zap.Logger) (*StatusScheduler, error) {
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("неизвестный часовой пояс %q: %w", timezone, err)
		}
		loc = l
	}

	ss := &StatusScheduler{
		statusService: statusService,
		cron:          cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		logger:        logger.OrNop(log),
	}

	id, err := ss.cron.AddFunc(spec, ss.run)
	if err != nil {
		return nil, fmt.Errorf("некорректное расписание %q: %w", spec, err)
	}
	ss.entryID = id
	return ss, nil
}

// Start запускает планировщик
func (ss *StatusScheduler) Start() {
	ss.cron.Start()
	ss.logger.Info("планировщик пересчета статусов запущен", zap.Time("next_run", ss.NextRun()))
}

// Stop останавливает планировщик и ждет завершения текущего пересчета
func (ss *StatusScheduler) Stop() {
	<-ss.cron.Stop().Done()
	ss.logger.Info("планировщик пересчета статусов остановлен")
}

// NextRun возвращает время следующего запуска
func (ss *StatusScheduler) NextRun() time.Time {
	return ss.cron.Entry(ss.entryID).Next
}

func (ss *StatusScheduler) run() {
	if _, err := ss.statusService.RecomputeNow(context.Background()); err != nil {
		ss.logger.Error("ошибка пересчета статусов", zap.Error(err))
	}
}
