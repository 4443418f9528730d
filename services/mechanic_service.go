package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"arm_shn/logger"
	"arm_shn/models"
)

const mechanicReportDevicesTable = "mechanic_report_devices"

// Result итог действия механика на линии
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func failed(format string, args ...interface{}) *Result {
	return &Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

func succeeded(format string, args ...interface{}) *Result {
	return &Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// MechanicReportInput данные для ручного создания отчета механика
type MechanicReportInput struct {
	Title       string `json:"title"`
	StationID   uint   `json:"station_id"`
	Explanation string `json:"explanation"`
	KipReportID *uint  `json:"kip_report_id"`
	DeviceIDs   []uint `json:"device_ids"`
}

// MechanicReportFilter фильтры списка отчетов механика
type MechanicReportFilter struct {
	StationID *uint
	Closed    *bool
	Limit     int
	Offset    int
}

// MechanicService отчеты механиков и действия на линии: установка, замена, брак
type MechanicService struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Clock    Clock
	Ledger   ConsumptionLedger
	Notifier Notifier
	resolver *ReplacementResolver
}

// NewMechanicService создает новый экземпляр MechanicService
func NewMechanicService(db *gorm.DB, log *zap.Logger, clock Clock, ledger ConsumptionLedger, notifier Notifier) *MechanicService {
	log = logger.OrNop(log)
	if ledger == nil {
		ledger = NewGormLedger(db)
	}
	return &MechanicService{
		DB:       db,
		Logger:   log,
		Clock:    clock,
		Ledger:   ledger,
		Notifier: notifier,
		resolver: &ReplacementResolver{Logger: log},
	}
}

// CreateReport создает отчет механика вручную. Все приборы должны находиться на станции отчета.
func (s *MechanicService) CreateReport(ctx context.Context, input MechanicReportInput, authorID *uint) (*models.MechanicReport, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, newValidationError("title", "Не указан заголовок отчета")
	}
	if utf8.RuneCountInString(title) > models.MechanicReportTitleLen {
		return nil, newValidationError("title", "Заголовок длиннее %d символов", models.MechanicReportTitleLen)
	}

	var report models.MechanicReport
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		station, err := getStation(tx, input.StationID)
		if err != nil {
			if IsNotFound(err) {
				return newValidationError("station", "Станция #%d не существует", input.StationID)
			}
			return err
		}
		if input.KipReportID != nil {
			var count int64
			if err := tx.Model(&models.KipReport{}).Where("id = ?", *input.KipReportID).Count(&count).Error; err != nil {
				return fmt.Errorf("ошибка при проверке отчета КИП: %w", err)
			}
			if count == 0 {
				return newValidationError("kip_report", "Отчет КИП №%d не существует", *input.KipReportID)
			}
		}

		var violations []models.Violation
		for _, id := range input.DeviceIDs {
			var device models.Device
			if err := tx.Preload("Station").Preload("AVZ.Station").First(&device, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					violations = append(violations, models.Violation{Field: "devices", Message: fmt.Sprintf("Прибор #%d не существует", id)})
					continue
				}
				return fmt.Errorf("ошибка при получении прибора #%d: %w", id, err)
			}
			actual := deviceStation(&device)
			if actual == nil || actual.ID != station.ID {
				where := "не на станции"
				if actual != nil {
					where = "на станции " + actual.Name
				}
				violations = append(violations, models.Violation{
					Field:   "devices",
					Message: fmt.Sprintf("Прибор %s находится %s, а отчет составлен для станции %s", deviceLabel(&device), where, station.Name),
				})
			}
		}
		if len(violations) > 0 {
			return &ValidationError{Violations: violations}
		}

		report = models.MechanicReport{
			Title:       title,
			AuthorID:    authorID,
			StationID:   station.ID,
			Explanation: input.Explanation,
			KipReportID: input.KipReportID,
		}
		if err := tx.Omit("Devices", "Comments").Create(&report).Error; err != nil {
			return fmt.Errorf("ошибка при создании отчета механика: %w", err)
		}
		for _, id := range input.DeviceIDs {
			if err := addReportDevice(tx, report.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created, err := s.Get(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("отчет механика создан", zap.Uint("mechanic_report_id", created.ID), zap.Uint("station_id", created.StationID))
	notifyAll(s.Notifier, s.Logger, []models.MechanicReport{*created})
	return created, nil
}

// Get возвращает отчет механика с приборами и комментариями
func (s *MechanicService) Get(ctx context.Context, id uint) (*models.MechanicReport, error) {
	var report models.MechanicReport
	err := txFrom(ctx, s.DB).
		Preload("Author").
		Preload("Station").
		Preload("KipReport").
		Preload("Devices", func(db *gorm.DB) *gorm.DB { return db.Order("devices.id ASC") }).
		Preload("Devices.MountingAddress.Rack").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Comments.Author").
		First(&report, id).Error
	if err != nil {
		return nil, lookupError(err, "отчет механика", id)
	}
	return &report, nil
}

// Consumed возвращает приборы отчета КИП, уже использованные в рамках отчета механика
func (s *MechanicService) Consumed(ctx context.Context, id uint) ([]uint, error) {
	return s.Ledger.Consumed(ctx, id)
}

// List возвращает отчеты механиков, новые сначала
func (s *MechanicService) List(ctx context.Context, filter MechanicReportFilter) ([]models.MechanicReport, int64, error) {
	query := txFrom(ctx, s.DB).Model(&models.MechanicReport{})
	if filter.StationID != nil {
		query = query.Where("station_id = ?", *filter.StationID)
	}
	if filter.Closed != nil {
		query = query.Where("closed = ?", *filter.Closed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка при подсчете отчетов механика: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var reports []models.MechanicReport
	err := query.Preload("Station").Preload("Author").
		Order("id DESC").Limit(limit).Offset(filter.Offset).
		Find(&reports).Error
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка при получении отчетов механика: %w", err)
	}
	return reports, total, nil
}

// Close закрывает отчет механика, после чего действия по нему недоступны
func (s *MechanicService) Close(ctx context.Context, id uint) (*models.MechanicReport, error) {
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		report, err := lockOpenReport(tx, id)
		if err != nil {
			return err
		}
		now := s.Clock.Now()
		return tx.Model(report).Updates(map[string]interface{}{"closed": true, "closed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// AddComment добавляет комментарий к открытому отчету механика
func (s *MechanicService) AddComment(ctx context.Context, id uint, authorID *uint, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newValidationError("text", "Комментарий пуст")
	}
	if utf8.RuneCountInString(text) > models.CommentMaxLen {
		return nil, newValidationError("text", "Комментарий длиннее %d символов", models.CommentMaxLen)
	}

	comment := models.Comment{MechanicReportID: id, AuthorID: authorID, Text: text, Published: true}
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOpenReport(tx, id); err != nil {
			return err
		}
		return tx.Create(&comment).Error
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// Install подтверждает установку отправленного прибора на линии
func (s *MechanicService) Install(ctx context.Context, reportID, deviceID uint, kipID *uint, userID *uint) (*Result, error) {
	var result *Result
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		report, err := lockOpenReport(tx, reportID)
		if err != nil {
			return err
		}
		kip := resolveKip(report, kipID)
		ledger := s.Ledger.WithTx(tx)

		device, err := getDevice(tx, deviceID)
		if err != nil {
			return err
		}
		ok, err := s.installable(tx, report, device, kip)
		if err != nil {
			return err
		}
		if !ok {
			result = failed("Прибор %s не входит в отчет механика №%d", deviceLabel(device), report.ID)
			return nil
		}
		if device.Status != models.StatusSent {
			result = failed("Прибор %s не ожидает установки (статус: %s)", deviceLabel(device), statusLabel(device.Status))
			return nil
		}
		consumed, err := ledger.IsConsumed(ctx, report.ID, device.ID)
		if err != nil {
			return err
		}
		if consumed {
			result = failed("Прибор %s уже использован в этом отчете", deviceLabel(device))
			return nil
		}

		from := describeLocation(tx, device)
		device.StockID = nil
		device.Status = models.ComputeStatus(device.NextCheckDate, s.Clock.Today())
		if err := saveDevice(tx, device); err != nil {
			return err
		}
		if err := ledger.Consume(ctx, report.ID, device.ID, kip); err != nil {
			return err
		}
		if err := recordOperation(tx, models.DeviceOperation{
			Type:             models.OperationInstall,
			DeviceID:         device.ID,
			FromLocation:     from,
			ToLocation:       describeLocation(tx, device),
			FromStatus:       string(models.StatusSent),
			ToStatus:         string(device.Status),
			UserID:           userID,
			MechanicReportID: &report.ID,
			KipReportID:      kip,
		}); err != nil {
			return err
		}

		result = succeeded("Прибор %s установлен, статус: %s", deviceLabel(device), statusLabel(device.Status))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logResult("установка", reportID, deviceID, result)
	return result, nil
}

// installable прибор входит в отчет или отправлен на его станцию по отчету КИП
func (s *MechanicService) installable(tx *gorm.DB, report *models.MechanicReport, device *models.Device, kipID *uint) (bool, error) {
	in, err := reportHasDevice(tx, report.ID, device.ID)
	if err != nil || in || kipID == nil {
		return in, err
	}
	var count int64
	err = tx.Model(&models.DeviceKipReport{}).
		Where("kip_report_id = ? AND device_id = ? AND station_id = ?", *kipID, device.ID, report.StationID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ошибка при проверке строки отчета КИП: %w", err)
	}
	return count > 0, nil
}

// Swap меняет прибор на линии на отправленный прибор из отчета КИП
func (s *MechanicService) Swap(ctx context.Context, reportID, deviceID uint, kipID *uint, userID *uint) (*Result, error) {
	var result *Result
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		report, err := lockOpenReport(tx, reportID)
		if err != nil {
			return err
		}
		kip := resolveKip(report, kipID)
		if kip == nil {
			return newValidationError("kip_report", "Не указан отчет КИП")
		}

		field, err := s.reportDevice(tx, report, deviceID)
		if err != nil || field == nil {
			if err == nil {
				result = failed("Прибор #%d не входит в отчет механика №%d", deviceID, report.ID)
			}
			return err
		}
		if field.InStock() || field.Status.IsPending() {
			result = failed("Прибор %s не установлен на линии", deviceLabel(field))
			return nil
		}

		replacement, err := s.resolver.FieldReplacement(tx, field, *kip, report.ID)
		if err != nil {
			return err
		}
		if replacement == nil {
			result = failed("Для прибора %s нет доступной замены в отчете КИП №%d", deviceLabel(field), *kip)
			return nil
		}

		label := deviceLabel(field)
		x := exchange{tx: tx, ctx: ctx, ledger: s.Ledger.WithTx(tx), report: report, kipID: kip, userID: userID, today: s.Clock.Today()}
		if err := x.run(field, replacement, models.OperationSwapOut, models.OperationSwapIn); err != nil {
			return err
		}
		result = succeeded("Прибор %s заменен прибором %s", label, deviceLabel(replacement))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logResult("замена", reportID, deviceID, result)
	return result, nil
}

// MarkDefect отмечает прибор как бракованный. Не установленный прибор возвращается на склад,
// установленный меняется на следующую доступную замену и исключается из отчета.
func (s *MechanicService) MarkDefect(ctx context.Context, reportID, deviceID uint, kipID *uint, userID *uint) (*Result, error) {
	var result *Result
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		report, err := lockOpenReport(tx, reportID)
		if err != nil {
			return err
		}
		kip := resolveKip(report, kipID)
		if kip == nil {
			return newValidationError("kip_report", "Не указан отчет КИП")
		}

		device, err := s.reportDevice(tx, report, deviceID)
		if err != nil || device == nil {
			if err == nil {
				result = failed("Прибор #%d не входит в отчет механика №%d", deviceID, report.ID)
			}
			return err
		}
		if device.InStock() {
			result = failed("Прибор %s уже на складе", deviceLabel(device))
			return nil
		}

		if device.Status == models.StatusSent {
			label := deviceLabel(device)
			err := moveToStock(tx, device, models.DeviceOperation{
				Type:             models.OperationDefect,
				UserID:           userID,
				MechanicReportID: &report.ID,
				KipReportID:      kip,
				Notes:            "брак до установки",
			})
			if err != nil {
				return err
			}
			if err := removeReportDevice(tx, report.ID, device.ID); err != nil {
				return err
			}
			result = succeeded("Прибор %s возвращен на склад", label)
			return nil
		}

		replacement, err := s.resolver.FieldReplacement(tx, device, *kip, report.ID)
		if err != nil {
			return err
		}
		if replacement == nil {
			result = failed("Для прибора %s не осталось замены в отчете КИП №%d", deviceLabel(device), *kip)
			return nil
		}

		label := deviceLabel(device)
		x := exchange{tx: tx, ctx: ctx, ledger: s.Ledger.WithTx(tx), report: report, kipID: kip, userID: userID, today: s.Clock.Today()}
		if err := x.run(device, replacement, models.OperationDefect, models.OperationSwapIn); err != nil {
			return err
		}
		if err := removeReportDevice(tx, report.ID, device.ID); err != nil {
			return err
		}
		result = succeeded("Бракованный прибор %s заменен прибором %s", label, deviceLabel(replacement))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logResult("брак", reportID, deviceID, result)
	return result, nil
}

// reportDevice загружает прибор, если он входит в отчет механика
func (s *MechanicService) reportDevice(tx *gorm.DB, report *models.MechanicReport, deviceID uint) (*models.Device, error) {
	in, err := reportHasDevice(tx, report.ID, deviceID)
	if err != nil || !in {
		return nil, err
	}
	return getDevice(tx, deviceID)
}

func (s *MechanicService) logResult(action string, reportID, deviceID uint, result *Result) {
	if result == nil {
		return
	}
	log := s.Logger.With(zap.String("action", action), zap.Uint("mechanic_report_id", reportID), zap.Uint("device_id", deviceID))
	if result.Success {
		log.Info(result.Message)
	} else {
		log.Warn(result.Message)
	}
}

// exchange обмен прибора на линии на прибор из отчета КИП внутри одной транзакции
type exchange struct {
	tx     *gorm.DB
	ctx    context.Context
	ledger ConsumptionLedger
	report *models.MechanicReport
	kipID  *uint
	userID *uint
	today  time.Time
}

// run отправляет снятый прибор на склад, а замена занимает его место, получает его
// название и вычисленный статус, входит в отчет и отмечается как использованная
func (x *exchange) run(removed, replacement *models.Device, outType, inType string) error {
	name := removed.Name
	stationID := removed.StationID
	placeID := removed.MountingAddressID
	avzID := removed.AVZID
	location := describeLocation(x.tx, removed)

	err := moveToStock(x.tx, removed, models.DeviceOperation{
		Type:             outType,
		UserID:           x.userID,
		MechanicReportID: &x.report.ID,
		KipReportID:      x.kipID,
		Notes:            fmt.Sprintf("заменен прибором #%d", replacement.ID),
	})
	if err != nil {
		return err
	}

	fromStatus := replacement.Status
	replacement.Name = name
	replacement.StationID = stationID
	replacement.MountingAddressID = placeID
	replacement.AVZID = avzID
	replacement.StockID = nil
	replacement.Status = models.ComputeStatus(replacement.NextCheckDate, x.today)
	if err := saveDevice(x.tx, replacement); err != nil {
		return err
	}

	if err := addReportDevice(x.tx, x.report.ID, replacement.ID); err != nil {
		return err
	}
	if err := x.ledger.Consume(x.ctx, x.report.ID, replacement.ID, x.kipID); err != nil {
		return err
	}
	return recordOperation(x.tx, models.DeviceOperation{
		Type:             inType,
		DeviceID:         replacement.ID,
		FromLocation:     location,
		ToLocation:       describeLocation(x.tx, replacement),
		FromStatus:       string(fromStatus),
		ToStatus:         string(replacement.Status),
		UserID:           x.userID,
		MechanicReportID: &x.report.ID,
		KipReportID:      x.kipID,
		Notes:            fmt.Sprintf("вместо прибора #%d", removed.ID),
	})
}

// lockOpenReport загружает отчет механика с блокировкой и требует, чтобы он был открыт
func lockOpenReport(tx *gorm.DB, id uint) (*models.MechanicReport, error) {
	var report models.MechanicReport
	if err := forUpdate(tx).First(&report, id).Error; err != nil {
		return nil, lookupError(err, "отчет механика", id)
	}
	if report.Closed {
		return nil, fmt.Errorf("отчет механика №%d закрыт: %w", id, ErrConflict)
	}
	return &report, nil
}

// resolveKip отчет КИП из запроса, по умолчанию тот, из которого создан отчет механика
func resolveKip(report *models.MechanicReport, kipID *uint) *uint {
	if kipID != nil {
		return kipID
	}
	return report.KipReportID
}

func reportHasDevice(tx *gorm.DB, reportID, deviceID uint) (bool, error) {
	var count int64
	err := tx.Table(mechanicReportDevicesTable).
		Where("mechanic_report_id = ? AND device_id = ?", reportID, deviceID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ошибка при проверке приборов отчета механика: %w", err)
	}
	return count > 0, nil
}

// addReportDevice добавляет прибор в перечень отчета механика, повторное добавление игнорируется
func addReportDevice(tx *gorm.DB, reportID, deviceID uint) error {
	in, err := reportHasDevice(tx, reportID, deviceID)
	if err != nil || in {
		return err
	}
	err = tx.Table(mechanicReportDevicesTable).Create(map[string]interface{}{
		"mechanic_report_id": reportID,
		"device_id":          deviceID,
	}).Error
	if err != nil {
		return fmt.Errorf("ошибка при добавлении прибора #%d в отчет механика: %w", deviceID, err)
	}
	return nil
}

// removeReportDevice исключает прибор из перечня отчета механика
func removeReportDevice(tx *gorm.DB, reportID, deviceID uint) error {
	err := tx.Exec("DELETE FROM "+mechanicReportDevicesTable+" WHERE mechanic_report_id = ? AND device_id = ?", reportID, deviceID).Error
	if err != nil {
		return fmt.Errorf("ошибка при исключении прибора #%d из отчета механика: %w", deviceID, err)
	}
	return nil
}

// deviceStation станция, на которой находится прибор, в том числе через АВЗ
func deviceStation(d *models.Device) *models.Station {
	if d.Station != nil {
		return d.Station
	}
	if d.AVZ != nil {
		return d.AVZ.Station
	}
	return nil
}

func deviceLabel(d *models.Device) string {
	switch {
	case d.Name != "" && d.InventoryNumber != "":
		return fmt.Sprintf("%s (инв. %s)", d.Name, d.InventoryNumber)
	case d.InventoryNumber != "":
		return fmt.Sprintf("#%d (инв. %s)", d.ID, d.InventoryNumber)
	case d.Name != "":
		return d.Name
	}
	return fmt.Sprintf("#%d", d.ID)
}

func statusLabel(s models.DeviceStatus) string {
	if s == models.StatusNone {
		return "нет"
	}
	return string(s)
}
