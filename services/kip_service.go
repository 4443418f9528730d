package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"arm_shn/logger"
	"arm_shn/models"
)

// LineInput данные строки отчета КИП
type LineInput struct {
	DeviceID        uint       `json:"device_id"`
	StationID       *uint      `json:"station_id"`
	MountingAddress string     `json:"mounting_address"`
	WhoPreparedID   *uint      `json:"who_prepared_id"`
	WhoCheckedID    *uint      `json:"who_checked_id"`
	CheckDate       *time.Time `json:"check_date"`
}

// KipService сборка и отправка отчетов КИП
type KipService struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Clock    Clock
	Notifier Notifier
	resolver *ReplacementResolver
}

// NewKipService создает новый экземпляр KipService
func NewKipService(db *gorm.DB, log *zap.Logger, clock Clock, notifier Notifier) *KipService {
	log = logger.OrNop(log)
	return &KipService{
		DB:       db,
		Logger:   log,
		Clock:    clock,
		Notifier: notifier,
		resolver: &ReplacementResolver{Logger: log},
	}
}

// Create создает пустой редактируемый отчет КИП
func (s *KipService) Create(ctx context.Context, authorID *uint, title, explanation string) (*models.KipReport, error) {
	report := models.KipReport{
		Title:       strings.TrimSpace(title),
		AuthorID:    authorID,
		Explanation: explanation,
		Editable:    true,
	}
	if err := txFrom(ctx, s.DB).Create(&report).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании отчета КИП: %w", err)
	}
	return &report, nil
}

// Get возвращает отчет КИП со строками
func (s *KipService) Get(ctx context.Context, id uint) (*models.KipReport, error) {
	var report models.KipReport
	err := txFrom(ctx, s.DB).
		Preload("Author").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Lines.Device").
		Preload("Lines.Station").
		First(&report, id).Error
	if err != nil {
		return nil, lookupError(err, "отчет КИП", id)
	}
	return &report, nil
}

// List возвращает отчеты КИП, новые сначала
func (s *KipService) List(ctx context.Context, editable *bool, limit, offset int) ([]models.KipReport, int64, error) {
	query := txFrom(ctx, s.DB).Model(&models.KipReport{})
	if editable != nil {
		query = query.Where("editable = ?", *editable)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка при подсчете отчетов КИП: %w", err)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var reports []models.KipReport
	if err := query.Preload("Author").Order("id DESC").Limit(limit).Offset(offset).Find(&reports).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка при получении отчетов КИП: %w", err)
	}
	return reports, total, nil
}

// AddLine добавляет одну строку в отчет КИП
func (s *KipService) AddLine(ctx context.Context, kipID uint, input LineInput) (*models.DeviceKipReport, error) {
	lines, err := s.AddLines(ctx, kipID, []LineInput{input})
	if err != nil {
		return nil, err
	}
	return &lines[0], nil
}

// AddLines проверяет и сохраняет строки отчета КИП. Строки принимаются только все вместе.
// Черновая строка прибора заполняется, а не дублируется.
func (s *KipService) AddLines(ctx context.Context, kipID uint, inputs []LineInput) ([]models.DeviceKipReport, error) {
	if len(inputs) == 0 {
		return nil, newValidationError("lines", "Не указано ни одной строки")
	}

	var saved []models.DeviceKipReport
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		report, err := lockEditableKip(tx, kipID)
		if err != nil {
			return err
		}

		seen := make(map[uint]bool, len(inputs))
		for i, input := range inputs {
			if input.DeviceID != 0 && seen[input.DeviceID] {
				return newValidationError("device", "Строка %d: прибор #%d указан повторно", i+1, input.DeviceID)
			}
			seen[input.DeviceID] = true

			line, err := s.addLine(tx, report, input)
			if err != nil {
				var ve *ValidationError
				if errors.As(err, &ve) && len(inputs) > 1 {
					for j := range ve.Violations {
						ve.Violations[j].Message = fmt.Sprintf("Строка %d: %s", i+1, ve.Violations[j].Message)
					}
				}
				return err
			}
			saved = append(saved, *line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("строки добавлены в отчет КИП", zap.Uint("kip_report_id", kipID), zap.Int("count", len(saved)))
	return saved, nil
}

// addLine проверяет одну строку по правилам сборки и сохраняет ее. Прибор не изменяется.
func (s *KipService) addLine(tx *gorm.DB, report *models.KipReport, input LineInput) (*models.DeviceKipReport, error) {
	if input.DeviceID == 0 {
		return nil, newValidationError("device", "Не указан прибор")
	}
	if strings.TrimSpace(input.MountingAddress) == "" {
		return nil, newValidationError("mounting_address", "Не указан адрес монтажа")
	}
	if input.StationID == nil {
		return nil, newValidationError("station", "Не указана станция")
	}

	var existing []models.DeviceKipReport
	if err := tx.Where("kip_report_id = ? AND device_id = ?", report.ID, input.DeviceID).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("ошибка при проверке строк отчета: %w", err)
	}
	var line *models.DeviceKipReport
	for i := range existing {
		if !existing[i].IsDraft() {
			return nil, newValidationError("device", "Прибор #%d уже есть в этом отчете КИП", input.DeviceID)
		}
		line = &existing[i]
	}

	device, err := getDevice(tx, input.DeviceID)
	if err != nil {
		if IsNotFound(err) {
			return nil, newValidationError("device", "Прибор #%d не существует", input.DeviceID)
		}
		return nil, err
	}
	if !device.InStock() {
		return nil, newValidationError("device", "Прибор #%d не находится на складе", device.ID)
	}

	station, err := getStation(tx, *input.StationID)
	if err != nil {
		if IsNotFound(err) {
			return nil, newValidationError("station", "Станция #%d не существует", *input.StationID)
		}
		return nil, err
	}

	addr, err := models.ParseMountingAddress(input.MountingAddress)
	if err != nil {
		return nil, newValidationError("mounting_address", "%s", err.Error())
	}

	switch addr.Kind {
	case models.AddressBulk:
		if device.ContactType != models.Contactless {
			return nil, newValidationError("mounting_address", "Адрес %q допустим только для бесконтактных приборов", addr.String())
		}
	case models.AddressAVZ:
		if err := checkAVZTarget(tx, station, device); err != nil {
			return nil, err
		}
	case models.AddressSlot:
		if addr, err = checkSlotTarget(tx, station, addr, device); err != nil {
			return nil, err
		}
	}

	if !addr.ExemptFromDuplicateCheck() {
		if err := checkDuplicateTarget(tx, station, addr, device.ID); err != nil {
			return nil, err
		}
	}

	if line == nil {
		line = &models.DeviceKipReport{KipReportID: report.ID, DeviceID: device.ID}
	}
	line.StationID = &station.ID
	line.MountingAddress = addr.String()
	line.WhoPreparedID = input.WhoPreparedID
	line.WhoCheckedID = input.WhoCheckedID
	line.CheckDate = dateOrNil(input.CheckDate)

	if err := tx.Omit("KipReport", "Device", "Station", "WhoPrepared", "WhoChecked").Save(line).Error; err != nil {
		return nil, fmt.Errorf("ошибка при сохранении строки отчета КИП: %w", err)
	}
	return line, nil
}

// checkAVZTarget требует АВЗ на станции и хотя бы один прибор того же типа в ней
func checkAVZTarget(tx *gorm.DB, station *models.Station, device *models.Device) error {
	avz, err := getStationAVZ(tx, station.ID)
	if err != nil {
		return err
	}
	if avz == nil {
		return newValidationError("mounting_address", "На станции %s нет АВЗ", station.Name)
	}

	var count int64
	err = tx.Model(&models.Device{}).
		Where("avz_id = ?", avz.ID).
		Where(sameTypeClause(device.DeviceTypeID)).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("ошибка при проверке АВЗ: %w", err)
	}
	if count == 0 {
		return newValidationError("mounting_address", "В АВЗ станции %s нет приборов этого типа", station.Name)
	}
	return nil
}

// checkSlotTarget проверяет статив, место и тип прибора, занимающего место.
// Возвращает адрес с номерами статива и места в том виде, в каком они записаны на станции.
func checkSlotTarget(tx *gorm.DB, station *models.Station, addr models.MountingAddress, device *models.Device) (models.MountingAddress, error) {
	rack, err := findRack(tx, station, addr.Rack)
	if err != nil {
		return addr, err
	}
	place, err := findPlace(tx, rack, addr.Place)
	if err != nil {
		return addr, err
	}
	resolved := models.MountingAddress{Kind: models.AddressSlot, Rack: rack.Number, Place: place.Number}
	if place.IsCatchAll() {
		return resolved, nil
	}

	occupants, err := placeOccupants(tx, place.ID, device.ID)
	if err != nil {
		return addr, err
	}
	for _, o := range occupants {
		if !o.SameType(device) {
			return addr, newValidationError("mounting_address",
				"На месте %s установлен прибор другого типа (#%d)", place.Address(), o.ID)
		}
	}
	return resolved, nil
}

// checkDuplicateTarget отклоняет адрес, на который уже назначен другой прибор, еще не установленный
func checkDuplicateTarget(tx *gorm.DB, station *models.Station, addr models.MountingAddress, deviceID uint) error {
	var lines []models.DeviceKipReport
	err := tx.
		Joins("JOIN kip_reports ON kip_reports.id = device_kip_reports.kip_report_id").
		Joins("JOIN devices ON devices.id = device_kip_reports.device_id").
		Where("device_kip_reports.station_id = ? AND device_kip_reports.mounting_address = ?", station.ID, addr.String()).
		Where("device_kip_reports.device_id <> ?", deviceID).
		Where("kip_reports.editable = ? OR devices.status = ?", true, models.StatusSent).
		Limit(1).
		Find(&lines).Error
	if err != nil {
		return fmt.Errorf("ошибка при проверке повторного адреса: %w", err)
	}
	if len(lines) > 0 {
		return newValidationError("mounting_address",
			"На адрес %s станции %s уже назначен прибор #%d (отчет КИП №%d)",
			addr.String(), station.Name, lines[0].DeviceID, lines[0].KipReportID)
	}
	return nil
}

// RemoveLine удаляет строку из редактируемого отчета КИП
func (s *KipService) RemoveLine(ctx context.Context, kipID, lineID uint) error {
	return txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		if _, err := lockEditableKip(tx, kipID); err != nil {
			return err
		}
		result := tx.Where("id = ? AND kip_report_id = ?", lineID, kipID).Delete(&models.DeviceKipReport{})
		if result.Error != nil {
			return fmt.Errorf("ошибка при удалении строки отчета КИП: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return notFound("строка отчета КИП", lineID)
		}
		return nil
	})
}

// AddDevicesToCrate добавляет приборы черновыми строками в последний редактируемый отчет КИП.
// Если такого отчета нет, он создается от имени пользователя. Приборы в пути вне склада пропускаются.
func (s *KipService) AddDevicesToCrate(ctx context.Context, userID *uint, deviceIDs []uint) (*models.KipReport, int, error) {
	if len(deviceIDs) == 0 {
		return nil, 0, newValidationError("devices", "Не выбрано ни одного прибора")
	}

	var report models.KipReport
	added := 0
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		var latest []models.KipReport
		if err := forUpdate(tx).Where("editable = ?", true).Order("id DESC").Limit(1).Find(&latest).Error; err != nil {
			return fmt.Errorf("ошибка при поиске отчета КИП: %w", err)
		}
		if len(latest) > 0 {
			report = latest[0]
		} else {
			report = models.KipReport{AuthorID: userID, Editable: true}
			if err := tx.Create(&report).Error; err != nil {
				return fmt.Errorf("ошибка при создании отчета КИП: %w", err)
			}
		}

		var devices []models.Device
		if err := tx.Where("id IN ?", deviceIDs).Order("id ASC").Find(&devices).Error; err != nil {
			return fmt.Errorf("ошибка при получении приборов: %w", err)
		}
		for _, d := range devices {
			if d.Status.IsPending() && !d.InStock() {
				continue
			}
			var count int64
			if err := tx.Model(&models.DeviceKipReport{}).
				Where("kip_report_id = ? AND device_id = ?", report.ID, d.ID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("ошибка при проверке строк отчета: %w", err)
			}
			if count > 0 {
				continue
			}
			line := models.DeviceKipReport{KipReportID: report.ID, DeviceID: d.ID}
			if err := tx.Create(&line).Error; err != nil {
				return fmt.Errorf("ошибка при добавлении прибора #%d в отчет КИП: %w", d.ID, err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &report, added, nil
}

// Dispatch отправляет отчет КИП: приборы получают статус "отправлен" и место назначения,
// для каждой строки определяется заменяемый прибор, по станциям создаются отчеты механика.
// Возвращает соответствие станции и созданного отчета механика.
func (s *KipService) Dispatch(ctx context.Context, kipID uint, userID *uint) (map[uint]uint, error) {
	today := s.Clock.Today()
	var created []models.MechanicReport

	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		report, err := lockEditableKip(tx, kipID)
		if err != nil {
			return err
		}

		var lines []models.DeviceKipReport
		if err := tx.Where("kip_report_id = ?", kipID).Order("id ASC").Find(&lines).Error; err != nil {
			return fmt.Errorf("ошибка при получении строк отчета КИП: %w", err)
		}
		if len(lines) == 0 {
			return newValidationError("lines", "Отчет КИП №%d пуст", kipID)
		}
		for _, line := range lines {
			if line.IsDraft() {
				return newValidationError("lines", "У прибора #%d не указано место назначения", line.DeviceID)
			}
		}

		d := &dispatch{
			tx:       tx,
			report:   report,
			userID:   userID,
			today:    today,
			resolver: s.resolver,
			claimed:  make(map[uint]bool),
			buckets:  make(map[uint][]uint),
		}
		for _, line := range lines {
			d.claimed[line.DeviceID] = true
		}
		for i := range lines {
			if err := d.line(&lines[i]); err != nil {
				return err
			}
		}

		created, err = d.createMechanicReports()
		if err != nil {
			return err
		}

		now := s.Clock.Now()
		err = tx.Model(report).Updates(map[string]interface{}{"editable": false, "dispatched_at": now}).Error
		if err != nil {
			return fmt.Errorf("ошибка при закрытии отчета КИП: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make(map[uint]uint, len(created))
	for _, mr := range created {
		result[mr.StationID] = mr.ID
	}
	s.Logger.Info("отчет КИП отправлен", zap.Uint("kip_report_id", kipID), zap.Int("mechanic_reports", len(created)))
	notifyAll(s.Notifier, s.Logger, created)
	return result, nil
}

// dispatch состояние одного прохода отправки
type dispatch struct {
	tx       *gorm.DB
	report   *models.KipReport
	userID   *uint
	today    time.Time
	resolver *ReplacementResolver

	// приборы, уже выбранные в этом проходе
	claimed      map[uint]bool
	buckets      map[uint][]uint
	stationOrder []uint
}

// line обрабатывает одну строку отчета КИП
func (d *dispatch) line(line *models.DeviceKipReport) error {
	tx := d.tx
	device, err := getDevice(tx, line.DeviceID)
	if err != nil {
		return err
	}
	if !device.InStock() {
		return newValidationError("device", "Прибор #%d уже не находится на складе", device.ID)
	}
	station, err := getStation(tx, *line.StationID)
	if err != nil {
		return err
	}
	addr, err := models.ParseMountingAddress(line.MountingAddress)
	if err != nil {
		return newValidationError("mounting_address", "%s", err.Error())
	}

	d.claimed[device.ID] = true
	d.markSent(device, line)

	var target *models.Device
	switch addr.Kind {
	case models.AddressAVZ:
		avz, err := getStationAVZ(tx, station.ID)
		if err != nil {
			return err
		}
		if avz == nil {
			return newValidationError("mounting_address", "На станции %s нет АВЗ", station.Name)
		}
		device.AVZID = &avz.ID
		if err := d.save(device); err != nil {
			return err
		}
		if target, err = d.resolver.avzTarget(tx, avz.ID, device, d.claimed); err != nil {
			return err
		}

	case models.AddressBulk:
		device.StationID = &station.ID
		if err := d.save(device); err != nil {
			return err
		}
		if err := d.bulk(device, station, addr.Count-1); err != nil {
			return err
		}

	case models.AddressSlot:
		rack, err := findRack(tx, station, addr.Rack)
		if err != nil {
			return err
		}
		place, err := findPlace(tx, rack, addr.Place)
		if err != nil {
			return err
		}
		device.StationID = &station.ID
		device.MountingAddressID = &place.ID
		if err := d.save(device); err != nil {
			return err
		}
		if target, err = d.resolver.slotTarget(tx, station.ID, place, device, d.claimed); err != nil {
			return err
		}
	}

	if target == nil {
		target = device
	}
	d.claimed[target.ID] = true
	d.addToBucket(station.ID, target.ID)
	return nil
}

// markSent помечает прибор отправленным, переносит даты и исполнителей из строки и снимает со склада
func (d *dispatch) markSent(device *models.Device, line *models.DeviceKipReport) {
	checkDate := d.today
	if line.CheckDate != nil {
		checkDate = models.DateOf(*line.CheckDate)
	}
	device.Status = models.StatusSent
	device.WhoPreparedID = line.WhoPreparedID
	device.WhoCheckedID = line.WhoCheckedID
	device.CurrentCheckDate = &checkDate
	device.NextCheckDate = models.NextCheckDate(&checkDate, device.FrequencyOfCheck)
	device.StockID = nil
	device.Name = ""
}

// save сохраняет отправленный прибор и пишет историю
func (d *dispatch) save(device *models.Device) error {
	if err := saveDevice(d.tx, device); err != nil {
		return err
	}
	return recordOperation(d.tx, models.DeviceOperation{
		Type:         models.OperationDispatch,
		DeviceID:     device.ID,
		FromLocation: models.StockName,
		ToLocation:   describeLocation(d.tx, device),
		ToStatus:     string(device.Status),
		UserID:       d.userID,
		KipReportID:  &d.report.ID,
	})
}

// bulk отправляет вместе с прибором еще n бесконтактных приборов того же типа со склада
func (d *dispatch) bulk(device *models.Device, station *models.Station, n int) error {
	d.addToBucket(station.ID, device.ID)

	companions, err := d.resolver.bulkCompanions(d.tx, device, n, d.claimed)
	if err != nil {
		return err
	}
	if len(companions) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(companions))
	for _, c := range companions {
		ids = append(ids, c.ID)
	}
	err = d.tx.Model(&models.Device{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"station_id":          station.ID,
		"stock_id":            nil,
		"avz_id":              nil,
		"mounting_address_id": nil,
		"status":              models.StatusSent,
		"current_check_date":  device.CurrentCheckDate,
		"next_check_date":     device.NextCheckDate,
		"who_prepared_id":     device.WhoPreparedID,
		"who_checked_id":      device.WhoCheckedID,
	}).Error
	if err != nil {
		return fmt.Errorf("ошибка при отправке приборов количеством: %w", err)
	}

	for _, id := range ids {
		d.claimed[id] = true
		d.addToBucket(station.ID, id)
		err := recordOperation(d.tx, models.DeviceOperation{
			Type:         models.OperationBulkDispatch,
			DeviceID:     id,
			FromLocation: models.StockName,
			ToLocation:   station.Name,
			ToStatus:     string(models.StatusSent),
			UserID:       d.userID,
			KipReportID:  &d.report.ID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *dispatch) addToBucket(stationID, deviceID uint) {
	bucket, ok := d.buckets[stationID]
	if !ok {
		d.stationOrder = append(d.stationOrder, stationID)
	}
	for _, id := range bucket {
		if id == deviceID {
			return
		}
	}
	d.buckets[stationID] = append(bucket, deviceID)
}

// createMechanicReports создает по отчету механика на каждую станцию с приборами
func (d *dispatch) createMechanicReports() ([]models.MechanicReport, error) {
	var created []models.MechanicReport
	for _, stationID := range d.stationOrder {
		ids := d.buckets[stationID]
		if len(ids) == 0 {
			continue
		}
		station, err := getStation(d.tx, stationID)
		if err != nil {
			return nil, err
		}

		mr := models.MechanicReport{
			Title:       models.KipMechanicReportTitle(d.report.ID, station.Name),
			AuthorID:    d.userID,
			StationID:   stationID,
			KipReportID: &d.report.ID,
			Explanation: fmt.Sprintf("Создан при отправке отчета КИП №%d", d.report.ID),
		}
		if err := d.tx.Omit("Devices", "Comments").Create(&mr).Error; err != nil {
			return nil, fmt.Errorf("ошибка при создании отчета механика: %w", err)
		}
		for _, id := range ids {
			if err := addReportDevice(d.tx, mr.ID, id); err != nil {
				return nil, err
			}
		}
		if err := d.tx.Find(&mr.Devices, ids).Error; err != nil {
			return nil, fmt.Errorf("ошибка при получении приборов отчета механика: %w", err)
		}
		mr.Station = station
		created = append(created, mr)
	}
	return created, nil
}

// lockEditableKip загружает отчет КИП с блокировкой и требует, чтобы он был редактируемым
func lockEditableKip(tx *gorm.DB, kipID uint) (*models.KipReport, error) {
	var report models.KipReport
	if err := forUpdate(tx).First(&report, kipID).Error; err != nil {
		return nil, lookupError(err, "отчет КИП", kipID)
	}
	if !report.Editable {
		return nil, fmt.Errorf("отчет КИП №%d уже отправлен: %w", kipID, ErrConflict)
	}
	return &report, nil
}
