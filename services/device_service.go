package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"arm_shn/logger"
	"arm_shn/models"
)

// DeviceInput данные для создания и изменения прибора
type DeviceInput struct {
	InStock           bool                 `json:"in_stock"`
	StationID         *uint                `json:"station_id"`
	AVZID             *uint                `json:"avz_id"`
	MountingAddressID *uint                `json:"mounting_address_id"`
	Status            *models.DeviceStatus `json:"status"`
	DeviceTypeID      *uint                `json:"device_type_id"`
	ContactType       models.ContactType   `json:"contact_type"`
	Name              string               `json:"name"`
	InventoryNumber   string               `json:"inventory_number"`
	ManufactureDate   *time.Time           `json:"manufacture_date"`
	FrequencyOfCheck  int                  `json:"frequency_of_check"`
	CurrentCheckDate  *time.Time           `json:"current_check_date"`
	NextCheckDate     *time.Time           `json:"next_check_date"`
	WhoPreparedID     *uint                `json:"who_prepared_id"`
	WhoCheckedID      *uint                `json:"who_checked_id"`
	OldInformation    string               `json:"old_information"`
}

// DeviceFilter фильтры списка приборов
type DeviceFilter struct {
	StationID    *uint
	InStock      *bool
	ContactType  models.ContactType
	Status       *models.DeviceStatus
	DeviceTypeID *uint
	DueMonth     int // месяц следующей проверки в текущем году, 1-12
	Search       string
	Limit        int
	Offset       int
}

// DeviceService операции с приборами: создание, изменение, возврат на склад, история
type DeviceService struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Clock  Clock
}

// NewDeviceService создает новый экземпляр DeviceService
func NewDeviceService(db *gorm.DB, log *zap.Logger, clock Clock) *DeviceService {
	return &DeviceService{DB: db, Logger: logger.OrNop(log), Clock: clock}
}

// Create создает прибор после проверки согласованности
func (s *DeviceService) Create(ctx context.Context, input DeviceInput, userID *uint) (*models.Device, error) {
	var device models.Device
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		if err := s.apply(tx, &device, input); err != nil {
			return err
		}
		if err := saveDevice(tx, &device); err != nil {
			return err
		}
		return recordOperation(tx, models.DeviceOperation{
			Type:       models.OperationCreate,
			DeviceID:   device.ID,
			ToLocation: describeLocation(tx, &device),
			ToStatus:   string(device.Status),
			UserID:     userID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("прибор создан", zap.Uint("device_id", device.ID), zap.String("status", string(device.Status)))
	return s.Get(ctx, device.ID)
}

// Update полностью заменяет данные прибора после проверки согласованности
func (s *DeviceService) Update(ctx context.Context, id uint, input DeviceInput, userID *uint) (*models.Device, error) {
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		device, err := getDevice(tx, id)
		if err != nil {
			return err
		}
		from := describeLocation(tx, device)
		fromStatus := device.Status

		if err := s.apply(tx, device, input); err != nil {
			return err
		}
		if err := saveDevice(tx, device); err != nil {
			return err
		}
		return recordOperation(tx, models.DeviceOperation{
			Type:         models.OperationUpdate,
			DeviceID:     device.ID,
			FromLocation: from,
			ToLocation:   describeLocation(tx, device),
			FromStatus:   string(fromStatus),
			ToStatus:     string(device.Status),
			UserID:       userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// apply переносит входные данные в прибор и выводит производные поля
func (s *DeviceService) apply(tx *gorm.DB, d *models.Device, input DeviceInput) error {
	d.StationID = input.StationID
	d.AVZID = input.AVZID
	d.MountingAddressID = input.MountingAddressID
	d.StockID = nil
	if input.InStock {
		stock, err := models.EnsureStock(tx)
		if err != nil {
			return err
		}
		d.StockID = &stock.ID
	}

	d.DeviceTypeID = input.DeviceTypeID
	d.ContactType = input.ContactType
	d.Name = strings.TrimSpace(input.Name)
	d.InventoryNumber = strings.TrimSpace(input.InventoryNumber)
	d.ManufactureDate = dateOrNil(input.ManufactureDate)
	d.FrequencyOfCheck = input.FrequencyOfCheck
	d.CurrentCheckDate = dateOrNil(input.CurrentCheckDate)
	d.NextCheckDate = dateOrNil(input.NextCheckDate)
	d.WhoPreparedID = input.WhoPreparedID
	d.WhoCheckedID = input.WhoCheckedID
	d.OldInformation = input.OldInformation

	if d.ContactType != "" && d.ContactType != models.Contact && d.ContactType != models.Contactless {
		return newValidationError("contact_type", "Неизвестный вид контактов %q", d.ContactType)
	}
	if d.FrequencyOfCheck < 0 {
		return newValidationError("frequency_of_check", "Периодичность проверки не может быть отрицательной")
	}
	if err := s.checkReferences(tx, d); err != nil {
		return err
	}

	if d.NextCheckDate == nil && d.CurrentCheckDate != nil && d.FrequencyOfCheck > 0 {
		d.NextCheckDate = models.NextCheckDate(d.CurrentCheckDate, d.FrequencyOfCheck)
	}

	switch {
	case input.Status != nil:
		d.Status = *input.Status
	case d.StockID != nil:
		d.Status = models.StatusNone
	default:
		d.Status = models.ComputeStatus(d.NextCheckDate, s.Clock.Today())
	}
	return nil
}

// checkReferences проверяет существование связанных записей
func (s *DeviceService) checkReferences(tx *gorm.DB, d *models.Device) error {
	refs := []struct {
		id    *uint
		model interface{}
		field string
		what  string
	}{
		{d.StationID, &models.Station{}, "station", "Станция"},
		{d.AVZID, &models.AVZ{}, "avz", "АВЗ"},
		{d.DeviceTypeID, &models.DeviceType{}, "device_type", "Тип прибора"},
		{d.WhoPreparedID, &models.User{}, "who_prepared", "Регулировщик"},
		{d.WhoCheckedID, &models.User{}, "who_checked", "Проверяющий"},
	}
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		var count int64
		if err := tx.Model(ref.model).Where("id = ?", *ref.id).Count(&count).Error; err != nil {
			return fmt.Errorf("ошибка при проверке ссылки %s: %w", ref.field, err)
		}
		if count == 0 {
			return newValidationError(ref.field, "%s #%d не существует", ref.what, *ref.id)
		}
	}
	return nil
}

// SendToStock возвращает прибор на склад с полным сбросом местоположения, сроков и статуса
func (s *DeviceService) SendToStock(ctx context.Context, id uint, userID *uint) (*models.Device, error) {
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		device, err := getDevice(tx, id)
		if err != nil {
			return err
		}
		return moveToStock(tx, device, models.DeviceOperation{Type: models.OperationToStock, UserID: userID})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("прибор возвращен на склад", zap.Uint("device_id", id))
	return s.Get(ctx, id)
}

// moveToStock сбрасывает прибор на склад и записывает операцию
func moveToStock(tx *gorm.DB, device *models.Device, op models.DeviceOperation) error {
	stock, err := models.EnsureStock(tx)
	if err != nil {
		return err
	}
	op.DeviceID = device.ID
	op.FromLocation = describeLocation(tx, device)
	op.FromStatus = string(device.Status)

	device.ResetToStock(stock.ID)
	if err := saveDevice(tx, device); err != nil {
		return err
	}

	op.ToLocation = models.StockName
	return recordOperation(tx, op)
}

// Get возвращает прибор со связями
func (s *DeviceService) Get(ctx context.Context, id uint) (*models.Device, error) {
	var device models.Device
	err := txFrom(ctx, s.DB).
		Preload("Station").
		Preload("AVZ.Station").
		Preload("MountingAddress.Rack").
		Preload("DeviceType").
		Preload("WhoPrepared").
		Preload("WhoChecked").
		First(&device, id).Error
	if err != nil {
		return nil, lookupError(err, "прибор", id)
	}
	return &device, nil
}

// List возвращает приборы по фильтрам и общее количество
func (s *DeviceService) List(ctx context.Context, filter DeviceFilter) ([]models.Device, int64, error) {
	query := txFrom(ctx, s.DB).Model(&models.Device{})

	if filter.StationID != nil {
		query = query.Where("station_id = ?", *filter.StationID)
	}
	if filter.InStock != nil {
		if *filter.InStock {
			query = query.Where("stock_id IS NOT NULL")
		} else {
			query = query.Where("stock_id IS NULL")
		}
	}
	if filter.ContactType != "" {
		query = query.Where("contact_type = ?", filter.ContactType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.DeviceTypeID != nil {
		query = query.Where("device_type_id = ?", *filter.DeviceTypeID)
	}
	if filter.DueMonth != 0 {
		if filter.DueMonth < 1 || filter.DueMonth > 12 {
			return nil, 0, newValidationError("month", "Месяц должен быть от 1 до 12")
		}
		year := s.Clock.Today().Year()
		from := time.Date(year, time.Month(filter.DueMonth), 1, 0, 0, 0, 0, time.UTC)
		query = query.Where("next_check_date >= ? AND next_check_date < ?", from, from.AddDate(0, 1, 0))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR inventory_number LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ошибка при подсчете приборов: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var devices []models.Device
	err := query.
		Preload("Station").
		Preload("DeviceType").
		Preload("MountingAddress.Rack").
		Order("id ASC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&devices).Error
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка при получении приборов: %w", err)
	}
	return devices, total, nil
}

// History возвращает историю операций с прибором, новые сначала
func (s *DeviceService) History(ctx context.Context, id uint) ([]models.DeviceOperation, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	var ops []models.DeviceOperation
	err := txFrom(ctx, s.DB).
		Preload("User").
		Where("device_id = ?", id).
		Order("id DESC").
		Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении истории прибора: %w", err)
	}
	return ops, nil
}

func dateOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.DateOf(*t)
	return &d
}
