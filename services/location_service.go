package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"arm_shn/models"
)

// LocationService справочники: станции, АВЗ, стативы, места, типы приборов, работники
type LocationService struct {
	DB *gorm.DB
}

// NewLocationService создает новый экземпляр LocationService
func NewLocationService(db *gorm.DB) *LocationService {
	return &LocationService{DB: db}
}

// ListStations возвращает станции в порядке фиксированного списка
func (s *LocationService) ListStations(ctx context.Context) ([]models.Station, error) {
	var stations []models.Station
	if err := txFrom(ctx, s.DB).Preload("AVZ").Order("id ASC").Find(&stations).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении станций: %w", err)
	}
	return stations, nil
}

// GetStation возвращает станцию со стативами и местами
func (s *LocationService) GetStation(ctx context.Context, id uint) (*models.Station, error) {
	var station models.Station
	err := txFrom(ctx, s.DB).
		Preload("AVZ").
		Preload("Racks", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Racks.Places", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&station, id).Error
	if err != nil {
		return nil, lookupError(err, "станция", id)
	}
	return &station, nil
}

// CreateAVZ создает АВЗ станции. У станции может быть не более одной АВЗ.
func (s *LocationService) CreateAVZ(ctx context.Context, stationID uint) (*models.AVZ, error) {
	var avz models.AVZ
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		station, err := getStation(tx, stationID)
		if err != nil {
			return err
		}
		existing, err := getStationAVZ(tx, station.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("у станции %s уже есть АВЗ: %w", station.Name, ErrConflict)
		}
		avz = models.AVZ{StationID: station.ID, Station: station}
		return tx.Omit("Station").Create(&avz).Error
	})
	if err != nil {
		return nil, err
	}
	return &avz, nil
}

// GetAVZ возвращает АВЗ вместе с приборами в ней
func (s *LocationService) GetAVZ(ctx context.Context, id uint) (*models.AVZ, []models.Device, error) {
	db := txFrom(ctx, s.DB)
	var avz models.AVZ
	if err := db.Preload("Station").First(&avz, id).Error; err != nil {
		return nil, nil, lookupError(err, "АВЗ", id)
	}
	var devices []models.Device
	if err := db.Preload("DeviceType").Where("avz_id = ?", id).Order("id ASC").Find(&devices).Error; err != nil {
		return nil, nil, fmt.Errorf("ошибка при получении приборов АВЗ: %w", err)
	}
	return &avz, devices, nil
}

// CreateRack создает статив на станции. Номер статива уникален в пределах станции.
func (s *LocationService) CreateRack(ctx context.Context, stationID uint, number string) (*models.Rack, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, newValidationError("number", "Не указан номер статива")
	}

	var rack models.Rack
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		station, err := getStation(tx, stationID)
		if err != nil {
			if IsNotFound(err) {
				return newValidationError("station", "Станция #%d не существует", stationID)
			}
			return err
		}
		_, err = findRack(tx, station, number)
		if err == nil {
			return newValidationError("number", "Статив %q уже есть на станции %s", number, station.Name)
		}
		if !IsValidationError(err) {
			return err
		}
		rack = models.Rack{Number: number, StationID: station.ID}
		return tx.Omit("Station", "Places").Create(&rack).Error
	})
	if err != nil {
		return nil, err
	}
	return &rack, nil
}

// ListRacks возвращает стативы, при указании станции только ее стативы
func (s *LocationService) ListRacks(ctx context.Context, stationID *uint) ([]models.Rack, error) {
	query := txFrom(ctx, s.DB).Preload("Station")
	if stationID != nil {
		query = query.Where("station_id = ?", *stationID)
	}
	var racks []models.Rack
	if err := query.Order("id ASC").Find(&racks).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении стативов: %w", err)
	}
	return racks, nil
}

// CreatePlace создает место на стативе. Номер места уникален в пределах статива.
func (s *LocationService) CreatePlace(ctx context.Context, rackID uint, number string) (*models.Place, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, newValidationError("number", "Не указан номер места")
	}

	var place models.Place
	err := txFrom(ctx, s.DB).Transaction(func(tx *gorm.DB) error {
		var rack models.Rack
		if err := tx.First(&rack, rackID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newValidationError("rack", "Статив #%d не существует", rackID)
			}
			return lookupError(err, "статив", rackID)
		}
		_, err := findPlace(tx, &rack, number)
		if err == nil {
			return newValidationError("number", "Место %q уже есть на стативе %s", number, rack.Number)
		}
		if !IsValidationError(err) {
			return err
		}
		place = models.Place{Number: number, RackID: rack.ID}
		if err := tx.Omit("Rack").Create(&place).Error; err != nil {
			return err
		}
		place.Rack = &rack
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &place, nil
}

// ListPlaces возвращает места, при указании статива только его места
func (s *LocationService) ListPlaces(ctx context.Context, rackID *uint) ([]models.Place, error) {
	query := txFrom(ctx, s.DB).Preload("Rack")
	if rackID != nil {
		query = query.Where("rack_id = ?", *rackID)
	}
	var places []models.Place
	if err := query.Order("id ASC").Find(&places).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении мест: %w", err)
	}
	return places, nil
}

// ListDeviceTypes возвращает типы приборов
func (s *LocationService) ListDeviceTypes(ctx context.Context) ([]models.DeviceType, error) {
	var types []models.DeviceType
	if err := txFrom(ctx, s.DB).Order("name ASC").Find(&types).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении типов приборов: %w", err)
	}
	return types, nil
}

// CreateDeviceType создает тип прибора с уникальным названием
func (s *LocationService) CreateDeviceType(ctx context.Context, name string) (*models.DeviceType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newValidationError("name", "Не указано название типа")
	}
	db := txFrom(ctx, s.DB)
	var count int64
	if err := db.Model(&models.DeviceType{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("ошибка при проверке типа прибора: %w", err)
	}
	if count > 0 {
		return nil, newValidationError("name", "Тип прибора %q уже существует", name)
	}
	t := models.DeviceType{Name: name}
	if err := db.Create(&t).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании типа прибора: %w", err)
	}
	return &t, nil
}

// ListUsers возвращает активных работников
func (s *LocationService) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := txFrom(ctx, s.DB).Where("is_active = ?", true).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении работников: %w", err)
	}
	return users, nil
}

// CreateUser создает работника с уникальным логином
func (s *LocationService) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return nil, newValidationError("username", "Не указан логин")
	}
	db := txFrom(ctx, s.DB)
	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("ошибка при проверке логина: %w", err)
	}
	if count > 0 {
		return nil, newValidationError("username", "Пользователь с логином %q уже существует", user.Username)
	}
	user.ID = 0
	user.IsActive = true
	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании пользователя: %w", err)
	}
	return &user, nil
}
