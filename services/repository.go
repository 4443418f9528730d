package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arm_shn/models"
)

// Clock источник текущего времени
type Clock func() time.Time

// Today возвращает текущую дату без времени
func (c Clock) Today() time.Time {
	if c == nil {
		return models.DateOf(time.Now())
	}
	return models.DateOf(c())
}

// Now возвращает текущее время
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// pendingStatuses статусы приборов в пути
var pendingStatuses = []models.DeviceStatus{models.StatusSent, models.StatusInProgress}

// notInstalledStatuses статусы, при которых прибор не считается установленным
var notInstalledStatuses = []models.DeviceStatus{
	models.StatusSent, models.StatusInProgress, models.StatusDecommissioned, models.StatusReplaced,
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// getDevice загружает прибор с блокировкой строки
func getDevice(tx *gorm.DB, id uint) (*models.Device, error) {
	var d models.Device
	if err := forUpdate(tx).First(&d, id).Error; err != nil {
		return nil, lookupError(err, "прибор", id)
	}
	return &d, nil
}

// getStation загружает станцию
func getStation(tx *gorm.DB, id uint) (*models.Station, error) {
	var s models.Station
	if err := tx.First(&s, id).Error; err != nil {
		return nil, lookupError(err, "станция", id)
	}
	return &s, nil
}

// getPlace загружает место вместе со стативом
func getPlace(tx *gorm.DB, id uint) (*models.Place, error) {
	var p models.Place
	if err := tx.Preload("Rack").First(&p, id).Error; err != nil {
		return nil, lookupError(err, "место", id)
	}
	return &p, nil
}

// getStationAVZ возвращает АВЗ станции или nil, если ее нет
func getStationAVZ(tx *gorm.DB, stationID uint) (*models.AVZ, error) {
	var avz []models.AVZ
	if err := tx.Where("station_id = ?", stationID).Limit(1).Find(&avz).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении АВЗ станции #%d: %w", stationID, err)
	}
	if len(avz) == 0 {
		return nil, nil
	}
	return &avz[0], nil
}

// findRack ищет статив станции по номеру, при отсутствии сообщает допустимые номера
func findRack(tx *gorm.DB, station *models.Station, number string) (*models.Rack, error) {
	var racks []models.Rack
	if err := tx.Where("station_id = ?", station.ID).Order("id ASC").Find(&racks).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении стативов: %w", err)
	}
	names := make([]string, 0, len(racks))
	for i := range racks {
		if strings.EqualFold(racks[i].Number, number) {
			return &racks[i], nil
		}
		names = append(names, racks[i].Number)
	}
	return nil, newValidationError("mounting_address",
		"Статив %q не найден на станции %s. Доступные стативы: %s",
		number, station.Name, listOrDash(names))
}

// findPlace ищет место на стативе по номеру, при отсутствии сообщает допустимые номера
func findPlace(tx *gorm.DB, rack *models.Rack, number string) (*models.Place, error) {
	var places []models.Place
	if err := tx.Where("rack_id = ?", rack.ID).Order("id ASC").Find(&places).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении мест: %w", err)
	}
	names := make([]string, 0, len(places))
	for i := range places {
		if strings.EqualFold(places[i].Number, number) {
			places[i].Rack = rack
			return &places[i], nil
		}
		names = append(names, places[i].Number)
	}
	return nil, newValidationError("mounting_address",
		"Место %q не найдено на стативе %s. Доступные места: %s",
		number, rack.Number, listOrDash(names))
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "—"
	}
	return strings.Join(items, ", ")
}

// placeOccupants возвращает приборы на месте, кроме указанного, с блокировкой строк
func placeOccupants(tx *gorm.DB, placeID, excludeID uint) ([]models.Device, error) {
	var occupants []models.Device
	err := forUpdate(tx).
		Where("mounting_address_id = ? AND id <> ?", placeID, excludeID).
		Order("id ASC").
		Find(&occupants).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении приборов на месте #%d: %w", placeID, err)
	}
	return occupants, nil
}

// saveDevice проверяет прибор и занятость места и сохраняет его в той же транзакции
func saveDevice(tx *gorm.DB, d *models.Device) error {
	var occ *models.PlaceOccupancy
	if d.MountingAddressID != nil {
		place, err := getPlace(tx, *d.MountingAddressID)
		if err != nil {
			if IsNotFound(err) {
				return newValidationError("mounting_address", "Место #%d не существует", *d.MountingAddressID)
			}
			return err
		}
		occupants, err := placeOccupants(tx, place.ID, d.ID)
		if err != nil {
			return err
		}
		occ = &models.PlaceOccupancy{Place: place, CatchAll: place.IsCatchAll(), Occupants: occupants}
	}

	if violations := models.ValidateDevice(d, occ); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	if err := tx.Omit(clause.Associations).Save(d).Error; err != nil {
		return fmt.Errorf("ошибка при сохранении прибора: %w", err)
	}
	return nil
}

// recordOperation добавляет запись в историю перемещений прибора
func recordOperation(tx *gorm.DB, op models.DeviceOperation) error {
	if err := tx.Create(&op).Error; err != nil {
		return fmt.Errorf("ошибка при записи истории прибора #%d: %w", op.DeviceID, err)
	}
	return nil
}

// describeLocation возвращает описание местоположения прибора с подгрузкой связей
func describeLocation(tx *gorm.DB, d *models.Device) string {
	view := *d
	switch {
	case view.AVZID != nil:
		var avz models.AVZ
		if tx.Preload("Station").First(&avz, *view.AVZID).Error == nil {
			view.AVZ = &avz
		}
	case view.StationID != nil:
		var station models.Station
		if tx.First(&station, *view.StationID).Error == nil {
			view.Station = &station
		}
		if view.MountingAddressID != nil {
			if place, err := getPlace(tx, *view.MountingAddressID); err == nil {
				view.MountingAddress = place
			}
		}
	}
	return view.LocationDescription()
}

// sortByNextCheck упорядочивает приборы по сроку проверки.
// latestFirst - сначала наименее срочные. Приборы без срока всегда в конце.
func sortByNextCheck(devices []models.Device, latestFirst bool) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i].NextCheckDate, devices[j].NextCheckDate
		switch {
		case a == nil && b == nil:
			return devices[i].ID < devices[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return devices[i].ID < devices[j].ID
		case latestFirst:
			return a.After(*b)
		default:
			return a.Before(*b)
		}
	})
}

// withoutClaimed отбрасывает приборы из множества занятых
func withoutClaimed(devices []models.Device, claimed map[uint]bool) []models.Device {
	out := devices[:0]
	for _, d := range devices {
		if !claimed[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// IsNotFound проверяет, что ошибка означает отсутствие записи
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

func txFrom(ctx context.Context, db *gorm.DB) *gorm.DB {
	if ctx == nil {
		return db
	}
	return db.WithContext(ctx)
}
