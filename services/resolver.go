package services

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arm_shn/models"
)

// ReplacementResolver определяет, какой прибор на линии заменяется прибором со склада,
// и подбирает замену для прибора на линии
type ReplacementResolver struct {
	Logger *zap.Logger
}

// avzTarget ищет в АВЗ прибор того же типа, который будет заменен.
// Выбирается прибор с самым поздним сроком проверки.
func (r *ReplacementResolver) avzTarget(tx *gorm.DB, avzID uint, incoming *models.Device, claimed map[uint]bool) (*models.Device, error) {
	var candidates []models.Device
	err := forUpdate(tx).
		Where("avz_id = ? AND id <> ?", avzID, incoming.ID).
		Where("status NOT IN ?", pendingStatuses).
		Where(sameTypeClause(incoming.DeviceTypeID)).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при поиске приборов в АВЗ: %w", err)
	}

	candidates = withoutClaimed(candidates, claimed)
	if len(candidates) == 0 {
		r.Logger.Warn("в АВЗ нет прибора для замены",
			zap.Uint("avz_id", avzID), zap.Uint("device_id", incoming.ID))
		return nil, nil
	}
	sortByNextCheck(candidates, true)
	return &candidates[0], nil
}

// slotTarget ищет прибор на линии по месту. Если на месте несколько приборов,
// поиск переходит на общие места станции.
func (r *ReplacementResolver) slotTarget(tx *gorm.DB, stationID uint, place *models.Place, incoming *models.Device, claimed map[uint]bool) (*models.Device, error) {
	query := forUpdate(tx).
		Where("station_id = ? AND mounting_address_id = ? AND id <> ?", stationID, place.ID, incoming.ID).
		Where("status NOT IN ?", notInstalledStatuses)
	if place.IsCatchAll() {
		query = query.Where(sameTypeClause(incoming.DeviceTypeID))
	}

	var candidates []models.Device
	if err := query.Order("id ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("ошибка при поиске прибора на месте: %w", err)
	}
	candidates = withoutClaimed(candidates, claimed)

	switch len(candidates) {
	case 0:
		r.Logger.Warn("место на линии пустое",
			zap.Uint("station_id", stationID), zap.String("address", place.Address()), zap.Uint("device_id", incoming.ID))
		return nil, nil
	case 1:
		return &candidates[0], nil
	default:
		return r.catchAllTarget(tx, stationID, incoming, claimed)
	}
}

// catchAllTarget ищет прибор того же типа на общих местах станции, сначала самые срочные
func (r *ReplacementResolver) catchAllTarget(tx *gorm.DB, stationID uint, incoming *models.Device, claimed map[uint]bool) (*models.Device, error) {
	placeIDs, err := catchAllPlaceIDs(tx, stationID)
	if err != nil {
		return nil, err
	}
	if len(placeIDs) == 0 {
		r.Logger.Warn("на станции нет общих мест", zap.Uint("station_id", stationID))
		return nil, nil
	}

	var candidates []models.Device
	err = forUpdate(tx).
		Where("station_id = ? AND mounting_address_id IN ? AND id <> ?", stationID, placeIDs, incoming.ID).
		Where("status NOT IN ?", notInstalledStatuses).
		Where(sameTypeClause(incoming.DeviceTypeID)).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при поиске приборов на общих местах: %w", err)
	}

	candidates = withoutClaimed(candidates, claimed)
	if len(candidates) == 0 {
		r.Logger.Warn("на общих местах нет прибора для замены",
			zap.Uint("station_id", stationID), zap.Uint("device_id", incoming.ID))
		return nil, nil
	}
	sortByNextCheck(candidates, false)
	return &candidates[0], nil
}

// bulkCompanions возвращает до n бесконтактных приборов того же типа со склада.
// Приборы со строкой в любом редактируемом отчете КИП не берутся: они уйдут по своей строке.
func (r *ReplacementResolver) bulkCompanions(tx *gorm.DB, incoming *models.Device, n int, claimed map[uint]bool) ([]models.Device, error) {
	if n <= 0 {
		return nil, nil
	}
	pending := tx.Model(&models.DeviceKipReport{}).
		Select("device_kip_reports.device_id").
		Joins("JOIN kip_reports ON kip_reports.id = device_kip_reports.kip_report_id").
		Where("kip_reports.editable = ?", true)

	var candidates []models.Device
	err := forUpdate(tx).
		Where("stock_id IS NOT NULL AND contact_type = ? AND id <> ?", models.Contactless, incoming.ID).
		Where(sameTypeClause(incoming.DeviceTypeID)).
		Where("id NOT IN (?)", pending).
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при поиске приборов на складе: %w", err)
	}

	candidates = withoutClaimed(candidates, claimed)
	if len(candidates) < n {
		r.Logger.Warn("на складе недостаточно приборов для отправки количеством",
			zap.Uint("device_id", incoming.ID), zap.Int("requested", n), zap.Int("available", len(candidates)))
		return candidates, nil
	}
	return candidates[:n], nil
}

// FieldReplacement ищет отправленный прибор из отчета КИП, которым можно заменить прибор на линии.
// Замена того же типа, не использована в рамках отчета механика и находится там же:
// в той же АВЗ, на том же общем или точном месте, либо на той же станции без места.
func (r *ReplacementResolver) FieldReplacement(tx *gorm.DB, field *models.Device, kipReportID, mechanicReportID uint) (*models.Device, error) {
	query := forUpdate(tx).
		Where("id <> ? AND status = ?", field.ID, models.StatusSent).
		Where(sameTypeClause(field.DeviceTypeID)).
		Where("id IN (?)", tx.Model(&models.DeviceKipReport{}).Select("device_id").Where("kip_report_id = ?", kipReportID)).
		Where("id NOT IN (?)", tx.Model(&models.LedgerEntry{}).Select("device_id").Where("mechanic_report_id = ?", mechanicReportID))

	switch {
	case field.AVZID != nil:
		query = query.Where("avz_id = ?", *field.AVZID)
	case field.MountingAddressID != nil:
		place, err := getPlace(tx, *field.MountingAddressID)
		if err != nil {
			return nil, err
		}
		if !place.IsCatchAll() {
			var occupants int64
			if err := tx.Model(&models.Device{}).Where("mounting_address_id = ?", place.ID).Count(&occupants).Error; err != nil {
				return nil, fmt.Errorf("ошибка при подсчете приборов на месте: %w", err)
			}
			if occupants > models.MaxPlaceOccupants {
				return nil, fmt.Errorf("на месте %s находится %d приборов: %w", place.Address(), occupants, ErrIntegrity)
			}
		}
		query = query.Where("mounting_address_id = ?", place.ID)
	case field.StationID != nil:
		query = query.Where("station_id = ? AND mounting_address_id IS NULL", *field.StationID)
	default:
		return nil, nil
	}

	var candidates []models.Device
	if err := query.Order("id ASC").Limit(1).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("ошибка при поиске замены: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// catchAllPlaceIDs возвращает общие места станции
func catchAllPlaceIDs(tx *gorm.DB, stationID uint) ([]uint, error) {
	var places []models.Place
	err := tx.Preload("Rack").
		Joins("JOIN racks ON racks.id = places.rack_id").
		Where("racks.station_id = ?", stationID).
		Find(&places).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении мест станции: %w", err)
	}
	var ids []uint
	for i := range places {
		if places[i].IsCatchAll() {
			ids = append(ids, places[i].ID)
		}
	}
	return ids, nil
}

// sameTypeClause условие совпадения типа прибора
func sameTypeClause(typeID *uint) clause.Expr {
	if typeID == nil {
		return clause.Expr{SQL: "device_type_id IS NULL"}
	}
	return clause.Expr{SQL: "device_type_id = ?", Vars: []interface{}{*typeID}}
}
