package models

import (
	"fmt"
	"time"
)

// DeviceStatus статус прибора. Пустая строка означает отсутствие статуса.
type DeviceStatus string

const (
	StatusNone           DeviceStatus = ""
	StatusReady          DeviceStatus = "нужна замена"
	StatusSent           DeviceStatus = "отправлен"
	StatusOverdue        DeviceStatus = "просрочен"
	StatusNormal         DeviceStatus = "сроки в норме"
	StatusInProgress     DeviceStatus = "готовится"
	StatusDecommissioned DeviceStatus = "списан"
	StatusReplaced       DeviceStatus = "заменен"
)

// ContactType наличие контактов у прибора
type ContactType string

const (
	Contact     ContactType = "контактная"
	Contactless ContactType = "бесконтактная"
)

// IsActive проверяет, что статус относится к установленному прибору
func (s DeviceStatus) IsActive() bool {
	return s == StatusNormal || s == StatusReady || s == StatusOverdue
}

// IsPending проверяет, что прибор в пути (готовится или отправлен)
func (s DeviceStatus) IsPending() bool {
	return s == StatusSent || s == StatusInProgress
}

// IsTerminal проверяет, что прибор выведен из оборота
func (s DeviceStatus) IsTerminal() bool {
	return s == StatusDecommissioned || s == StatusReplaced
}

// IsValid проверяет, что статус входит в перечень
func (s DeviceStatus) IsValid() bool {
	switch s {
	case StatusNone, StatusReady, StatusSent, StatusOverdue, StatusNormal,
		StatusInProgress, StatusDecommissioned, StatusReplaced:
		return true
	}
	return false
}

// Device представляет прибор
type Device struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Местоположение: ровно одно из станция (с местом или без), АВЗ, склад
	StationID         *uint    `json:"station_id" gorm:"index"`
	Station           *Station `json:"station,omitempty" gorm:"foreignKey:StationID"`
	AVZID             *uint    `json:"avz_id" gorm:"column:avz_id;index"`
	AVZ               *AVZ     `json:"avz,omitempty" gorm:"foreignKey:AVZID"`
	StockID           *uint    `json:"stock_id" gorm:"index"`
	MountingAddressID *uint    `json:"mounting_address_id" gorm:"index"`
	MountingAddress   *Place   `json:"mounting_address,omitempty" gorm:"foreignKey:MountingAddressID"`

	Status       DeviceStatus `json:"status" gorm:"type:varchar(20);index"`
	DeviceTypeID *uint        `json:"device_type_id" gorm:"index"`
	DeviceType   *DeviceType  `json:"device_type,omitempty" gorm:"foreignKey:DeviceTypeID"`
	ContactType  ContactType  `json:"contact_type" gorm:"type:varchar(20)"`

	Name            string `json:"name" gorm:"type:varchar(20)"`
	InventoryNumber string `json:"inventory_number" gorm:"type:varchar(30);index"`

	// Сроки проверки
	ManufactureDate  *time.Time `json:"manufacture_date" gorm:"type:date"`
	FrequencyOfCheck int        `json:"frequency_of_check" gorm:"default:0"` // в годах
	CurrentCheckDate *time.Time `json:"current_check_date" gorm:"type:date"`
	NextCheckDate    *time.Time `json:"next_check_date" gorm:"type:date;index"`

	WhoPreparedID *uint `json:"who_prepared_id"`
	WhoPrepared   *User `json:"who_prepared,omitempty" gorm:"foreignKey:WhoPreparedID"`
	WhoCheckedID  *uint `json:"who_checked_id"`
	WhoChecked    *User `json:"who_checked,omitempty" gorm:"foreignKey:WhoCheckedID"`

	OldInformation string `json:"old_information" gorm:"type:varchar(60)"`
}

// TableName задает имя таблицы для модели Device
func (Device) TableName() string {
	return "devices"
}

// InStock проверяет, находится ли прибор на складе
func (d *Device) InStock() bool {
	return d.StockID != nil
}

// SameType проверяет совпадение типов приборов
func (d *Device) SameType(other *Device) bool {
	if d.DeviceTypeID == nil || other.DeviceTypeID == nil {
		return d.DeviceTypeID == nil && other.DeviceTypeID == nil
	}
	return *d.DeviceTypeID == *other.DeviceTypeID
}

// LocationDescription возвращает описание местоположения для истории операций
func (d *Device) LocationDescription() string {
	switch {
	case d.StockID != nil:
		return StockName
	case d.AVZID != nil:
		if d.AVZ != nil {
			return d.AVZ.DisplayName()
		}
		return fmt.Sprintf("АВЗ #%d", *d.AVZID)
	case d.StationID != nil:
		station := fmt.Sprintf("станция #%d", *d.StationID)
		if d.Station != nil {
			station = d.Station.Name
		}
		if d.MountingAddress != nil {
			return station + " " + d.MountingAddress.Address()
		}
		return station
	}
	return "—"
}

// ResetToStock очищает местоположение, сроки и статус и помещает прибор на склад
func (d *Device) ResetToStock(stockID uint) {
	d.Name = ""
	d.CurrentCheckDate = nil
	d.NextCheckDate = nil
	d.Status = StatusNone
	d.StationID = nil
	d.Station = nil
	d.AVZID = nil
	d.AVZ = nil
	d.WhoPreparedID = nil
	d.WhoCheckedID = nil
	d.MountingAddressID = nil
	d.MountingAddress = nil
	d.StockID = &stockID
}

// DateOf отбрасывает время суток
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextCheckDate вычисляет дату следующей проверки: то же число и месяц,
// год увеличен на периодичность. 29 февраля переносится на 28 февраля.
func NextCheckDate(current *time.Time, frequencyYears int) *time.Time {
	if current == nil {
		return nil
	}
	year := current.Year() + frequencyYears
	month := current.Month()
	day := current.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	next := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &next
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ComputeStatus вычисляет статус по дате следующей проверки.
// Без даты статуса нет. Будущий год или более поздний месяц текущего года -
// сроки в норме, более ранний месяц текущего года - нужна замена,
// все остальное - просрочен.
func ComputeStatus(next *time.Time, today time.Time) DeviceStatus {
	if next == nil {
		return StatusNone
	}
	switch {
	case next.Year() > today.Year():
		return StatusNormal
	case next.Year() == today.Year() && next.Month() > today.Month():
		return StatusNormal
	case next.Year() == today.Year() && next.Month() < today.Month():
		return StatusReady
	default:
		return StatusOverdue
	}
}
