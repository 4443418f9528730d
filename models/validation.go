package models

import (
	"fmt"
	"strings"
)

// Violation нарушение правил согласованности прибора
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PlaceOccupancy текущее состояние места, на которое ставится прибор.
// Occupants содержит остальные приборы на месте, без проверяемого.
type PlaceOccupancy struct {
	Place     *Place
	CatchAll  bool
	Occupants []Device
}

// MaxPlaceOccupants предельное число приборов на одном точном месте
const MaxPlaceOccupants = 2

// ValidateDevice проверяет согласованность полей прибора и занятость места.
// Возвращает все найденные нарушения, пустой срез означает, что прибор корректен.
func ValidateDevice(d *Device, occ *PlaceOccupancy) []Violation {
	var out []Violation
	add := func(field, format string, args ...interface{}) {
		out = append(out, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !d.Status.IsValid() {
		add("status", "Неизвестный статус %q", d.Status)
	}

	if strings.TrimSpace(d.Name) != "" && d.MountingAddressID == nil {
		add("mounting_address", "Прибор с наименованием должен иметь место установки")
	}
	if d.AVZID != nil {
		if strings.TrimSpace(d.Name) != "" {
			add("name", "Прибор в АВЗ не может иметь наименование")
		}
		if d.MountingAddressID != nil {
			add("mounting_address", "Прибор в АВЗ не может иметь место установки")
		}
	}

	if d.StockID != nil {
		if d.StationID != nil || d.AVZID != nil || d.MountingAddressID != nil {
			add("stock", "Прибор на складе не может иметь станцию, АВЗ или место установки")
		}
		if d.Status != StatusNone {
			add("status", "Прибор на складе не может иметь статус")
		}
	}

	locations := 0
	for _, set := range []bool{d.StationID != nil, d.AVZID != nil, d.StockID != nil} {
		if set {
			locations++
		}
	}
	if locations != 1 {
		add("location", "Прибор должен находиться ровно в одном месте: на станции, в АВЗ или на складе")
	}

	if d.MountingAddressID != nil && d.StationID == nil && d.StockID == nil && d.AVZID == nil {
		add("station", "Место установки требует указания станции")
	}

	if d.ContactType == Contact && strings.TrimSpace(d.InventoryNumber) == "" {
		add("inventory_number", "У контактного прибора должен быть инвентарный номер")
	}

	if d.MountingAddressID != nil && occ != nil && occ.Place != nil {
		if d.StationID != nil && occ.Place.Rack != nil && occ.Place.Rack.StationID != *d.StationID {
			add("mounting_address", "Место %s не относится к станции прибора", occ.Place.Address())
		}
		if !occ.CatchAll {
			out = append(out, validateOccupancy(d, occ)...)
		}
	}
	return out
}

func validateOccupancy(d *Device, occ *PlaceOccupancy) []Violation {
	var out []Violation
	others := make([]Device, 0, len(occ.Occupants))
	for _, o := range occ.Occupants {
		if o.ID != d.ID {
			others = append(others, o)
		}
	}
	if len(others)+1 > MaxPlaceOccupants {
		out = append(out, Violation{
			Field:   "mounting_address",
			Message: fmt.Sprintf("На месте %s уже находятся %d прибора", occ.Place.Address(), len(others)),
		})
		return out
	}
	for _, o := range others {
		switch {
		case o.Status == d.Status:
			out = append(out, Violation{
				Field:   "status",
				Message: fmt.Sprintf("На месте %s уже есть прибор со статусом %q", occ.Place.Address(), d.Status),
			})
		case !complementary(o.Status, d.Status):
			out = append(out, Violation{
				Field: "status",
				Message: fmt.Sprintf("Статусы %q и %q не могут быть у приборов на одном месте %s",
					o.Status, d.Status, occ.Place.Address()),
			})
		}
	}
	return out
}

// complementary допустимая пара статусов на одном месте: установленный и ожидающий
func complementary(a, b DeviceStatus) bool {
	return (a.IsActive() && b.IsPending()) || (a.IsPending() && b.IsActive())
}
