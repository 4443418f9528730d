package models

import "time"

// Типы операций с приборами
const (
	OperationDispatch     = "dispatch"
	OperationBulkDispatch = "bulk_dispatch"
	OperationInstall      = "install"
	OperationSwapIn       = "swap_in"
	OperationSwapOut      = "swap_out"
	OperationDefect       = "defect"
	OperationToStock      = "to_stock"
	OperationCreate       = "create"
	OperationUpdate       = "update"
)

// DeviceOperation запись истории перемещений прибора
type DeviceOperation struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	Type     string  `json:"type" gorm:"not null;type:varchar(20);index"`
	DeviceID uint    `json:"device_id" gorm:"not null;index"`
	Device   *Device `json:"device,omitempty" gorm:"foreignKey:DeviceID"`

	FromLocation string `json:"from_location" gorm:"type:varchar(100)"`
	ToLocation   string `json:"to_location" gorm:"type:varchar(100)"`
	FromStatus   string `json:"from_status" gorm:"type:varchar(20)"`
	ToStatus     string `json:"to_status" gorm:"type:varchar(20)"`

	UserID           *uint `json:"user_id" gorm:"index"`
	User             *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	MechanicReportID *uint `json:"mechanic_report_id" gorm:"index"`
	KipReportID      *uint `json:"kip_report_id" gorm:"index"`

	Notes string `json:"notes" gorm:"type:text"`
}

// TableName задает имя таблицы для модели DeviceOperation
func (DeviceOperation) TableName() string {
	return "device_operations"
}

// GetTypeDisplayName возвращает читаемое название типа операции
func (o *DeviceOperation) GetTypeDisplayName() string {
	typeMap := map[string]string{
		OperationDispatch:     "Отправка",
		OperationBulkDispatch: "Групповая отправка",
		OperationInstall:      "Установка",
		OperationSwapIn:       "Замена (установлен)",
		OperationSwapOut:      "Замена (снят)",
		OperationDefect:       "Брак",
		OperationToStock:      "Возврат на склад",
		OperationCreate:       "Создание",
		OperationUpdate:       "Изменение",
	}
	if displayName, exists := typeMap[o.Type]; exists {
		return displayName
	}
	return o.Type
}

// LedgerEntry отметка об использовании прибора из отчета КИП в рамках отчета механика
type LedgerEntry struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	MechanicReportID uint  `json:"mechanic_report_id" gorm:"not null;uniqueIndex:idx_ledger_report_device"`
	DeviceID         uint  `json:"device_id" gorm:"not null;uniqueIndex:idx_ledger_report_device"`
	KipReportID      *uint `json:"kip_report_id" gorm:"index"`
}

// TableName задает имя таблицы для модели LedgerEntry
func (LedgerEntry) TableName() string {
	return "consumption_ledger"
}

// AllModels возвращает все модели для миграции
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Stock{},
		&Station{},
		&AVZ{},
		&Rack{},
		&Place{},
		&DeviceType{},
		&Device{},
		&KipReport{},
		&DeviceKipReport{},
		&MechanicReport{},
		&Comment{},
		&DeviceOperation{},
		&LedgerEntry{},
	}
}
