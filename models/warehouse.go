package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Символические стативы и место "остальное" для приборов без точного адреса
const (
	RackTunnel     = "тоннель"
	RackField      = "поле"
	RackRelayRoom  = "релейная"
	PlaceCatchAll  = "остальное"
	StockName      = "Склад"
	stationNameLen = 5
)

// CatchAllRacks возвращает список символических стативов
func CatchAllRacks() []string {
	return []string{RackRelayRoom, RackTunnel, RackField}
}

// IsCatchAllRack проверяет, является ли номер статива символическим
func IsCatchAllRack(number string) bool {
	n := strings.ToLower(strings.TrimSpace(number))
	for _, r := range CatchAllRacks() {
		if n == r {
			return true
		}
	}
	return false
}

// Stock представляет единственный склад
type Stock struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name" gorm:"uniqueIndex;type:varchar(6);default:'Склад'"`
}

// TableName задает имя таблицы для модели Stock
func (Stock) TableName() string {
	return "stocks"
}

// EnsureStock возвращает запись склада, создавая ее при первом обращении.
// Повторные вызовы всегда возвращают первую запись.
func EnsureStock(db *gorm.DB) (*Stock, error) {
	var stock Stock
	err := db.Order("id ASC").Attrs(Stock{Name: StockName}).FirstOrCreate(&stock).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении склада: %w", err)
	}
	return &stock, nil
}

// StationChoice элемент фиксированного списка станций
type StationChoice struct {
	Code string
	Name string
}

// StationChoices фиксированный список станций
var StationChoices = []StationChoice{
	{Code: "БТ", Name: "Ботаническая"},
	{Code: "ЧК", Name: "Чкаловская"},
	{Code: "ГЕОЛ", Name: "Геологическая"},
	{Code: "ПЛ", Name: "Площадь 1905г."},
	{Code: "ДИН", Name: "Динамо"},
	{Code: "УРЛСК", Name: "Уральская"},
	{Code: "МАШ", Name: "Машиностроителей"},
	{Code: "УРЛМ", Name: "Уралмаш"},
	{Code: "ПР", Name: "Проспект Космонавтов"},
	{Code: "ДЕПО", Name: "Депо Калиновское"},
	{Code: "ИНЖ. КОРПУС", Name: "Инж. Корпус"},
}

// Station представляет станцию из фиксированного списка
type Station struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code string `json:"code" gorm:"uniqueIndex;not null;type:varchar(20)"`
	Name string `json:"name" gorm:"not null;type:varchar(50)"`

	// Связи
	AVZ   *AVZ   `json:"avz,omitempty" gorm:"foreignKey:StationID"`
	Racks []Rack `json:"racks,omitempty" gorm:"foreignKey:StationID"`
}

// TableName задает имя таблицы для модели Station
func (Station) TableName() string {
	return "stations"
}

// ShortName возвращает сокращенное название станции для адресов
func (s *Station) ShortName() string {
	r := []rune(s.Name)
	if len(r) > stationNameLen {
		return string(r[:stationNameLen])
	}
	return s.Name
}

// AVZ аварийный запас приборов станции
type AVZ struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	StationID uint     `json:"station_id" gorm:"uniqueIndex;not null"`
	Station   *Station `json:"station,omitempty" gorm:"foreignKey:StationID"`
}

// TableName задает имя таблицы для модели AVZ
func (AVZ) TableName() string {
	return "avz"
}

// DisplayName возвращает читаемое название АВЗ
func (a *AVZ) DisplayName() string {
	if a.Station != nil {
		return "АВЗ " + a.Station.Name
	}
	return fmt.Sprintf("АВЗ #%d", a.ID)
}

// Rack статив на станции
type Rack struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	Number    string   `json:"number" gorm:"not null;type:varchar(20);index"`
	StationID uint     `json:"station_id" gorm:"not null;index"`
	Station   *Station `json:"station,omitempty" gorm:"foreignKey:StationID"`

	Places []Place `json:"places,omitempty" gorm:"foreignKey:RackID;constraint:OnDelete:CASCADE"`
}

// TableName задает имя таблицы для модели Rack
func (Rack) TableName() string {
	return "racks"
}

// IsCatchAll проверяет, является ли статив символическим
func (r *Rack) IsCatchAll() bool {
	return IsCatchAllRack(r.Number)
}

// Place место прибора на стативе
type Place struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	Number string `json:"number" gorm:"not null;type:varchar(20)"`
	RackID uint   `json:"rack_id" gorm:"not null;index"`
	Rack   *Rack  `json:"rack,omitempty" gorm:"foreignKey:RackID"`
}

// TableName задает имя таблицы для модели Place
func (Place) TableName() string {
	return "places"
}

// IsCatchAll проверяет, является ли место общим ("остальное" на символическом стативе).
// Требует загруженного статива.
func (p *Place) IsCatchAll() bool {
	if p.Rack == nil {
		return false
	}
	return p.Rack.IsCatchAll() && strings.EqualFold(strings.TrimSpace(p.Number), PlaceCatchAll)
}

// Address возвращает адрес места в формате "статив-место"
func (p *Place) Address() string {
	if p.Rack == nil {
		return p.Number
	}
	return p.Rack.Number + "-" + p.Number
}

// DeviceType тип прибора
type DeviceType struct {
	ID   uint   `json:"id" gorm:"primarykey"`
	Name string `json:"name" gorm:"not null;uniqueIndex;type:varchar(25)"`
}

// TableName задает имя таблицы для модели DeviceType
func (DeviceType) TableName() string {
	return "device_types"
}
