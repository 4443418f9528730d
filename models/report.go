package models

import (
	"fmt"
	"time"
)

// MechanicReportTitleLen предельная длина заголовка отчета механика (в символах)
const MechanicReportTitleLen = 30

// KipReport отчет КИП: набор приборов со склада, подготовленных к отправке ("ящик")
type KipReport struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string `json:"title" gorm:"type:varchar(60)"`
	AuthorID    *uint  `json:"author_id" gorm:"index"`
	Author      *User  `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Explanation string `json:"explanation" gorm:"type:text"`

	// После отправки отчет становится нередактируемым навсегда
	Editable     bool       `json:"editable" gorm:"default:true;index"`
	DispatchedAt *time.Time `json:"dispatched_at"`

	Lines []DeviceKipReport `json:"lines,omitempty" gorm:"foreignKey:KipReportID;constraint:OnDelete:CASCADE"`
}

// TableName задает имя таблицы для модели KipReport
func (KipReport) TableName() string {
	return "kip_reports"
}

// DisplayTitle возвращает заголовок отчета КИП
func (k *KipReport) DisplayTitle() string {
	if k.Title != "" {
		return k.Title
	}
	return fmt.Sprintf("КИП №%d", k.ID)
}

// DeviceKipReport строка отчета КИП: прибор и место, куда он будет отправлен.
// Строка без станции и адреса является черновиком.
type DeviceKipReport struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	KipReportID uint       `json:"kip_report_id" gorm:"not null;index"`
	KipReport   *KipReport `json:"kip_report,omitempty" gorm:"foreignKey:KipReportID"`
	DeviceID    uint       `json:"device_id" gorm:"not null;index"`
	Device      *Device    `json:"device,omitempty" gorm:"foreignKey:DeviceID"`

	StationID       *uint    `json:"station_id" gorm:"index"`
	Station         *Station `json:"station,omitempty" gorm:"foreignKey:StationID"`
	MountingAddress string   `json:"mounting_address" gorm:"type:varchar(50);index"`

	CheckDate     *time.Time `json:"check_date" gorm:"type:date"`
	WhoPreparedID *uint      `json:"who_prepared_id"`
	WhoPrepared   *User      `json:"who_prepared,omitempty" gorm:"foreignKey:WhoPreparedID"`
	WhoCheckedID  *uint      `json:"who_checked_id"`
	WhoChecked    *User      `json:"who_checked,omitempty" gorm:"foreignKey:WhoCheckedID"`
}

// TableName задает имя таблицы для модели DeviceKipReport
func (DeviceKipReport) TableName() string {
	return "device_kip_reports"
}

// IsDraft проверяет, что у строки еще не указано место назначения
func (l *DeviceKipReport) IsDraft() bool {
	return l.StationID == nil || l.MountingAddress == ""
}

// MechanicReport отчет механика: перечень приборов станции, требующих действий
type MechanicReport struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string     `json:"title" gorm:"not null;type:varchar(30)"`
	AuthorID    *uint      `json:"author_id" gorm:"index"`
	Author      *User      `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	StationID   uint       `json:"station_id" gorm:"not null;index"`
	Station     *Station   `json:"station,omitempty" gorm:"foreignKey:StationID"`
	Explanation string     `json:"explanation" gorm:"type:text"`
	KipReportID *uint      `json:"kip_report_id" gorm:"index"`
	KipReport   *KipReport `json:"kip_report,omitempty" gorm:"foreignKey:KipReportID"`
	Closed      bool       `json:"closed" gorm:"default:false;index"`
	ClosedAt    *time.Time `json:"closed_at"`

	Devices  []Device  `json:"devices,omitempty" gorm:"many2many:mechanic_report_devices;"`
	Comments []Comment `json:"comments,omitempty" gorm:"foreignKey:MechanicReportID;constraint:OnDelete:CASCADE"`
}

// TableName задает имя таблицы для модели MechanicReport
func (MechanicReport) TableName() string {
	return "mechanic_reports"
}

// HasDevice проверяет, входит ли прибор в перечень отчета (перечень должен быть загружен)
func (m *MechanicReport) HasDevice(deviceID uint) bool {
	for _, d := range m.Devices {
		if d.ID == deviceID {
			return true
		}
	}
	return false
}

// KipMechanicReportTitle формирует заголовок отчета механика, созданного при отправке КИП
func KipMechanicReportTitle(kipID uint, stationName string) string {
	title := []rune(fmt.Sprintf("КИП №%d %s", kipID, stationName))
	if len(title) > MechanicReportTitleLen {
		title = title[:MechanicReportTitleLen]
	}
	return string(title)
}

// Comment комментарий к отчету механика
type Comment struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	MechanicReportID uint   `json:"mechanic_report_id" gorm:"not null;index"`
	AuthorID         *uint  `json:"author_id" gorm:"index"`
	Author           *User  `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Text             string `json:"text" gorm:"not null;type:varchar(150)"`
	Published        bool   `json:"published" gorm:"default:true"`
}

// TableName задает имя таблицы для модели Comment
func (Comment) TableName() string {
	return "comments"
}

// CommentMaxLen предельная длина комментария
const CommentMaxLen = 150
