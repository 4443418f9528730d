package testutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"arm_shn/database"
	"arm_shn/models"
)

// SetupTestDB создает базу SQLite в памяти с миграциями и справочными данными.
// Соединение одно, иначе каждое новое соединение видит пустую базу.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "не удалось открыть тестовую базу")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db), "не удалось выполнить миграции")
	require.NoError(t, database.SeedReferenceData(db), "не удалось заполнить справочники")

	t.Cleanup(func() { CleanupTestDB(db) })
	return db
}

// CleanupTestDB закрывает тестовую базу данных
func CleanupTestDB(db *gorm.DB) {
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}
}

// Date возвращает дату без времени
func Date(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

// FixedClock возвращает часы, всегда показывающие указанную дату
func FixedClock(year int, month time.Month, day int) func() time.Time {
	now := time.Date(year, month, day, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

// Fixture создает связанные тестовые записи
type Fixture struct {
	t     *testing.T
	DB    *gorm.DB
	Stock *models.Stock
}

// NewFixture создает построитель тестовых данных
func NewFixture(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()
	stock, err := models.EnsureStock(db)
	require.NoError(t, err)
	return &Fixture{t: t, DB: db, Stock: stock}
}

func (f *Fixture) create(value interface{}) {
	f.t.Helper()
	require.NoError(f.t, f.DB.Omit(clause.Associations).Create(value).Error)
}

// Station возвращает станцию из справочника по коду
func (f *Fixture) Station(code string) *models.Station {
	f.t.Helper()
	var station models.Station
	require.NoError(f.t, f.DB.Where("code = ?", code).First(&station).Error, "нет станции %s", code)
	return &station
}

// AVZ создает АВЗ станции
func (f *Fixture) AVZ(station *models.Station) *models.AVZ {
	f.t.Helper()
	avz := &models.AVZ{StationID: station.ID}
	f.create(avz)
	avz.Station = station
	return avz
}

// Rack создает статив на станции
func (f *Fixture) Rack(station *models.Station, number string) *models.Rack {
	f.t.Helper()
	rack := &models.Rack{StationID: station.ID, Number: number}
	f.create(rack)
	return rack
}

// Place создает место на стативе
func (f *Fixture) Place(rack *models.Rack, number string) *models.Place {
	f.t.Helper()
	place := &models.Place{RackID: rack.ID, Number: number}
	f.create(place)
	place.Rack = rack
	return place
}

// DeviceType создает тип прибора
func (f *Fixture) DeviceType(name string) *models.DeviceType {
	f.t.Helper()
	dt := &models.DeviceType{Name: name}
	f.create(dt)
	return dt
}

// User создает работника
func (f *Fixture) User(username string) *models.User {
	f.t.Helper()
	user := &models.User{Username: username, FirstName: username, IsActive: true}
	f.create(user)
	return user
}

// StockDevice создает прибор на складе
func (f *Fixture) StockDevice(dt *models.DeviceType, contact models.ContactType, inventory string) *models.Device {
	f.t.Helper()
	d := &models.Device{
		StockID:          &f.Stock.ID,
		DeviceTypeID:     &dt.ID,
		ContactType:      contact,
		InventoryNumber:  inventory,
		FrequencyOfCheck: 2,
	}
	f.create(d)
	return d
}

// FieldDevice создает установленный прибор на месте станции
func (f *Fixture) FieldDevice(station *models.Station, place *models.Place, dt *models.DeviceType, name, inventory string, status models.DeviceStatus, next *time.Time) *models.Device {
	f.t.Helper()
	d := &models.Device{
		StationID:        &station.ID,
		DeviceTypeID:     &dt.ID,
		ContactType:      models.Contact,
		Name:             name,
		InventoryNumber:  inventory,
		Status:           status,
		FrequencyOfCheck: 2,
		NextCheckDate:    next,
	}
	if place != nil {
		d.MountingAddressID = &place.ID
	}
	f.create(d)
	return d
}

// AVZDevice создает прибор в АВЗ
func (f *Fixture) AVZDevice(avz *models.AVZ, dt *models.DeviceType, inventory string, status models.DeviceStatus, next *time.Time) *models.Device {
	f.t.Helper()
	d := &models.Device{
		AVZID:            &avz.ID,
		DeviceTypeID:     &dt.ID,
		ContactType:      models.Contact,
		InventoryNumber:  inventory,
		Status:           status,
		FrequencyOfCheck: 2,
		NextCheckDate:    next,
	}
	f.create(d)
	return d
}

// KipReport создает редактируемый отчет КИП
func (f *Fixture) KipReport(author *models.User) *models.KipReport {
	f.t.Helper()
	report := &models.KipReport{Editable: true}
	if author != nil {
		report.AuthorID = &author.ID
	}
	f.create(report)
	return report
}

// Reload перечитывает прибор из базы
func (f *Fixture) Reload(d *models.Device) *models.Device {
	f.t.Helper()
	var fresh models.Device
	require.NoError(f.t, f.DB.First(&fresh, d.ID).Error)
	return &fresh
}
