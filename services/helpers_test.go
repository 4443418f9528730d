package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"arm_shn/models"
	"arm_shn/testutils"
)

type testEnv struct {
	db      *gorm.DB
	f       *testutils.Fixture
	clock   Clock
	user    *models.User
	station *models.Station
	dt      *models.DeviceType

	kip      *KipService
	mechanic *MechanicService
	devices  *DeviceService
}

// newTestEnv база с фиксированной датой 15.03.2026, станцией "Ботаническая" и типом прибора НМШ
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutils.SetupTestDB(t)
	f := testutils.NewFixture(t, db)
	clock := Clock(testutils.FixedClock(2026, time.March, 15))

	return &testEnv{
		db:       db,
		f:        f,
		clock:    clock,
		user:     f.User("ivanov"),
		station:  f.Station("БТ"),
		dt:       f.DeviceType("НМШ"),
		kip:      NewKipService(db, nil, clock, nil),
		mechanic: NewMechanicService(db, nil, clock, nil, nil),
		devices:  NewDeviceService(db, nil, clock),
	}
}

func (e *testEnv) line(d *models.Device, station *models.Station, address string) LineInput {
	return LineInput{DeviceID: d.ID, StationID: &station.ID, MountingAddress: address}
}

func (e *testEnv) stockDevice(inventory string) *models.Device {
	return e.f.StockDevice(e.dt, models.Contact, inventory)
}

// dispatchOne собирает отчет КИП из строк, отправляет его и возвращает отчет механика станции
func (e *testEnv) dispatchOne(t *testing.T, lines ...LineInput) (*models.KipReport, *models.MechanicReport) {
	t.Helper()
	kip := e.f.KipReport(e.user)
	_, err := e.kip.AddLines(context.Background(), kip.ID, lines)
	require.NoError(t, err)

	result, err := e.kip.Dispatch(context.Background(), kip.ID, &e.user.ID)
	require.NoError(t, err)
	reportID, ok := result[*lines[0].StationID]
	require.True(t, ok, "нет отчета механика для станции")

	report, err := e.mechanic.Get(context.Background(), reportID)
	require.NoError(t, err)
	return kip, report
}

func reportDeviceIDs(r *models.MechanicReport) []uint {
	ids := make([]uint, 0, len(r.Devices))
	for _, d := range r.Devices {
		ids = append(ids, d.ID)
	}
	return ids
}

func dateString(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format("2006-01-02")
}

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.Error()
}
