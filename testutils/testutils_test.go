package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm_shn/models"
)

func TestSetupTestDB(t *testing.T) {
	db := SetupTestDB(t)

	var tableCount int64
	err := db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&tableCount).Error
	require.NoError(t, err)
	assert.Greater(t, tableCount, int64(len(models.AllModels())))

	var stations int64
	require.NoError(t, db.Model(&models.Station{}).Count(&stations).Error)
	assert.Equal(t, int64(len(models.StationChoices)), stations)
}

func TestFixture(t *testing.T) {
	db := SetupTestDB(t)
	f := NewFixture(t, db)

	station := f.Station("БТ")
	assert.Equal(t, "Ботаническая", station.Name)

	rack := f.Rack(station, "12")
	place := f.Place(rack, "34")
	dt := f.DeviceType("НМШ")

	field := f.FieldDevice(station, place, dt, "1СП", "100", models.StatusNormal, Date(2030, 1, 1))
	stock := f.StockDevice(dt, models.Contact, "200")

	assert.True(t, f.Reload(stock).InStock())
	reloaded := f.Reload(field)
	require.NotNil(t, reloaded.MountingAddressID)
	assert.Equal(t, place.ID, *reloaded.MountingAddressID)
	assert.Equal(t, models.StatusNormal, reloaded.Status)
}
