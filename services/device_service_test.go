package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm_shn/models"
	"arm_shn/testutils"
)

func TestDeviceService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Установленный прибор со сроком по периодичности", func(t *testing.T) {
		env := newTestEnv(t)
		place := env.f.Place(env.f.Rack(env.station, "12"), "34")

		d, err := env.devices.Create(ctx, DeviceInput{
			StationID:         &env.station.ID,
			MountingAddressID: &place.ID,
			DeviceTypeID:      &env.dt.ID,
			ContactType:       models.Contact,
			Name:              "1СП",
			InventoryNumber:   "100",
			FrequencyOfCheck:  2,
			CurrentCheckDate:  testutils.Date(2025, 3, 15),
		}, &env.user.ID)
		require.NoError(t, err)

		assert.Equal(t, "2027-03-15", dateString(d.NextCheckDate))
		assert.Equal(t, models.StatusNormal, d.Status)
		require.NotNil(t, d.MountingAddress)
		assert.Equal(t, "12-34", d.MountingAddress.Address())

		history, err := env.devices.History(ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.OperationCreate, history[0].Type)
	})

	t.Run("Прибор на склад без статуса", func(t *testing.T) {
		env := newTestEnv(t)
		d, err := env.devices.Create(ctx, DeviceInput{
			InStock: true, DeviceTypeID: &env.dt.ID, ContactType: models.Contactless,
			CurrentCheckDate: testutils.Date(2025, 1, 1), FrequencyOfCheck: 1,
		}, nil)
		require.NoError(t, err)
		assert.True(t, d.InStock())
		assert.Equal(t, models.StatusNone, d.Status)
	})

	t.Run("Нарушения согласованности", func(t *testing.T) {
		env := newTestEnv(t)
		place := env.f.Place(env.f.Rack(env.station, "12"), "34")
		sent := models.StatusSent
		other := env.f.Station("ЧК")
		otherPlace := env.f.Place(env.f.Rack(other, "1"), "1")

		cases := []struct {
			name  string
			input DeviceInput
			field string
		}{
			{"наименование без места", DeviceInput{StationID: &env.station.ID, Name: "1СП", ContactType: models.Contactless}, "mounting_address"},
			{"статус на складе", DeviceInput{InStock: true, Status: &sent, ContactType: models.Contactless}, "status"},
			{"нет местоположения", DeviceInput{ContactType: models.Contactless}, "location"},
			{"два местоположения", DeviceInput{InStock: true, StationID: &env.station.ID, ContactType: models.Contactless}, "stock"},
			{"контактный без инвентарного номера", DeviceInput{InStock: true, ContactType: models.Contact}, "inventory_number"},
			{"место без станции", DeviceInput{MountingAddressID: &place.ID, ContactType: models.Contactless}, "station"},
			{"место чужой станции", DeviceInput{StationID: &env.station.ID, MountingAddressID: &otherPlace.ID, ContactType: models.Contactless}, "mounting_address"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := env.devices.Create(ctx, tc.input, nil)
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				fields := make([]string, 0, len(ve.Violations))
				for _, v := range ve.Violations {
					fields = append(fields, v.Field)
				}
				assert.Contains(t, fields, tc.field)
			})
		}
	})

	t.Run("Третий прибор на точном месте", func(t *testing.T) {
		env := newTestEnv(t)
		place := env.f.Place(env.f.Rack(env.station, "12"), "34")
		env.f.FieldDevice(env.station, place, env.dt, "1СП", "100", models.StatusNormal, testutils.Date(2027, 1, 1))
		env.f.FieldDevice(env.station, place, env.dt, "", "101", models.StatusSent, testutils.Date(2028, 1, 1))

		for _, status := range []models.DeviceStatus{models.StatusReady, models.StatusSent, models.StatusOverdue, models.StatusInProgress} {
			status := status
			_, err := env.devices.Create(ctx, DeviceInput{
				StationID: &env.station.ID, MountingAddressID: &place.ID, Status: &status,
				ContactType: models.Contact, InventoryNumber: "102",
			}, nil)
			assert.Contains(t, validationMessage(t, err), "уже находятся 2", string(status))
		}
	})

	t.Run("Несуществующая станция", func(t *testing.T) {
		env := newTestEnv(t)
		missing := uint(999)
		_, err := env.devices.Create(ctx, DeviceInput{StationID: &missing, ContactType: models.Contactless}, nil)
		assert.Contains(t, validationMessage(t, err), "Станция #999 не существует")
	})
}

func TestDeviceService_UpdateAndStock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	place := env.f.Place(env.f.Rack(env.station, "12"), "34")
	avz := env.f.AVZ(env.station)
	d := env.f.FieldDevice(env.station, place, env.dt, "1СП", "100", models.StatusNormal, testutils.Date(2027, 1, 1))

	t.Run("Перенос в АВЗ с наименованием отклоняется", func(t *testing.T) {
		_, err := env.devices.Update(ctx, d.ID, DeviceInput{
			AVZID: &avz.ID, Name: "1СП", ContactType: models.Contact, InventoryNumber: "100",
		}, nil)
		assert.True(t, IsValidationError(err))
		assert.Equal(t, "1СП", env.f.Reload(d).Name)
	})

	t.Run("Перенос в АВЗ", func(t *testing.T) {
		updated, err := env.devices.Update(ctx, d.ID, DeviceInput{
			AVZID: &avz.ID, DeviceTypeID: &env.dt.ID, ContactType: models.Contact, InventoryNumber: "100",
			NextCheckDate: testutils.Date(2026, 1, 1),
		}, &env.user.ID)
		require.NoError(t, err)
		assert.Equal(t, avz.ID, *updated.AVZID)
		assert.Nil(t, updated.StationID)
		assert.Equal(t, models.StatusReady, updated.Status)
	})

	t.Run("Возврат на склад", func(t *testing.T) {
		stocked, err := env.devices.SendToStock(ctx, d.ID, &env.user.ID)
		require.NoError(t, err)
		assert.True(t, stocked.InStock())
		assert.Nil(t, stocked.AVZID)
		assert.Nil(t, stocked.NextCheckDate)
		assert.Equal(t, models.StatusNone, stocked.Status)
		assert.Equal(t, "100", stocked.InventoryNumber)

		history, err := env.devices.History(ctx, d.ID)
		require.NoError(t, err)
		require.NotEmpty(t, history)
		assert.Equal(t, models.OperationToStock, history[0].Type)
		assert.Equal(t, models.StockName, history[0].ToLocation)
	})

	t.Run("Несуществующий прибор", func(t *testing.T) {
		_, err := env.devices.SendToStock(ctx, 999, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeviceService_List(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	place := env.f.Place(env.f.Rack(env.station, models.RackField), models.PlaceCatchAll)
	env.f.FieldDevice(env.station, place, env.dt, "1СП", "100", models.StatusOverdue, testutils.Date(2026, 3, 1))
	env.f.FieldDevice(env.station, place, env.dt, "2СП", "200", models.StatusNormal, testutils.Date(2026, 7, 1))
	env.stockDevice("300")

	inStock := true
	devices, total, err := env.devices.List(ctx, DeviceFilter{InStock: &inStock})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "300", devices[0].InventoryNumber)

	devices, total, err = env.devices.List(ctx, DeviceFilter{DueMonth: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "1СП", devices[0].Name)

	_, total, err = env.devices.List(ctx, DeviceFilter{StationID: &env.station.ID, Search: "СП"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, _, err = env.devices.List(ctx, DeviceFilter{DueMonth: 13})
	assert.True(t, IsValidationError(err))
}
