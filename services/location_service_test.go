package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm_shn/models"
	"arm_shn/testutils"
)

func TestLocationService(t *testing.T) {
	ctx := context.Background()
	db := testutils.SetupTestDB(t)
	svc := NewLocationService(db)

	stations, err := svc.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, len(models.StationChoices))
	station := stations[0]
	assert.Equal(t, "Ботаническая", station.Name)

	t.Run("АВЗ только одна на станцию", func(t *testing.T) {
		avz, err := svc.CreateAVZ(ctx, station.ID)
		require.NoError(t, err)
		assert.Equal(t, "АВЗ Ботаническая", avz.DisplayName())

		_, err = svc.CreateAVZ(ctx, station.ID)
		assert.ErrorIs(t, err, ErrConflict)

		got, devices, err := svc.GetAVZ(ctx, avz.ID)
		require.NoError(t, err)
		assert.Equal(t, station.ID, got.StationID)
		assert.Empty(t, devices)
	})

	t.Run("Стативы и места", func(t *testing.T) {
		rack, err := svc.CreateRack(ctx, station.ID, " 12 ")
		require.NoError(t, err)
		assert.Equal(t, "12", rack.Number)

		_, err = svc.CreateRack(ctx, station.ID, "12")
		assert.True(t, IsValidationError(err))

		place, err := svc.CreatePlace(ctx, rack.ID, "34")
		require.NoError(t, err)
		assert.Equal(t, "12-34", place.Address())

		_, err = svc.CreatePlace(ctx, rack.ID, "34")
		assert.True(t, IsValidationError(err))
		_, err = svc.CreatePlace(ctx, 999, "1")
		assert.True(t, IsValidationError(err))

		full, err := svc.GetStation(ctx, station.ID)
		require.NoError(t, err)
		require.Len(t, full.Racks, 1)
		require.Len(t, full.Racks[0].Places, 1)
		assert.NotNil(t, full.AVZ)

		racks, err := svc.ListRacks(ctx, &station.ID)
		require.NoError(t, err)
		assert.Len(t, racks, 1)
		places, err := svc.ListPlaces(ctx, &rack.ID)
		require.NoError(t, err)
		assert.Len(t, places, 1)
	})

	t.Run("Типы приборов", func(t *testing.T) {
		_, err := svc.CreateDeviceType(ctx, "НМШ")
		require.NoError(t, err)
		_, err = svc.CreateDeviceType(ctx, "НМШ")
		assert.True(t, IsValidationError(err))

		types, err := svc.ListDeviceTypes(ctx)
		require.NoError(t, err)
		assert.Len(t, types, 1)
	})

	t.Run("Работники", func(t *testing.T) {
		user, err := svc.CreateUser(ctx, models.User{Username: "ivanov", FirstName: "Иван"})
		require.NoError(t, err)
		assert.True(t, user.IsActive)

		_, err = svc.CreateUser(ctx, models.User{Username: "ivanov"})
		assert.True(t, IsValidationError(err))

		users, err := svc.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("Несуществующая станция", func(t *testing.T) {
		_, err := svc.GetStation(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = svc.CreateAVZ(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
