package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStockSingleton тестирует единственность склада
func TestStockSingleton(t *testing.T) {
	db := setupTestDB(t)

	first, err := EnsureStock(db)
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, StockName, first.Name)

	second, err := EnsureStock(db)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&Stock{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

// TestLocationModels тестирует станции, стативы и места
func TestLocationModels(t *testing.T) {
	db := setupTestDB(t)

	station := Station{Code: "БТ", Name: "Ботаническая"}
	require.NoError(t, db.Create(&station).Error)

	t.Run("Код станции уникален", func(t *testing.T) {
		assert.Error(t, db.Create(&Station{Code: "БТ", Name: "Дубль"}).Error)
	})

	t.Run("Одна АВЗ на станцию", func(t *testing.T) {
		require.NoError(t, db.Create(&AVZ{StationID: station.ID}).Error)
		assert.Error(t, db.Create(&AVZ{StationID: station.ID}).Error)
	})

	t.Run("Сокращенное название станции", func(t *testing.T) {
		assert.Equal(t, "Ботан", station.ShortName())
		assert.Equal(t, "ЧК", (&Station{Name: "ЧК"}).ShortName())
	})

	t.Run("Общее место символического статива", func(t *testing.T) {
		tunnel := Rack{Number: "тоннель", StationID: station.ID}
		require.NoError(t, db.Create(&tunnel).Error)
		rest := Place{Number: "остальное", RackID: tunnel.ID}
		require.NoError(t, db.Create(&rest).Error)

		var loaded Place
		require.NoError(t, db.Preload("Rack").First(&loaded, rest.ID).Error)
		assert.True(t, loaded.IsCatchAll())
		assert.Equal(t, "тоннель-остальное", loaded.Address())
	})

	t.Run("Обычное место не является общим", func(t *testing.T) {
		rack := Rack{Number: "12", StationID: station.ID}
		require.NoError(t, db.Create(&rack).Error)
		place := Place{Number: "34", RackID: rack.ID, Rack: &rack}
		assert.False(t, place.IsCatchAll())
		assert.Equal(t, "12-34", place.Address())

		restOnNumeric := Place{Number: "остальное", Rack: &rack}
		assert.False(t, restOnNumeric.IsCatchAll())
	})

	t.Run("Символические стативы", func(t *testing.T) {
		assert.True(t, IsCatchAllRack("Релейная"))
		assert.True(t, IsCatchAllRack(" поле "))
		assert.False(t, IsCatchAllRack("12"))
	})
}
