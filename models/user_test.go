package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB создает тестовую базу данных в памяти
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(AllModels()...)
	require.NoError(t, err)
	return db
}

// TestUserModel тестирует модель User
func TestUserModel(t *testing.T) {
	db := setupTestDB(t)

	t.Run("Создание пользователя", func(t *testing.T) {
		user := User{Username: "ivanov", FirstName: "Иван", LastName: "Иванов"}
		require.NoError(t, db.Create(&user).Error)
		assert.NotZero(t, user.ID)
		assert.True(t, user.IsActive)
	})

	t.Run("Уникальность имени пользователя", func(t *testing.T) {
		require.NoError(t, db.Create(&User{Username: "petrov"}).Error)
		assert.Error(t, db.Create(&User{Username: "petrov"}).Error)
	})

	t.Run("Отображаемое имя", func(t *testing.T) {
		assert.Equal(t, "Иван Иванов", (&User{Username: "ivanov", FirstName: "Иван", LastName: "Иванов"}).GetDisplayName())
		assert.Equal(t, "Иван", (&User{Username: "ivanov", FirstName: "Иван"}).GetDisplayName())
		assert.Equal(t, "ivanov", (&User{Username: "ivanov"}).GetDisplayName())
	})
}
