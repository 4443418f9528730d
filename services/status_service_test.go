package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm_shn/models"
	"arm_shn/testutils"
)

func TestStatusService_RecomputeDueStatuses(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	place := env.f.Place(env.f.Rack(env.station, models.RackField), models.PlaceCatchAll)
	field := func(status models.DeviceStatus, next *time.Time) *models.Device {
		return env.f.FieldDevice(env.station, place, env.dt, "", "1", status, next)
	}

	earlierMonth := field(models.StatusNormal, testutils.Date(2026, 1, 10))
	pastYear := field(models.StatusNormal, testutils.Date(2025, 12, 1))
	sameMonth := field(models.StatusNormal, testutils.Date(2026, 3, 20))
	future := field(models.StatusNormal, testutils.Date(2027, 1, 1))
	sent := field(models.StatusSent, testutils.Date(2020, 1, 1))
	decommissioned := field(models.StatusDecommissioned, testutils.Date(2020, 1, 1))
	noDate := field(models.StatusNormal, nil)
	stock := env.stockDevice("S1")

	svc := NewStatusService(env.db, nil, env.clock)
	changed, err := svc.RecomputeNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.DeviceStatus]int64{
		models.StatusReady:   1,
		models.StatusOverdue: 2,
	}, changed)

	expected := map[*models.Device]models.DeviceStatus{
		earlierMonth:   models.StatusReady,
		pastYear:       models.StatusOverdue,
		sameMonth:      models.StatusOverdue,
		future:         models.StatusNormal,
		sent:           models.StatusSent,
		decommissioned: models.StatusDecommissioned,
		noDate:         models.StatusNormal,
		stock:          models.StatusNone,
	}
	for d, status := range expected {
		assert.Equal(t, status, env.f.Reload(d).Status, "прибор #%d", d.ID)
	}

	t.Run("Повторный пересчет ничего не меняет", func(t *testing.T) {
		changed, err := svc.RecomputeDueStatuses(ctx, time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Empty(t, changed)
	})
}

func TestStatusScheduler(t *testing.T) {
	env := newTestEnv(t)
	place := env.f.Place(env.f.Rack(env.station, models.RackField), models.PlaceCatchAll)
	d := env.f.FieldDevice(env.station, place, env.dt, "", "1", models.StatusNormal, testutils.Date(2025, 1, 1))
	svc := NewStatusService(env.db, nil, env.clock)

	t.Run("Некорректное расписание", func(t *testing.T) {
		_, err := NewStatusScheduler(svc, "каждую ночь", "UTC", nil)
		assert.Error(t, err)
	})

	t.Run("Неизвестный часовой пояс", func(t *testing.T) {
		_, err := NewStatusScheduler(svc, "0 0 3 * * *", "Марс/Олимп", nil)
		assert.Error(t, err)
	})

	t.Run("Запуск задачи пересчитывает статусы", func(t *testing.T) {
		ss, err := NewStatusScheduler(svc, "0 0 3 * * *", "UTC", nil)
		require.NoError(t, err)

		ss.run()
		assert.Equal(t, models.StatusOverdue, env.f.Reload(d).Status)

		ss.Start()
		ss.Stop()
	})
}
