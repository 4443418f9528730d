package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm_shn/config"
	"arm_shn/middleware"
	"arm_shn/models"
	"arm_shn/services"
	"arm_shn/testutils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiEnv struct {
	router  *gin.Engine
	f       *testutils.Fixture
	user    *models.User
	station *models.Station
	dt      *models.DeviceType
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db := testutils.SetupTestDB(t)
	f := testutils.NewFixture(t, db)
	clock := services.Clock(testutils.FixedClock(2026, time.March, 15))

	svc := Services{
		Locations:  services.NewLocationService(db),
		Devices:    services.NewDeviceService(db, nil, clock),
		Kip:        services.NewKipService(db, nil, clock, nil),
		Mechanic:   services.NewMechanicService(db, nil, clock, nil, nil),
		Status:     services.NewStatusService(db, nil, clock),
		Statistics: services.NewStatisticsService(db, nil, clock),
	}

	r := gin.New()
	RegisterRoutes(r, svc, RouterOptions{
		DB:       db,
		Auth:     middleware.NewAuth(config.JWTConfig{}, true),
		Security: config.SecurityConfig{RateLimitRequests: 100, RateLimitWindow: time.Minute},
	})

	return &apiEnv{
		router:  r,
		f:       f,
		user:    f.User("ivanov"),
		station: f.Station("БТ"),
		dt:      f.DeviceType("НМШ"),
	}
}

type response struct {
	Code int
	Body map[string]interface{}
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}) response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, strconv.FormatUint(uint64(e.user.ID), 10))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed), w.Body.String())
	return response{Code: w.Code, Body: parsed}
}

func dataID(t *testing.T, r response) uint {
	t.Helper()
	data, ok := r.Body["data"].(map[string]interface{})
	require.True(t, ok, "нет data в ответе: %v", r.Body)
	return uint(data["id"].(float64))
}

func TestPing(t *testing.T) {
	env := newAPIEnv(t)
	r := env.do(t, http.MethodGet, "/ping", nil)

	assert.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "pong", r.Body["message"])
	assert.Equal(t, "ok", r.Body["database"])
	assert.Equal(t, "disabled", r.Body["redis"])
}

func TestDevicesAPI(t *testing.T) {
	env := newAPIEnv(t)

	t.Run("Создание прибора на склад", func(t *testing.T) {
		r := env.do(t, http.MethodPost, "/api/devices", gin.H{
			"in_stock":           true,
			"device_type_id":     env.dt.ID,
			"contact_type":       string(models.Contact),
			"inventory_number":   "500",
			"frequency_of_check": 2,
			"current_check_date": "2025-03-15T00:00:00Z",
		})
		require.Equal(t, http.StatusCreated, r.Code, r.Body)

		id := dataID(t, r)
		got := env.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%d", id), nil)
		assert.Equal(t, http.StatusOK, got.Code)

		history := env.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%d/history", id), nil)
		assert.Equal(t, http.StatusOK, history.Code)
		assert.Len(t, history.Body["data"], 1)
	})

	t.Run("Нарушения согласованности", func(t *testing.T) {
		r := env.do(t, http.MethodPost, "/api/devices", gin.H{"contact_type": string(models.Contactless)})
		require.Equal(t, http.StatusUnprocessableEntity, r.Code)

		violations, ok := r.Body["violations"].([]interface{})
		require.True(t, ok)
		fields := make([]interface{}, 0, len(violations))
		for _, v := range violations {
			fields = append(fields, v.(map[string]interface{})["field"])
		}
		assert.Contains(t, fields, "location")
	})

	t.Run("Список с фильтрами", func(t *testing.T) {
		r := env.do(t, http.MethodGet, "/api/devices?in_stock=true", nil)
		require.Equal(t, http.StatusOK, r.Code)
		pagination := r.Body["pagination"].(map[string]interface{})
		assert.Equal(t, float64(1), pagination["total"])

		assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodGet, "/api/devices?due_month=13", nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/devices?in_stock=maybe", nil).Code)
	})

	t.Run("Несуществующий прибор", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/devices/999", nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/devices/999/stock", nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/devices/abc", nil).Code)
	})
}

func TestLocationsAPI(t *testing.T) {
	env := newAPIEnv(t)

	stations := env.do(t, http.MethodGet, "/api/stations", nil)
	require.Equal(t, http.StatusOK, stations.Code)
	assert.NotEmpty(t, stations.Body["data"])

	rack := env.do(t, http.MethodPost, "/api/racks", gin.H{"station_id": env.station.ID, "number": "12"})
	require.Equal(t, http.StatusCreated, rack.Code, rack.Body)
	duplicate := env.do(t, http.MethodPost, "/api/racks", gin.H{"station_id": env.station.ID, "number": "12"})
	assert.Equal(t, http.StatusUnprocessableEntity, duplicate.Code)

	place := env.do(t, http.MethodPost, "/api/places", gin.H{"rack_id": dataID(t, rack), "number": "34"})
	require.Equal(t, http.StatusCreated, place.Code, place.Body)

	places := env.do(t, http.MethodGet, fmt.Sprintf("/api/places?rack_id=%d", dataID(t, rack)), nil)
	assert.Len(t, places.Body["data"], 1)

	avzPath := fmt.Sprintf("/api/stations/%d/avz", env.station.ID)
	avz := env.do(t, http.MethodPost, avzPath, nil)
	require.Equal(t, http.StatusCreated, avz.Code, avz.Body)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, avzPath, nil).Code)

	got := env.do(t, http.MethodGet, fmt.Sprintf("/api/avz/%d", dataID(t, avz)), nil)
	assert.Equal(t, http.StatusOK, got.Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/racks", gin.H{"number": "1"}).Code)
	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/device-types", gin.H{"name": "АНШ"}).Code)
	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/users", gin.H{"username": "petrov"}).Code)
}

func TestKipAndMechanicReportsAPI(t *testing.T) {
	env := newAPIEnv(t)
	env.f.Place(env.f.Rack(env.station, "12"), "34")
	device := env.f.StockDevice(env.dt, models.Contact, "D1")

	kip := env.do(t, http.MethodPost, "/api/kip-reports", gin.H{"title": "КИП"})
	require.Equal(t, http.StatusCreated, kip.Code, kip.Body)
	kipID := dataID(t, kip)

	lines := env.do(t, http.MethodPost, fmt.Sprintf("/api/kip-reports/%d/lines", kipID), gin.H{
		"lines": []gin.H{{
			"device_id":        device.ID,
			"station_id":       env.station.ID,
			"mounting_address": "12-34",
		}},
	})
	require.Equal(t, http.StatusCreated, lines.Code, lines.Body)

	dispatchPath := fmt.Sprintf("/api/kip-reports/%d/dispatch", kipID)
	dispatched := env.do(t, http.MethodPost, dispatchPath, nil)
	require.Equal(t, http.StatusOK, dispatched.Code, dispatched.Body)

	reports := dispatched.Body["mechanic_reports"].(map[string]interface{})
	reportID := uint(reports[strconv.FormatUint(uint64(env.station.ID), 10)].(float64))
	require.NotZero(t, reportID)

	t.Run("Повторная отправка", func(t *testing.T) {
		assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, dispatchPath, nil).Code)
	})

	t.Run("Установка прибора", func(t *testing.T) {
		installPath := fmt.Sprintf("/api/mechanic-reports/%d/devices/%d/install", reportID, device.ID)
		r := env.do(t, http.MethodPost, installPath, nil)
		require.Equal(t, http.StatusOK, r.Code)
		assert.Equal(t, true, r.Body["success"], r.Body["message"])

		again := env.do(t, http.MethodPost, installPath, nil)
		assert.Equal(t, http.StatusOK, again.Code)
		assert.Equal(t, false, again.Body["success"])

		report := env.do(t, http.MethodGet, fmt.Sprintf("/api/mechanic-reports/%d", reportID), nil)
		require.Equal(t, http.StatusOK, report.Code)
		assert.Equal(t, []interface{}{float64(device.ID)}, report.Body["consumed_device_ids"])
	})

	t.Run("Комментарии и закрытие", func(t *testing.T) {
		commentsPath := fmt.Sprintf("/api/mechanic-reports/%d/comments", reportID)
		assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, commentsPath, gin.H{"text": "Установлено"}).Code)
		assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, commentsPath, gin.H{"text": ""}).Code)

		closePath := fmt.Sprintf("/api/mechanic-reports/%d/close", reportID)
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, closePath, nil).Code)
		assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, closePath, nil).Code)
	})

	t.Run("Списки отчетов", func(t *testing.T) {
		list := env.do(t, http.MethodGet, "/api/mechanic-reports?closed=true", nil)
		require.Equal(t, http.StatusOK, list.Code)
		assert.Len(t, list.Body["data"], 1)

		kips := env.do(t, http.MethodGet, "/api/kip-reports?editable=false", nil)
		require.Equal(t, http.StatusOK, kips.Code)
		assert.Len(t, kips.Body["data"], 1)
	})

	t.Run("Действие в закрытом отчете", func(t *testing.T) {
		r := env.do(t, http.MethodPost, fmt.Sprintf("/api/mechanic-reports/%d/devices/%d/swap", reportID, device.ID), nil)
		assert.Equal(t, http.StatusConflict, r.Code)
	})
}

func TestKipCrateAPI(t *testing.T) {
	env := newAPIEnv(t)
	d1 := env.f.StockDevice(env.dt, models.Contact, "D1")
	d2 := env.f.StockDevice(env.dt, models.Contact, "D2")

	r := env.do(t, http.MethodPost, "/api/kip-reports/crate", gin.H{"device_ids": []uint{d1.ID, d2.ID}})
	require.Equal(t, http.StatusOK, r.Code, r.Body)
	assert.Equal(t, float64(2), r.Body["added"])

	kipID := dataID(t, r)
	dispatch := env.do(t, http.MethodPost, fmt.Sprintf("/api/kip-reports/%d/dispatch", kipID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, dispatch.Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/kip-reports/crate", gin.H{"device_ids": []uint{}}).Code)
}

func TestStatisticsAndMaintenanceAPI(t *testing.T) {
	env := newAPIEnv(t)
	place := env.f.Place(env.f.Rack(env.station, "12"), "34")
	env.f.FieldDevice(env.station, place, env.dt, "1СП", "100", models.StatusNormal, testutils.Date(2026, 3, 1))

	recompute := env.do(t, http.MethodPost, "/api/maintenance/recompute-statuses", nil)
	require.Equal(t, http.StatusOK, recompute.Code)
	changed := recompute.Body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), changed[string(models.StatusOverdue)])

	stats := env.do(t, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, stats.Code)
	data := stats.Body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total_devices"])
}
