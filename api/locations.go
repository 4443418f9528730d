package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"arm_shn/models"
	"arm_shn/services"
)

// LocationAPI справочники станций, стативов, мест, типов приборов и работников
type LocationAPI struct {
	Locations *services.LocationService
}

// NewLocationAPI создает новый экземпляр LocationAPI
func NewLocationAPI(locations *services.LocationService) *LocationAPI {
	return &LocationAPI{Locations: locations}
}

// GetStations возвращает список станций
func (api *LocationAPI) GetStations(c *gin.Context) {
	stations, err := api.Locations.ListStations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stations})
}

// GetStation возвращает станцию со стативами и местами
func (api *LocationAPI) GetStation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	station, err := api.Locations.GetStation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": station})
}

// CreateAVZ создает АВЗ станции
func (api *LocationAPI) CreateAVZ(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	avz, err := api.Locations.CreateAVZ(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "АВЗ создана", "data": avz})
}

// GetAVZ возвращает АВЗ и приборы в ней
func (api *LocationAPI) GetAVZ(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	avz, devices, err := api.Locations.GetAVZ(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": avz, "devices": devices})
}

type rackRequest struct {
	StationID uint   `json:"station_id" binding:"required"`
	Number    string `json:"number" binding:"required"`
}

// CreateRack создает статив
func (api *LocationAPI) CreateRack(c *gin.Context) {
	var req rackRequest
	if !bindJSON(c, &req) {
		return
	}
	rack, err := api.Locations.CreateRack(c.Request.Context(), req.StationID, req.Number)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Статив создан", "data": rack})
}

// GetRacks возвращает стативы с фильтром по станции
func (api *LocationAPI) GetRacks(c *gin.Context) {
	stationID, ok := queryUint(c, "station_id")
	if !ok {
		return
	}
	racks, err := api.Locations.ListRacks(c.Request.Context(), stationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": racks})
}

type placeRequest struct {
	RackID uint   `json:"rack_id" binding:"required"`
	Number string `json:"number" binding:"required"`
}

// CreatePlace создает место на стативе
func (api *LocationAPI) CreatePlace(c *gin.Context) {
	var req placeRequest
	if !bindJSON(c, &req) {
		return
	}
	place, err := api.Locations.CreatePlace(c.Request.Context(), req.RackID, req.Number)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Место создано", "data": place})
}

// GetPlaces возвращает места с фильтром по стативу
func (api *LocationAPI) GetPlaces(c *gin.Context) {
	rackID, ok := queryUint(c, "rack_id")
	if !ok {
		return
	}
	places, err := api.Locations.ListPlaces(c.Request.Context(), rackID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": places})
}

// GetDeviceTypes возвращает типы приборов
func (api *LocationAPI) GetDeviceTypes(c *gin.Context) {
	types, err := api.Locations.ListDeviceTypes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": types})
}

// CreateDeviceType создает тип прибора
func (api *LocationAPI) CreateDeviceType(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	dt, err := api.Locations.CreateDeviceType(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Тип прибора создан", "data": dt})
}

// GetUsers возвращает активных работников
func (api *LocationAPI) GetUsers(c *gin.Context) {
	users, err := api.Locations.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

// CreateUser создает работника
func (api *LocationAPI) CreateUser(c *gin.Context) {
	var user models.User
	if !bindJSON(c, &user) {
		return
	}
	created, err := api.Locations.CreateUser(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Работник создан", "data": created})
}
