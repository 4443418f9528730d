package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arm_shn/middleware"
	"arm_shn/services"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

// GetUserID возвращает работника запроса или nil для анонимного запроса
func GetUserID(c *gin.Context) *uint {
	return middleware.CurrentUserID(c)
}

// parseID читает числовой параметр пути
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный идентификатор " + name})
		return 0, false
	}
	return uint(id), true
}

// queryUint читает необязательный числовой параметр запроса
func queryUint(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный параметр " + name})
		return nil, false
	}
	id := uint(v)
	return &id, true
}

// queryBool читает необязательный логический параметр запроса
func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный параметр " + name})
		return nil, false
	}
	return &v, true
}

// pagination страница и размер страницы из параметров запроса
type pagination struct {
	Page  int
	Limit int
}

func (p pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

func (p pagination) response(total int64) gin.H {
	return gin.H{
		"page":  p.Page,
		"limit": p.Limit,
		"total": total,
		"pages": (total + int64(p.Limit) - 1) / int64(p.Limit),
	}
}

func parsePagination(c *gin.Context) pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return pagination{Page: page, Limit: limit}
}

// bindJSON разбирает тело запроса, отвечая 400 при ошибке
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return false
	}
	return true
}

// respondError переводит ошибку сервиса в HTTP ответ
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      ve.Error(),
			"violations": ve.Violations,
		})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrIntegrity), errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Внутренняя ошибка сервера"})
	}
}
