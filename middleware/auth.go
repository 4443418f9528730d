package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"arm_shn/config"
)

const (
	// UserIDKey ключ контекста gin с идентификатором работника
	UserIDKey = "user_id"
	// UserIDHeader заголовок с идентификатором работника для внутренних клиентов
	UserIDHeader = "X-User-ID"
)

var ErrInvalidToken = errors.New("недействительный токен")

// Claims утверждения токена работника
type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// Auth определяет работника, выполняющего запрос
type Auth struct {
	secret      []byte
	issuer      string
	allowHeader bool
}

// NewAuth создает Auth. allowHeader разрешает передавать работника заголовком X-User-ID.
func NewAuth(cfg config.JWTConfig, allowHeader bool) *Auth {
	return &Auth{secret: []byte(cfg.Secret), issuer: cfg.Issuer, allowHeader: allowHeader}
}

// GenerateToken выпускает токен работника
func (a *Auth) GenerateToken(userID uint, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("не задан секрет JWT")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken проверяет подпись и срок токена
func (a *Auth) ParseToken(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, fmt.Errorf("не задан секрет JWT: %w", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Identify определяет работника по токену или заголовку X-User-ID.
// Запрос без идентификации пропускается анонимно.
func (a *Auth) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := extractToken(c); tokenString != "" {
			claims, err := a.ParseToken(tokenString)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Недействительный токен"})
				c.Abort()
				return
			}
			c.Set(UserIDKey, claims.UserID)
			c.Next()
			return
		}

		if header := c.GetHeader(UserIDHeader); header != "" && a.allowHeader {
			id, err := strconv.ParseUint(header, 10, 64)
			if err != nil || id == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный заголовок " + UserIDHeader})
				c.Abort()
				return
			}
			c.Set(UserIDKey, uint(id))
		}
		c.Next()
	}
}

// RequireUser отклоняет анонимные запросы
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Требуется идентификация работника"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUserID возвращает работника запроса или nil
func CurrentUserID(c *gin.Context) *uint {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		return nil
	}
	return &id
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(authHeader, "Bearer "):
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	case strings.HasPrefix(authHeader, "Token "):
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Token "))
	}
	return ""
}
