package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// OperatorKey ключ gin.Context с subject токена оператора.
const OperatorKey = "operator"

// JWTVerifier проверяет HMAC токены операторов.
type JWTVerifier struct {
	secret []byte
	logger *zap.Logger
}

// NewJWTVerifier создает верификатор. Пустой секрет недопустим.
func NewJWTVerifier(secret string, logger *zap.Logger) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &JWTVerifier{secret: []byte(secret), logger: logger.Named("JWTVerifier")}, nil
}

// Verify проверяет подпись и срок действия токена.
func (v *JWTVerifier) Verify(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	if !token.Valid {
		return nil, errUnauthorized
	}
	return claims, nil
}

// AuthMiddleware требует заголовок Authorization: Bearer <jwt>.
// Браузерный WebSocket не умеет задавать заголовки, поэтому принимается и ?access_token=.
func AuthMiddleware(v *JWTVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" && c.Query("access_token") != "" {
			authHeader = "Bearer " + c.Query("access_token")
		}
		if authHeader == "" {
			v.logger.Warn("Authorization header missing", zap.String("path", c.Request.URL.Path))
			handleServiceError(c, errUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			v.logger.Warn("Invalid Authorization header format")
			handleServiceError(c, errUnauthorized)
			return
		}

		claims, err := v.Verify(parts[1])
		if err != nil {
			v.logger.Warn("Operator token verification failed", zap.Error(err))
			handleServiceError(c, err)
			return
		}

		c.Set(OperatorKey, claims.Subject)
		c.Next()
	}
}
