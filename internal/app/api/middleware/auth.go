package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fatflowers/paysync/pkg/logctx"
	"github.com/fatflowers/paysync/pkg/response"
)

// GinRoleKey is the gin.Context key holding the authenticated role claim.
const GinRoleKey = "role"

// Claims are the bearer token claims issued by the session service.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuth validates an HS256 bearer token and stores its subject as the
// request's user id. An empty secret rejects every request. Rejections are
// logged through the request logger, falling back to log.
func JWTAuth(secret string, log *zap.SugaredLogger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return func(c *gin.Context) {
		tokenString, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || tokenString == "" || len(key) == 0 {
			unauthorized(c, "missing bearer token")
			return
		}

		claims := &Claims{}
		if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}); err != nil {
			logctx.FromGin(c, log).Warnw("jwt_rejected", "err", err)
			unauthorized(c, "invalid or expired token")
			return
		}
		if claims.Subject == "" {
			unauthorized(c, "token has no subject")
			return
		}

		c.Set(logctx.GinUserIDKey, claims.Subject)
		c.Set(GinRoleKey, claims.Role)
		ctx := logctx.WithUserID(c.Request.Context(), claims.Subject)
		if l, ok := c.Get(logctx.GinLoggerKey); ok {
			if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
				lg = lg.With("user_id", claims.Subject)
				c.Set(logctx.GinLoggerKey, lg)
				ctx = logctx.WithLogger(ctx, lg)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole allows only tokens carrying role. It must run after JWTAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(GinRoleKey) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeUnauthorized, "forbidden"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated subject set by JWTAuth.
func UserID(c *gin.Context) string {
	return c.GetString(logctx.GinUserIDKey)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, msg))
}
