package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fatflowers/paysync/pkg/logctx"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims *Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(sub string) *Claims {
	return &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}}
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(zap.NewNop().Sugar()))
	r.POST("/x", append(mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":  UserID(c),
			"ctx":   logctx.UserID(c.Request.Context()),
			"bytes": string(RawBodyFrom(c)),
		})
	})...)
	return r
}

func do(r http.Handler, body, contentType, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRawBody_KeepsExactBytes(t *testing.T) {
	r := newEngine(ForBody(BodyRaw, 1024)...)
	payload := `{"b": 1,  "a":2}`
	w := do(r, payload, "application/json; charset=utf-8", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"bytes":"{\"b\": 1,  \"a\":2}"`)
}

func TestRawBody_RejectsOversizedBody(t *testing.T) {
	r := newEngine(RawBody(8))
	w := do(r, strings.Repeat("x", 9), "", "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRequireJSON(t *testing.T) {
	r := newEngine(ForBody(BodyJSON, 0)...)
	assert.Equal(t, http.StatusUnsupportedMediaType, do(r, "a=b", "application/x-www-form-urlencoded", "").Code)
	assert.Equal(t, http.StatusOK, do(r, "{}", "application/json; charset=utf-8", "").Code)
	assert.Nil(t, ForBody(BodyNone, 0))
}

func TestJWTAuth(t *testing.T) {
	r := newEngine(JWTAuth(testSecret, nil))

	t.Run("valid token sets user id", func(t *testing.T) {
		tok := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("u1"))
		w := do(r, "", "", "Bearer "+tok)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user":"u1"`)
		assert.Contains(t, w.Body.String(), `"ctx":"u1"`)
	})

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"wrong secret":   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("u1")),
		"wrong method":   "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("u1")),
		"no subject":     "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("")),
		"expired": "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}),
		"no expiry": "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, do(r, "", "", header).Code)
		})
	}
}

func TestJWTAuth_EmptySecretRejects(t *testing.T) {
	r := newEngine(JWTAuth("", nil))
	tok := signToken(t, jwt.SigningMethodHS256, []byte("anything"), validClaims("u1"))
	assert.Equal(t, http.StatusUnauthorized, do(r, "", "", "Bearer "+tok).Code)
}

func TestJWTAuth_LogsRejectionWithoutRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/x", JWTAuth(testSecret, zap.New(core).Sugar()), func(c *gin.Context) { c.Status(http.StatusOK) })

	tok := signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("u1"))
	require.Equal(t, http.StatusUnauthorized, do(r, "", "", "Bearer "+tok).Code)
	require.Equal(t, 1, logs.FilterMessage("jwt_rejected").Len())
}

func TestRequireRole(t *testing.T) {
	r := newEngine(JWTAuth(testSecret, nil), RequireRole("admin"))

	user := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("u1"))
	assert.Equal(t, http.StatusForbidden, do(r, "", "", "Bearer "+user).Code)

	c := validClaims("ops")
	c.Role = "admin"
	admin := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c)
	assert.Equal(t, http.StatusOK, do(r, "", "", "Bearer "+admin).Code)
}

func TestTraceAndAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(zap.New(core).Sugar()), AccessLogMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", bytes.NewReader(nil))
	req.Header.Set("X-Request-ID", "trace-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-42", w.Header().Get("X-Request-ID"))
	entries := logs.FilterMessage("http_access").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "trace-42", fields["trace_id"])
	assert.Equal(t, "/ping", fields["path"])
	assert.EqualValues(t, http.StatusNoContent, fields["status"])
}
