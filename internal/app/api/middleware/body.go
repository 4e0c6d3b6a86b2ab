package middleware

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/paysync/pkg/response"
)

// BodyPolicy declares how a route consumes its request body.
type BodyPolicy int

const (
	// BodyNone routes ignore the body.
	BodyNone BodyPolicy = iota
	// BodyRaw routes receive the exact bytes sent, unparsed.
	BodyRaw
	// BodyJSON routes bind a JSON document.
	BodyJSON
)

func (p BodyPolicy) String() string {
	switch p {
	case BodyRaw:
		return "raw"
	case BodyJSON:
		return "json"
	default:
		return "none"
	}
}

// GinRawBodyKey is the gin.Context key holding the raw request body.
const GinRawBodyKey = "raw_body"

const defaultMaxBodyBytes int64 = 64 << 10

// ForBody returns the middleware enforcing policy p.
func ForBody(p BodyPolicy, maxBytes int64) []gin.HandlerFunc {
	switch p {
	case BodyRaw:
		return []gin.HandlerFunc{RawBody(maxBytes)}
	case BodyJSON:
		return []gin.HandlerFunc{RequireJSON()}
	default:
		return nil
	}
}

// RawBody reads up to maxBytes of the request body and stores the exact bytes
// under GinRawBodyKey. Larger bodies are rejected with 413.
func RawBody(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, response.ErrorT[any](response.APIResponseCodeBadRequest, "request body too large"))
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "failed to read request body"))
			return
		}
		c.Set(GinRawBodyKey, body)
		c.Next()
	}
}

// RawBodyFrom returns the bytes stored by RawBody.
func RawBodyFrom(c *gin.Context) []byte {
	v, ok := c.Get(GinRawBodyKey)
	if !ok {
		return nil
	}
	b, _ := v.([]byte)
	return b
}

// RequireJSON rejects requests whose content type is not application/json.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, response.ErrorT[any](response.APIResponseCodeBadRequest, "content type must be application/json"))
			return
		}
		c.Next()
	}
}
