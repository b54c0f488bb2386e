package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	contextRequestIDKey  = "request_id"
	contextUploadKindKey = "upload_kind"
)

// LimitBody caps the request body. Reads past the limit fail with a
// *http.MaxBytesError.
func LimitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// requestKey prefers a caller supplied idempotency key over the generated request id.
func requestKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); key != "" {
		return key
	}
	return strings.TrimSpace(c.GetString(contextRequestIDKey))
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ErrPayloadTooLarge
	}
	return invalidRequestError()
}
