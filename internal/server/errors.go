package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	datasetdomain "github.com/restorehq/restore/internal/dataset/domain"
	ingestdomain "github.com/restorehq/restore/internal/ingest/domain"
	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	"github.com/restorehq/restore/internal/objectstore"
	"github.com/restorehq/restore/internal/partition"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	"github.com/restorehq/restore/internal/providers/httpx"
	"github.com/restorehq/restore/internal/tabular"
	"github.com/restorehq/restore/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
	ErrPayloadTooLarge    = errors.New("payload_too_large")
)

// validationSentinels are domain errors reported to the caller as 400s. The
// sentinel text becomes the error code.
var validationSentinels = []error{
	ErrInvalidRequest,
	ingestdomain.ErrInvalidCustomer,
	ingestdomain.ErrMissingFile,
	ingestdomain.ErrEmptyUpload,
	datasetdomain.ErrInvalidCustomer,
	partition.ErrInvalidKind,
	partition.ErrMissingColumn,
	ledgerdomain.ErrInvalidCustomer,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidIdempotencyKey,
	paymentdomain.ErrInvalidEmail,
	paymentdomain.ErrInvalidCredits,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidReceipt,
	pagination.ErrInvalidPageToken,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: err.Error(),
				},
			},
		}
	}

	var parseErr *tabular.ParseError
	var storageErr *objectstore.StorageError
	var serviceErr *httpx.ServiceError
	var reconcileErr *paymentdomain.ReconciliationError

	switch {
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, errorPayload{
			Type:    "unsupported_format",
			Message: err.Error(),
		}
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "parse_error",
			Message: parseErr.Error(),
		}
	case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credits",
			Message: "not enough credits",
		}
	case errors.Is(err, ledgerdomain.ErrAccountNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "account_not_found",
			Message: "no credit account for this customer",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "payload_too_large",
			Message: "upload exceeds the size limit",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.As(err, &reconcileErr):
		status := http.StatusServiceUnavailable
		if !reconcileErr.Retryable {
			status = http.StatusUnprocessableEntity
		}
		return status, errorPayload{
			Type:    "reconciliation_error",
			Message: reconcileErr.Error(),
		}
	case errors.As(err, &serviceErr):
		return http.StatusBadGateway, errorPayload{
			Type:    "external_service_error",
			Message: serviceErr.Error(),
		}
	case errors.As(err, &storageErr):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "storage_error",
			Message: "object storage unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrInvalidConfig):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, datasetdomain.ErrNoData),
		errors.Is(err, paymentdomain.ErrReceiptNotFound),
		errors.Is(err, objectstore.ErrObjectNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	switch {
	case code == "invalid_request":
		return "request"
	case code == "missing_file", code == "empty_upload":
		return "file"
	case code == "invalid_page_token":
		return "page_token"
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	case strings.HasPrefix(code, "missing_"):
		return strings.TrimPrefix(code, "missing_")
	default:
		return ""
	}
}
