package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	"github.com/restorehq/restore/internal/observability/logger"
	paymentdomain "github.com/restorehq/restore/internal/payment/domain"
	"github.com/restorehq/restore/pkg/db/pagination"
	"go.uber.org/zap"
)

const maxWebhookBytes = 1 << 20

func (s *Server) BuyCredits(c *gin.Context) {
	var req paymentdomain.BuyCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.paymentSvc.BuyCredits(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// HandlePayMongoWebhook acknowledges settled and unpaid sessions with 200.
// Retryable failures answer non-2xx so the provider redelivers.
func (s *Server) HandlePayMongoWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, bodyError(err))
		return
	}

	ctx := c.Request.Context()
	result, err := s.paymentSvc.Reconcile(ctx, payload, c.Request.Header)
	if err != nil {
		var rerr *paymentdomain.ReconciliationError
		if errors.As(err, &rerr) && !rerr.Retryable {
			logger.FromContext(ctx).Warn("webhook ignored",
				zap.String("checkout_session_id", rerr.SessionID),
				zap.Error(rerr.Err),
			)
			c.JSON(http.StatusOK, gin.H{"data": gin.H{
				"status":     "ignored",
				"session_id": rerr.SessionID,
				"reason":     rerr.Err.Error(),
			}})
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetCustomerCredits(c *gin.Context) {
	email := ledgerdomain.NormalizeCustomerID(c.Query("email"))
	if email == "" {
		AbortWithError(c, paymentdomain.ErrInvalidEmail)
		return
	}

	balance, err := s.ledgerSvc.GetBalance(c.Request.Context(), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"email":   email,
		"credits": balance,
	}})
}

type listReceiptsQuery struct {
	pagination.Pagination
	Email string `form:"email"`
}

func (s *Server) ListReceipts(c *gin.Context) {
	var query listReceiptsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	receipts, pageInfo, err := s.paymentSvc.ListReceipts(c.Request.Context(), paymentdomain.ListReceiptsRequest{
		Email:     strings.TrimSpace(query.Email),
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      receipts,
		"page_info": pageInfo,
	})
}

func (s *Server) GetReceiptPDF(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid receipt id"))
		return
	}

	doc, err := s.paymentSvc.ReceiptPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="receipt-`+id.String()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}
