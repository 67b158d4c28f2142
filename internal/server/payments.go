package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/brujulacripto/creditledger/internal/payment/domain"
	"github.com/brujulacripto/creditledger/internal/payment/receipt"
)

// ReconcilePayment is the operator path for credits confirmed outside the webhook.
func (s *Server) ReconcilePayment(c *gin.Context) {
	var req paymentdomain.ReconcilePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Provider) == "" {
		req.Provider = paymentdomain.ProviderManual
	}

	result, err := s.paymentSvc.ReconcilePayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetPaymentReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	reference := strings.TrimSpace(c.Param("reference"))

	credit, err := s.paymentSvc.GetCredit(ctx, callerID(c), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pdf, err := s.receipts.Render(ctx, receipt.FromCredit(s.receipts.AppName(), credit))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, credit.ID.String()))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
