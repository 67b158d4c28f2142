package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/brujulacripto/creditledger/internal/checkout/domain"
)

type checkoutRequest struct {
	Hours int64 `json:"hours"`
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.checkoutSvc.CreateCheckoutSession(c.Request.Context(), checkoutdomain.CreateCheckoutRequest{
		UserID:         callerID(c),
		Hours:          req.Hours,
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": session})
}
