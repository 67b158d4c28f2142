package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) OpenAccount(c *gin.Context) {
	balance, err := s.accountSvc.Open(c.Request.Context(), callerID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) CloseAccount(c *gin.Context) {
	if err := s.accountSvc.Close(c.Request.Context(), callerID(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetOwnBalance(c *gin.Context) {
	balance, err := s.accountSvc.GetBalance(c.Request.Context(), callerID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

// GetAccountBalance lets an operator read any account.
func (s *Server) GetAccountBalance(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	balance, err := s.accountSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}
