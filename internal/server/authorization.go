package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/brujulacripto/creditledger/internal/authorization"
)

// authorize gates a route on the casbin policy for the caller's role.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeWithContext(c *gin.Context, object string, action string) error {
	userID := callerID(c)
	role := strings.TrimSpace(c.GetString(contextRoleKey))
	if userID == "" || role == "" {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}

	err := s.authzSvc.Authorize(c.Request.Context(), userID, role, strings.TrimSpace(object), strings.TrimSpace(action))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidRole):
		return ErrUnauthorized
	case errors.Is(err, authorization.ErrForbidden):
		return ErrForbidden
	default:
		return err
	}
}
