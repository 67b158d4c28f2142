package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/brujulacripto/creditledger/internal/usage/domain"
)

type usageActionRequest struct {
	ServiceKind      string `json:"service_kind"`
	ActionKind       string `json:"action_kind"`
	SecondsRequested int64  `json:"seconds_requested"`
	SessionID        string `json:"session_id"`
}

func (s *Server) ApplyUsageAction(c *gin.Context) {
	var req usageActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	serviceKind, err := usagedomain.ParseServiceKind(req.ServiceKind)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	actionKind, err := usagedomain.ParseActionKind(req.ActionKind)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("usage_action", actionKind.String())

	result, err := s.usageSvc.ApplyUsageAction(c.Request.Context(), usagedomain.ApplyUsageActionRequest{
		UserID:           callerID(c),
		ServiceKind:      serviceKind,
		ActionKind:       actionKind,
		SecondsRequested: req.SecondsRequested,
		SessionID:        strings.TrimSpace(req.SessionID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetUsageSession(c *gin.Context) {
	session, err := s.usageSvc.GetSession(c.Request.Context(), callerID(c), strings.TrimSpace(c.Param("sessionId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) ListUsageEvents(c *gin.Context) {
	pageSize, err := parseOptionalInt(c.Query("page_size"))
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be an integer"))
		return
	}

	resp, err := s.usageSvc.ListEvents(c.Request.Context(), usagedomain.ListEventsRequest{
		UserID:    callerID(c),
		SessionID: strings.TrimSpace(c.Query("session_id")),
		PageToken: strings.TrimSpace(c.Query("page_token")),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Events,
		"page_info": resp.PageInfo,
	})
}
