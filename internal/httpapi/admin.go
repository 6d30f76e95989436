package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendx/internal/attendance"
	"attendx/internal/auth"
)

func (s *Server) adminGrant(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	grant, err := auth.IssueGrant(req.DeviceID, s.Opts.Issuer, s.Opts.SigningKey, s.Opts.GrantTTL)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	s.Log.Info("unrestricted grant issued",
		zap.String("device_id", req.DeviceID),
		zap.String("grant_id", grant.ID),
		zap.Time("expires_at", grant.ExpiresAt))
	c.JSON(http.StatusCreated, grant)
}

func (s *Server) adminEvents(c *gin.Context) {
	if s.Ledger == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "audit ledger not configured"})
		return
	}
	var q struct {
		DeviceID     string `form:"device_id"`
		Kind         string `form:"kind"`
		Unrestricted bool   `form:"unrestricted"`
		Limit        int    `form:"limit"`
		Offset       int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	events, err := s.Ledger.ListEvents(c.Request.Context(), attendance.EventFilter{
		DeviceID:     q.DeviceID,
		Kind:         attendance.EventKind(q.Kind),
		Unrestricted: q.Unrestricted,
		Limit:        q.Limit,
		Offset:       q.Offset,
	})
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	if events == nil {
		events = []attendance.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
