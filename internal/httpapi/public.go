package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendx/internal/attendance"
	"attendx/internal/auth"
	"attendx/internal/subject"
)

const maxDeviceIDLen = 128

func (s *Server) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
		Role     string `json:"role" binding:"required,oneof=teacher student"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(req.DeviceID) > maxDeviceIDLen {
		badRequest(c, "device_id too long")
		return
	}

	tokens, err := auth.Issue(req.DeviceID, req.Role, s.Opts.Issuer, s.Opts.SigningKey, s.Opts.AccessTTL, s.Opts.RefreshTTL)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, tokens)
}

func (s *Server) refreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tokens, err := auth.Refresh(req.RefreshToken, s.Opts.Issuer, s.Opts.SigningKey, s.Opts.AccessTTL, s.Opts.RefreshTTL)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

type subjectView struct {
	subject.Subject
	Kind     string `json:"kind"`
	CardName string `json:"card_name"`
}

func (s *Server) listSubjects(c *gin.Context) {
	all := subject.All()
	out := make([]subjectView, 0, len(all))
	for _, subj := range all {
		out = append(out, subjectView{Subject: subj, Kind: subj.KindLabel(), CardName: subj.CardName()})
	}
	c.JSON(http.StatusOK, gin.H{"subjects": out})
}

func (s *Server) windowStatus(c *gin.Context) {
	now := s.Now()
	open := s.Gate.IsOpen(now)
	body := gin.H{
		"open":  open,
		"start": s.Gate.Start.String(),
		"end":   s.Gate.End.String(),
		"date":  now.Format(attendance.DateLayout),
	}
	if !open {
		body["closed_message"] = s.Gate.ClosedMessage()
	}
	c.JSON(http.StatusOK, body)
}
