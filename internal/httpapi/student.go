package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendx/internal/attendance"
	"attendx/internal/auth"
)

func (s *Server) studentSession(c *gin.Context) *attendance.Session {
	return s.session(c, attendance.RoleStudent)
}

// bootStudent reloads the saved profile into a fresh session, as happens on
// the first request after a restart or prune. False means a response was sent.
func (s *Server) bootStudent(c *gin.Context, sess *attendance.Session) bool {
	if _, ok := sess.Student(); ok {
		return true
	}
	if _, err := s.Student.Boot(c.Request.Context(), sess); err != nil {
		s.fail(c, err, nil)
		return false
	}
	return true
}

func (s *Server) studentState(c *gin.Context) {
	st, err := s.Student.Boot(c.Request.Context(), s.studentSession(c))
	s.state(c, st, err)
}

func (s *Server) studentRegister(c *gin.Context) {
	var req struct {
		FullName string `json:"full_name"`
		RollNo   string `json:"roll_no"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	st, err := s.Student.Register(c.Request.Context(), s.studentSession(c), req.FullName, req.RollNo)
	s.state(c, st, err)
}

func (s *Server) studentDashboard(c *gin.Context) {
	sess := s.studentSession(c)
	if !s.bootStudent(c, sess) {
		return
	}
	db, err := s.Student.Dashboard(c.Request.Context(), sess)
	if err != nil {
		st := sess.Snapshot()
		s.fail(c, err, &st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dashboard": db, "state": sess.Snapshot()})
}

func (s *Server) studentSelect(c *gin.Context) {
	sess := s.studentSession(c)
	if !s.bootStudent(c, sess) {
		return
	}
	st, err := s.Student.SelectSubject(c.Request.Context(), sess, c.Param("id"))
	s.state(c, st, err)
}

func (s *Server) studentSubmit(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess := s.studentSession(c)
	if !s.bootStudent(c, sess) {
		return
	}
	st, err := s.Student.Submit(c.Request.Context(), sess, req.Code)
	s.state(c, st, err)
}

func (s *Server) studentClose(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": s.Student.CloseSheet(s.studentSession(c))})
}

func (s *Server) studentUnrestricted(c *gin.Context) {
	var req struct {
		Grant string `json:"grant" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess := s.studentSession(c)
	grant, err := auth.ParseGrant(req.Grant, s.Opts.SigningKey, s.Opts.Issuer)
	if err != nil {
		msg := "invalid grant"
		if errors.Is(err, auth.ErrWrongType) {
			msg = "token is not an unrestricted grant"
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msg})
		return
	}
	if grant.Subject != sess.DeviceID() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "grant was issued for another device"})
		return
	}
	var expires time.Time
	if grant.ExpiresAt != nil {
		expires = grant.ExpiresAt.Time
	}
	st, err := s.Student.EnableUnrestricted(c.Request.Context(), sess, grant.ID, expires)
	s.state(c, st, err)
}
