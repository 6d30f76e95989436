package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"attendx/internal/attendance"
	"attendx/internal/render"
)

func (s *Server) teacherSession(c *gin.Context) *attendance.Session {
	return s.session(c, attendance.RoleTeacher)
}

func (s *Server) teacherState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": s.Teacher.Boot(s.teacherSession(c))})
}

func (s *Server) teacherSelect(c *gin.Context) {
	st, err := s.Teacher.SelectSubject(s.teacherSession(c), c.Param("id"))
	s.state(c, st, err)
}

func (s *Server) teacherRefresh(c *gin.Context) {
	st, err := s.Teacher.RefreshCode(s.teacherSession(c))
	s.state(c, st, err)
}

func (s *Server) teacherCode(c *gin.Context) {
	sess := s.teacherSession(c)
	if _, ok := sess.ActiveSubject(); !ok {
		st := sess.Snapshot()
		s.fail(c, attendance.ErrNoSubject, &st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": sess.Snapshot()})
}

func (s *Server) teacherCodePNG(c *gin.Context) {
	code := s.teacherSession(c).CurrentCode()
	if code == "" {
		s.fail(c, attendance.ErrNoSubject, nil)
		return
	}
	png, err := render.CodePNG(code, 0)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) teacherStart(c *gin.Context) {
	st, err := s.Teacher.StartAttendance(c.Request.Context(), s.teacherSession(c))
	s.state(c, st, err)
}

func (s *Server) teacherClose(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": s.Teacher.CloseSheet(s.teacherSession(c))})
}

func (s *Server) teacherAttendance(c *gin.Context) {
	sess := s.teacherSession(c)
	date := strings.TrimSpace(c.Query("date"))
	records, err := s.Teacher.CheckAttendance(c.Request.Context(), sess, date)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	subj, _ := sess.ActiveSubject()
	c.JSON(http.StatusOK, gin.H{
		"subject": subj.Name,
		"date":    date,
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) teacherAttendanceXLSX(c *gin.Context) {
	sess := s.teacherSession(c)
	date := strings.TrimSpace(c.Query("date"))
	records, err := s.Teacher.CheckAttendance(c.Request.Context(), sess, date)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	subj, _ := sess.ActiveSubject()
	data, name, err := render.AttendanceXLSX(subj.Name, date, records)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
