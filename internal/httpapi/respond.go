package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendx/internal/attendance"
	"attendx/internal/httpmiddleware"
)

// statusFor maps the attendance error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, attendance.ErrWindowClosed):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrUnknownSubject):
		return http.StatusNotFound
	}
	switch attendance.KindOf(err) {
	case attendance.KindValidation:
		return http.StatusBadRequest
	case attendance.KindRejected:
		return http.StatusConflict
	case attendance.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail writes err. st is included so the client can keep rendering the view
// it was on.
func (s *Server) fail(c *gin.Context, err error, st *attendance.State) {
	status := statusFor(err)
	body := gin.H{}
	if status == http.StatusInternalServerError {
		s.Log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString(httpmiddleware.RequestIDKey)),
			zap.Error(err))
		body["error"] = "internal error"
	} else {
		body["error"] = attendance.MessageOf(err)
		body["code"] = attendance.CodeOf(err)
		body["kind"] = attendance.KindOf(err).String()
	}
	if st != nil {
		body["state"] = st
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "invalid_input", "kind": "validation"})
}

func (s *Server) state(c *gin.Context, st attendance.State, err error) {
	if err != nil {
		s.fail(c, err, &st)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st})
}
