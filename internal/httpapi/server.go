package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"attendx/internal/attendance"
	"attendx/internal/auth"
	"attendx/internal/httpmiddleware"
	"attendx/internal/window"
)

// Options are the transport-level settings.
type Options struct {
	Issuer          string
	SigningKey      string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	GrantTTL        time.Duration
	AdminKey        string
	CORSOrigins     []string
	RateLimitPerMin int
}

// EventLister reads the audit ledger.
type EventLister interface {
	ListEvents(ctx context.Context, f attendance.EventFilter) ([]attendance.Event, error)
}

// Server holds what the handlers need.
type Server struct {
	Opts     Options
	Registry *attendance.Registry
	Teacher  *attendance.Teacher
	Student  *attendance.Student
	Gate     window.Gate
	Now      func() time.Time
	Ledger   EventLister
	Checks   map[string]func(context.Context) bool
	Limiter  *httpmiddleware.TokenBucket
	Log      *zap.Logger
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Log == nil {
		s.Log = zap.NewNop()
	}

	r := gin.New()
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Recovery(s.Log))
	r.Use(httpmiddleware.Logger(s.Log))
	r.Use(cors.New(corsConfig(s.Opts.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	if s.Limiter != nil {
		r.Use(s.Limiter.GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/devices/register", s.registerDevice)
	v1.POST("/devices/refresh", s.refreshDevice)
	v1.GET("/subjects", s.listSubjects)
	v1.GET("/window", s.windowStatus)

	device := auth.DeviceAuth(s.Opts.SigningKey, s.Opts.Issuer)

	teacher := v1.Group("/teacher", device, auth.RequireRole(auth.RoleTeacher))
	teacher.GET("/state", s.teacherState)
	teacher.POST("/subjects/:id", s.teacherSelect)
	teacher.POST("/code/refresh", s.teacherRefresh)
	teacher.GET("/code", s.teacherCode)
	teacher.GET("/code.png", s.teacherCodePNG)
	teacher.POST("/lectures", s.teacherStart)
	teacher.DELETE("/sheet", s.teacherClose)
	teacher.GET("/attendance", s.teacherAttendance)
	teacher.GET("/attendance.xlsx", s.teacherAttendanceXLSX)

	student := v1.Group("/student", device, auth.RequireRole(auth.RoleStudent))
	student.GET("/state", s.studentState)
	student.POST("/register", s.studentRegister)
	student.GET("/dashboard", s.studentDashboard)
	student.POST("/subjects/:id", s.studentSelect)
	student.POST("/submit", s.studentSubmit)
	student.DELETE("/sheet", s.studentClose)
	student.POST("/unrestricted", s.studentUnrestricted)

	admin := v1.Group("/admin", auth.AdminKey(s.Opts.AdminKey))
	admin.POST("/grants", s.adminGrant)
	admin.GET("/events", s.adminEvents)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Admin-Key", "X-Request-ID"}
	cfg.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	cfg.MaxAge = 12 * time.Hour
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// session returns the caller's session for role.
func (s *Server) session(c *gin.Context, role attendance.Role) *attendance.Session {
	claims, _ := auth.ClaimsFrom(c)
	return s.Registry.Get(claims.Subject, role)
}
