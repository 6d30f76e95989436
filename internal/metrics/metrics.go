package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CodesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendx_codes_generated_total",
		Help: "Lecture codes issued by teacher panels.",
	}, []string{"subject"})

	LecturesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendx_lectures_started_total",
		Help: "startLecture writes by outcome.",
	}, []string{"result"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendx_submissions_total",
		Help: "Student submission attempts by outcome.",
	}, []string{"result"})

	WindowOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attendx_window_open",
		Help: "1 while the daily attendance window is open.",
	})

	AuditEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendx_audit_events_total",
		Help: "Audit events by kind and delivery result.",
	}, []string{"kind", "result"})
)

// SetWindow records the window state.
func SetWindow(open bool) {
	if open {
		WindowOpen.Set(1)
		return
	}
	WindowOpen.Set(0)
}
