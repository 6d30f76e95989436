package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"attendx/internal/lecture"
	"attendx/internal/profile"
	"attendx/internal/sheets"
	"attendx/internal/window"
)

// DateLayout is the calendar date format the spreadsheet expects.
const DateLayout = "2006-01-02"

// Remote is the spreadsheet endpoint as the controllers see it.
type Remote interface {
	StartLecture(ctx context.Context, l sheets.Lecture) sheets.Result
	MarkStudentAttendance(ctx context.Context, m sheets.Mark) sheets.Result
	GetAttendance(ctx context.Context, date, subject string) (sheets.LectureList, error)
	GetStudentAttendance(ctx context.Context, date, subject string) ([]sheets.StudentRecord, error)
}

// ProfileStore persists the one profile registered on a device.
type ProfileStore interface {
	LoadProfile(ctx context.Context, deviceID string) (*profile.Profile, error)
	SaveProfile(ctx context.Context, deviceID string, p profile.Profile) error
}

// MarkCache is the advisory per-device submission flag set.
type MarkCache interface {
	IsMarked(ctx context.Context, deviceID, subjectName, date string) (bool, error)
	SetMarked(ctx context.Context, deviceID, subjectName, date string) error
}

// Deps wires the controllers. Remote, Profiles and Marks are required; the
// rest fall back to production defaults.
type Deps struct {
	Remote    Remote
	Profiles  ProfileStore
	Marks     MarkCache
	Generator *lecture.Generator
	Gate      window.Gate
	Checker   lecture.Checker
	Audit     Publisher
	Now       func() time.Time
	Log       *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Generator == nil {
		d.Generator = lecture.NewGenerator(nil)
	}
	if d.Gate == (window.Gate{}) {
		d.Gate = window.DefaultGate
	}
	if d.Checker.Validity <= 0 {
		d.Checker = lecture.NewChecker(0)
	}
	if d.Audit == nil {
		d.Audit = NopPublisher{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return d
}

func (d Deps) today() string { return d.Now().Format(DateLayout) }

// publish sends an audit event without letting a slow or missing consumer
// hold up the request that caused it.
func (d Deps) publish(ctx context.Context, evt Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.Audit.Publish(ctx, evt); err != nil {
		recordAudit(evt.Kind, "dropped")
		d.Log.Warn("audit publish failed",
			zap.String("kind", string(evt.Kind)),
			zap.String("device_id", evt.DeviceID),
			zap.Error(err))
		return
	}
	recordAudit(evt.Kind, "published")
}
