package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"attendx/internal/lecture"
	"attendx/internal/metrics"
	"attendx/internal/sheets"
	"attendx/internal/subject"
)

// Teacher drives the teacher panel: pick a subject, show a code, start the
// lecture on the sheet and look up who marked.
type Teacher struct {
	d Deps
}

func NewTeacher(d Deps) *Teacher {
	return &Teacher{d: d.withDefaults()}
}

// Boot moves a fresh session past the splash to the card grid.
func (t *Teacher) Boot(sess *Session) State {
	sess.mu.Lock()
	if sess.view == ViewSplash {
		sess.view = ViewCards
	}
	sess.mu.Unlock()
	return sess.Snapshot()
}

// SelectSubject opens the sheet for id with a freshly generated code.
func (t *Teacher) SelectSubject(sess *Session, id string) (State, error) {
	subj, ok := subject.ByID(id)
	if !ok {
		return sess.Snapshot(), ErrUnknownSubject
	}
	code := t.d.Generator.Generate(subj)
	metrics.CodesGenerated.WithLabelValues(subj.ID).Inc()

	sess.mu.Lock()
	sess.view = ViewCards
	sess.active = &subj
	sess.currentCode = code
	sess.codeIssuedAt = t.d.Now()
	sess.sheetOpen = true
	sess.notice = ""
	sess.mu.Unlock()
	return sess.Snapshot(), nil
}

// RefreshCode replaces the displayed code. The new code may equal the old one.
func (t *Teacher) RefreshCode(sess *Session) (State, error) {
	subj, ok := sess.ActiveSubject()
	if !ok {
		return sess.Snapshot(), ErrNoSubject
	}
	code := t.d.Generator.Generate(subj)
	metrics.CodesGenerated.WithLabelValues(subj.ID).Inc()

	sess.mu.Lock()
	sess.currentCode = code
	sess.codeIssuedAt = t.d.Now()
	sess.mu.Unlock()
	return sess.Snapshot(), nil
}

// StartAttendance writes the displayed code to the lecture sheet. On success
// the sheet closes.
func (t *Teacher) StartAttendance(ctx context.Context, sess *Session) (State, error) {
	if !sess.acquire("start") {
		return sess.Snapshot(), ErrBusy
	}
	defer sess.release("start")

	sess.mu.Lock()
	if sess.active == nil || sess.currentCode == "" {
		sess.mu.Unlock()
		return sess.Snapshot(), ErrNoSubject
	}
	subj, code := *sess.active, sess.currentCode
	sess.mu.Unlock()

	now := t.d.Now()
	lec := sheets.Lecture{
		Date:        now.Format(DateLayout),
		Subject:     subj.Name,
		Code:        code,
		CreatedTime: lecture.FormatCreatedTime(now),
		CreatedAt:   now.Format(time.RFC3339),
	}
	res := t.d.Remote.StartLecture(ctx, lec)
	metrics.LecturesStarted.WithLabelValues(res.Status.String()).Inc()

	evt := newEvent(EventLectureStarted, sess.DeviceID(), now)
	evt.Subject, evt.Date, evt.Code, evt.Outcome = subj.Name, lec.Date, code, res.Status.String()
	t.d.publish(ctx, evt)

	switch res.Status {
	case sheets.StatusOK:
		sess.mu.Lock()
		if sess.currentCode == code {
			sess.sheetOpen = false
		}
		sess.notice = "Attendance started! Code saved."
		sess.mu.Unlock()
		t.d.Log.Info("lecture started",
			zap.String("device_id", sess.DeviceID()),
			zap.String("subject", subj.Name),
			zap.String("code", code))
		return sess.Snapshot(), nil
	case sheets.StatusRejected:
		return sess.Snapshot(), newError(ErrRejected, rejectionMessage(res.Reason), nil)
	default:
		t.d.Log.Warn("start lecture failed", zap.String("subject", subj.Name), zap.Error(res.Err))
		return sess.Snapshot(), newError(ErrUnavailable, "Failed to save. Check connection.", res.Err)
	}
}

// CheckAttendance lists the students marked for the active subject on date.
func (t *Teacher) CheckAttendance(ctx context.Context, sess *Session, date string) ([]sheets.StudentRecord, error) {
	subj, ok := sess.ActiveSubject()
	if !ok {
		return nil, ErrNoSubject
	}
	if date == "" {
		return nil, ErrDateRequired
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, newError(ErrInvalidInput, "Date must be YYYY-MM-DD", err)
	}
	if !sess.acquire("check") {
		return nil, ErrBusy
	}
	defer sess.release("check")

	records, err := t.d.Remote.GetStudentAttendance(ctx, date, subj.Name)
	if err != nil {
		t.d.Log.Warn("fetch attendance failed", zap.String("subject", subj.Name), zap.Error(err))
		return nil, newError(ErrUnavailable, "Could not fetch records. Check URL.", err)
	}
	return records, nil
}

// CloseSheet hides the subject sheet. The subject stays active so its
// attendance can still be checked.
func (t *Teacher) CloseSheet(sess *Session) State {
	sess.mu.Lock()
	sess.sheetOpen = false
	sess.mu.Unlock()
	return sess.Snapshot()
}

func rejectionMessage(reason string) string {
	if reason == "" {
		return ErrRejected.Message
	}
	return ErrRejected.Message + ": " + reason
}
