package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"attendx/internal/lecture"
	"attendx/internal/metrics"
	"attendx/internal/profile"
	"attendx/internal/sheets"
	"attendx/internal/subject"
)

// Student drives the student panel.
type Student struct {
	d Deps
}

func NewStudent(d Deps) *Student {
	return &Student{d: d.withDefaults()}
}

// Boot loads the device's profile and lands on the dashboard, or on
// registration when none is saved.
func (s *Student) Boot(ctx context.Context, sess *Session) (State, error) {
	p, err := s.d.Profiles.LoadProfile(ctx, sess.DeviceID())
	if err != nil {
		return sess.Snapshot(), fmt.Errorf("load profile: %w", err)
	}
	sess.mu.Lock()
	if p == nil {
		sess.student = nil
		sess.view = ViewRegistration
	} else {
		sess.student = p
		sess.view = ViewDashboard
	}
	sess.mu.Unlock()
	return sess.Snapshot(), nil
}

// Register validates and saves the profile, replacing any previous one.
func (s *Student) Register(ctx context.Context, sess *Session, fullName, rollNo string) (State, error) {
	p, err := profile.New(fullName, rollNo)
	if err != nil {
		return sess.Snapshot(), newError(ErrInvalidInput, registrationMessage(err), err)
	}
	if err := s.d.Profiles.SaveProfile(ctx, sess.DeviceID(), p); err != nil {
		return sess.Snapshot(), fmt.Errorf("save profile: %w", err)
	}
	sess.mu.Lock()
	sess.student = &p
	sess.view = ViewDashboard
	sess.notice = "Welcome, " + p.FirstName() + "!"
	sess.mu.Unlock()
	return sess.Snapshot(), nil
}

func registrationMessage(err error) string {
	switch {
	case errors.Is(err, profile.ErrNameRequired):
		return "Please enter your full name"
	case errors.Is(err, profile.ErrRollRequired):
		return "Please enter your roll number"
	case errors.Is(err, profile.ErrRollTooShort):
		return "Roll number seems too short"
	}
	return ErrInvalidInput.Message
}

// Card is one subject tile on the dashboard.
type Card struct {
	Subject  subject.Subject `json:"subject"`
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	Marked   bool            `json:"marked"`
	Disabled bool            `json:"disabled"`
}

// Dashboard is the student's home view.
type Dashboard struct {
	Badge         string `json:"badge"`
	Date          string `json:"date"`
	Open          bool   `json:"open"`
	ClosedMessage string `json:"closed_message,omitempty"`
	Unrestricted  bool   `json:"unrestricted"`
	Cards         []Card `json:"cards"`
}

// Dashboard builds the card grid. Cards are disabled while the window is
// closed.
func (s *Student) Dashboard(ctx context.Context, sess *Session) (Dashboard, error) {
	p, ok := sess.Student()
	if !ok {
		return Dashboard{}, ErrNotRegistered
	}
	now := s.d.Now()
	date := now.Format(DateLayout)
	open := s.d.Gate.IsOpen(now)

	db := Dashboard{
		Badge:        p.Badge(),
		Date:         date,
		Open:         open,
		Unrestricted: sess.Unrestricted(now),
	}
	if !open {
		db.ClosedMessage = s.d.Gate.ClosedMessage()
	}
	for _, subj := range subject.All() {
		marked, err := s.d.Marks.IsMarked(ctx, sess.DeviceID(), subj.Name, date)
		if err != nil {
			return Dashboard{}, fmt.Errorf("read mark flag: %w", err)
		}
		db.Cards = append(db.Cards, Card{
			Subject:  subj,
			Name:     subj.CardName(),
			Kind:     subj.KindLabel(),
			Marked:   marked,
			Disabled: !open,
		})
	}
	return db, nil
}

// SelectSubject opens the attendance sheet for id and fetches the lecture
// the teacher started today. Failures after the sheet opens leave it on the
// verify step with the message as the notice.
func (s *Student) SelectSubject(ctx context.Context, sess *Session, id string) (State, error) {
	p, ok := sess.Student()
	if !ok {
		return sess.Snapshot(), ErrNotRegistered
	}
	subj, ok := subject.ByID(id)
	if !ok {
		return sess.Snapshot(), ErrUnknownSubject
	}
	now := s.d.Now()
	if !s.d.Gate.IsOpen(now) {
		return sess.Snapshot(), newError(ErrWindowClosed, s.d.Gate.ClosedMessage(), nil)
	}
	date := now.Format(DateLayout)
	marked, err := s.d.Marks.IsMarked(ctx, sess.DeviceID(), subj.Name, date)
	if err != nil {
		return sess.Snapshot(), fmt.Errorf("read mark flag: %w", err)
	}
	if marked {
		return sess.Snapshot(), alreadyMarked(subj)
	}

	if !sess.acquire("verify") {
		return sess.Snapshot(), ErrBusy
	}
	defer sess.release("verify")

	sess.mu.Lock()
	sess.active = &subj
	sess.lecture = nil
	sess.sheetOpen = true
	sess.step = StepVerify
	sess.notice = ""
	sess.mu.Unlock()

	list, err := s.d.Remote.GetAttendance(ctx, date, subj.Name)
	if err != nil {
		s.d.Log.Warn("fetch lecture failed", zap.String("subject", subj.Name), zap.Error(err))
		return s.verifyFailed(sess, subj, newError(ErrUnavailable, "Internet connection error. Please try again.", err))
	}
	latest, ok := list.Latest()
	if !ok {
		return s.verifyFailed(sess, subj, ErrNoLecture)
	}
	latest.Code = normalizeCode(latest.Code)

	if s.alreadyOnSheet(ctx, date, subj, p) {
		if err := s.d.Marks.SetMarked(ctx, sess.DeviceID(), subj.Name, date); err != nil {
			s.d.Log.Warn("set mark flag", zap.Error(err))
		}
		sess.mu.Lock()
		if sess.active != nil && sess.active.ID == subj.ID {
			sess.sheetOpen = false
			sess.step = StepNone
		}
		sess.mu.Unlock()
		return sess.Snapshot(), alreadyMarked(subj)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	// the student may have switched subjects while the fetch was out
	if sess.active == nil || sess.active.ID != subj.ID {
		return sess.snapshotLocked(), nil
	}
	sess.lecture = &latest
	sess.step = StepCode
	return sess.snapshotLocked(), nil
}

func (s *Student) verifyFailed(sess *Session, subj subject.Subject, err *Error) (State, error) {
	sess.mu.Lock()
	if sess.active != nil && sess.active.ID == subj.ID {
		sess.notice = err.Message
	}
	sess.mu.Unlock()
	return sess.Snapshot(), err
}

// alreadyOnSheet reports whether the sheet already lists p for subj on date.
// A failed lookup counts as not marked; the sheet still dedups on write.
func (s *Student) alreadyOnSheet(ctx context.Context, date string, subj subject.Subject, p profile.Profile) bool {
	records, err := s.d.Remote.GetStudentAttendance(ctx, date, subj.Name)
	if err != nil {
		s.d.Log.Debug("reconcile lookup failed", zap.String("subject", subj.Name), zap.Error(err))
		return false
	}
	for _, r := range records {
		if strings.EqualFold(strings.TrimSpace(r.RollNo), p.RollNo) {
			return true
		}
	}
	return false
}

// Submit checks the typed code against the fetched one and marks the
// student present.
func (s *Student) Submit(ctx context.Context, sess *Session, entered string) (State, error) {
	if !sess.acquire("submit") {
		return sess.Snapshot(), ErrBusy
	}
	defer sess.release("submit")

	sess.mu.Lock()
	if sess.student == nil {
		sess.mu.Unlock()
		return sess.Snapshot(), ErrNotRegistered
	}
	if sess.active == nil {
		sess.mu.Unlock()
		return sess.Snapshot(), ErrNoSubject
	}
	if sess.lecture == nil {
		sess.mu.Unlock()
		return sess.Snapshot(), ErrNoLecture
	}
	switch sess.step {
	case StepCode:
	case StepSuccess:
		subj := *sess.active
		sess.mu.Unlock()
		return sess.Snapshot(), alreadyMarked(subj)
	default:
		sess.mu.Unlock()
		return sess.Snapshot(), ErrNoLecture
	}
	now := s.d.Now()
	p, subj, lec := *sess.student, *sess.active, *sess.lecture
	unrestricted := sess.unrestrictedLocked(now)
	grantID := sess.grantID
	sess.mu.Unlock()

	date := now.Format(DateLayout)
	marked, err := s.d.Marks.IsMarked(ctx, sess.DeviceID(), subj.Name, date)
	if err != nil {
		return sess.Snapshot(), fmt.Errorf("read mark flag: %w", err)
	}
	if marked {
		return sess.Snapshot(), alreadyMarked(subj)
	}

	code := normalizeCode(entered)
	if code == "" {
		return sess.Snapshot(), ErrCodeRequired
	}
	if code != lec.Code {
		metrics.Submissions.WithLabelValues("mismatch").Inc()
		return sess.Snapshot(), ErrCodeMismatch
	}
	if !s.d.Checker.Valid(lec.CreatedTime, lec.CreatedAt, now, unrestricted) {
		metrics.Submissions.WithLabelValues("expired").Inc()
		return sess.Snapshot(), ErrCodeExpired
	}
	if !s.d.Gate.IsOpen(now) {
		sess.mu.Lock()
		sess.sheetOpen = false
		sess.step = StepNone
		sess.mu.Unlock()
		return sess.Snapshot(), newError(ErrWindowClosed, "Attendance has closed.", nil)
	}

	res := s.d.Remote.MarkStudentAttendance(ctx, sheets.Mark{
		Date:         date,
		Subject:      subj.Name,
		LectureCode:  lec.Code,
		StudentName:  p.FullName,
		RollNo:       p.RollNo,
		Unrestricted: unrestricted,
	})
	outcome := res.Status.String()
	if res.AlreadyMarked {
		outcome = "already_marked"
	}
	metrics.Submissions.WithLabelValues(outcome).Inc()

	evt := newEvent(EventAttendanceSubmitted, sess.DeviceID(), now)
	evt.Subject, evt.Date, evt.Code, evt.RollNo = subj.Name, date, lec.Code, p.RollNo
	evt.Unrestricted, evt.GrantID, evt.Outcome = unrestricted, grantID, outcome
	s.d.publish(ctx, evt)

	switch {
	case res.OK():
		s.setMarked(ctx, sess, subj, date)
		sess.mu.Lock()
		sess.step = StepSuccess
		sess.notice = fmt.Sprintf("%s · %s · %s", subj.Name, p.RollNo, lecture.FormatCreatedTime(now))
		sess.mu.Unlock()
		return sess.Snapshot(), nil
	case res.AlreadyMarked:
		s.setMarked(ctx, sess, subj, date)
		sess.mu.Lock()
		sess.sheetOpen = false
		sess.step = StepNone
		sess.mu.Unlock()
		return sess.Snapshot(), alreadyMarked(subj)
	case res.Status == sheets.StatusRejected:
		return sess.Snapshot(), newError(ErrRejected, rejectionMessage(res.Reason), nil)
	default:
		s.d.Log.Warn("submit failed", zap.String("subject", subj.Name), zap.Error(res.Err))
		return sess.Snapshot(), newError(ErrUnavailable, "Submission failed. Check your internet connection.", res.Err)
	}
}

func (s *Student) setMarked(ctx context.Context, sess *Session, subj subject.Subject, date string) {
	if err := s.d.Marks.SetMarked(ctx, sess.DeviceID(), subj.Name, date); err != nil {
		s.d.Log.Warn("set mark flag", zap.String("subject", subj.Name), zap.Error(err))
	}
}

// CloseSheet hides the attendance sheet. An in-flight fetch still completes
// but its result is dropped.
func (s *Student) CloseSheet(sess *Session) State {
	sess.mu.Lock()
	sess.sheetOpen = false
	sess.step = StepNone
	sess.active = nil
	sess.lecture = nil
	sess.mu.Unlock()
	return sess.Snapshot()
}

// EnableUnrestricted turns off code expiry for the session until expires.
// grantID names the operator grant that allowed it and is recorded with
// every submission. A zero expires never lapses.
func (s *Student) EnableUnrestricted(ctx context.Context, sess *Session, grantID string, expires time.Time) (State, error) {
	if grantID == "" {
		return sess.Snapshot(), newError(ErrInvalidInput, "grant required", nil)
	}
	now := s.d.Now()
	if !expires.IsZero() && !now.Before(expires) {
		return sess.Snapshot(), newError(ErrInvalidInput, "grant expired", nil)
	}
	sess.mu.Lock()
	sess.unrestricted = true
	sess.grantID = grantID
	sess.grantExpires = expires
	var roll string
	if sess.student != nil {
		roll = sess.student.RollNo
	}
	sess.mu.Unlock()

	evt := newEvent(EventModeUnrestricted, sess.DeviceID(), now)
	evt.RollNo, evt.GrantID, evt.Unrestricted, evt.Outcome = roll, grantID, true, "enabled"
	s.d.publish(ctx, evt)
	s.d.Log.Info("unrestricted mode enabled",
		zap.String("device_id", sess.DeviceID()),
		zap.String("grant_id", grantID))
	return sess.Snapshot(), nil
}

func alreadyMarked(subj subject.Subject) *Error {
	return newError(ErrAlreadyMarked, subj.Name+" attendance is already marked for today", nil)
}

func normalizeCode(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
