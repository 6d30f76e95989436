package attendance

import (
	"sync"
	"time"

	"attendx/internal/profile"
	"attendx/internal/sheets"
	"attendx/internal/subject"
)

// Role is the panel a device runs.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool { return r == RoleTeacher || r == RoleStudent }

// View is the top-level screen.
type View string

const (
	ViewSplash       View = "splash"
	ViewCards        View = "cards"
	ViewRegistration View = "registration"
	ViewDashboard    View = "dashboard"
)

// Step is the student sheet's sub-step.
type Step string

const (
	StepNone    Step = ""
	StepVerify  Step = "verify"
	StepCode    Step = "code"
	StepSuccess Step = "success"
)

// Session is the per-device state the controllers drive. Fields are written
// only by the Teacher and Student controllers; everything else reads a
// State snapshot.
type Session struct {
	mu       sync.Mutex
	deviceID string
	role     Role
	lastSeen time.Time

	view      View
	sheetOpen bool
	step      Step
	notice    string

	active       *subject.Subject
	currentCode  string
	codeIssuedAt time.Time

	student *profile.Profile
	lecture *sheets.LectureRecord

	unrestricted bool
	grantID      string
	grantExpires time.Time

	busy map[string]bool
}

// NewSession starts a session on the splash view.
func NewSession(deviceID string, role Role) *Session {
	return &Session{
		deviceID: deviceID,
		role:     role,
		view:     ViewSplash,
		busy:     make(map[string]bool),
		lastSeen: time.Now(),
	}
}

func (s *Session) DeviceID() string { return s.deviceID }
func (s *Session) Role() Role       { return s.role }

// Unrestricted reports whether code expiry is disabled for this session at
// now. A grant past its expiry is dropped.
func (s *Session) Unrestricted(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unrestrictedLocked(now)
}

func (s *Session) unrestrictedLocked(now time.Time) bool {
	if s.unrestricted && !s.grantExpires.IsZero() && !now.Before(s.grantExpires) {
		s.unrestricted = false
		s.grantID = ""
		s.grantExpires = time.Time{}
	}
	return s.unrestricted
}

// ActiveSubject returns the subject the sheet is open for.
func (s *Session) ActiveSubject() (subject.Subject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return subject.Subject{}, false
	}
	return *s.active, true
}

// Student returns the registered profile, if loaded.
func (s *Session) Student() (profile.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.student == nil {
		return profile.Profile{}, false
	}
	return *s.student, true
}

// CurrentCode is the code the teacher is displaying.
func (s *Session) CurrentCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentCode
}

// State is a read-only snapshot of a session.
type State struct {
	DeviceID     string           `json:"device_id"`
	Role         Role             `json:"role"`
	View         View             `json:"view"`
	SheetOpen    bool             `json:"sheet_open"`
	Step         Step             `json:"step,omitempty"`
	Notice       string           `json:"notice,omitempty"`
	Subject      *subject.Subject `json:"subject,omitempty"`
	Code         string           `json:"code,omitempty"`
	CodeIssuedAt *time.Time       `json:"code_issued_at,omitempty"`
	StartedLabel string           `json:"started_label,omitempty"`
	Student      *profile.Profile `json:"student,omitempty"`
	Badge        string           `json:"badge,omitempty"`
	Unrestricted bool             `json:"unrestricted"`
}

// Snapshot copies the session into a State.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := State{
		DeviceID:     s.deviceID,
		Role:         s.role,
		View:         s.view,
		SheetOpen:    s.sheetOpen,
		Step:         s.step,
		Notice:       s.notice,
		Unrestricted: s.unrestricted,
	}
	if s.active != nil {
		subj := *s.active
		st.Subject = &subj
	}
	if s.student != nil {
		p := *s.student
		st.Student = &p
		st.Badge = p.Badge()
	}
	switch s.role {
	case RoleTeacher:
		st.Code = s.currentCode
		if !s.codeIssuedAt.IsZero() {
			at := s.codeIssuedAt
			st.CodeIssuedAt = &at
		}
	case RoleStudent:
		if s.lecture != nil {
			st.Code = s.lecture.Code
			st.StartedLabel = s.lecture.StartedLabel()
		}
	}
	return st
}

// acquire marks action as in flight; false means it already is.
func (s *Session) acquire(action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[action] {
		return false
	}
	s.busy[action] = true
	return true
}

func (s *Session) release(action string) {
	s.mu.Lock()
	delete(s.busy, action)
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Registry hands out one session per device and role.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session), now: time.Now}
}

// Get returns the device's session, creating it on first use.
func (r *Registry) Get(deviceID string, role Role) *Session {
	key := string(role) + ":" + deviceID
	r.mu.Lock()
	sess, ok := r.sessions[key]
	if !ok {
		sess = NewSession(deviceID, role)
		r.sessions[key] = sess
	}
	r.mu.Unlock()
	sess.touch(r.now())
	return sess
}

// Prune drops sessions idle for longer than idle and reports how many went.
// Persisted profiles and flags are unaffected.
func (r *Registry) Prune(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, sess := range r.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(r.sessions, key)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
