package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attendx/internal/attendance"
	"attendx/internal/auth"
	"attendx/internal/lecture"
	"attendx/internal/queue"
	"attendx/internal/sheets"
	"attendx/internal/store"
	"attendx/internal/window"
)

const (
	testKey    = "httpapi-test-signing-key"
	testIssuer = "attendx-test"
	adminKey   = "admin-key"
)

// sheetServer stands in for the spreadsheet endpoint.
type sheetServer struct {
	mu       sync.Mutex
	lectures map[string][]sheets.LectureRecord
	students map[string][]sheets.StudentRecord

	// when release is set, student lookups signal entered and wait on it
	entered chan struct{}
	release chan struct{}
}

func newSheetServer() *sheetServer {
	return &sheetServer{
		lectures: make(map[string][]sheets.LectureRecord),
		students: make(map[string][]sheets.StudentRecord),
	}
}

func (s *sheetServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("action") == "getStudentAttendance" {
		s.mu.Lock()
		entered, release := s.entered, s.release
		s.mu.Unlock()
		if release != nil {
			entered <- struct{}{}
			<-release
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodGet {
		q := r.URL.Query()
		key := q.Get("date") + "|" + q.Get("subject")
		switch q.Get("action") {
		case "getAttendance":
			recs := s.lectures[key]
			json.NewEncoder(w).Encode(map[string]any{"success": len(recs) > 0, "records": recs})
		case "getStudentAttendance":
			json.NewEncoder(w).Encode(map[string]any{"records": s.students[key]})
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
		}
		return
	}

	var req struct {
		Action string          `json:"action"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch req.Action {
	case "startLecture":
		var rec sheets.LectureRecord
		json.Unmarshal(req.Data, &rec)
		key := rec.Date + "|" + rec.Subject
		s.lectures[key] = append(s.lectures[key], rec)
		w.Write([]byte(`{"success":true}`))
	case "markStudentAttendance":
		var m struct {
			Date        string `json:"date"`
			Subject     string `json:"subject"`
			StudentName string `json:"studentName"`
			RollNo      string `json:"rollNo"`
		}
		json.Unmarshal(req.Data, &m)
		key := m.Date + "|" + m.Subject
		for _, rec := range s.students[key] {
			if rec.RollNo == m.RollNo {
				w.Write([]byte(`{"success":false,"alreadyMarked":true}`))
				return
			}
		}
		s.students[key] = append(s.students[key], sheets.StudentRecord{
			StudentName: m.StudentName, RollNo: m.RollNo, Subject: m.Subject, SubmissionTime: "10:01 AM",
		})
		w.Write([]byte(`{"success":true}`))
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

// memLedger is an in-memory audit ledger.
type memLedger struct {
	mu     sync.Mutex
	events []attendance.Event
}

func (l *memLedger) InsertEvent(_ context.Context, evt attendance.Event) error {
	l.mu.Lock()
	l.events = append(l.events, evt)
	l.mu.Unlock()
	return nil
}

func (l *memLedger) ListEvents(_ context.Context, f attendance.EventFilter) ([]attendance.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []attendance.Event
	for i := len(l.events) - 1; i >= 0; i-- {
		e := l.events[i]
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.DeviceID != "" && e.DeviceID != f.DeviceID {
			continue
		}
		if f.Unrestricted && !e.Unrestricted {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *memLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

type harness struct {
	router   *gin.Engine
	registry *attendance.Registry
	now    time.Time
	sheet  *sheetServer
	ledger *memLedger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &harness{
		now:    time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		sheet:  newSheetServer(),
		ledger: &memLedger{},
	}
	h.registry = attendance.NewRegistry()
	endpoint := httptest.NewServer(h.sheet)
	t.Cleanup(endpoint.Close)

	q := queue.NewInMemory(64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go attendance.ConsumeAudit(ctx, q, h.ledger, zap.NewNop())

	mem := store.NewMemory()
	now := func() time.Time { return h.now }
	deps := attendance.Deps{
		Remote:    sheets.New(endpoint.URL, 2*time.Second),
		Profiles:  mem,
		Marks:     mem,
		Generator: lecture.NewGenerator(func(int) int { return 3821 }),
		Gate:      window.DefaultGate,
		Audit:     attendance.QueuePublisher{Q: q},
		Now:       now,
	}
	srv := &Server{
		Opts: Options{
			Issuer:      testIssuer,
			SigningKey:  testKey,
			AccessTTL:   time.Hour,
			RefreshTTL:  2 * time.Hour,
			GrantTTL:    time.Hour,
			AdminKey:    adminKey,
			CORSOrigins: []string{"*"},
		},
		Registry: h.registry,
		Teacher:  attendance.NewTeacher(deps),
		Student:  attendance.NewStudent(deps),
		Gate:     window.DefaultGate,
		Now:      now,
		Ledger:   h.ledger,
		Checks:   map[string]func(context.Context) bool{"sheets": func(context.Context) bool { return true }},
	}
	h.router = srv.Router()
	return h
}

func (h *harness) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) device(t *testing.T, id, role string) string {
	t.Helper()
	w := h.do(t, http.MethodPost, "/v1/devices/register", "", map[string]string{"device_id": id, "role": role})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	return pair.AccessToken
}

type stateBody struct {
	State attendance.State `json:"state"`
	Error string           `json:"error"`
	Code  string           `json:"code"`
	Kind  string           `json:"kind"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) stateBody {
	t.Helper()
	var b stateBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
	return b
}

func TestPublicRoutes(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sheets":true`)

	w = h.do(t, http.MethodGet, "/v1/subjects", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var subjects struct {
		Subjects []map[string]any `json:"subjects"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &subjects))
	assert.Len(t, subjects.Subjects, 8)

	w = h.do(t, http.MethodGet, "/v1/window", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"open":true`)

	h.now = time.Date(2026, 3, 10, 16, 1, 0, 0, time.UTC)
	w = h.do(t, http.MethodGet, "/v1/window", "", nil)
	assert.Contains(t, w.Body.String(), `"open":false`)
	assert.Contains(t, w.Body.String(), "Attendance closed")

	w = h.do(t, http.MethodPost, "/v1/devices/register", "", map[string]string{"device_id": "x", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshDevice(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/v1/devices/register", "", map[string]string{"device_id": "tab-1", "role": "teacher"})
	require.Equal(t, http.StatusCreated, w.Code)
	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))

	w = h.do(t, http.MethodPost, "/v1/devices/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodPost, "/v1/devices/refresh", "", map[string]string{"refresh_token": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleSeparation(t *testing.T) {
	h := newHarness(t)
	teacher := h.device(t, "tab-1", "teacher")

	w := h.do(t, http.MethodGet, "/v1/student/state", teacher, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodGet, "/v1/teacher/state", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceFlow(t *testing.T) {
	h := newHarness(t)
	teacher := h.device(t, "tab-1", "teacher")
	student := h.device(t, "phone-1", "student")

	w := h.do(t, http.MethodGet, "/v1/teacher/code", teacher, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/v1/teacher/subjects/ds_lab", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "DS4821LB", decode(t, w).State.Code)

	w = h.do(t, http.MethodGet, "/v1/teacher/code.png", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = h.do(t, http.MethodPost, "/v1/teacher/lectures", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode(t, w).State.SheetOpen)

	w = h.do(t, http.MethodGet, "/v1/student/state", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, attendance.ViewRegistration, decode(t, w).State.View)

	w = h.do(t, http.MethodPost, "/v1/student/register", student, map[string]string{"full_name": "Asha Verma", "roll_no": "ab"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Roll number seems too short", decode(t, w).Error)

	w = h.do(t, http.MethodPost, "/v1/student/register", student, map[string]string{"full_name": "Asha Verma", "roll_no": "cs-0042"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, attendance.ViewDashboard, decode(t, w).State.View)

	w = h.do(t, http.MethodGet, "/v1/student/dashboard", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"badge":"Asha · CS-0042"`)

	h.now = h.now.Add(time.Minute)
	w = h.do(t, http.MethodPost, "/v1/student/subjects/ds_lab", student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode(t, w).State
	assert.Equal(t, attendance.StepCode, st.Step)
	assert.Equal(t, "Started at 10:00 AM", st.StartedLabel)

	w = h.do(t, http.MethodPost, "/v1/student/submit", student, map[string]string{"code": "DS1111LB"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "code_mismatch", decode(t, w).Code)

	w = h.do(t, http.MethodPost, "/v1/student/submit", student, map[string]string{"code": "ds4821lb"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, attendance.StepSuccess, decode(t, w).State.Step)

	w = h.do(t, http.MethodPost, "/v1/student/subjects/ds_lab", student, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_marked", decode(t, w).Code)

	w = h.do(t, http.MethodGet, "/v1/teacher/attendance", teacher, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please select a date first", decode(t, w).Error)

	w = h.do(t, http.MethodGet, "/v1/teacher/attendance?date=2026-03-10", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.Contains(t, w.Body.String(), "CS-0042")

	w = h.do(t, http.MethodGet, "/v1/teacher/attendance.xlsx?date=2026-03-10", teacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;"))

	require.Eventually(t, func() bool { return h.ledger.len() == 2 }, time.Second, 10*time.Millisecond)
	w = h.do(t, http.MethodGet, "/v1/admin/events?kind=attendance.submitted", "", nil, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"roll_no":"CS-0042"`)
}

func TestWindowClosedBlocksSelection(t *testing.T) {
	h := newHarness(t)
	student := h.device(t, "phone-1", "student")
	w := h.do(t, http.MethodPost, "/v1/student/register", student, map[string]string{"full_name": "Asha", "roll_no": "CS0042"})
	require.Equal(t, http.StatusOK, w.Code)

	h.now = time.Date(2026, 3, 10, 16, 1, 0, 0, time.UTC)
	w = h.do(t, http.MethodPost, "/v1/student/subjects/ds_lab", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	b := decode(t, w)
	assert.Equal(t, "window_closed", b.Code)
	assert.Equal(t, "Attendance closed. Open 9:55 AM – 4:00 PM", b.Error)
	assert.False(t, b.State.SheetOpen)
}

func TestUnrestrictedGrant(t *testing.T) {
	h := newHarness(t)
	teacher := h.device(t, "tab-1", "teacher")
	student := h.device(t, "phone-1", "student")

	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/teacher/subjects/mysql_lab", teacher, nil).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/teacher/lectures", teacher, nil).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/student/register", student,
		map[string]string{"full_name": "Asha", "roll_no": "CS0042"}).Code)

	h.now = h.now.Add(3 * time.Minute)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/student/subjects/mysql_lab", student, nil).Code)
	w := h.do(t, http.MethodPost, "/v1/student/submit", student, map[string]string{"code": "MY4821LB"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "code_expired", decode(t, w).Code)

	w = h.do(t, http.MethodPost, "/v1/admin/grants", "", map[string]string{"device_id": "phone-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodPost, "/v1/admin/grants", "", map[string]string{"device_id": "phone-2"}, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusCreated, w.Code)
	var other auth.Grant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &other))
	w = h.do(t, http.MethodPost, "/v1/student/unrestricted", student, map[string]string{"grant": other.Token})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPost, "/v1/student/unrestricted", student, map[string]string{"grant": student})
	assert.Equal(t, http.StatusForbidden, w.Code, "an access token is not a grant")

	w = h.do(t, http.MethodPost, "/v1/admin/grants", "", map[string]string{"device_id": "phone-1"}, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusCreated, w.Code)
	var grant auth.Grant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grant))

	w = h.do(t, http.MethodPost, "/v1/student/unrestricted", student, map[string]string{"grant": grant.Token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode(t, w).State.Unrestricted)

	w = h.do(t, http.MethodPost, "/v1/student/submit", student, map[string]string{"code": "MY4821LB"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Eventually(t, func() bool { return h.ledger.len() == 3 }, time.Second, 10*time.Millisecond)
	w = h.do(t, http.MethodGet, "/v1/admin/events?unrestricted=true", "", nil, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var events struct {
		Events []attendance.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events.Events, 2)
	assert.Equal(t, attendance.EventAttendanceSubmitted, events.Events[0].Kind)
	assert.Equal(t, grant.ID, events.Events[0].GrantID)
	assert.Equal(t, attendance.EventModeUnrestricted, events.Events[1].Kind)
}

func TestBusyRequestIsThrottled(t *testing.T) {
	h := newHarness(t)
	teacher := h.device(t, "tab-1", "teacher")
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/teacher/subjects/ds", teacher, nil).Code)

	h.sheet.mu.Lock()
	h.sheet.entered = make(chan struct{})
	h.sheet.release = make(chan struct{})
	entered, release := h.sheet.entered, h.sheet.release
	h.sheet.mu.Unlock()

	first := make(chan int, 1)
	go func() {
		w := h.do(t, http.MethodGet, "/v1/teacher/attendance?date=2026-03-10", teacher, nil)
		first <- w.Code
	}()
	<-entered

	w := h.do(t, http.MethodGet, "/v1/teacher/attendance?date=2026-03-10", teacher, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "busy", decode(t, w).Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestSubmitAfterRestartReloadsProfile(t *testing.T) {
	h := newHarness(t)
	student := h.device(t, "phone-1", "student")
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/v1/student/register", student,
		map[string]string{"full_name": "Asha", "roll_no": "CS0042"}).Code)

	require.Positive(t, h.registry.Prune(-time.Hour))

	w := h.do(t, http.MethodPost, "/v1/student/submit", student, map[string]string{"code": "DS4821TH"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	b := decode(t, w)
	assert.Equal(t, "no_subject", b.Code)
	require.NotNil(t, b.State.Student)
	assert.Equal(t, "CS0042", b.State.Student.RollNo)
}
