package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrUnavailable wraps transport failures: the endpoint could not be reached.
	ErrUnavailable = errors.New("sheets: endpoint unreachable")
	// ErrBadResponse wraps reads that came back with an error status or a body
	// that is not the expected JSON.
	ErrBadResponse = errors.New("sheets: unexpected response")
	// ErrNoEndpoint is returned when no endpoint is configured.
	ErrNoEndpoint = errors.New("sheets: endpoint not configured")
)

const maxBody = 1 << 20

// Client talks to the spreadsheet-backed attendance endpoint. Every call is
// a single attempt: no retry, no backoff, no queueing.
type Client struct {
	Endpoint string
	HTTP     *http.Client
}

// New creates a client with the given request timeout.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		Endpoint: endpoint,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

type request struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

type lecturePayload struct {
	Date        string `json:"date"`
	Subject     string `json:"subject"`
	Code        string `json:"code"`
	CreatedTime string `json:"createdTime"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type markPayload struct {
	Date         string `json:"date"`
	Subject      string `json:"subject"`
	LectureCode  string `json:"lectureCode"`
	StudentName  string `json:"studentName"`
	RollNo       string `json:"rollNo"`
	IsOnlineMode bool   `json:"isOnlineMode,omitempty"`
}

// StartLecture files a newly issued code for (date, subject).
func (c *Client) StartLecture(ctx context.Context, l Lecture) Result {
	return c.post(ctx, "startLecture", lecturePayload{
		Date:        l.Date,
		Subject:     l.Subject,
		Code:        l.Code,
		CreatedTime: l.CreatedTime,
		CreatedAt:   l.CreatedAt,
	})
}

// MarkStudentAttendance submits one student's attendance.
func (c *Client) MarkStudentAttendance(ctx context.Context, m Mark) Result {
	return c.post(ctx, "markStudentAttendance", markPayload{
		Date:         m.Date,
		Subject:      m.Subject,
		LectureCode:  m.LectureCode,
		StudentName:  m.StudentName,
		RollNo:       m.RollNo,
		IsOnlineMode: m.Unrestricted,
	})
}

// GetAttendance lists the lectures started for (date, subject), oldest first.
func (c *Client) GetAttendance(ctx context.Context, date, subject string) (LectureList, error) {
	var out LectureList
	if err := c.get(ctx, "getAttendance", date, subject, &out); err != nil {
		return LectureList{}, err
	}
	return out, nil
}

// GetStudentAttendance lists the submissions recorded for (date, subject).
func (c *Client) GetStudentAttendance(ctx context.Context, date, subject string) ([]StudentRecord, error) {
	var out struct {
		Records []StudentRecord `json:"records"`
	}
	if err := c.get(ctx, "getStudentAttendance", date, subject, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// writeAck is what a readable write response may carry. Endpoints that
// answer with an opaque redirect page leave every field unset.
type writeAck struct {
	Success       *bool  `json:"success"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	AlreadyMarked bool   `json:"alreadyMarked"`
}

func (c *Client) post(ctx context.Context, action string, data any) Result {
	if c.Endpoint == "" {
		return networkError(ErrNoEndpoint)
	}
	body, err := json.Marshal(request{Action: action, Data: data})
	if err != nil {
		return networkError(fmt.Errorf("sheets: encode %s: %w", action, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return networkError(fmt.Errorf("sheets: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return networkError(fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return networkError(fmt.Errorf("%w: %s", ErrBadResponse, resp.Status))
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	var ack writeAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		if resp.StatusCode >= 400 {
			return rejected(resp.Status)
		}
		// Opaque body: reaching the endpoint is the only success signal.
		return Result{Status: StatusOK}
	}

	switch {
	case ack.AlreadyMarked:
		r := rejected(firstNonEmpty(ack.Error, ack.Message, "already marked"))
		r.AlreadyMarked = true
		return r
	case ack.Success != nil && !*ack.Success:
		return rejected(firstNonEmpty(ack.Error, ack.Message, "rejected by server"))
	case resp.StatusCode >= 400:
		return rejected(firstNonEmpty(ack.Error, ack.Message, resp.Status))
	}
	return Result{Status: StatusOK, Reason: ack.Message}
}

func (c *Client) get(ctx context.Context, action, date, subject string, out any) error {
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("sheets: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("action", action)
	q.Set("date", date)
	q.Set("subject", subject)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("sheets: build request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: %s", ErrBadResponse, resp.Status, string(body))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrBadResponse, action, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
