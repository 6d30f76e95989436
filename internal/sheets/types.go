package sheets

// Lecture is a started lecture as sent to the endpoint.
type Lecture struct {
	Date        string
	Subject     string
	Code        string
	CreatedTime string // "03:04 PM"
	CreatedAt   string // RFC 3339, lets readers judge expiry across midnight
}

// Mark is one student's submission.
type Mark struct {
	Date         string
	Subject      string
	LectureCode  string
	StudentName  string
	RollNo       string
	Unrestricted bool
}

// LectureRecord is one row of the lecture sheet.
type LectureRecord struct {
	Date        string `json:"date"`
	Subject     string `json:"subject"`
	Code        string `json:"code"`
	CreatedTime string `json:"createdTime"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// StartedLabel is the caption under a fetched code. Backends that serialize
// the time cell as a full date string get the generic caption.
func (r LectureRecord) StartedLabel() string {
	if r.CreatedTime != "" && len(r.CreatedTime) < 20 {
		return "Started at " + r.CreatedTime
	}
	return "Active lecture"
}

// LectureList is the getAttendance response.
type LectureList struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Records []LectureRecord `json:"records"`
}

// Latest returns the most recently started lecture, the last record.
func (l LectureList) Latest() (LectureRecord, bool) {
	if !l.Success || len(l.Records) == 0 {
		return LectureRecord{}, false
	}
	return l.Records[len(l.Records)-1], true
}

// StudentRecord is one row of the attendance sheet.
type StudentRecord struct {
	StudentName    string `json:"studentName"`
	RollNo         string `json:"rollNo"`
	Subject        string `json:"subject"`
	SubmissionTime string `json:"submissionTime"`
}

// Status classifies the outcome of a write.
type Status int

const (
	StatusOK Status = iota
	StatusNetworkError
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNetworkError:
		return "network_error"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

// Result is the outcome of a write to the endpoint.
type Result struct {
	Status        Status
	Reason        string
	AlreadyMarked bool
	Err           error
}

func (r Result) OK() bool { return r.Status == StatusOK }

func networkError(err error) Result {
	return Result{Status: StatusNetworkError, Reason: err.Error(), Err: err}
}

func rejected(reason string) Result {
	return Result{Status: StatusRejected, Reason: reason}
}
