package attendance

import "errors"

// Kind groups failures by how the caller should present them. None of them
// is fatal: the session stays in the view it was in.
type Kind int

const (
	// KindValidation is bad or missing input.
	KindValidation Kind = iota + 1
	// KindTransport is a failed call to the spreadsheet endpoint.
	KindTransport
	// KindRejected is a business rule saying no.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	}
	return "unknown"
}

// Error is a user-facing failure. Message is safe to show as-is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can compare against the sentinels below
// regardless of message text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidInput   = &Error{Kind: KindValidation, Code: "invalid_input", Message: "invalid input"}
	ErrNotRegistered  = &Error{Kind: KindValidation, Code: "not_registered", Message: "Please register first"}
	ErrNoSubject      = &Error{Kind: KindValidation, Code: "no_subject", Message: "Select a subject first"}
	ErrUnknownSubject = &Error{Kind: KindValidation, Code: "unknown_subject", Message: "Unknown subject"}
	ErrCodeRequired   = &Error{Kind: KindValidation, Code: "code_required", Message: "Please enter the attendance code"}
	ErrDateRequired   = &Error{Kind: KindValidation, Code: "date_required", Message: "Please select a date first"}

	ErrWindowClosed  = &Error{Kind: KindRejected, Code: "window_closed", Message: "Attendance is closed"}
	ErrAlreadyMarked = &Error{Kind: KindRejected, Code: "already_marked", Message: "Attendance already marked for today"}
	ErrNoLecture     = &Error{Kind: KindRejected, Code: "no_lecture", Message: "No active lecture found for today. Ask your teacher."}
	ErrCodeMismatch  = &Error{Kind: KindRejected, Code: "code_mismatch", Message: "Wrong code. Get the correct code from your teacher."}
	ErrCodeExpired   = &Error{Kind: KindRejected, Code: "code_expired", Message: "This code has expired. Ask your teacher for a new one."}
	ErrRejected      = &Error{Kind: KindRejected, Code: "rejected", Message: "Rejected by the attendance sheet"}
	ErrBusy          = &Error{Kind: KindRejected, Code: "busy", Message: "Still working on the previous request"}

	ErrUnavailable = &Error{Kind: KindTransport, Code: "unavailable", Message: "Connection error. Please try again."}
)

func newError(base *Error, msg string, err error) *Error {
	if msg == "" {
		msg = base.Message
	}
	return &Error{Kind: base.Kind, Code: base.Code, Message: msg, Err: err}
}

// KindOf reports the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf reports the code of err, or "" when err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageOf returns the user-facing text for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
