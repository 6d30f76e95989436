package profile

import (
	"errors"
	"strings"
)

// MinRollLen is the shortest roll number accepted at registration.
const MinRollLen = 4

var (
	ErrNameRequired = errors.New("profile: full name required")
	ErrRollRequired = errors.New("profile: roll number required")
	ErrRollTooShort = errors.New("profile: roll number too short")
)

// Profile identifies the student using a device. It is created once at
// registration and only ever replaced.
type Profile struct {
	FullName string `json:"fullName"`
	RollNo   string `json:"rollNo"`
}

// New normalizes and validates a registration.
func New(fullName, rollNo string) (Profile, error) {
	name := strings.TrimSpace(fullName)
	roll := strings.ToUpper(strings.TrimSpace(rollNo))
	switch {
	case name == "":
		return Profile{}, ErrNameRequired
	case roll == "":
		return Profile{}, ErrRollRequired
	case len(roll) < MinRollLen:
		return Profile{}, ErrRollTooShort
	}
	return Profile{FullName: name, RollNo: roll}, nil
}

// FirstName is the first word of the full name.
func (p Profile) FirstName() string {
	if f := strings.Fields(p.FullName); len(f) > 0 {
		return f[0]
	}
	return ""
}

// Badge is the short "First · ROLL" label shown on the dashboard.
func (p Profile) Badge() string {
	return p.FirstName() + " · " + p.RollNo
}
