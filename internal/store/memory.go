package store

import (
	"context"
	"sync"

	"attendx/internal/profile"
)

// Memory is a process-local store for development and tests.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]profile.Profile
	marks    map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]profile.Profile),
		marks:    make(map[string]struct{}),
	}
}

func (m *Memory) LoadProfile(_ context.Context, deviceID string) (*profile.Profile, error) {
	if deviceID == "" {
		return nil, errDeviceRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[deviceID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) SaveProfile(_ context.Context, deviceID string, p profile.Profile) error {
	if deviceID == "" {
		return errDeviceRequired
	}
	m.mu.Lock()
	m.profiles[deviceID] = p
	m.mu.Unlock()
	return nil
}

func (m *Memory) IsMarked(_ context.Context, deviceID, subjectName, date string) (bool, error) {
	if deviceID == "" {
		return false, errDeviceRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.marks[deviceID+"|"+MarkKey(date, subjectName)]
	return ok, nil
}

func (m *Memory) SetMarked(_ context.Context, deviceID, subjectName, date string) error {
	if deviceID == "" {
		return errDeviceRequired
	}
	m.mu.Lock()
	m.marks[deviceID+"|"+MarkKey(date, subjectName)] = struct{}{}
	m.mu.Unlock()
	return nil
}
