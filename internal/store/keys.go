package store

import "errors"

// MarkPrefix namespaces the per-subject, per-day submission flags.
const MarkPrefix = "attendx_marked_"

var errDeviceRequired = errors.New("store: device id required")

// MarkKey builds the flag key for one subject on one date.
func MarkKey(date, subjectName string) string {
	return MarkPrefix + date + "_" + subjectName
}
