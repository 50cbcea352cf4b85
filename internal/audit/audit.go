// Package audit records the activity trail of schema-driven mutations.
package audit

import "time"

// Entry is one activity-trail record.
type Entry struct {
	Entity   string
	Action   string
	RecordID string
	ActorID  string
	At       time.Time
}

// Recorder accepts activity entries. Implementations must not block the
// request path.
type Recorder interface {
	Record(e Entry)
}

// Nop discards entries; used in tests and when auditing is disabled.
type Nop struct{}

func (Nop) Record(Entry) {}
