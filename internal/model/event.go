// Package model defines the event log structures the miner consumes.
package model

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Event represents a single recorded activity occurrence.
// Timestamps are stored as int64 nanoseconds since Unix epoch.
type Event struct {
	// CaseID identifies the process instance (trace).
	CaseID string

	// Activity is the event name/activity label.
	Activity string

	// Timestamp in nanoseconds since Unix epoch.
	Timestamp int64

	// HasTimestamp is false when the source row carried no timestamp.
	// The zero epoch is a valid timestamp, so presence is tracked separately.
	HasTimestamp bool

	// Resource is the actor/resource performing the activity (optional).
	Resource string

	// Seq is the position of the event in its source. Sorting uses it to
	// keep the original order between events with equal timestamps.
	Seq int
}

// Log is an ordered collection of events as read from a source.
type Log struct {
	Events []Event
}

// NewLog creates a log from events, assigning source positions.
func NewLog(events ...Event) *Log {
	l := &Log{Events: make([]Event, 0, len(events))}
	for _, e := range events {
		l.Append(e)
	}
	return l
}

// Append adds an event at the end of the log.
func (l *Log) Append(e Event) {
	e.Seq = len(l.Events)
	l.Events = append(l.Events, e)
}

// Len returns the number of events.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Events)
}

// FieldError describes the first invalid event of a log.
type FieldError struct {
	Row   int
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("event %d: missing %s", e.Row, e.Field)
}

// Validate checks that every event carries a case id, an activity and a timestamp.
func (l *Log) Validate() error {
	if l == nil {
		return nil
	}
	for i, e := range l.Events {
		switch {
		case e.CaseID == "":
			return &FieldError{Row: i, Field: "case id"}
		case e.Activity == "":
			return &FieldError{Row: i, Field: "activity"}
		case !e.HasTimestamp:
			return &FieldError{Row: i, Field: "timestamp"}
		}
	}
	return nil
}

// Sorted returns a copy of the events ordered by case id, timestamp and
// source position.
func (l *Log) Sorted() []Event {
	if l == nil {
		return nil
	}
	sorted := make([]Event, len(l.Events))
	copy(sorted, l.Events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CaseID != sorted[j].CaseID {
			return sorted[i].CaseID < sorted[j].CaseID
		}
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	return sorted
}

// Activities returns the distinct activity labels in first-seen order.
func (l *Log) Activities() []string {
	if l == nil {
		return nil
	}
	return lo.Uniq(lo.Map(l.Events, func(e Event, _ int) string { return e.Activity }))
}

// CaseIDs returns the distinct case ids in first-seen order.
func (l *Log) CaseIDs() []string {
	if l == nil {
		return nil
	}
	return lo.Uniq(lo.Map(l.Events, func(e Event, _ int) string { return e.CaseID }))
}

// Cases returns the number of distinct cases.
func (l *Log) Cases() int {
	return len(l.CaseIDs())
}
