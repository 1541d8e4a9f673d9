package model

import (
	"errors"
	"testing"
)

func TestLog_SortedIsStable(t *testing.T) {
	log := NewLog(
		Event{CaseID: "2", Activity: "X", Timestamp: 5, HasTimestamp: true},
		Event{CaseID: "1", Activity: "B", Timestamp: 10, HasTimestamp: true},
		Event{CaseID: "1", Activity: "A", Timestamp: 10, HasTimestamp: true},
		Event{CaseID: "1", Activity: "C", Timestamp: 1, HasTimestamp: true},
	)

	got := log.Sorted()
	want := []string{"C", "B", "A", "X"}
	for i, e := range got {
		if e.Activity != want[i] {
			t.Fatalf("Sorted()[%d] = %s, want %s", i, e.Activity, want[i])
		}
	}

	// Source order must be untouched.
	if log.Events[0].Activity != "X" {
		t.Errorf("Sorted mutated the log")
	}
}

func TestLog_SortedBreaksTiesBySeq(t *testing.T) {
	// Slice order disagrees with source position.
	log := &Log{Events: []Event{
		{CaseID: "1", Activity: "B", Timestamp: 10, HasTimestamp: true, Seq: 1},
		{CaseID: "1", Activity: "A", Timestamp: 10, HasTimestamp: true, Seq: 0},
		{CaseID: "1", Activity: "C", Timestamp: 10, HasTimestamp: true, Seq: 2},
	}}

	var got string
	for _, e := range log.Sorted() {
		got += e.Activity
	}
	if got != "ABC" {
		t.Errorf("Sorted() activities = %s, want ABC", got)
	}
}

func TestLog_Activities(t *testing.T) {
	log := NewLog(
		Event{CaseID: "1", Activity: "B"},
		Event{CaseID: "1", Activity: "A"},
		Event{CaseID: "2", Activity: "B"},
		Event{CaseID: "2", Activity: "C"},
	)

	got := log.Activities()
	want := []string{"B", "A", "C"}
	if len(got) != len(want) {
		t.Fatalf("Activities() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Activities()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if log.Cases() != 2 {
		t.Errorf("Cases() = %d, want 2", log.Cases())
	}
}

func TestLog_Validate(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		field string
	}{
		{"missing case", Event{Activity: "A", HasTimestamp: true}, "case id"},
		{"missing activity", Event{CaseID: "1", HasTimestamp: true}, "activity"},
		{"missing timestamp", Event{CaseID: "1", Activity: "A"}, "timestamp"},
		{"valid", Event{CaseID: "1", Activity: "A", HasTimestamp: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewLog(tt.event).Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("Validate() = %v, want *FieldError", err)
			}
			if fe.Field != tt.field {
				t.Errorf("Field = %q, want %q", fe.Field, tt.field)
			}
		})
	}
}

func TestLog_NilSafe(t *testing.T) {
	var log *Log
	if log.Len() != 0 || log.Sorted() != nil || log.Validate() != nil {
		t.Error("nil log should behave as empty")
	}
}
