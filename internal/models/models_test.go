package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestJobStatusIsTerminal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusIncomplete, false},
		{JobStatusSucceeded, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}
	for _, tt := range tests {
		got, err := tt.status.IsTerminal()
		if err != nil {
			t.Fatalf("IsTerminal(%s) error: %v", tt.status, err)
		}
		if got != tt.terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.terminal)
		}
	}

	if _, err := JobStatus("exploded").IsTerminal(); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("unknown status error = %v, want ErrUnknownStatus", err)
	}
}

func TestScheduleIntervalSeconds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   Schedule
		want int64
	}{
		{"minutes", Schedule{Units: 5, TimeUnit: TimeUnitMinutes}, 300},
		{"hours", Schedule{Units: 24, TimeUnit: TimeUnitHours}, 86400},
		{"days", Schedule{Units: 2, TimeUnit: TimeUnitDays}, 172800},
		{"weeks", Schedule{Units: 1, TimeUnit: TimeUnitWeeks}, 604800},
		{"months", Schedule{Units: 1, TimeUnit: TimeUnitMonths}, 2592000},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.IntervalSeconds()
			if err != nil {
				t.Fatalf("IntervalSeconds error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("IntervalSeconds = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := (Schedule{Units: 1, TimeUnit: "fortnights"}).IntervalSeconds(); !errors.Is(err, ErrUnknownTimeUnit) {
		t.Fatalf("unknown unit error = %v, want ErrUnknownTimeUnit", err)
	}
	if _, err := (Schedule{Units: 0, TimeUnit: TimeUnitHours}).IntervalSeconds(); err == nil {
		t.Fatal("expected error for zero units")
	}
	if _, err := (Schedule{Units: math.MaxInt64/60 + 1, TimeUnit: TimeUnitMinutes}).IntervalSeconds(); !errors.Is(err, ErrIntervalOverflow) {
		t.Fatalf("huge units error = %v, want ErrIntervalOverflow", err)
	}
	if got, err := (Schedule{Units: math.MaxInt64 / 60, TimeUnit: TimeUnitMinutes}).IntervalSeconds(); err != nil || got <= 0 {
		t.Fatalf("largest minutes = (%d, %v), want positive interval", got, err)
	}
}

func TestJobRunStartFallsBackToCreatedAt(t *testing.T) {
	t.Parallel()
	j := Job{CreatedAtSeconds: 100}
	if got := j.RunStartSeconds(); got != 100 {
		t.Fatalf("RunStartSeconds = %d, want 100", got)
	}
	if _, ok := j.StartedAt(); ok {
		t.Fatal("StartedAt should be absent")
	}
	started := int64(150)
	j.StartedAtSeconds = &started
	if got := j.RunStartSeconds(); got != 150 {
		t.Fatalf("RunStartSeconds = %d, want 150", got)
	}
}

func TestCatalogCloneIsDeep(t *testing.T) {
	t.Parallel()
	orig := &ConfiguredCatalog{Streams: []ConfiguredStream{{
		Stream:              Stream{Name: "users", JSONSchema: json.RawMessage(`{"type":"object"}`)},
		SyncMode:            SyncModeIncremental,
		CursorField:         []string{"updated_at"},
		DestinationSyncMode: DestinationSyncModeAppendDedup,
		PrimaryKey:          [][]string{{"id"}},
	}}}

	cp := orig.Clone()
	cp.Streams[0].SyncMode = SyncModeFullRefresh
	cp.Streams[0].CursorField[0] = "changed"
	cp.Streams[0].PrimaryKey[0][0] = "changed"
	cp.Streams[0].Stream.JSONSchema[0] = '['

	s := orig.Streams[0]
	if s.SyncMode != SyncModeIncremental || s.CursorField[0] != "updated_at" || s.PrimaryKey[0][0] != "id" {
		t.Fatalf("original mutated through clone: %+v", s)
	}
	if string(s.Stream.JSONSchema) != `{"type":"object"}` {
		t.Fatalf("json schema mutated: %s", s.Stream.JSONSchema)
	}

	var nilCatalog *ConfiguredCatalog
	if nilCatalog.Clone() != nil {
		t.Fatal("nil catalog should clone to nil")
	}
}

func TestJobConfigValidate(t *testing.T) {
	t.Parallel()
	ok := JobConfig{ConfigType: ConfigTypeGetSpec, GetSpec: &JobGetSpecConfig{DockerImage: "airbyte/source-foo:1.0"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	mismatched := JobConfig{ConfigType: ConfigTypeSync, GetSpec: &JobGetSpecConfig{DockerImage: "x"}}
	if err := mismatched.Validate(); err == nil {
		t.Fatal("expected mismatch error")
	}

	empty := JobConfig{ConfigType: ConfigTypeSync}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected error for missing payload")
	}

	unknown := JobConfig{ConfigType: "compact", GetSpec: &JobGetSpecConfig{}}
	if err := unknown.Validate(); !errors.Is(err, ErrUnknownConfigType) {
		t.Fatalf("unknown type error = %v, want ErrUnknownConfigType", err)
	}
}
