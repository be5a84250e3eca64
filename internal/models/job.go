// Package models holds the entities shared by the scheduler, the job creator
// and the persistence layer.
//
// Enumerations are closed. Every switch over them ends in an explicit error
// case so an unknown value is reported, never defaulted.
package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownStatus     = errors.New("unknown job status")
	ErrUnknownConfigType = errors.New("unknown job config type")
	ErrUnknownTimeUnit   = errors.New("unknown schedule time unit")
	ErrIntervalOverflow  = errors.New("schedule interval overflows")
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusIncomplete JobStatus = "incomplete"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// TerminalStatuses lists the statuses after which a job never runs again.
var TerminalStatuses = []JobStatus{JobStatusSucceeded, JobStatusFailed, JobStatusCancelled}

// ActiveStatuses lists the statuses that count against the one-active-job-per-scope rule.
var ActiveStatuses = []JobStatus{JobStatusPending, JobStatusRunning, JobStatusIncomplete}

// IsTerminal reports whether s is terminal. A value outside the closed set
// is an error.
func (s JobStatus) IsTerminal() (bool, error) {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true, nil
	case JobStatusPending, JobStatusRunning, JobStatusIncomplete:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
}

func (s JobStatus) Validate() error {
	_, err := s.IsTerminal()
	return err
}

type ConfigType string

const (
	ConfigTypeCheckConnectionSource      ConfigType = "check_connection_source"
	ConfigTypeCheckConnectionDestination ConfigType = "check_connection_destination"
	ConfigTypeDiscoverSchema             ConfigType = "discover_schema"
	ConfigTypeGetSpec                    ConfigType = "get_spec"
	ConfigTypeSync                       ConfigType = "sync"
	ConfigTypeResetConnection            ConfigType = "reset_connection"
)

func (t ConfigType) Validate() error {
	switch t {
	case ConfigTypeCheckConnectionSource, ConfigTypeCheckConnectionDestination,
		ConfigTypeDiscoverSchema, ConfigTypeGetSpec, ConfigTypeSync, ConfigTypeResetConnection:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConfigType, string(t))
	}
}

// Job is one unit of work owned by a scope.
//
// StartedAtSeconds stays nil until the execution subsystem starts the job;
// a job that fails before launch never gets one.
type Job struct {
	ID               int64      `json:"id"`
	Scope            string     `json:"scope"`
	ConfigType       ConfigType `json:"config_type"`
	Config           JobConfig  `json:"config"`
	Status           JobStatus  `json:"status"`
	CreatedAtSeconds int64      `json:"created_at"`
	StartedAtSeconds *int64     `json:"started_at,omitempty"`
	UpdatedAtSeconds int64      `json:"updated_at"`
}

func (j Job) CreatedAt() time.Time { return time.Unix(j.CreatedAtSeconds, 0) }

// StartedAt returns the start time and whether the job ever started.
func (j Job) StartedAt() (time.Time, bool) {
	if j.StartedAtSeconds == nil {
		return time.Time{}, false
	}
	return time.Unix(*j.StartedAtSeconds, 0), true
}

// RunStartSeconds is the start time, falling back to creation time for jobs
// that never started.
func (j Job) RunStartSeconds() int64 {
	if j.StartedAtSeconds != nil {
		return *j.StartedAtSeconds
	}
	return j.CreatedAtSeconds
}
