package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// BatchTrigger records what started a batch run
type BatchTrigger string

const (
	TriggerSchedule BatchTrigger = "schedule"
	TriggerHTTP     BatchTrigger = "http"
	TriggerCommand  BatchTrigger = "command"
	TriggerCLI      BatchTrigger = "cli"
)

// BatchRun is the operational record of one ExecuteDueSearches invocation
type BatchRun struct {
	ID         int64        `json:"id" db:"id"`
	Trigger    BatchTrigger `json:"trigger" db:"trigger"`
	StartedAt  time.Time    `json:"started_at" db:"started_at"`
	FinishedAt *time.Time   `json:"finished_at" db:"finished_at"`
	Status     RunStatus    `json:"status" db:"status"`
	Executed   int          `json:"executed" db:"executed"`
	Matches    int          `json:"matches" db:"matches"`
	Errors     int          `json:"errors" db:"errors"`
	Message    string       `json:"message" db:"message"`
}
