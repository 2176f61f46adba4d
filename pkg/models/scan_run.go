package models

import "time"

// ScanRun is the durable history row written once a ScanJob reaches a terminal
// state. It outlives the 24h job record.
type ScanRun struct {
	JobID        string     `db:"job_id"         json:"job_id"`
	RepoName     string     `db:"repo_name"      json:"repo_name"`
	RepoFullName string     `db:"repo_full_name" json:"repo_full_name"`
	Status       JobStatus  `db:"status"         json:"status"`
	Tools        []string   `db:"tools"          json:"tools"`
	Critical     int        `db:"critical"       json:"critical"`
	Total        int        `db:"total"          json:"total"`
	ToolErrors   int        `db:"tool_errors"    json:"tool_errors"`
	Error        *string    `db:"error_message"  json:"error,omitempty"`
	StartedAt    time.Time  `db:"started_at"     json:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"   json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"     json:"created_at"`
}

// Credential is a named secret held by the credential store. Value is sealed
// at rest and only ever opened in memory.
type Credential struct {
	Name        string    `db:"name"         json:"name"`
	SealedValue []byte    `db:"sealed_value" json:"-"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
