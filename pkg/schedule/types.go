package schedule

import "time"

// Job is one registered polling job. Every job carries its full partition:
// scheduled observations are never implicitly scoped.
type Job struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Spec       string    `json:"spec"` // cron expression or @every interval
	ProjectID  string    `json:"project_id"`
	GroupID    string    `json:"group_id"`
	SessionKey string    `json:"session_key"`
	Source     string    `json:"source"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AddParams contains the fields for creating a job.
type AddParams struct {
	Name       string `json:"name"`
	Spec       string `json:"spec"`
	ProjectID  string `json:"project_id"`
	GroupID    string `json:"group_id"`
	SessionKey string `json:"session_key"`
	Source     string `json:"source"`
	Enabled    bool   `json:"enabled"`
}

// JobPatch contains the fields that can be updated on an existing job.
type JobPatch struct {
	Name    *string `json:"name,omitempty"`
	Spec    *string `json:"spec,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}
