package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// JobRecord is a persisted unit of background work. Rows move
// pending -> running -> completed, or back through failed with a backoff
// timestamp until retries are exhausted and the row goes dead.
type JobRecord struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	Type        string         `gorm:"type:text;not null"`
	Data        datatypes.JSON `gorm:"type:json"`
	Status      Status         `gorm:"type:text;not null;index:idx_job_queue_claim,priority:1"`
	RunAt       time.Time      `gorm:"not null;index:idx_job_queue_claim,priority:2"`
	Attempts    int            `gorm:"not null;default:0"`
	MaxRetries  int            `gorm:"not null;default:3"`
	LastError   *string        `gorm:"type:text"`
	CreatedAt   time.Time      `gorm:"not null"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
}

// TableName sets the database table name.
func (JobRecord) TableName() string { return "job_queue" }

// Payload is what a handler receives: the job type plus its opaque data.
type Payload struct {
	Type string
	Data json.RawMessage
}

// Stats is the per-status row count snapshot.
type Stats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dead      int64 `json:"dead"`
}
