package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeUser    ActorType = "USER"
	ActorTypeService ActorType = "SERVICE"
)

// AuditLog is an append-only record of a state change and who caused it.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	ActorType  ActorType         `gorm:"type:text;not null"`
	ActorID    *string           `gorm:"type:text"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text"`
	RequestID  string            `gorm:"type:text;not null;index"`
	Metadata   datatypes.JSONMap `gorm:"type:json"`
	CreatedAt  time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Entry is the caller-facing shape of an audit write.
type Entry struct {
	ActorType  ActorType
	ActorID    *string
	Action     string
	TargetType string
	TargetID   *string
	RequestID  string
	Metadata   map[string]any
}

// Service appends audit records. Record writes through the supplied
// transaction handle so the audit row commits atomically with the state
// change it describes.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

var ErrInvalidAction = errors.New("invalid_action")
