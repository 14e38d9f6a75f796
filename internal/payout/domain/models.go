package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const ProviderStripe = "STRIPE"

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
)

// PayoutExecution is the crash-safety record for one ledger entry's
// transfer. The idempotency key is derived deterministically from the
// entry id, so a retry after a crash reuses the same key and the gateway
// collapses the duplicate.
type PayoutExecution struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	LedgerEntryID   snowflake.ID    `gorm:"not null;uniqueIndex:ux_payout_exec_entry_provider,priority:1"`
	Provider        string          `gorm:"type:text;not null;uniqueIndex:ux_payout_exec_entry_provider,priority:2"`
	IdempotencyKey  string          `gorm:"type:text;not null"`
	TransferID      *string         `gorm:"type:text"`
	Status          ExecutionStatus `gorm:"type:text;not null"`
	AttemptCount    int             `gorm:"not null;default:0"`
	LastAttemptedAt time.Time       `gorm:"not null"`
	LastError       *string         `gorm:"type:text"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (PayoutExecution) TableName() string { return "payout_executions" }

type ConnectAccountStatus string

const (
	ConnectAccountStatusPending  ConnectAccountStatus = "PENDING"
	ConnectAccountStatusComplete ConnectAccountStatus = "COMPLETE"
)

// ConnectAccount records a beneficiary's payment-provider onboarding.
// Transfers only go to accounts whose onboarding is COMPLETE.
type ConnectAccount struct {
	UserID    snowflake.ID         `gorm:"primaryKey"`
	Provider  string               `gorm:"primaryKey;type:text"`
	AccountID string               `gorm:"type:text;not null"`
	Status    ConnectAccountStatus `gorm:"type:text;not null"`
	CreatedAt time.Time            `gorm:"not null"`
	UpdatedAt time.Time            `gorm:"not null"`
}

// TableName sets the database table name.
func (ConnectAccount) TableName() string { return "connect_accounts" }

// Summary aggregates a payout batch. Partial success is a normal outcome,
// not an error.
type Summary struct {
	Attempted int `json:"attempted"`
	Paid      int `json:"paid"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type Service interface {
	// ExecuteApproved transfers funds for the given APPROVED ledger
	// entries. Each entry is handled independently; a failure marks that
	// entry and the batch continues.
	ExecuteApproved(ctx context.Context, entryIDs []snowflake.ID, actorID snowflake.ID, requestID string, confirm bool) (Summary, error)
}

var ErrConfirmRequired = errors.New("confirm_required")
