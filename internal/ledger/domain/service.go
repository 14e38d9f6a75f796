package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type ListFilter struct {
	Status EntryStatus
	DealID snowflake.ID
	Limit  int
}

// ApprovalResult reports how a batch approval went; skipped entries were
// not in an approvable state.
type ApprovalResult struct {
	Approved int
	Skipped  int
}

type Service interface {
	// EnsureEarnedForDeliveredDeal computes the three-way split for a
	// delivered deal and persists it exactly once. Safe to call repeatedly
	// and concurrently; later calls are no-ops.
	EnsureEarnedForDeliveredDeal(ctx context.Context, dealID snowflake.ID, requestID string) error

	// ApproveEntries moves EARNED entries to APPROVED. Gated on confirm.
	ApproveEntries(ctx context.Context, entryIDs []snowflake.ID, actorID snowflake.ID, requestID string, confirm bool) (ApprovalResult, error)

	// VoidForRefundedDeal voids every not-yet-paid entry for the deal.
	VoidForRefundedDeal(ctx context.Context, dealID snowflake.ID, requestID string) (int64, error)

	List(ctx context.Context, filter ListFilter) ([]LedgerEntry, error)
}

var (
	ErrConfirmRequired = errors.New("confirm_required")
	ErrDealNotFound    = errors.New("deal not found")
)
