package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EntryType string

const (
	EntryTypeProviderPayout     EntryType = "PROVIDER_PAYOUT"
	EntryTypeReferrerCommission EntryType = "REFERRER_COMMISSION"
	EntryTypePlatformRevenue    EntryType = "PLATFORM_REVENUE"
)

type EntryStatus string

const (
	EntryStatusEarned   EntryStatus = "EARNED"
	EntryStatusApproved EntryStatus = "APPROVED"
	EntryStatusPaid     EntryStatus = "PAID"
	EntryStatusVoid     EntryStatus = "VOID"
)

// Revenue split rates. The platform share is never an independent rate: it
// is always the remainder after the floored provider and referrer cuts, so
// the three amounts sum exactly to gross for every integer gross.
const (
	ReferrerCommissionRate = 0.20
	ProviderPayoutRate     = 0.70
)

// LedgerEntry is a single beneficiary's claim on a portion of a deal's
// gross revenue. At most one entry exists per (deal, entry type); the
// unique index enforces this at the storage layer so concurrent settlement
// attempts cannot race.
type LedgerEntry struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	DealID            snowflake.ID      `gorm:"not null;uniqueIndex:ux_ledger_entries_deal_type,priority:1"`
	EntryType         EntryType         `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_deal_type,priority:2"`
	BeneficiaryUserID *snowflake.ID     `gorm:"index"`
	AmountCents       int64             `gorm:"not null"`
	Currency          string            `gorm:"type:text;not null"`
	Status            EntryStatus       `gorm:"type:text;not null;index"`
	EarnedAt          time.Time         `gorm:"not null"`
	ApprovedAt        *time.Time
	PaidAt            *time.Time
	ApprovedByUserID  *snowflake.ID
	Metadata          datatypes.JSONMap `gorm:"type:json"`
	CreatedAt         time.Time         `gorm:"not null"`
	UpdatedAt         time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }
