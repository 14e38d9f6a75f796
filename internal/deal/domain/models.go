package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type DealStatus string

const (
	DealStatusPending   DealStatus = "PENDING"
	DealStatusDelivered DealStatus = "DELIVERED"
	DealStatusRefunded  DealStatus = "REFUNDED"
)

// Offer is the priced service a deal is sold against.
type Offer struct {
	Slug       string    `gorm:"primaryKey;type:text"`
	Title      string    `gorm:"type:text;not null"`
	PriceCents int64     `gorm:"not null;default:0"`
	Currency   string    `gorm:"type:text;not null;default:'USD'"`
	Status     string    `gorm:"type:text;not null;default:'ACTIVE'"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Offer) TableName() string { return "offers" }

// Deal is a commercial transaction between a client and a service
// provider, optionally attributed to a referrer.
type Deal struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	OfferSlug      string        `gorm:"type:text;not null;index"`
	ProviderUserID *snowflake.ID `gorm:"index"`
	ReferrerUserID *snowflake.ID `gorm:"index"`
	Status         DealStatus    `gorm:"type:text;not null;default:'PENDING'"`
	CreatedAt      time.Time     `gorm:"not null"`
	UpdatedAt      time.Time     `gorm:"not null"`
}

// TableName sets the database table name.
func (Deal) TableName() string { return "deals" }
