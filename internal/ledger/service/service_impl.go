package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/studioordo/backoffice/internal/audit/domain"
	"github.com/studioordo/backoffice/internal/clock"
	ledgerdomain "github.com/studioordo/backoffice/internal/ledger/domain"
	"github.com/studioordo/backoffice/internal/money"
	"github.com/studioordo/backoffice/internal/observability/metrics"
	"github.com/studioordo/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("ledger.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

type dealPricing struct {
	DealID         snowflake.ID
	ProviderUserID *snowflake.ID
	ReferrerUserID *snowflake.ID
	PriceCents     int64
	Currency       string
}

func (s *Service) EnsureEarnedForDeliveredDeal(ctx context.Context, dealID snowflake.ID, requestID string) error {
	var pricing dealPricing
	err := s.db.WithContext(ctx).
		Table("deals").
		Select("deals.id AS deal_id, deals.provider_user_id, deals.referrer_user_id, offers.price_cents, offers.currency").
		Joins("JOIN offers ON offers.slug = deals.offer_slug").
		Where("deals.id = ?", dealID).
		Scan(&pricing).Error
	if err != nil {
		return err
	}
	if pricing.DealID == 0 {
		// Unknown deal: nothing to settle.
		return nil
	}
	if pricing.PriceCents <= 0 {
		// Zero-dollar deals produce no ledger activity.
		return nil
	}

	gross, err := money.FromCents(pricing.PriceCents, pricing.Currency)
	if err != nil {
		return err
	}

	zero, err := money.Zero(gross.Currency())
	if err != nil {
		return err
	}

	referrerCut := zero
	if pricing.ReferrerUserID != nil {
		if referrerCut, err = gross.MultiplyRate(ledgerdomain.ReferrerCommissionRate); err != nil {
			return err
		}
	}
	providerCut := zero
	if pricing.ProviderUserID != nil {
		if providerCut, err = gross.MultiplyRate(ledgerdomain.ProviderPayoutRate); err != nil {
			return err
		}
	}

	// Platform revenue is the remainder, never a rounded rate of its own.
	platformCut, err := gross.Subtract(referrerCut)
	if err != nil {
		return err
	}
	if platformCut, err = platformCut.Subtract(providerCut); err != nil {
		return err
	}

	now := s.clock.Now()
	entries := []struct {
		entryType   ledgerdomain.EntryType
		beneficiary *snowflake.ID
		amount      money.Money
		metadata    map[string]any
	}{
		{ledgerdomain.EntryTypeProviderPayout, pricing.ProviderUserID, providerCut,
			map[string]any{"basis": "gross", "rate": ledgerdomain.ProviderPayoutRate}},
		{ledgerdomain.EntryTypeReferrerCommission, pricing.ReferrerUserID, referrerCut,
			map[string]any{"basis": "gross", "rate": ledgerdomain.ReferrerCommissionRate}},
		{ledgerdomain.EntryTypePlatformRevenue, nil, platformCut,
			map[string]any{"basis": "gross", "remainder": true}},
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			if !entry.amount.IsPositive() {
				continue
			}
			record := ledgerdomain.LedgerEntry{
				ID:                s.genID.Generate(),
				DealID:            dealID,
				EntryType:         entry.entryType,
				BeneficiaryUserID: entry.beneficiary,
				AmountCents:       entry.amount.AmountCents(),
				Currency:          entry.amount.Currency(),
				Status:            ledgerdomain.EntryStatusEarned,
				EarnedAt:          now,
				Metadata:          datatypes.JSONMap(entry.metadata),
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}

		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeService,
			Action:     "ledger.entries.earned",
			TargetType: "ledger",
			RequestID:  requestID,
			Metadata: map[string]any{
				"deal_id":             dealID.String(),
				"gross":               gross.AmountCents(),
				"provider_payout":     providerCut.AmountCents(),
				"referrer_commission": referrerCut.AmountCents(),
				"platform_revenue":    platformCut.AmountCents(),
			},
		})
	})
	if err != nil {
		// The (deal_id, entry_type) unique index turns a duplicate
		// settlement into a no-op: the first transaction wrote all three
		// rows, so a conflict means the deal is already settled.
		if db.IsDuplicateKeyErr(err) {
			s.log.Debug("ledger already settled", zap.String("deal_id", dealID.String()))
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.amount.IsPositive() {
			metrics.Default().IncLedgerEntry(string(entry.entryType))
		}
	}
	return nil
}

func (s *Service) ApproveEntries(ctx context.Context, entryIDs []snowflake.ID, actorID snowflake.ID, requestID string, confirm bool) (ledgerdomain.ApprovalResult, error) {
	if !confirm {
		return ledgerdomain.ApprovalResult{}, ledgerdomain.ErrConfirmRequired
	}

	var result ledgerdomain.ApprovalResult
	now := s.clock.Now()
	actorStr := actorID.String()

	for _, entryID := range entryIDs {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&ledgerdomain.LedgerEntry{}).
				Where("id = ? AND status = ?", entryID, ledgerdomain.EntryStatusEarned).
				Updates(map[string]any{
					"status":              ledgerdomain.EntryStatusApproved,
					"approved_at":         now,
					"approved_by_user_id": actorID,
					"updated_at":          now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				result.Skipped++
				return nil
			}
			result.Approved++

			entryStr := entryID.String()
			return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
				ActorType:  auditdomain.ActorTypeUser,
				ActorID:    &actorStr,
				Action:     "ledger.entry.approved",
				TargetType: "ledger_entry",
				TargetID:   &entryStr,
				RequestID:  requestID,
			})
		})
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *Service) VoidForRefundedDeal(ctx context.Context, dealID snowflake.ID, requestID string) (int64, error) {
	now := s.clock.Now()
	var voided int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ledgerdomain.LedgerEntry{}).
			Where("deal_id = ? AND status IN ?", dealID,
				[]ledgerdomain.EntryStatus{ledgerdomain.EntryStatusEarned, ledgerdomain.EntryStatusApproved}).
			Updates(map[string]any{
				"status":     ledgerdomain.EntryStatusVoid,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		voided = res.RowsAffected
		if voided == 0 {
			return nil
		}

		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeService,
			Action:     "ledger.entries.void_for_refund",
			TargetType: "ledger",
			RequestID:  requestID,
			Metadata: map[string]any{
				"deal_id": dealID.String(),
				"voided":  voided,
			},
		})
	})
	return voided, err
}

func (s *Service) List(ctx context.Context, filter ledgerdomain.ListFilter) ([]ledgerdomain.LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := s.db.WithContext(ctx).Model(&ledgerdomain.LedgerEntry{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DealID != 0 {
		query = query.Where("deal_id = ?", filter.DealID)
	}

	var entries []ledgerdomain.LedgerEntry
	err := query.Order("earned_at DESC").Limit(limit).Find(&entries).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return entries, nil
}
