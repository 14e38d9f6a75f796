package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/studioordo/backoffice/internal/audit/domain"
	"github.com/studioordo/backoffice/internal/clock"
	ledgerdomain "github.com/studioordo/backoffice/internal/ledger/domain"
	"github.com/studioordo/backoffice/internal/observability/metrics"
	paymentdomain "github.com/studioordo/backoffice/internal/payment/domain"
	payoutdomain "github.com/studioordo/backoffice/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Gateway  paymentdomain.Gateway
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	gateway  paymentdomain.Gateway
	auditSvc auditdomain.Service
}

func NewService(p Params) payoutdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payout.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		gateway:  p.Gateway,
		auditSvc: p.AuditSvc,
	}
}

func idempotencyKeyFor(entryID snowflake.ID) string {
	return fmt.Sprintf("ledger_payout_%s", entryID)
}

func (s *Service) ExecuteApproved(ctx context.Context, entryIDs []snowflake.ID, actorID snowflake.ID, requestID string, confirm bool) (payoutdomain.Summary, error) {
	// Deliberate human-in-the-loop gate: without confirmation nothing is
	// read, written, or transferred.
	if !confirm {
		return payoutdomain.Summary{}, payoutdomain.ErrConfirmRequired
	}

	var summary payoutdomain.Summary
	for _, entryID := range entryIDs {
		if entryID == 0 {
			continue
		}
		s.executeOne(ctx, entryID, actorID, requestID, &summary)
	}

	metrics.Default().AddPayoutResult(metrics.PayoutOutcomePaid, summary.Paid)
	metrics.Default().AddPayoutResult(metrics.PayoutOutcomeFailed, summary.Failed)
	metrics.Default().AddPayoutResult(metrics.PayoutOutcomeSkipped, summary.Skipped)
	return summary, nil
}

func (s *Service) executeOne(ctx context.Context, entryID, actorID snowflake.ID, requestID string, summary *payoutdomain.Summary) {
	log := s.log.With(zap.String("ledger_entry_id", entryID.String()))

	var entry ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).First(&entry, entryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		summary.Skipped++
		return
	}
	if err != nil {
		log.Error("ledger entry lookup failed", zap.Error(err))
		summary.Failed++
		return
	}

	// Terminal or not-yet-approved states are skips, not errors.
	if entry.Status != ledgerdomain.EntryStatusApproved {
		summary.Skipped++
		return
	}
	// Platform revenue stays in the platform account; never transferred.
	if entry.EntryType == ledgerdomain.EntryTypePlatformRevenue {
		summary.Skipped++
		return
	}

	now := s.clock.Now()

	if entry.BeneficiaryUserID == nil {
		s.markExecutionFailed(ctx, entryID, "beneficiary_missing")
		summary.Failed++
		return
	}

	var execution payoutdomain.PayoutExecution
	err = s.db.WithContext(ctx).
		Where("ledger_entry_id = ? AND provider = ?", entryID, payoutdomain.ProviderStripe).
		First(&execution).Error
	hasExecution := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error("execution lookup failed", zap.Error(err))
		summary.Failed++
		return
	}

	// Idempotent repair: the transfer already went through but the process
	// died before the ledger entry was marked paid.
	if hasExecution && execution.Status == payoutdomain.ExecutionStatusSucceeded && execution.TransferID != nil {
		if err := s.markEntryPaid(ctx, s.db, entryID, now); err != nil {
			log.Error("idempotent repair failed", zap.Error(err))
			summary.Failed++
			return
		}
		log.Info("repaired ledger entry from succeeded execution", zap.String("transfer_id", *execution.TransferID))
		summary.Skipped++
		return
	}

	var account payoutdomain.ConnectAccount
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", *entry.BeneficiaryUserID, payoutdomain.ProviderStripe).
		First(&account).Error
	if err != nil || account.Status != payoutdomain.ConnectAccountStatusComplete {
		s.markExecutionFailed(ctx, entryID, "connect_onboarding_incomplete")
		summary.Failed++
		return
	}

	summary.Attempted++

	idempotencyKey := idempotencyKeyFor(entryID)
	if err := s.upsertPendingAttempt(ctx, entryID, idempotencyKey, hasExecution, execution.AttemptCount); err != nil {
		log.Error("recording execution attempt failed", zap.Error(err))
		summary.Failed++
		return
	}

	transfer, err := s.gateway.CreateTransfer(ctx, paymentdomain.TransferRequest{
		AmountCents:          entry.AmountCents,
		Currency:             entry.Currency,
		DestinationAccountID: account.AccountID,
		IdempotencyKey:       idempotencyKey,
		TransferGroup:        fmt.Sprintf("deal_%s", entry.DealID),
		Metadata: map[string]string{
			"ledger_entry_id":     entryID.String(),
			"deal_id":             entry.DealID.String(),
			"entry_type":          string(entry.EntryType),
			"beneficiary_user_id": entry.BeneficiaryUserID.String(),
		},
	})
	if err != nil {
		log.Warn("transfer failed", zap.Error(err))
		s.markExecutionFailed(ctx, entryID, err.Error())
		s.auditPayout(ctx, s.db, entry, actorID, requestID, "ledger.payout.failed", map[string]any{"error": err.Error()})
		summary.Failed++
		return
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&payoutdomain.PayoutExecution{}).
			Where("ledger_entry_id = ? AND provider = ?", entryID, payoutdomain.ProviderStripe).
			Updates(map[string]any{
				"status":      payoutdomain.ExecutionStatusSucceeded,
				"transfer_id": transfer.ID,
				"last_error":  nil,
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}
		if err := s.markEntryPaid(ctx, tx, entryID, now); err != nil {
			return err
		}
		return s.auditPayout(ctx, tx, entry, actorID, requestID, "ledger.payout.execute", map[string]any{
			"transfer_id":  transfer.ID,
			"amount_cents": entry.AmountCents,
			"currency":     entry.Currency,
		})
	})
	if err != nil {
		// The transfer went through; the execution row still says PENDING
		// with the stable idempotency key, so a re-run repairs safely.
		log.Error("post-transfer bookkeeping failed", zap.Error(err))
		summary.Failed++
		return
	}

	log.Info("payout executed",
		zap.String("transfer_id", transfer.ID),
		zap.Int64("amount_cents", entry.AmountCents),
	)
	summary.Paid++
}

func (s *Service) upsertPendingAttempt(ctx context.Context, entryID snowflake.ID, idempotencyKey string, exists bool, priorAttempts int) error {
	now := s.clock.Now()
	if !exists {
		return s.db.WithContext(ctx).Create(&payoutdomain.PayoutExecution{
			ID:              s.genID.Generate(),
			LedgerEntryID:   entryID,
			Provider:        payoutdomain.ProviderStripe,
			IdempotencyKey:  idempotencyKey,
			Status:          payoutdomain.ExecutionStatusPending,
			AttemptCount:    1,
			LastAttemptedAt: now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}).Error
	}

	return s.db.WithContext(ctx).Model(&payoutdomain.PayoutExecution{}).
		Where("ledger_entry_id = ? AND provider = ?", entryID, payoutdomain.ProviderStripe).
		Updates(map[string]any{
			"status":            payoutdomain.ExecutionStatusPending,
			"attempt_count":     priorAttempts + 1,
			"last_attempted_at": now,
			"last_error":        nil,
			"updated_at":        now,
		}).Error
}

func (s *Service) markExecutionFailed(ctx context.Context, entryID snowflake.ID, reason string) {
	now := s.clock.Now()

	res := s.db.WithContext(ctx).Model(&payoutdomain.PayoutExecution{}).
		Where("ledger_entry_id = ? AND provider = ?", entryID, payoutdomain.ProviderStripe).
		Updates(map[string]any{
			"status":     payoutdomain.ExecutionStatusFailed,
			"last_error": reason,
			"updated_at": now,
		})
	if res.Error != nil {
		s.log.Error("marking execution failed", zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 {
		return
	}

	err := s.db.WithContext(ctx).Create(&payoutdomain.PayoutExecution{
		ID:              s.genID.Generate(),
		LedgerEntryID:   entryID,
		Provider:        payoutdomain.ProviderStripe,
		IdempotencyKey:  idempotencyKeyFor(entryID),
		Status:          payoutdomain.ExecutionStatusFailed,
		AttemptCount:    1,
		LastAttemptedAt: now,
		LastError:       &reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}).Error
	if err != nil {
		s.log.Error("creating failed execution record", zap.Error(err))
	}
}

func (s *Service) markEntryPaid(ctx context.Context, tx *gorm.DB, entryID snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Model(&ledgerdomain.LedgerEntry{}).
		Where("id = ? AND status = ?", entryID, ledgerdomain.EntryStatusApproved).
		Updates(map[string]any{
			"status":     ledgerdomain.EntryStatusPaid,
			"paid_at":    now,
			"updated_at": now,
		}).Error
}

func (s *Service) auditPayout(ctx context.Context, tx *gorm.DB, entry ledgerdomain.LedgerEntry, actorID snowflake.ID, requestID, action string, extra map[string]any) error {
	actorStr := actorID.String()
	entryStr := entry.ID.String()

	metadata := map[string]any{
		"deal_id":    entry.DealID.String(),
		"entry_type": string(entry.EntryType),
	}
	if entry.BeneficiaryUserID != nil {
		metadata["beneficiary_user_id"] = entry.BeneficiaryUserID.String()
	}
	for key, value := range extra {
		metadata[key] = value
	}

	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    &actorStr,
		Action:     action,
		TargetType: "ledger_entry",
		TargetID:   &entryStr,
		RequestID:  requestID,
		Metadata:   metadata,
	})
}
