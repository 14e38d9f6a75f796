package payment

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	dealdomain "github.com/studioordo/backoffice/internal/deal/domain"
	"github.com/studioordo/backoffice/internal/jobhandlers"
	ledgerdomain "github.com/studioordo/backoffice/internal/ledger/domain"
	"github.com/studioordo/backoffice/internal/payment/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WebhookProcessorParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Verifier  *stripe.WebhookVerifier
	LedgerSvc ledgerdomain.Service
}

// WebhookProcessor turns verified Stripe events into deal transitions and
// the ledger writes that follow from them. It runs inside the
// stripe.webhook.process job, so every step must be safe to repeat.
type WebhookProcessor struct {
	db        *gorm.DB
	log       *zap.Logger
	verifier  *stripe.WebhookVerifier
	ledgerSvc ledgerdomain.Service
}

func NewWebhookProcessor(p WebhookProcessorParams) *WebhookProcessor {
	return &WebhookProcessor{
		db:        p.DB,
		log:       p.Log.Named("payment.webhook"),
		verifier:  p.Verifier,
		ledgerSvc: p.LedgerSvc,
	}
}

// NewStripeWebhookFunc adapts the processor for the job handler registry.
func NewStripeWebhookFunc(processor *WebhookProcessor) jobhandlers.StripeWebhookFunc {
	return processor.Process
}

type eventObject struct {
	Metadata map[string]string `json:"metadata"`
}

func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature, requestID string) error {
	if err := p.verifier.Verify(payload, signature); err != nil {
		return err
	}

	event, err := stripe.ParseEvent(payload)
	if err != nil {
		return err
	}

	log := p.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("request_id", requestID),
	)

	switch event.Type {
	case "checkout.session.completed":
		dealID, ok := dealIDFromEvent(event)
		if !ok {
			log.Debug("event carries no deal metadata, ignoring")
			return nil
		}
		return p.settleDelivered(ctx, dealID, requestID, log)

	case "charge.refunded":
		dealID, ok := dealIDFromEvent(event)
		if !ok {
			log.Debug("event carries no deal metadata, ignoring")
			return nil
		}
		return p.voidRefunded(ctx, dealID, requestID, log)

	default:
		log.Debug("unhandled event type, ignoring")
		return nil
	}
}

func (p *WebhookProcessor) settleDelivered(ctx context.Context, dealID snowflake.ID, requestID string, log *zap.Logger) error {
	res := p.db.WithContext(ctx).
		Model(&dealdomain.Deal{}).
		Where("id = ? AND status = ?", dealID, dealdomain.DealStatusPending).
		Update("status", dealdomain.DealStatusDelivered)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Info("deal delivered", zap.String("deal_id", dealID.String()))
	}

	// Safe to call on redelivery: settlement is idempotent per deal.
	return p.ledgerSvc.EnsureEarnedForDeliveredDeal(ctx, dealID, requestID)
}

func (p *WebhookProcessor) voidRefunded(ctx context.Context, dealID snowflake.ID, requestID string, log *zap.Logger) error {
	res := p.db.WithContext(ctx).
		Model(&dealdomain.Deal{}).
		Where("id = ? AND status IN ?", dealID,
			[]dealdomain.DealStatus{dealdomain.DealStatusPending, dealdomain.DealStatusDelivered}).
		Update("status", dealdomain.DealStatusRefunded)
	if res.Error != nil {
		return res.Error
	}

	voided, err := p.ledgerSvc.VoidForRefundedDeal(ctx, dealID, requestID)
	if err != nil {
		return err
	}
	log.Info("deal refunded",
		zap.String("deal_id", dealID.String()),
		zap.Int64("entries_voided", voided),
	)
	return nil
}

func dealIDFromEvent(event *stripe.Event) (snowflake.ID, bool) {
	var object eventObject
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		return 0, false
	}
	raw := strings.TrimSpace(object.Metadata["deal_id"])
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}
