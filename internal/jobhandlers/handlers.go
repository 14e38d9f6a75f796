// Package jobhandlers provides the typed handlers for each background job
// type. Handlers are thin adapters around injected collaborators; retry
// policy lives entirely in the job store, so a handler only reports whether
// its work succeeded, should be retried, or can never succeed.
package jobhandlers

import (
	"context"
	"encoding/json"
	"errors"

	jobdomain "github.com/studioordo/backoffice/internal/job/domain"
	paymentdomain "github.com/studioordo/backoffice/internal/payment/domain"
	"github.com/studioordo/backoffice/internal/providers/email"
	"go.uber.org/zap"
)

const (
	TypeEmailSend     = "email.send"
	TypeNewsletter    = "newsletter.send"
	TypeDiscordSync   = "discord.sync"
	TypeStripeWebhook = "stripe.webhook.process"
)

// NewEmailSend builds the email.send handler. A provider failure is a
// retryable result — mail is never silently dropped.
func NewEmailSend(provider email.Provider, log *zap.Logger) jobdomain.Handler {
	log = log.Named("jobs.email")
	return func(ctx context.Context, job jobdomain.Payload) jobdomain.Result {
		var msg email.Message
		if err := json.Unmarshal(job.Data, &msg); err != nil {
			return jobdomain.Fail(err)
		}

		if err := provider.Send(ctx, msg); err != nil {
			log.Error("email send failed", zap.String("to", msg.To), zap.Error(err))
			return jobdomain.Retry(err)
		}

		log.Info("email sent via job queue", zap.String("to", msg.To), zap.String("tag", msg.Tag))
		return jobdomain.Succeed()
	}
}

type newsletterPayload struct {
	SendRunID string `json:"sendRunId"`
}

// NewNewsletterSend builds the newsletter.send handler around a
// caller-supplied dispatch function keyed by send run.
func NewNewsletterSend(dispatch func(ctx context.Context, sendRunID string) (int, error), log *zap.Logger) jobdomain.Handler {
	log = log.Named("jobs.newsletter")
	return func(ctx context.Context, job jobdomain.Payload) jobdomain.Result {
		var payload newsletterPayload
		if err := json.Unmarshal(job.Data, &payload); err != nil {
			return jobdomain.Fail(err)
		}

		dispatched, err := dispatch(ctx, payload.SendRunID)
		if err != nil {
			return jobdomain.Retry(err)
		}

		log.Info("newsletter dispatch complete",
			zap.String("send_run_id", payload.SendRunID),
			zap.Int("dispatched", dispatched),
		)
		return jobdomain.Succeed()
	}
}

type discordSyncPayload struct {
	UserID  string   `json:"userId"`
	RoleIDs []string `json:"roleIds"`
}

// NewDiscordSync builds the discord.sync handler for external role sync.
func NewDiscordSync(sync func(ctx context.Context, userID string, roleIDs []string) error, log *zap.Logger) jobdomain.Handler {
	log = log.Named("jobs.discord")
	return func(ctx context.Context, job jobdomain.Payload) jobdomain.Result {
		var payload discordSyncPayload
		if err := json.Unmarshal(job.Data, &payload); err != nil {
			return jobdomain.Fail(err)
		}

		if err := sync(ctx, payload.UserID, payload.RoleIDs); err != nil {
			return jobdomain.Retry(err)
		}

		log.Info("discord sync complete", zap.String("user_id", payload.UserID))
		return jobdomain.Succeed()
	}
}

type stripeWebhookPayload struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	RequestID string `json:"requestId"`
}

// NewStripeWebhook builds the stripe.webhook.process handler around the
// inbound-webhook processing function.
func NewStripeWebhook(process func(ctx context.Context, payload []byte, signature, requestID string) error, log *zap.Logger) jobdomain.Handler {
	log = log.Named("jobs.stripe_webhook")
	return func(ctx context.Context, job jobdomain.Payload) jobdomain.Result {
		var payload stripeWebhookPayload
		if err := json.Unmarshal(job.Data, &payload); err != nil {
			return jobdomain.Fail(err)
		}

		if err := process(ctx, []byte(payload.Payload), payload.Signature, payload.RequestID); err != nil {
			// A bad signature or malformed payload never becomes valid on
			// retry.
			if errors.Is(err, paymentdomain.ErrInvalidSignature) || errors.Is(err, paymentdomain.ErrInvalidPayload) {
				return jobdomain.Fail(err)
			}
			return jobdomain.Retry(err)
		}

		log.Info("stripe webhook processed async", zap.String("request_id", payload.RequestID))
		return jobdomain.Succeed()
	}
}
