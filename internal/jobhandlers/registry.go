package jobhandlers

import (
	"context"

	"github.com/studioordo/backoffice/internal/job/processor"
	"github.com/studioordo/backoffice/internal/job/store"
	"github.com/studioordo/backoffice/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Dependencies are the external collaborators the handlers wrap. Optional
// collaborators that are absent leave their job type unregistered, which
// also drops it from the enqueue allow-list.
type Dependencies struct {
	fx.In

	Log           *zap.Logger
	EmailProvider email.Provider
	Newsletter    NewsletterDispatchFunc `optional:"true"`
	DiscordSync   DiscordSyncFunc        `optional:"true"`
	StripeWebhook StripeWebhookFunc      `optional:"true"`
}

type (
	NewsletterDispatchFunc func(ctx context.Context, sendRunID string) (int, error)
	DiscordSyncFunc        func(ctx context.Context, userID string, roleIDs []string) error
	StripeWebhookFunc      func(ctx context.Context, payload []byte, signature, requestID string) error
)

// NewRegistry builds the type->handler map from the wired collaborators.
func NewRegistry(deps Dependencies) processor.Registry {
	registry := processor.Registry{
		TypeEmailSend: NewEmailSend(deps.EmailProvider, deps.Log),
	}
	if deps.Newsletter != nil {
		registry[TypeNewsletter] = NewNewsletterSend(deps.Newsletter, deps.Log)
	}
	if deps.DiscordSync != nil {
		registry[TypeDiscordSync] = NewDiscordSync(deps.DiscordSync, deps.Log)
	}
	if deps.StripeWebhook != nil {
		registry[TypeStripeWebhook] = NewStripeWebhook(deps.StripeWebhook, deps.Log)
	}
	return registry
}

// NewKnownTypes derives the enqueue allow-list from the registry so the two
// can never drift apart.
func NewKnownTypes(registry processor.Registry) store.KnownTypes {
	return store.NewKnownTypes(registry.Types()...)
}

var Module = fx.Module("jobhandlers",
	fx.Provide(
		NewRegistry,
		NewKnownTypes,
	),
)
