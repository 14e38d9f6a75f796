package payment

import (
	"github.com/studioordo/backoffice/internal/config"
	paymentdomain "github.com/studioordo/backoffice/internal/payment/domain"
	"github.com/studioordo/backoffice/internal/payment/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewGateway(cfg config.Config, log *zap.Logger) paymentdomain.Gateway {
	return stripe.NewClient(cfg.Stripe.SecretKey, cfg.Stripe.BaseURL, log)
}

func NewWebhookVerifier(cfg config.Config) *stripe.WebhookVerifier {
	return stripe.NewWebhookVerifier(cfg.Stripe.WebhookSecret)
}

var Module = fx.Module("payment",
	fx.Provide(
		NewGateway,
		NewWebhookVerifier,
		NewWebhookProcessor,
		NewStripeWebhookFunc,
	),
)
