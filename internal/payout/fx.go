package payout

import (
	"github.com/studioordo/backoffice/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(service.NewService),
)
