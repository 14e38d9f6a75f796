package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/studioordo/backoffice/internal/audit"
	"github.com/studioordo/backoffice/internal/clock"
	"github.com/studioordo/backoffice/internal/config"
	"github.com/studioordo/backoffice/internal/job"
	"github.com/studioordo/backoffice/internal/jobhandlers"
	"github.com/studioordo/backoffice/internal/ledger"
	"github.com/studioordo/backoffice/internal/logger"
	"github.com/studioordo/backoffice/internal/migration"
	"github.com/studioordo/backoffice/internal/payment"
	"github.com/studioordo/backoffice/internal/providers/discord"
	"github.com/studioordo/backoffice/internal/providers/email"
	"github.com/studioordo/backoffice/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Handler collaborators.
		audit.Module,
		email.Module,
		discord.Module,
		payment.Module,
		ledger.Module,

		job.Module,
		jobhandlers.Module,
		job.RunnerModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
