package discord

import (
	"github.com/studioordo/backoffice/internal/config"
	"github.com/studioordo/backoffice/internal/jobhandlers"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewFromConfig(cfg config.Config, log *zap.Logger) *Client {
	return NewClient(Config{
		BotToken: cfg.Discord.BotToken,
		GuildID:  cfg.Discord.GuildID,
		BaseURL:  cfg.Discord.BaseURL,
	}, log)
}

// NewSyncFunc adapts the client for the discord.sync job handler.
func NewSyncFunc(client *Client) jobhandlers.DiscordSyncFunc {
	if !client.Enabled() {
		return nil
	}
	return client.SyncMemberRoles
}

var Module = fx.Module("providers.discord",
	fx.Provide(
		NewFromConfig,
		NewSyncFunc,
	),
)
