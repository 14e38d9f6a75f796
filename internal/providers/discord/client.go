// Package discord syncs member roles in the community guild. The worker's
// discord.sync job reconciles a member's role set against what their deals
// and subscriptions entitle them to.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	BotToken string
	GuildID  string
	BaseURL  string
}

// Client is a minimal Discord REST client covering the guild member role
// surface the role sync job needs.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://discord.com/api/v10"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log.Named("discord.client"),
	}
}

// Enabled reports whether the client has credentials to act with.
func (c *Client) Enabled() bool {
	return c.cfg.BotToken != "" && c.cfg.GuildID != ""
}

// SyncMemberRoles replaces the member's role set in the guild.
func (c *Client) SyncMemberRoles(ctx context.Context, userID string, roleIDs []string) error {
	if !c.Enabled() {
		return fmt.Errorf("discord client not configured")
	}

	payload, err := json.Marshal(map[string]any{"roles": roleIDs})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/guilds/%s/members/%s", c.cfg.BaseURL, c.cfg.GuildID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.BotToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.log.Warn("discord role sync rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("user_id", userID),
			zap.ByteString("body", body),
		)
		return fmt.Errorf("discord role sync failed: status %d", resp.StatusCode)
	}

	c.log.Info("discord roles synced",
		zap.String("user_id", userID),
		zap.Int("roles", len(roleIDs)),
	)
	return nil
}
