package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// DiscordSender posts to a channel webhook. No bot token is needed: the
// webhook id and token come from the webhook URL.
type DiscordSender struct {
	session *discordgo.Session
	id      string
	token   string
}

func NewDiscordSender(webhookURL string) (*DiscordSender, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	return &DiscordSender{session: session, id: id, token: token}, nil
}

func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	params := &discordgo.WebhookParams{
		Content: fmt.Sprintf("**%s**\n%s", title, message),
	}
	if _, err := d.session.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: execute webhook: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string {
	return "discord"
}

// parseWebhookURL extracts id and token from
// https://discord.com/api/webhooks/<id>/<token>.
func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("discord: parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("discord: webhook url %q has no id/token", raw)
}
