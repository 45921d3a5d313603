// Package discord adapts discordgo to the ports of the announcement,
// reconcile and repair packages.
package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/announcement"
)

const (
	memberPageSize = 1000
	embedColor     = 0x3498db
)

// restAPI is the subset of *discordgo.Session used by Client.
type restAPI interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Client implements the messaging, membership and notification ports over
// the Discord REST API. Not-found and forbidden responses are reported as
// shared.ErrNotFound and shared.ErrForbidden.
type Client struct {
	api    restAPI
	logger *slog.Logger
}

// NewClient wraps a discordgo session.
func NewClient(session *discordgo.Session, logger *slog.Logger) *Client {
	return newClient(session, logger)
}

func newClient(api restAPI, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// Send posts content as a new embed message.
func (c *Client) Send(ctx context.Context, channelID string, content announcement.Content) (string, error) {
	msg, err := c.api.ChannelMessageSendEmbed(channelID, toEmbed(content), discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("send message", err)
	}
	return msg.ID, nil
}

// Fetch checks that the message still exists.
func (c *Client) Fetch(ctx context.Context, channelID, messageID string) error {
	_, err := c.api.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	return classify("fetch message", err)
}

// Edit replaces the embed of an existing message.
func (c *Client) Edit(ctx context.Context, channelID, messageID string, content announcement.Content) error {
	_, err := c.api.ChannelMessageEditEmbed(channelID, messageID, toEmbed(content), discordgo.WithContext(ctx))
	return classify("edit message", err)
}

// Roster returns the members of each requested role that exists in the guild.
func (c *Client) Roster(ctx context.Context, guildID string, roleIDs []string) (announcement.Roster, error) {
	roles, err := c.api.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list roles", err)
	}
	wanted := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = true
	}
	roster := announcement.Roster{}
	for _, r := range roles {
		if wanted[r.ID] {
			roster[r.ID] = []announcement.Member{}
		}
	}
	if len(roster) == 0 {
		return roster, nil
	}

	after := ""
	for {
		page, err := c.api.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify("list members", err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			after = m.User.ID
			if m.User.Bot {
				continue
			}
			for _, roleID := range m.Roles {
				if _, ok := roster[roleID]; ok {
					roster[roleID] = append(roster[roleID], announcement.Member{ID: m.User.ID, DisplayName: displayName(m)})
				}
			}
		}
		if len(page) < memberPageSize {
			return roster, nil
		}
	}
}

// MemberRoles returns the role ids held by a guild member.
func (c *Client) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	m, err := c.api.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("get member", err)
	}
	return m.Roles, nil
}

// AddRole grants roleID.
func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return classify("add role", c.api.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason("privilege granted")))
}

// RemoveRole revokes roleID.
func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return classify("remove role", c.api.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason("privilege updated")))
}

// DirectMessage sends text to the user's DM channel.
func (c *Client) DirectMessage(ctx context.Context, userID, text string) error {
	ch, err := c.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return classify("open dm", err)
	}
	_, err = c.api.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	return classify("send dm", err)
}

// PostChannel sends plain text to a channel.
func (c *Client) PostChannel(ctx context.Context, channelID, text string) error {
	_, err := c.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return classify("post channel", err)
}

// ChannelGuild returns the guild owning channelID.
func (c *Client) ChannelGuild(ctx context.Context, channelID string) (string, error) {
	ch, err := c.api.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("get channel", err)
	}
	return ch.GuildID, nil
}

func displayName(m *discordgo.Member) string {
	switch {
	case m.Nick != "":
		return m.Nick
	case m.User.GlobalName != "":
		return m.User.GlobalName
	default:
		return m.User.Username
	}
}

func toEmbed(content announcement.Content) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, len(content.Sections))
	for i, s := range content.Sections {
		fields[i] = &discordgo.MessageEmbedField{Name: s.Name, Value: s.Value}
	}
	embed := &discordgo.MessageEmbed{
		Title:  content.Title,
		Color:  embedColor,
		Fields: fields,
	}
	if content.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: content.Footer}
	}
	if !content.Timestamp.IsZero() {
		embed.Timestamp = content.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}
