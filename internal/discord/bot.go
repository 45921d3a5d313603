package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/announcement"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/reconcile"
)

const (
	commandAddPrivilege = "addprivilege"
	commandStaff        = "staff"
	commandStaffRefresh = "staff_refresh"

	interactionTimeout = 2 * time.Minute
)

// Commands are the application commands the bot registers.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        commandAddPrivilege,
		Description: "Add or update a user's privilege from the game server",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Discord user", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "steam_id", Description: "SteamID of the user", Required: true},
		},
	},
	{Name: commandStaff, Description: "Create or show the staff list message"},
	{Name: commandStaffRefresh, Description: "Force a refresh of the staff list message"},
}

// Workflow is the reconciliation entry point used by the bot.
type Workflow interface {
	Run(ctx context.Context, req reconcile.Request) reconcile.Result
	OnRoleMembershipChanged(ctx context.Context, roleID, guildID string)
}

// Announcements is the announcement surface used by the bot.
type Announcements interface {
	GetOrCreate(ctx context.Context, guildID, channelID string) (announcement.Record, error)
	Refresh(ctx context.Context, guildID, channelID string) bool
	HasRole(roleID string) bool
}

// BotConfig groups bot settings.
type BotConfig struct {
	// GuildID registers commands in one guild; empty registers globally.
	GuildID        string
	StaffChannelID string
}

// Bot routes gateway events and slash commands into the core.
type Bot struct {
	session  *discordgo.Session
	cfg      BotConfig
	workflow Workflow
	staff    Announcements
	logger   *slog.Logger
	ctx      context.Context
}

// NewBot registers the gateway handlers on session. Handlers use ctx as the
// parent of every operation they start.
func NewBot(ctx context.Context, session *discordgo.Session, cfg BotConfig, workflow Workflow, staff Announcements, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{session: session, cfg: cfg, workflow: workflow, staff: staff, logger: logger, ctx: ctx}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	session.AddHandler(b.onMemberUpdate)
	session.AddHandler(b.onRoleUpdate)
	return b
}

// Run opens the gateway, registers commands and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	defer func() {
		if err := b.session.Close(); err != nil {
			b.logger.Warn("discord close", slog.Any("error", err))
		}
	}()
	if _, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.cfg.GuildID, Commands); err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	b.logger.Info("commands registered", slog.Int("count", len(Commands)), slog.String("guild_id", b.cfg.GuildID))
	<-ctx.Done()
	return nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("connected to discord", slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)))
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, interactionTimeout)
	defer cancel()

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx)); err != nil {
		b.logger.Error("defer interaction", slog.Any("error", err))
		return
	}

	reply := b.dispatch(ctx, i)
	if _, err := s.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
		Content: reply,
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx)); err != nil {
		b.logger.Error("interaction followup", slog.Any("error", err))
	}
}

func (b *Bot) dispatch(ctx context.Context, i *discordgo.InteractionCreate) string {
	data := i.ApplicationCommandData()
	if i.GuildID == "" || i.Member == nil {
		return "This command is only available inside a server."
	}
	switch data.Name {
	case commandAddPrivilege:
		return b.workflow.Run(ctx, addPrivilegeRequest(i, data)).Message()
	case commandStaff:
		rec, err := b.staff.GetOrCreate(ctx, i.GuildID, b.cfg.StaffChannelID)
		if err != nil {
			b.logger.Error("staff command failed", slog.Any("error", err))
			return "Failed to create the staff list. Check the logs."
		}
		return fmt.Sprintf("Staff list is posted in <#%s>.", rec.ChannelID)
	case commandStaffRefresh:
		if !b.staff.Refresh(ctx, i.GuildID, b.cfg.StaffChannelID) {
			return "Failed to refresh the staff list. Check the logs."
		}
		return "Staff list refreshed."
	}
	return "Unknown command."
}

func addPrivilegeRequest(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) reconcile.Request {
	req := reconcile.Request{
		GuildID:       i.GuildID,
		CallerRoleIDs: i.Member.Roles,
	}
	if i.Member.User != nil {
		req.CallerID = i.Member.User.ID
	}
	for _, opt := range data.Options {
		switch opt.Name {
		case "user":
			// A nil session skips the user lookup; only the id is needed.
			if u := opt.UserValue(nil); u != nil {
				req.TargetUserID = u.ID
			}
		case "steam_id":
			req.SteamID = opt.StringValue()
		}
	}
	return req
}

func (b *Bot) onMemberUpdate(_ *discordgo.Session, u *discordgo.GuildMemberUpdate) {
	if u.Member == nil {
		return
	}
	// Without a cached previous state any staff role may have changed.
	var changed []string
	if u.BeforeUpdate != nil {
		changed = changedStaffRoles(u.BeforeUpdate.Roles, u.Roles, b.staff.HasRole)
	} else {
		changed = staffRolesOf(u.Roles, b.staff.HasRole)
	}
	if len(changed) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, interactionTimeout)
	defer cancel()
	b.workflow.OnRoleMembershipChanged(ctx, changed[0], u.GuildID)
}

func (b *Bot) onRoleUpdate(_ *discordgo.Session, u *discordgo.GuildRoleUpdate) {
	if u.GuildRole == nil || u.Role == nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, interactionTimeout)
	defer cancel()
	b.workflow.OnRoleMembershipChanged(ctx, u.Role.ID, u.GuildID)
}

// changedStaffRoles returns staff roles present in exactly one of before and
// after.
func changedStaffRoles(before, after []string, isStaff func(string) bool) []string {
	in := make(map[string]int)
	for _, id := range before {
		in[id] |= 1
	}
	for _, id := range after {
		in[id] |= 2
	}
	var out []string
	for _, id := range append(append([]string(nil), before...), after...) {
		if in[id] == 1 || in[id] == 2 {
			if isStaff(id) {
				out = append(out, id)
				in[id] = 0
			}
		}
	}
	return out
}

func staffRolesOf(roles []string, isStaff func(string) bool) []string {
	var out []string
	for _, id := range roles {
		if isStaff(id) {
			out = append(out, id)
		}
	}
	return out
}
