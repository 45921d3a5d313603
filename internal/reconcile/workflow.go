// Package reconcile matches a player's in-game privilege with the database
// record and the Discord role of the linked account.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/announcement"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/privileges"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/rcon"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/steamid"
)

const (
	defaultAttempts = 3
	expiryLayout    = "02.01.2006 15:04:05"
	permanentLabel  = "permanent"
)

// Config groups workflow settings.
type Config struct {
	// GuildID restricts role change events to one guild when set.
	GuildID        string
	HighStaffRoles []string
	// StaffRoles in configuration order; used for removal and name matching.
	StaffRoles []announcement.StaffRole
	// GroupRoles maps a privilege group to a role id explicitly.
	GroupRoles        map[string]string
	StaffChannelID    string
	FallbackChannelID string
	QueryTimeout      time.Duration
	QueryAttempts     int
	DisplayZone       *time.Location
}

// Deps are the collaborators of a Workflow.
type Deps struct {
	Query     Query
	Parser    Parser
	Store     PrivilegeStore
	Members   Members
	Notifier  Notifier
	Announcer Announcer
	Observer  OutcomeObserver
}

// Workflow runs privilege reconciliations. Runs share no state and may
// execute concurrently.
type Workflow struct {
	cfg      Config
	deps     Deps
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewWorkflow builds Workflow.
func NewWorkflow(cfg Config, deps Deps, logger *slog.Logger) (*Workflow, error) {
	if deps.Query == nil || deps.Parser == nil || deps.Store == nil || deps.Members == nil || deps.Notifier == nil || deps.Announcer == nil {
		return nil, errors.New("reconcile: missing dependency")
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = rcon.DefaultTimeout
	}
	if cfg.QueryAttempts <= 0 {
		cfg.QueryAttempts = defaultAttempts
	}
	if cfg.DisplayZone == nil {
		cfg.DisplayZone = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	if err := steamid.RegisterValidation(v); err != nil {
		return nil, fmt.Errorf("reconcile: register validation: %w", err)
	}
	return &Workflow{cfg: cfg, deps: deps, validate: v, logger: logger, now: time.Now}, nil
}

// Run executes one reconciliation and always returns a terminal result.
func (w *Workflow) Run(ctx context.Context, req Request) Result {
	start := w.now()
	req.SteamID = steamid.Normalize(req.SteamID)
	res := w.run(ctx, req)
	res.Request = req

	level := slog.LevelInfo
	if !res.Outcome.Success() {
		level = slog.LevelWarn
	}
	w.logger.Log(ctx, level, "privilege reconciliation finished",
		slog.String("outcome", string(res.Outcome)),
		slog.String("steam_id", req.SteamID),
		slog.String("target_user_id", req.TargetUserID),
		slog.String("caller_id", req.CallerID),
	)
	if w.deps.Observer != nil {
		w.deps.Observer.ObserveOutcome(string(res.Outcome), w.now().Sub(start))
	}
	return res
}

func (w *Workflow) run(ctx context.Context, req Request) Result {
	if !w.authorized(req.CallerRoleIDs) {
		return Result{Outcome: OutcomeUnauthorized}
	}
	if reason := w.invalidReason(req); reason != "" {
		return Result{Outcome: OutcomeInvalidInput, Reason: reason}
	}

	targetRoles, err := w.deps.Members.MemberRoles(ctx, req.GuildID, req.TargetUserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Result{Outcome: OutcomeInvalidInput, Reason: fmt.Sprintf("user <@%s> is not a member of this server", req.TargetUserID)}
		}
		w.logger.Error("target membership lookup failed",
			slog.String("target_user_id", req.TargetUserID),
			slog.Any("error", err),
		)
		return Result{Outcome: OutcomeInvalidInput, Reason: "target membership could not be verified"}
	}

	response, err := w.deps.Query.PlayerInfo(ctx, req.SteamID, w.cfg.QueryTimeout, w.cfg.QueryAttempts)
	if err != nil {
		w.logger.Error("player info query failed", slog.String("steam_id", req.SteamID), slog.Any("error", err))
		return Result{Outcome: OutcomeRemoteUnavailable}
	}

	fact, err := w.deps.Parser.Parse(response)
	if err != nil {
		w.logger.Error("player info response not recognized",
			slog.String("steam_id", req.SteamID),
			slog.String("response", response),
			slog.Any("error", err),
		)
		return Result{Outcome: OutcomeUnparseableResponse}
	}
	if !fact.HasPrivilege {
		return Result{Outcome: OutcomeNoPrivilegeFound}
	}

	group := fact.Group
	upserted, err := w.deps.Store.Upsert(ctx, privileges.UpsertInput{
		SteamID:       req.SteamID,
		DiscordUserID: req.TargetUserID,
		Group:         group,
		ExpiresAt:     fact.ExpiresAt,
		ActorID:       req.CallerID,
	})
	if err != nil {
		return Result{Outcome: OutcomePersistenceFailure}
	}
	res := Result{Group: group, ExpiresAt: upserted.Record.ExpiresAt}
	if !upserted.Changed {
		res.Outcome = OutcomeNoChangeNeeded
		return res
	}

	w.reconcileRole(ctx, req.GuildID, req.TargetUserID, targetRoles, group)
	w.notify(ctx, req.TargetUserID, w.notification(group, upserted.Record.ExpiresAt))
	w.refreshAnnouncement(ctx, req.GuildID)

	res.Outcome = OutcomeUpdated
	return res
}

func (w *Workflow) authorized(callerRoles []string) bool {
	for _, have := range callerRoles {
		for _, want := range w.cfg.HighStaffRoles {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (w *Workflow) invalidReason(req Request) string {
	err := w.validate.Struct(req)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "malformed request"
	}
	switch verrs[0].Field() {
	case "SteamID":
		return "malformed Steam ID"
	case "TargetUserID":
		return "malformed target user"
	default:
		return "command must be used inside a server"
	}
}

// RoleFor resolves the Discord role of a privilege group: an explicit
// mapping first, then a case-insensitive name match against staff roles.
func (w *Workflow) RoleFor(group string) (string, bool) {
	for g, roleID := range w.cfg.GroupRoles {
		if strings.EqualFold(g, group) {
			return roleID, true
		}
	}
	lower := strings.ToLower(group)
	if lower == "" {
		return "", false
	}
	for _, role := range w.cfg.StaffRoles {
		name := strings.ToLower(role.Name)
		if name == "" {
			continue
		}
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return role.RoleID, true
		}
	}
	return "", false
}

func (w *Workflow) reconcileRole(ctx context.Context, guildID, userID string, held []string, group string) {
	roleID, ok := w.RoleFor(group)
	if !ok {
		w.logger.Warn("no role mapped to privilege group", slog.String("group", group))
		return
	}
	holds := make(map[string]bool, len(held))
	for _, id := range held {
		holds[id] = true
	}
	for _, role := range w.staffRoleIDs() {
		if role == roleID || !holds[role] {
			continue
		}
		if err := w.deps.Members.RemoveRole(ctx, guildID, userID, role); err != nil {
			w.roleSyncFailed("remove", userID, role, err)
		}
	}
	if holds[roleID] {
		return
	}
	if err := w.deps.Members.AddRole(ctx, guildID, userID, roleID); err != nil {
		w.roleSyncFailed("add", userID, roleID, err)
	}
}

func (w *Workflow) staffRoleIDs() []string {
	ids := make([]string, 0, len(w.cfg.StaffRoles)+len(w.cfg.GroupRoles))
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, r := range w.cfg.StaffRoles {
		add(r.RoleID)
	}
	for _, id := range w.cfg.GroupRoles {
		add(id)
	}
	return ids
}

func (w *Workflow) roleSyncFailed(op, userID, roleID string, err error) {
	w.logger.Error("role sync failed",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("role_id", roleID),
		slog.Any("error", fmt.Errorf("%w: %w", ErrRoleSync, err)),
	)
}

func (w *Workflow) notification(group string, expiresAt *time.Time) string {
	return fmt.Sprintf("Your privilege has been updated!\n**Group:** %s\n**Expires:** %s",
		group, FormatExpiry(expiresAt, w.cfg.DisplayZone))
}

func (w *Workflow) notify(ctx context.Context, userID, text string) {
	err := w.deps.Notifier.DirectMessage(ctx, userID, text)
	if err == nil {
		return
	}
	if !errors.Is(err, shared.ErrForbidden) || w.cfg.FallbackChannelID == "" {
		w.logger.Warn("privilege notification not delivered", slog.String("user_id", userID), slog.Any("error", err))
		return
	}
	if err := w.deps.Notifier.PostChannel(ctx, w.cfg.FallbackChannelID, fmt.Sprintf("<@%s> %s", userID, text)); err != nil {
		w.logger.Warn("privilege notification not delivered",
			slog.String("user_id", userID),
			slog.String("channel_id", w.cfg.FallbackChannelID),
			slog.Any("error", err),
		)
	}
}

func (w *Workflow) refreshAnnouncement(ctx context.Context, guildID string) {
	if w.cfg.StaffChannelID == "" {
		return
	}
	if !w.deps.Announcer.Refresh(ctx, guildID, w.cfg.StaffChannelID) {
		w.logger.Warn("staff announcement refresh failed",
			slog.String("channel_id", w.cfg.StaffChannelID),
			slog.Any("error", announcement.ErrAnnouncement),
		)
	}
}

// OnRoleMembershipChanged refreshes the staff announcement when roleID is a
// configured staff role. Other roles and guilds are ignored.
func (w *Workflow) OnRoleMembershipChanged(ctx context.Context, roleID, guildID string) {
	if w.cfg.GuildID != "" && guildID != w.cfg.GuildID {
		return
	}
	if w.cfg.StaffChannelID == "" || !w.deps.Announcer.HasRole(roleID) {
		return
	}
	w.logger.Debug("staff role membership changed", slog.String("role_id", roleID), slog.String("guild_id", guildID))
	w.refreshAnnouncement(ctx, guildID)
}

// FormatExpiry renders an expiry in loc, or "permanent" for nil.
func FormatExpiry(t *time.Time, loc *time.Location) string {
	if t == nil {
		return permanentLabel
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(expiryLayout)
}
