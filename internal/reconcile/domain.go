package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/pinfo"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/privileges"
)

// ErrRoleSync marks a failed role grant or removal. It never aborts a run.
var ErrRoleSync = errors.New("role sync failure")

// Outcome is the terminal state of one workflow run.
type Outcome string

const (
	OutcomeUnauthorized        Outcome = "unauthorized"
	OutcomeInvalidInput        Outcome = "invalid_input"
	OutcomeRemoteUnavailable   Outcome = "remote_unavailable"
	OutcomeUnparseableResponse Outcome = "unparseable_response"
	OutcomeNoPrivilegeFound    Outcome = "no_privilege_found"
	OutcomeNoChangeNeeded      Outcome = "no_change_needed"
	OutcomePersistenceFailure  Outcome = "persistence_failure"
	OutcomeUpdated             Outcome = "updated"
)

// Outcomes lists every terminal state.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeUnauthorized,
		OutcomeInvalidInput,
		OutcomeRemoteUnavailable,
		OutcomeUnparseableResponse,
		OutcomeNoPrivilegeFound,
		OutcomeNoChangeNeeded,
		OutcomePersistenceFailure,
		OutcomeUpdated,
	}
}

// Success reports whether the run finished without a failure.
func (o Outcome) Success() bool {
	switch o {
	case OutcomeNoPrivilegeFound, OutcomeNoChangeNeeded, OutcomeUpdated:
		return true
	}
	return false
}

// Request is one /addprivilege invocation.
type Request struct {
	GuildID       string   `validate:"required,number"`
	CallerID      string   `validate:"required,number"`
	CallerRoleIDs []string `validate:"-"`
	TargetUserID  string   `validate:"required,number"`
	SteamID       string   `validate:"required,steamid"`
}

// Result is returned to the caller for every run.
type Result struct {
	Outcome Outcome
	Request Request
	// Reason narrows an invalid input outcome.
	Reason    string
	Group     string
	ExpiresAt *time.Time
}

// Message is the caller-visible text for the result.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeUnauthorized:
		return "You do not have permission to use this command."
	case OutcomeInvalidInput:
		if r.Reason != "" {
			return "Invalid request: " + r.Reason + "."
		}
		return "Invalid request."
	case OutcomeRemoteUnavailable:
		return "Could not get information from the game server. Try again later."
	case OutcomeUnparseableResponse:
		return "Could not process the game server response. Try again later."
	case OutcomeNoPrivilegeFound:
		return fmt.Sprintf("Player %s has no privileges on the server.", r.Request.SteamID)
	case OutcomeNoChangeNeeded:
		return "Information checked. No changes detected."
	case OutcomePersistenceFailure:
		return "Failed to save privilege data. Check the logs."
	case OutcomeUpdated:
		return fmt.Sprintf("Privilege updated for <@%s>.", r.Request.TargetUserID)
	}
	return "Unexpected error."
}

// Query fetches the raw console response for a Steam account.
type Query interface {
	PlayerInfo(ctx context.Context, identity string, timeout time.Duration, attempts int) (string, error)
}

// Parser turns a console response into a privilege fact.
type Parser interface {
	Parse(response string) (pinfo.Fact, error)
}

// PrivilegeStore persists privilege records.
type PrivilegeStore interface {
	Upsert(ctx context.Context, in privileges.UpsertInput) (privileges.UpsertResult, error)
}

// Members reads and mutates guild role membership. MemberRoles returns an
// error wrapping shared.ErrNotFound when the user is not in the guild.
type Members interface {
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

// Notifier delivers user notifications. DirectMessage returns an error
// wrapping shared.ErrForbidden when the user does not accept DMs.
type Notifier interface {
	DirectMessage(ctx context.Context, userID, text string) error
	PostChannel(ctx context.Context, channelID, text string) error
}

// Announcer refreshes the staff announcement.
type Announcer interface {
	Refresh(ctx context.Context, guildID, channelID string) bool
	HasRole(roleID string) bool
}

// OutcomeObserver records run outcomes, typically as metrics.
type OutcomeObserver interface {
	ObserveOutcome(outcome string, elapsed time.Duration)
}
