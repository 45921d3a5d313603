package announcement

import (
	"context"
	"time"
)

// Record tracks the one announcement message kept in a channel.
type Record struct {
	ID        int64
	ChannelID string
	MessageID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StaffRole is one configured role shown in the announcement.
type StaffRole struct {
	RoleID   string
	Name     string
	Priority int
}

// Member is a guild member holding a staff role.
type Member struct {
	ID          string
	DisplayName string
}

// Mention renders the Discord mention markup for m.
func (m Member) Mention() string {
	return "<@" + m.ID + ">"
}

// Roster maps role id to its members. Roles missing from the guild are absent.
type Roster map[string][]Member

// Section is one titled block of the announcement.
type Section struct {
	Name  string
	Value string
}

// Content is the transport-neutral body of the announcement.
type Content struct {
	Title     string
	Sections  []Section
	Footer    string
	Timestamp time.Time
}

// Messenger sends, fetches and edits channel messages. Fetch and Edit return
// an error wrapping shared.ErrNotFound when the message no longer exists.
type Messenger interface {
	Send(ctx context.Context, channelID string, content Content) (string, error)
	Fetch(ctx context.Context, channelID, messageID string) error
	Edit(ctx context.Context, channelID, messageID string, content Content) error
}

// Membership lists current holders of the given roles.
type Membership interface {
	Roster(ctx context.Context, guildID string, roleIDs []string) (Roster, error)
}

// Repository persists announcement records.
type Repository interface {
	Get(ctx context.Context, channelID string) (Record, error)
	Save(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, channelID, messageID string) error
	List(ctx context.Context) ([]Record, error)
}
