package privileges

import "time"

// Record is the persisted privilege state of one game account.
type Record struct {
	ID            int64
	SteamID       string
	DiscordUserID string
	// Group is empty when the account holds no privilege.
	Group     string
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permanent reports a grant without expiry.
func (r Record) Permanent() bool {
	return r.ExpiresAt == nil
}

// UpsertInput carries the freshly observed privilege state.
type UpsertInput struct {
	SteamID       string
	DiscordUserID string
	Group         string
	ExpiresAt     *time.Time
	// ActorID is the Discord user who triggered the reconciliation.
	ActorID string
}

// UpsertResult reports the stored record and whether anything changed.
type UpsertResult struct {
	Record  Record
	Changed bool
	Created bool
	// Previous is the state before an update; nil on create or no-op.
	Previous *Record
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
