package pinfo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var groups = []string{"admin", "moderator"}

func TestParseNoPrivileges(t *testing.T) {
	fact, err := Parse(`Player "Rustacean" (76561198012345678) - No privileges`, groups)
	require.NoError(t, err)
	require.False(t, fact.HasPrivilege)
	require.Empty(t, fact.Group)
	require.Nil(t, fact.ExpiresAt)

	fact, err = Parse("player has NO PRIVILEGES", groups)
	require.NoError(t, err)
	require.False(t, fact.HasPrivilege)
}

func TestParseGroupWithExpiry(t *testing.T) {
	fact, err := Parse("Group: admin, Expires: 2024-12-31 23:59:59", groups)
	require.NoError(t, err)
	require.True(t, fact.HasPrivilege)
	require.Equal(t, "admin", fact.Group)
	require.NotNil(t, fact.ExpiresAt)
	require.True(t, fact.ExpiresAt.Equal(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)))
	require.Equal(t, time.UTC, fact.ExpiresAt.Location())
}

func TestParseDottedExpiry(t *testing.T) {
	fact, err := Parse("Player \"x\"\n  group:   MODERATOR\n expires: 01.02.2025   10:00:00", groups)
	require.NoError(t, err)
	require.Equal(t, "moderator", fact.Group)
	require.NotNil(t, fact.ExpiresAt)
	require.True(t, fact.ExpiresAt.Equal(time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)))
}

func TestParsePermanentGrant(t *testing.T) {
	fact, err := Parse("Group: moderator", groups)
	require.NoError(t, err)
	require.True(t, fact.HasPrivilege)
	require.Nil(t, fact.ExpiresAt)
}

func TestParseGroupOrderWins(t *testing.T) {
	text := "Group: moderator; Group: admin"
	fact, err := Parse(text, []string{"admin", "moderator"})
	require.NoError(t, err)
	require.Equal(t, "admin", fact.Group)

	fact, err = Parse(text, []string{"moderator", "admin"})
	require.NoError(t, err)
	require.Equal(t, "moderator", fact.Group)
}

func TestParseLabelPrefixMatches(t *testing.T) {
	fact, err := Parse("Group: administrator, Expires: 2024-12-31 23:59:59", []string{"admin"})
	require.NoError(t, err)
	require.True(t, fact.HasPrivilege)
	require.Equal(t, "admin", fact.Group)
	require.NotNil(t, fact.ExpiresAt)
}

func TestParseOverlappingLabelsFollowGroupOrder(t *testing.T) {
	text := "Group: administrator"

	fact, err := Parse(text, []string{"administrator", "admin"})
	require.NoError(t, err)
	require.Equal(t, "administrator", fact.Group)

	fact, err = Parse(text, []string{"admin", "administrator"})
	require.NoError(t, err)
	require.Equal(t, "admin", fact.Group)
}

func TestParseUnrecognized(t *testing.T) {
	_, err := Parse("garbage text", groups)
	require.ErrorIs(t, err, ErrNotRecognized)

	_, err = Parse("   ", groups)
	require.ErrorIs(t, err, ErrNotRecognized)
}

func TestParseUnknownGroupKeepsExpiryButIsInert(t *testing.T) {
	fact, err := Parse("Group: vip, Expires: 2024-12-31 23:59:59", groups)
	require.ErrorIs(t, err, ErrNotRecognized)
	require.False(t, fact.HasPrivilege)
	require.NotNil(t, fact.ExpiresAt)
}

func TestParseInvalidDateFallsThrough(t *testing.T) {
	fact, err := Parse("Group: admin Expires: 2024-13-45 99:99:99", groups)
	require.NoError(t, err)
	require.Nil(t, fact.ExpiresAt)
}

func TestParseIsIdempotent(t *testing.T) {
	text := "Group: admin, Expires: 2024-12-31 23:59:59"
	first, err1 := Parse(text, groups)
	second, err2 := Parse(text, groups)
	require.Equal(t, err1, err2)
	require.Equal(t, first.HasPrivilege, second.HasPrivilege)
	require.Equal(t, first.Group, second.Group)
	require.True(t, first.ExpiresAt.Equal(*second.ExpiresAt))
}
