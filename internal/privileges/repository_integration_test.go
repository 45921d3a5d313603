//go:build integration

package privileges

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/testutil/containers"
)

func TestRepositoryUpsertRoundTrip(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewStore(NewRepository(pg.Pool), nil)
	ctx := context.Background()

	in := UpsertInput{SteamID: "76561198012345678", DiscordUserID: "100", Group: "admin", ExpiresAt: ts("2024-12-31 23:59:59"), ActorID: "1"}
	res, err := store.Upsert(ctx, in)
	require.NoError(t, err)
	require.True(t, res.Created)

	again, err := store.Upsert(ctx, in)
	require.NoError(t, err)
	require.False(t, again.Changed)
	require.Equal(t, res.Record.UpdatedAt, again.Record.UpdatedAt)

	in.Group = ""
	in.ExpiresAt = nil
	cleared, err := store.Upsert(ctx, in)
	require.NoError(t, err)
	require.True(t, cleared.Changed)
	require.Empty(t, cleared.Record.Group)
	require.Nil(t, cleared.Record.ExpiresAt)

	var audits int
	require.NoError(t, pg.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE entity_id = $1`, in.SteamID).Scan(&audits))
	require.Equal(t, 2, audits)
}

func TestRepositoryConcurrentUpserts(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewStore(NewRepository(pg.Pool), nil)
	ctx := context.Background()
	const n = 8
	steamID := "STEAM_0:1:424242"

	results := make([]UpsertResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Upsert(ctx, UpsertInput{SteamID: steamID, DiscordUserID: fmt.Sprintf("%d", 500+i), Group: "admin"})
		}(i)
	}
	wg.Wait()

	latest := -1
	created := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "upsert %d", i)
		if results[i].Created {
			created++
		}
		if latest < 0 || results[i].Record.UpdatedAt.After(results[latest].Record.UpdatedAt) {
			latest = i
		}
	}
	require.Equal(t, 1, created)

	var owner string
	var rows int
	require.NoError(t, pg.Pool.QueryRow(ctx, `SELECT discord_user_id, COUNT(*) OVER () FROM user_privileges WHERE steam_id = $1`, steamID).Scan(&owner, &rows))
	require.Equal(t, 1, rows)
	require.Equal(t, results[latest].Record.DiscordUserID, owner)
}
