//go:build integration

package announcement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/testutil/containers"
)

func TestPGRepositoryOneRecordPerChannel(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	repo := NewRepository(pg.Pool)
	ctx := context.Background()

	_, err := repo.Get(ctx, "10")
	require.ErrorIs(t, err, shared.ErrNotFound)

	first, err := repo.Save(ctx, Record{ChannelID: "10", MessageID: "m1"})
	require.NoError(t, err)
	second, err := repo.Save(ctx, Record{ChannelID: "10", MessageID: "m2"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "m2", second.MessageID)

	_, err = repo.Save(ctx, Record{ChannelID: "20", MessageID: "m3"})
	require.NoError(t, err)
	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestPGRepositoryDeleteIgnoresStaleMessage(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	repo := NewRepository(pg.Pool)
	ctx := context.Background()

	_, err := repo.Save(ctx, Record{ChannelID: "10", MessageID: "m2"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "10", "m1"))
	rec, err := repo.Get(ctx, "10")
	require.NoError(t, err)
	require.Equal(t, "m2", rec.MessageID)

	require.NoError(t, repo.Delete(ctx, "10", "m2"))
	_, err = repo.Get(ctx, "10")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
