package privileges

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

// memoryRepo serialises transactions with a mutex and only publishes writes
// on commit, mirroring the row lock taken by the Postgres repository.
type memoryRepo struct {
	mu       sync.Mutex
	records  map[string]Record
	audits   []shared.AuditLog
	nextID   int64
	commits  []Record
	failWith error
}

type memoryTx struct {
	repo    *memoryRepo
	pending map[string]Record
	audits  []shared.AuditLog
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]Record)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, pending: make(map[string]Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if r.failWith != nil {
		return r.failWith
	}
	for k, v := range tx.pending {
		r.records[k] = v
		r.commits = append(r.commits, v)
	}
	r.audits = append(r.audits, tx.audits...)
	return nil
}

func (tx *memoryTx) lookup(steamID string) (Record, bool) {
	if rec, ok := tx.pending[steamID]; ok {
		return rec, true
	}
	rec, ok := tx.repo.records[steamID]
	return rec, ok
}

func (tx *memoryTx) InsertIfAbsent(_ context.Context, rec Record) (Record, bool, error) {
	if _, ok := tx.lookup(rec.SteamID); ok {
		return Record{}, false, nil
	}
	tx.repo.nextID++
	rec.ID = tx.repo.nextID
	tx.pending[rec.SteamID] = rec
	return rec, true, nil
}

func (tx *memoryTx) GetForUpdate(_ context.Context, steamID string) (Record, error) {
	rec, ok := tx.lookup(steamID)
	if !ok {
		return Record{}, shared.ErrNotFound
	}
	return rec, nil
}

func (tx *memoryTx) Update(_ context.Context, rec Record) (Record, error) {
	tx.pending[rec.SteamID] = rec
	return rec, nil
}

func (tx *memoryTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	tx.audits = append(tx.audits, log)
	return nil
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(repo RepositoryPort) *Store {
	store := NewStore(repo, nil)
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store.now = clock.Now
	return store
}

func ts(s string) *time.Time {
	v, err := time.Parse(time.DateTime, s)
	if err != nil {
		panic(err)
	}
	return &v
}

func TestUpsertCreates(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(repo)

	res, err := store.Upsert(context.Background(), UpsertInput{SteamID: "76561198012345678", DiscordUserID: "100", Group: "admin", ExpiresAt: ts("2024-12-31 23:59:59"), ActorID: "1"})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.True(t, res.Changed)
	require.Equal(t, "admin", res.Record.Group)
	require.Equal(t, res.Record.CreatedAt, res.Record.UpdatedAt)
	require.Len(t, repo.audits, 1)
	require.Equal(t, "privilege.created", repo.audits[0].Action)
	require.Equal(t, "1", repo.audits[0].ActorID)
}

func TestUpsertIdenticalIsNoop(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(repo)
	ctx := context.Background()
	in := UpsertInput{SteamID: "STEAM_0:1:123456", DiscordUserID: "100", Group: "admin", ExpiresAt: ts("2024-12-31 23:59:59")}

	_, err := store.Upsert(ctx, in)
	require.NoError(t, err)
	first := repo.records[in.SteamID]

	// Same instant expressed in another zone is still equal.
	in.ExpiresAt = ptr(in.ExpiresAt.In(time.FixedZone("UTC+3", 3*3600)))
	res, err := store.Upsert(ctx, in)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.False(t, res.Created)
	require.Nil(t, res.Previous)
	require.Equal(t, first.UpdatedAt, repo.records[in.SteamID].UpdatedAt)
	require.Len(t, repo.audits, 1)
}

func TestUpsertDetectsEachField(t *testing.T) {
	base := UpsertInput{SteamID: "STEAM_0:1:1", DiscordUserID: "100", Group: "admin", ExpiresAt: ts("2024-12-31 23:59:59")}
	cases := map[string]func(in *UpsertInput){
		"group":          func(in *UpsertInput) { in.Group = "moderator" },
		"expiry":         func(in *UpsertInput) { in.ExpiresAt = ts("2025-06-30 00:00:00") },
		"expiry removed": func(in *UpsertInput) { in.ExpiresAt = nil },
		"owner":          func(in *UpsertInput) { in.DiscordUserID = "200" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newMemoryRepo()
			store := newTestStore(repo)
			ctx := context.Background()
			_, err := store.Upsert(ctx, base)
			require.NoError(t, err)
			before := repo.records[base.SteamID]

			next := base
			mutate(&next)
			res, err := store.Upsert(ctx, next)
			require.NoError(t, err)
			require.True(t, res.Changed)
			require.NotNil(t, res.Previous)
			require.Equal(t, before, *res.Previous)
			require.True(t, res.Record.UpdatedAt.After(before.UpdatedAt))
			require.Equal(t, before.CreatedAt, res.Record.CreatedAt)
			require.Equal(t, "privilege.updated", repo.audits[1].Action)
		})
	}
}

func TestUpsertOwnerRebindIsAudited(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(repo)
	ctx := context.Background()
	_, err := store.Upsert(ctx, UpsertInput{SteamID: "STEAM_0:1:1", DiscordUserID: "100", Group: "admin"})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, UpsertInput{SteamID: "STEAM_0:1:1", DiscordUserID: "200", Group: "admin"})
	require.NoError(t, err)

	require.Equal(t, "200", repo.records["STEAM_0:1:1"].DiscordUserID)
	require.Equal(t, "100", repo.audits[1].Meta["previous_discord_user_id"])
}

func TestUpsertPersistenceFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failWith = errors.New("connection reset")
	store := newTestStore(repo)

	_, err := store.Upsert(context.Background(), UpsertInput{SteamID: "STEAM_0:1:1", DiscordUserID: "100", Group: "admin"})
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.Empty(t, repo.records)
}

func TestUpsertRequiresKeys(t *testing.T) {
	store := newTestStore(newMemoryRepo())
	_, err := store.Upsert(context.Background(), UpsertInput{SteamID: "STEAM_0:1:1"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestConcurrentUpsertsSerialise(t *testing.T) {
	repo := newMemoryRepo()
	store := newTestStore(repo)
	ctx := context.Background()
	const n = 16
	steamID := "76561198012345678"

	results := make([]UpsertResult, n)
	errs := make([]error, n)
	inputs := make([]UpsertInput, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		inputs[i] = UpsertInput{
			SteamID:       steamID,
			DiscordUserID: fmt.Sprintf("%d", 1000+i),
			Group:         []string{"admin", "moderator"}[i%2],
			ExpiresAt:     ts(fmt.Sprintf("2025-01-%02d 00:00:00", i+1)),
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Upsert(ctx, inputs[i])
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "upsert %d", i)
	}

	require.Len(t, repo.commits, n)
	final := repo.records[steamID]
	require.Equal(t, repo.commits[n-1], final)

	// Replay the committed order sequentially and compare outcomes.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	position := func(owner string) int {
		for p, c := range repo.commits {
			if c.DiscordUserID == owner {
				return p
			}
		}
		return -1
	}
	sort.Slice(order, func(a, b int) bool {
		return position(inputs[order[a]].DiscordUserID) < position(inputs[order[b]].DiscordUserID)
	})

	ref := newTestStore(newMemoryRepo())
	var refLast UpsertResult
	for _, i := range order {
		res, err := ref.Upsert(ctx, inputs[i])
		require.NoError(t, err)
		require.Equal(t, res.Changed, results[i].Changed)
		require.Equal(t, res.Created, results[i].Created)
		require.Equal(t, res.Record.DiscordUserID, results[i].Record.DiscordUserID)
		refLast = res
	}
	require.Equal(t, refLast.Record.DiscordUserID, final.DiscordUserID)
	require.Equal(t, refLast.Record.Group, final.Group)
	require.True(t, sameExpiry(refLast.Record.ExpiresAt, final.ExpiresAt))
}

func ptr[T any](v T) *T {
	return &v
}
