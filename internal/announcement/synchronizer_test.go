package announcement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	records map[string]Record
	nextID  int64
	saves   int
	deletes int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[string]Record)}
}

func (r *memoryRepo) Get(_ context.Context, channelID string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[channelID]
	if !ok {
		return Record{}, shared.ErrNotFound
	}
	return rec, nil
}

func (r *memoryRepo) Save(_ context.Context, rec Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.saves++
	rec.ID = r.nextID
	r.records[rec.ChannelID] = rec
	return rec, nil
}

func (r *memoryRepo) Delete(_ context.Context, channelID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[channelID]; ok && rec.MessageID == messageID {
		delete(r.records, channelID)
		r.deletes++
	}
	return nil
}

func (r *memoryRepo) List(context.Context) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

type fakeMessenger struct {
	mu       sync.Mutex
	messages map[string]Content
	nextID   int
	sends    int
	edits    int
	sendErr  error
	fetchErr error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{messages: make(map[string]Content)}
}

func key(channelID, messageID string) string {
	return channelID + "/" + messageID
}

func (m *fakeMessenger) Send(_ context.Context, channelID string, content Content) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.nextID++
	m.sends++
	id := fmt.Sprintf("m%d", m.nextID)
	m.messages[key(channelID, id)] = content
	return id, nil
}

func (m *fakeMessenger) Fetch(_ context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return m.fetchErr
	}
	if _, ok := m.messages[key(channelID, messageID)]; !ok {
		return fmt.Errorf("fake: %w", shared.ErrNotFound)
	}
	return nil
}

func (m *fakeMessenger) Edit(_ context.Context, channelID, messageID string, content Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(channelID, messageID)
	if _, ok := m.messages[k]; !ok {
		return fmt.Errorf("fake: %w", shared.ErrNotFound)
	}
	m.edits++
	m.messages[k] = content
	return nil
}

func (m *fakeMessenger) remove(channelID, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, key(channelID, messageID))
}

func (m *fakeMessenger) content(channelID, messageID string) Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[key(channelID, messageID)]
}

type fakeMembership struct {
	mu     sync.Mutex
	roster Roster
	err    error
}

func (f *fakeMembership) Roster(_ context.Context, _ string, roleIDs []string) (Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := Roster{}
	for _, id := range roleIDs {
		if members, ok := f.roster[id]; ok {
			out[id] = append([]Member(nil), members...)
		}
	}
	return out, nil
}

var testRoles = []StaffRole{
	{RoleID: "r-mod", Name: "Moderator", Priority: 10},
	{RoleID: "r-admin", Name: "Administrator", Priority: 100},
}

type fixture struct {
	repo      *memoryRepo
	messenger *fakeMessenger
	members   *fakeMembership
	sync      *Synchronizer
}

func newFixture() *fixture {
	f := &fixture{
		repo:      newMemoryRepo(),
		messenger: newFakeMessenger(),
		members: &fakeMembership{roster: Roster{
			"r-admin": {{ID: "1", DisplayName: "alice"}},
			"r-mod":   {},
		}},
	}
	f.sync = NewSynchronizer(f.repo, f.messenger, f.members, nil, testRoles, nil)
	return f
}

func TestGetOrCreateCreatesWhenUntracked(t *testing.T) {
	f := newFixture()
	rec, err := f.sync.GetOrCreate(context.Background(), "g", "c")
	require.NoError(t, err)
	require.Equal(t, "c", rec.ChannelID)
	require.Equal(t, 1, f.messenger.sends)
	require.Equal(t, rec, f.repo.records["c"])

	content := f.messenger.content("c", rec.MessageID)
	require.Len(t, content.Sections, 2)
	require.Equal(t, "Administrator", content.Sections[0].Name)
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first, err := f.sync.GetOrCreate(ctx, "g", "c")
	require.NoError(t, err)
	second, err := f.sync.GetOrCreate(ctx, "g", "c")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, f.messenger.sends)
}

func TestGetOrCreateHealsDeletedMessageOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	first, err := f.sync.GetOrCreate(ctx, "g", "c")
	require.NoError(t, err)
	f.messenger.remove("c", first.MessageID)

	for i := 0; i < 3; i++ {
		rec, err := f.sync.GetOrCreate(ctx, "g", "c")
		require.NoError(t, err)
		require.NotEqual(t, first.MessageID, rec.MessageID)
	}
	require.Equal(t, 2, f.messenger.sends)
	require.Equal(t, 2, f.repo.saves)
	require.Equal(t, 1, f.repo.deletes)
	require.Len(t, f.repo.records, 1)
}

func TestGetOrCreateConcurrentCallersShareOneMessage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := f.sync.GetOrCreate(ctx, "g", "c")
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			ids[i] = rec.MessageID
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, f.messenger.sends)
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}

func TestGetOrCreateFetchFailureIsNotTreatedAsMissing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.sync.GetOrCreate(ctx, "g", "c")
	require.NoError(t, err)

	f.messenger.fetchErr = errors.New("503 service unavailable")
	_, err = f.sync.GetOrCreate(ctx, "g", "c")
	require.ErrorIs(t, err, ErrAnnouncement)
	require.Equal(t, 1, f.messenger.sends)
	require.Equal(t, 0, f.repo.deletes)
}

func TestRefreshRewritesContent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rec, err := f.sync.GetOrCreate(ctx, "g", "c")
	require.NoError(t, err)

	f.members.mu.Lock()
	f.members.roster["r-mod"] = []Member{{ID: "2", DisplayName: "bob"}}
	f.members.mu.Unlock()

	require.True(t, f.sync.Refresh(ctx, "g", "c"))
	content := f.messenger.content("c", rec.MessageID)
	require.Equal(t, "<@2>", content.Sections[1].Value)
	require.Equal(t, 1, f.messenger.edits)
}

func TestRefreshRecreatesDeletedMessage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rec, err := f.sync.GetOrCreate(ctx, "g", "c")
	require.NoError(t, err)
	f.messenger.remove("c", rec.MessageID)

	require.True(t, f.sync.Refresh(ctx, "g", "c"))
	require.Equal(t, 2, f.messenger.sends)
	require.NotEqual(t, rec.MessageID, f.repo.records["c"].MessageID)
}

func TestRefreshReportsFailure(t *testing.T) {
	f := newFixture()
	f.messenger.sendErr = errors.New("missing access")
	require.False(t, f.sync.Refresh(context.Background(), "g", "c"))

	f = newFixture()
	f.members.err = errors.New("gateway down")
	require.False(t, f.sync.Refresh(context.Background(), "g", "c"))
}

func TestRepair(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	action, err := f.sync.Repair(ctx, "g", "untracked")
	require.NoError(t, err)
	require.Equal(t, RepairSkipped, action)
	require.Equal(t, 0, f.messenger.sends)

	rec, err := f.sync.GetOrCreate(ctx, "g", "c")
	require.NoError(t, err)

	action, err = f.sync.Repair(ctx, "g", "c")
	require.NoError(t, err)
	require.Equal(t, RepairRefreshed, action)
	require.Equal(t, 1, f.messenger.edits)

	f.messenger.remove("c", rec.MessageID)
	action, err = f.sync.Repair(ctx, "g", "c")
	require.NoError(t, err)
	require.Equal(t, RepairRecreated, action)
	require.Equal(t, 2, f.messenger.sends)
	require.Len(t, f.repo.records, 1)
}

func TestHasRole(t *testing.T) {
	f := newFixture()
	require.True(t, f.sync.HasRole("r-mod"))
	require.False(t, f.sync.HasRole("r-other"))
}

func TestRenderSectionsAndOrdering(t *testing.T) {
	roles := SortRoles([]StaffRole{
		{RoleID: "a", Name: "Helper", Priority: 1},
		{RoleID: "b", Name: "Owner", Priority: 50},
		{RoleID: "c", Name: "Ghost", Priority: 40},
		{RoleID: "d", Name: "Admin", Priority: 50},
	})
	roster := Roster{
		"a": {{ID: "3", DisplayName: "zed"}, {ID: "1", DisplayName: "Émile"}, {ID: "2", DisplayName: "ALICE"}, {ID: "4", DisplayName: "bob"}},
		"b": {},
		"d": {{ID: "9", DisplayName: "root"}},
	}
	content := Render(roles, roster, testNow)

	names := make([]string, len(content.Sections))
	for i, s := range content.Sections {
		names[i] = s.Name
	}
	require.Equal(t, []string{"Owner", "Admin", "Helper"}, names)
	require.Equal(t, emptyPlaceholder, content.Sections[0].Value)
	require.Equal(t, "<@2>\n<@4>\n<@3>\n<@1>", content.Sections[2].Value)
}

func TestRenderTruncatesLongSections(t *testing.T) {
	var members []Member
	for i := 0; i < 200; i++ {
		members = append(members, Member{ID: fmt.Sprintf("1000000000000%05d", i), DisplayName: fmt.Sprintf("user%03d", i)})
	}
	content := Render([]StaffRole{{RoleID: "a", Name: "Staff"}}, Roster{"a": members}, testNow)
	value := content.Sections[0].Value
	require.Equal(t, MaxSectionLength, len([]rune(value)))
	require.True(t, strings.HasSuffix(value, truncationMarker))
}
