package composer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moments-social/moments-backend/internal/domain"
)

// fakeService is a stateful in-memory remote collaborator that counts calls
type fakeService struct {
	mu sync.Mutex

	remoteDraft *Draft
	posts       map[uint]*domain.Post
	nextID      uint

	latestErr  error
	getPostErr error

	creates int
	updates int
	deletes int
	deleted []uint

	lastStatus string
}

func newFakeService() *fakeService {
	return &fakeService{posts: make(map[uint]*domain.Post), nextID: 100}
}

func (f *fakeService) LatestDraft(ctx context.Context) (*Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	if f.remoteDraft == nil {
		return nil, nil
	}
	d := f.remoteDraft.Clone()
	return &d, nil
}

func (f *fakeService) GetPost(ctx context.Context, id uint) (*domain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getPostErr != nil {
		return nil, f.getPostErr
	}
	post, ok := f.posts[id]
	if !ok {
		return nil, &APIError{Status: http.StatusNotFound, Message: "帖子不存在"}
	}
	copied := *post
	return &copied, nil
}

func (f *fakeService) CreatePost(ctx context.Context, draft Draft, status string) (*domain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.nextID++
	f.lastStatus = status
	post := &domain.Post{
		ID:        f.nextID,
		Content:   draft.Content,
		Images:    draft.Images,
		Tags:      draft.Tags,
		Status:    status,
		UpdatedAt: time.Now(),
	}
	f.posts[post.ID] = post
	return post, nil
}

func (f *fakeService) UpdatePost(ctx context.Context, id uint, draft Draft, status string) (*domain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.lastStatus = status
	post := &domain.Post{
		ID:        id,
		Content:   draft.Content,
		Images:    draft.Images,
		Tags:      draft.Tags,
		Status:    status,
		UpdatedAt: time.Now(),
	}
	f.posts[id] = post
	return post, nil
}

func (f *fakeService) DeletePost(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.deleted = append(f.deleted, id)
	delete(f.posts, id)
	return nil
}

func (f *fakeService) counts() (creates, updates, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates, f.deletes
}

func (f *fakeService) deletedIDs() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.deleted...)
}

// countingStore wraps a MemoryStore and counts saves
type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	saves int
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore()}
}

func (s *countingStore) Save(key string, draft *Draft) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.MemoryStore.Save(key, draft)
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestSession(store Store, svc Service, monitor Monitor, opts SessionOptions) *Session {
	if opts.UserID == 0 {
		opts.UserID = 1
	}
	if opts.Debounce == 0 {
		opts.Debounce = 25 * time.Millisecond
	}
	if opts.SyncInterval == 0 {
		opts.SyncInterval = time.Hour
	}
	return NewSession(store, svc, monitor, opts)
}

func TestInitLocalDraftStrictlyNewerWins(t *testing.T) {
	store := NewMemoryStore()
	svc := newFakeService()

	now := time.Now()
	require.NoError(t, store.Save(Key(1, ModeNew, 0), &Draft{
		ID: 7, Content: "<p>local</p>", UpdatedAt: now,
	}))
	svc.remoteDraft = &Draft{ID: 7, Content: "<p>remote</p>", UpdatedAt: now.Add(-time.Hour)}

	s := newTestSession(store, svc, NewFlagMonitor(false), SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, "<p>local</p>", s.Draft().Content)
	assert.Equal(t, uint(7), s.DraftID())
	assert.Equal(t, "已恢复本地草稿", s.Status())
}

func TestInitRemoteDraftWinsTies(t *testing.T) {
	store := NewMemoryStore()
	svc := newFakeService()

	now := time.Now()
	require.NoError(t, store.Save(Key(1, ModeNew, 0), &Draft{
		Content: "<p>local</p>", UpdatedAt: now,
	}))
	svc.remoteDraft = &Draft{ID: 9, Content: "<p>remote</p>", UpdatedAt: now}

	s := newTestSession(store, svc, NewFlagMonitor(false), SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, "<p>remote</p>", s.Draft().Content)
	assert.Equal(t, uint(9), s.DraftID())
	assert.Equal(t, "已恢复云端草稿", s.Status())
}

func TestInitSingleDraftLoadsUnconditionally(t *testing.T) {
	t.Run("local only", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(Key(1, ModeNew, 0), &Draft{
			Content: "<p>local</p>", UpdatedAt: time.Now().Add(-24 * time.Hour),
		}))

		s := newTestSession(store, newFakeService(), NewFlagMonitor(false), SessionOptions{Mode: ModeNew})
		defer s.Close()
		require.NoError(t, s.Start(context.Background()))
		assert.Equal(t, "<p>local</p>", s.Draft().Content)
	})

	t.Run("remote only", func(t *testing.T) {
		svc := newFakeService()
		svc.remoteDraft = &Draft{ID: 3, Content: "<p>remote</p>", UpdatedAt: time.Now().Add(-24 * time.Hour)}

		s := newTestSession(NewMemoryStore(), svc, NewFlagMonitor(false), SessionOptions{Mode: ModeNew})
		defer s.Close()
		require.NoError(t, s.Start(context.Background()))
		assert.Equal(t, "<p>remote</p>", s.Draft().Content)
		assert.Equal(t, uint(3), s.DraftID())
	})

	t.Run("neither", func(t *testing.T) {
		s := newTestSession(NewMemoryStore(), newFakeService(), NewFlagMonitor(false), SessionOptions{Mode: ModeNew})
		defer s.Close()
		require.NoError(t, s.Start(context.Background()))
		assert.True(t, s.Draft().IsEmpty())
		assert.Equal(t, uint(0), s.DraftID())
	})
}

func TestInitServerDraftFetchFailureIsSoft(t *testing.T) {
	svc := newFakeService()
	svc.latestErr = errors.New("boom")

	s := newTestSession(NewMemoryStore(), svc, NewFlagMonitor(false), SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Draft().IsEmpty())
}

func TestInitSeedsTopicOnce(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(Key(1, ModeNew, 0), &Draft{
		Content: "<p>x</p>", Tags: []string{"旅行"}, UpdatedAt: time.Now(),
	}))

	s := newTestSession(store, newFakeService(), NewFlagMonitor(false), SessionOptions{
		Mode: ModeNew, Topic: "旅行",
	})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"旅行"}, s.Draft().Tags)

	s2 := newTestSession(NewMemoryStore(), newFakeService(), NewFlagMonitor(false), SessionOptions{
		UserID: 2, Mode: ModeNew, Topic: "美食",
	})
	defer s2.Close()
	require.NoError(t, s2.Start(context.Background()))
	assert.Equal(t, []string{"美食"}, s2.Draft().Tags)
}

func TestDebounceWritesOnlyFinalState(t *testing.T) {
	store := newCountingStore()
	s := newTestSession(store, newFakeService(), NewFlagMonitor(false), SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	s.SetContent("<p>H</p>")
	s.SetContent("<p>He</p>")
	s.SetContent("<p>Hello</p>")

	waitFor(t, time.Second, func() bool { return store.saveCount() > 0 })
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, store.saveCount())
	saved, err := store.Load(Key(1, ModeNew, 0))
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "<p>Hello</p>", saved.Content)
	assert.False(t, saved.UpdatedAt.IsZero())
}

func TestEmptyDraftDeletesLocalEntry(t *testing.T) {
	store := newCountingStore()
	s := newTestSession(store, newFakeService(), NewFlagMonitor(false), SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	s.SetContent("<p>hello</p>")
	waitFor(t, time.Second, func() bool { return store.saveCount() == 1 })

	// Whitespace-only markup counts as empty; the entry goes away at once
	// instead of waiting out the debounce.
	s.SetContent("<p> &nbsp; </p>")
	saved, err := store.Load(Key(1, ModeNew, 0))
	require.NoError(t, err)
	assert.Nil(t, saved)
	assert.Equal(t, "内容已清空", s.Status())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, store.saveCount())
}

func TestCloudSyncCreatesThenUpdates(t *testing.T) {
	svc := newFakeService()
	s := newTestSession(NewMemoryStore(), svc, NewFlagMonitor(true), SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	s.SetContent("<p>v1</p>")
	s.SyncNow()
	creates, updates, _ := svc.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, updates)
	assert.Equal(t, domain.StatusDraft, svc.lastStatus)
	assert.NotZero(t, s.DraftID())

	s.SetContent("<p>v2</p>")
	s.SyncNow()
	creates, updates, _ = svc.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates)
}

func TestCloudSyncEmptyDraftDeletesRemote(t *testing.T) {
	svc := newFakeService()
	svc.remoteDraft = &Draft{ID: 9, Content: "<p>old</p>", UpdatedAt: time.Now()}

	s := newTestSession(NewMemoryStore(), svc, NewFlagMonitor(true), SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, uint(9), s.DraftID())

	s.SetContent("")
	s.SyncNow()

	assert.Contains(t, svc.deletedIDs(), uint(9))
	assert.Equal(t, uint(0), s.DraftID())
	creates, updates, _ := svc.counts()
	assert.Zero(t, creates)
	assert.Zero(t, updates)
}

func TestEditModeNeverCreates(t *testing.T) {
	svc := newFakeService()
	svc.posts[42] = &domain.Post{ID: 42, Content: "<p>orig</p>", Status: domain.StatusPublished}

	s := newTestSession(NewMemoryStore(), svc, NewFlagMonitor(true), SessionOptions{
		Mode: ModeEdit, PostID: 42,
	})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "<p>orig</p>", s.Draft().Content)
	assert.Equal(t, "正在编辑", s.Status())

	s.SetContent("<p>changed</p>")
	s.SyncNow()
	creates, updates, _ := svc.counts()
	assert.Zero(t, creates)
	assert.Zero(t, updates)

	post, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(42), post.ID)
	creates, updates, _ = svc.counts()
	assert.Zero(t, creates)
	assert.Equal(t, 1, updates)
	assert.Equal(t, domain.StatusPublished, svc.lastStatus)
}

func TestEditInitFailureIsTerminal(t *testing.T) {
	svc := newFakeService()
	svc.getPostErr = errors.New("network down")

	store := newCountingStore()
	s := newTestSession(store, svc, NewFlagMonitor(true), SessionOptions{
		Mode: ModeEdit, PostID: 42,
	})
	defer s.Close()

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.Equal(t, "无法加载原帖，请从列表重新进入", s.Status())

	// Terminal state: mutations do not persist and sync stays off
	s.SetContent("<p>typed anyway</p>")
	s.SyncNow()
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, store.saveCount())
	creates, updates, _ := svc.counts()
	assert.Zero(t, creates+updates)
}

func TestEditInitUsesInitialPostWithoutFetch(t *testing.T) {
	svc := newFakeService()
	svc.getPostErr = errors.New("server unreachable")

	s := newTestSession(NewMemoryStore(), svc, NewFlagMonitor(true), SessionOptions{
		Mode:   ModeEdit,
		PostID: 42,
		InitialPost: &domain.Post{
			ID: 42, Content: "<p>carried</p>", Tags: domain.StringList{"旧帖"},
		},
	})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "<p>carried</p>", s.Draft().Content)
}

func TestOfflineSuspendsSyncReconnectSyncsImmediately(t *testing.T) {
	svc := newFakeService()
	monitor := NewFlagMonitor(false)

	s := newTestSession(NewMemoryStore(), svc, monitor, SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	s.SetContent("<p>hello</p>")
	s.SyncNow()
	creates, _, _ := svc.counts()
	assert.Zero(t, creates)
	assert.Equal(t, "离线状态", s.Status())

	// The interval is an hour in tests, so a prompt create proves the
	// reconnect path triggered the sync.
	monitor.SetOnline(true)
	waitFor(t, time.Second, func() bool {
		c, _, _ := svc.counts()
		return c == 1
	})
	assert.NotZero(t, s.DraftID())
}

func TestPublishDeletesSupersededServerDraft(t *testing.T) {
	svc := newFakeService()
	svc.remoteDraft = &Draft{ID: 7, Content: "<p>draft</p>", UpdatedAt: time.Now()}

	store := NewMemoryStore()
	s := newTestSession(store, svc, NewFlagMonitor(true), SessionOptions{Mode: ModeNew})
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, uint(7), s.DraftID())

	post, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, uint(7), post.ID)
	assert.Equal(t, domain.StatusPublished, post.Status)

	creates, _, _ := svc.counts()
	assert.Equal(t, 1, creates)
	assert.Contains(t, svc.deletedIDs(), uint(7))

	saved, err := store.Load(Key(1, ModeNew, 0))
	require.NoError(t, err)
	assert.Nil(t, saved)

	// The session is done; further submits are rejected
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSubmitRejectsEmptyDraft(t *testing.T) {
	svc := newFakeService()
	s := newTestSession(NewMemoryStore(), svc, NewFlagMonitor(true), SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrEmptyDraft)
	creates, updates, _ := svc.counts()
	assert.Zero(t, creates+updates)
}

func TestClearResetsToOriginalIdempotently(t *testing.T) {
	svc := newFakeService()
	svc.posts[42] = &domain.Post{
		ID: 42, Content: "<p>orig</p>", Images: domain.StringList{"https://cdn/a.jpg"},
		Tags: domain.StringList{"原帖"}, Status: domain.StatusPublished,
	}

	var prompt string
	s := newTestSession(NewMemoryStore(), svc, NewFlagMonitor(true), SessionOptions{
		Mode: ModeEdit, PostID: 42,
		Confirm: func(message string) bool {
			prompt = message
			return true
		},
	})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	s.SetContent("<p>mangled</p>")
	require.True(t, s.Clear(context.Background()))
	assert.Equal(t, "确定要重置为原帖内容吗？", prompt)
	assert.Equal(t, "<p>orig</p>", s.Draft().Content)

	s.SetContent("<p>mangled again</p>")
	s.SetTags([]string{"другой"})
	require.True(t, s.Clear(context.Background()))
	got := s.Draft()
	assert.Equal(t, "<p>orig</p>", got.Content)
	assert.Equal(t, []string{"https://cdn/a.jpg"}, got.Images)
	assert.Equal(t, []string{"原帖"}, got.Tags)

	// Reset never deletes the live post
	_, _, deletes := svc.counts()
	assert.Zero(t, deletes)
}

func TestClearNewModeDeletesServerDraft(t *testing.T) {
	svc := newFakeService()
	svc.remoteDraft = &Draft{ID: 7, Content: "<p>draft</p>", UpdatedAt: time.Now()}

	store := NewMemoryStore()
	s := newTestSession(store, svc, NewFlagMonitor(true), SessionOptions{Mode: ModeNew})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	require.True(t, s.Clear(context.Background()))
	assert.Contains(t, svc.deletedIDs(), uint(7))
	assert.True(t, s.Draft().IsEmpty())
	assert.Equal(t, uint(0), s.DraftID())
	assert.Equal(t, "内容已清空", s.Status())
}

func TestClearDeclinedChangesNothing(t *testing.T) {
	svc := newFakeService()
	svc.remoteDraft = &Draft{ID: 7, Content: "<p>draft</p>", UpdatedAt: time.Now()}

	s := newTestSession(NewMemoryStore(), svc, NewFlagMonitor(true), SessionOptions{
		Mode:    ModeNew,
		Confirm: func(string) bool { return false },
	})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	assert.False(t, s.Clear(context.Background()))
	assert.Equal(t, "<p>draft</p>", s.Draft().Content)
	_, _, deletes := svc.counts()
	assert.Zero(t, deletes)
}

func TestClearInvalidatesPendingLocalFlush(t *testing.T) {
	store := newCountingStore()
	s := newTestSession(store, newFakeService(), NewFlagMonitor(false), SessionOptions{
		Mode:     ModeNew,
		Debounce: time.Hour,
	})
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))

	s.SetContent("<p>暂存</p>")
	require.True(t, s.Clear(context.Background()))

	// A debounce fire racing the clear must not resurrect the entry
	s.flushLocal()

	loaded, err := store.Load(Key(1, ModeNew, 0))
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Zero(t, store.saveCount())

	// A fresh edit after the clear flushes normally again
	s.SetContent("<p>新内容</p>")
	s.flushLocal()
	loaded, err = store.Load(Key(1, ModeNew, 0))
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "<p>新内容</p>", loaded.Content)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession(NewMemoryStore(), newFakeService(), NewFlagMonitor(true), SessionOptions{Mode: ModeNew})
	require.NoError(t, s.Start(context.Background()))
	s.Close()
	s.Close()
}
