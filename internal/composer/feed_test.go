package composer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moments-social/moments-backend/internal/domain"
)

// fakeFeedService serves fixed pages and can block to simulate a slow fetch
type fakeFeedService struct {
	mu      sync.Mutex
	pages   map[int][]domain.Post
	calls   int
	lastReq int
	block   chan struct{}
}

func (f *fakeFeedService) ListPosts(ctx context.Context, page, pageSize int) ([]domain.Post, bool, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = page
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	posts := f.pages[page]
	_, more := f.pages[page+1]
	return posts, more, nil
}

func post(id uint) domain.Post {
	return domain.Post{ID: id, Content: "<p>post</p>", Status: domain.StatusPublished}
}

func TestFeedFetchAppendsPages(t *testing.T) {
	svc := &fakeFeedService{pages: map[int][]domain.Post{
		1: {post(3), post(2)},
		2: {post(1)},
	}}
	feed := NewFeedStore(svc)

	posts, err := feed.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	assert.True(t, feed.HasMore())

	posts, err = feed.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.False(t, feed.HasMore())
	assert.Equal(t, []uint{3, 2, 1}, ids(posts))
}

func TestFeedForceRefreshMergesAheadDeduplicated(t *testing.T) {
	svc := &fakeFeedService{pages: map[int][]domain.Post{
		1: {post(3), post(2)},
		2: {post(1)},
	}}
	feed := NewFeedStore(svc)

	_, err := feed.Fetch(context.Background(), false)
	require.NoError(t, err)
	_, err = feed.Fetch(context.Background(), false)
	require.NoError(t, err)

	// A new post lands at the head; the refresh page overlaps the cache
	svc.mu.Lock()
	svc.pages[1] = []domain.Post{post(4), post(3)}
	svc.mu.Unlock()

	posts, err := feed.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []uint{4, 3, 2, 1}, ids(posts))
	// The cache was non-empty, so the paging cursor is untouched
	assert.Equal(t, 1, svc.lastReq)
	assert.False(t, feed.HasMore())
}

func TestFeedForceRefreshEmptyCacheResetsPaging(t *testing.T) {
	svc := &fakeFeedService{pages: map[int][]domain.Post{
		1: {post(2)},
		2: {post(1)},
	}}
	feed := NewFeedStore(svc)

	posts, err := feed.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, ids(posts))
	assert.True(t, feed.HasMore())

	// Paging restarted at page two after the refresh
	posts, err = feed.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []uint{2, 1}, ids(posts))
}

func TestFeedSingleFlight(t *testing.T) {
	svc := &fakeFeedService{
		pages: map[int][]domain.Post{1: {post(1)}},
		block: make(chan struct{}),
	}
	feed := NewFeedStore(svc)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = feed.Fetch(context.Background(), false)
	}()

	// Wait until the first fetch is in flight, then issue a second one;
	// it must return the (empty) cache without calling the service again.
	for {
		svc.mu.Lock()
		calls := svc.calls
		svc.mu.Unlock()
		if calls == 1 {
			break
		}
	}
	posts, err := feed.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, posts)

	close(svc.block)
	<-done

	svc.mu.Lock()
	assert.Equal(t, 1, svc.calls)
	svc.mu.Unlock()
}

func TestFeedRemoveAndUpdatePost(t *testing.T) {
	svc := &fakeFeedService{pages: map[int][]domain.Post{1: {post(3), post(2), post(1)}}}
	feed := NewFeedStore(svc)

	_, err := feed.Fetch(context.Background(), false)
	require.NoError(t, err)

	feed.RemovePost(2)
	assert.Equal(t, []uint{3, 1}, ids(feed.Posts()))

	updated := post(3)
	updated.Content = "<p>edited</p>"
	feed.UpdatePost(updated)
	assert.Equal(t, "<p>edited</p>", feed.Posts()[0].Content)

	// Unknown ids are ignored
	feed.UpdatePost(post(99))
	assert.Len(t, feed.Posts(), 2)
}

func ids(posts []domain.Post) []uint {
	out := make([]uint, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
