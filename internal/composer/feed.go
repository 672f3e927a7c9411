package composer

import (
	"context"
	"sync"

	"github.com/moments-social/moments-backend/internal/domain"
)

const feedPageSize = 10

// FeedStore caches the published feed client-side. Fetches are
// single-flight per store; a force refresh merges fresh items ahead of the
// cache, de-duplicated by id.
type FeedStore struct {
	svc FeedService

	mu       sync.Mutex
	posts    []domain.Post
	page     int
	pageSize int
	hasMore  bool
	fetching bool
}

// NewFeedStore starts at page one with an empty cache
func NewFeedStore(svc FeedService) *FeedStore {
	return &FeedStore{svc: svc, page: 1, pageSize: feedPageSize, hasMore: true}
}

// Posts returns a snapshot of the cached feed
func (f *FeedStore) Posts() []domain.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Post(nil), f.posts...)
}

// HasMore reports whether another page is available
func (f *FeedStore) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

// Fetch loads the next page, or page one on forceRefresh. A call while a
// fetch is in flight returns the current cache untouched.
func (f *FeedStore) Fetch(ctx context.Context, forceRefresh bool) ([]domain.Post, error) {
	f.mu.Lock()
	if f.fetching {
		snapshot := append([]domain.Post(nil), f.posts...)
		f.mu.Unlock()
		return snapshot, nil
	}
	f.fetching = true
	page := f.page
	if forceRefresh {
		page = 1
	}
	pageSize := f.pageSize
	f.mu.Unlock()

	posts, hasMore, err := f.svc.ListPosts(ctx, page, pageSize)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetching = false
	if err != nil {
		return append([]domain.Post(nil), f.posts...), err
	}

	if forceRefresh {
		wasEmpty := len(f.posts) == 0
		f.posts = mergeAhead(posts, f.posts)
		// Paging restarts only when there was nothing cached; otherwise
		// the cursor for older pages is kept.
		if wasEmpty {
			f.page = 2
			f.hasMore = hasMore
		}
	} else {
		f.posts = mergeAhead(f.posts, posts)
		f.page = page + 1
		f.hasMore = hasMore
	}
	return append([]domain.Post(nil), f.posts...), nil
}

// RemovePost drops an entry by id
func (f *FeedStore) RemovePost(id uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.posts {
		if f.posts[i].ID == id {
			f.posts = append(f.posts[:i], f.posts[i+1:]...)
			return
		}
	}
}

// UpdatePost replaces an entry by id; unknown ids are ignored
func (f *FeedStore) UpdatePost(post domain.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.posts {
		if f.posts[i].ID == post.ID {
			f.posts[i] = post
			return
		}
	}
}

// mergeAhead keeps head order, appending tail entries whose id is not
// already present
func mergeAhead(head, tail []domain.Post) []domain.Post {
	seen := make(map[uint]struct{}, len(head))
	merged := append([]domain.Post(nil), head...)
	for _, p := range head {
		seen[p.ID] = struct{}{}
	}
	for _, p := range tail {
		if _, ok := seen[p.ID]; !ok {
			merged = append(merged, p)
		}
	}
	return merged
}
