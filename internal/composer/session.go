package composer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moments-social/moments-backend/internal/domain"
	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
)

const (
	defaultDebounce     = time.Second
	defaultSyncInterval = 30 * time.Second
	syncTimeout         = 10 * time.Second
)

var (
	// ErrEmptyDraft rejects publishing a draft with no text and no images
	ErrEmptyDraft = errors.New("内容不能为空")
	// ErrUploadsPending rejects publishing while images are still uploading
	ErrUploadsPending = errors.New("图片还在上传中")
	// ErrNotReady rejects operations outside the Ready state
	ErrNotReady = errors.New("composer session not ready")
	// ErrLoadFailed marks an edit session whose original post could not be
	// obtained; the session is terminal and performs no autosave
	ErrLoadFailed = errors.New("无法加载原帖")
)

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateInitializing
	stateReady
	stateLoadError
	stateSubmitting
	stateDone
)

// SessionOptions configures one composer session
type SessionOptions struct {
	UserID uint
	Mode   Mode
	// PostID is the post being edited; required in edit mode
	PostID uint
	// InitialPost seeds edit mode without a fetch when the caller already
	// holds the post (navigation state)
	InitialPost *domain.Post
	// Topic is appended to the tag set at init, skipped when already present
	Topic string
	// Author is merged into updated posts before feed notification
	Author *domain.Author

	Debounce     time.Duration
	SyncInterval time.Duration

	// Confirm guards Clear; nil confirms unconditionally
	Confirm func(message string) bool
	// OnStatus observes status text changes; purely informational
	OnStatus func(status string)
}

// Session owns the in-memory draft state for one composer run and decides
// where reads and writes go. Mutations are applied synchronously, persisted
// to the local store on a trailing debounce, and pushed to the server on a
// fixed interval while online (never in edit mode).
type Session struct {
	opts    SessionOptions
	key     string
	store   Store
	svc     Service
	monitor Monitor
	feed    *FeedStore
	uploads *UploadQueue

	mu       sync.Mutex
	state    sessionState
	draft    Draft
	original *Draft
	status   string
	debounce *time.Timer
	// gen invalidates in-flight flushes: bumped whenever the local entry is
	// deleted, so a flush scheduled before the delete cannot resurrect it
	gen      uint64
	flushGen uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession wires a session; call Start before anything else
func NewSession(store Store, svc Service, monitor Monitor, opts SessionOptions) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = defaultSyncInterval
	}
	return &Session{
		opts:    opts,
		key:     Key(opts.UserID, opts.Mode, opts.PostID),
		store:   store,
		svc:     svc,
		monitor: monitor,
		status:  "准备就绪",
		done:    make(chan struct{}),
	}
}

// SetFeed attaches the feed store notified on publish
func (s *Session) SetFeed(feed *FeedStore) { s.feed = feed }

// SetUploads attaches the upload queue consulted before publish
func (s *Session) SetUploads(q *UploadQueue) { s.uploads = q }

// Start runs the initialization protocol once. In edit mode the original
// post is the authoritative seed and a fetch failure is terminal. In new
// mode the strictly newer of the local and server drafts wins, with the
// server draft taking ties; a server fetch failure counts as no draft.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateUninitialized {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.state = stateInitializing
	s.mu.Unlock()

	if s.opts.Mode == ModeEdit {
		return s.initEdit(ctx)
	}
	return s.initNew(ctx)
}

func (s *Session) initEdit(ctx context.Context) error {
	post := s.opts.InitialPost
	if post == nil {
		fetched, err := s.svc.GetPost(ctx, s.opts.PostID)
		if err != nil {
			pkglogger.GetLogger().Error().Err(err).Uint("post_id", s.opts.PostID).
				Msg("edit init failed")
			s.mu.Lock()
			s.state = stateLoadError
			s.mu.Unlock()
			s.setStatus("无法加载原帖，请从列表重新进入")
			return fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		post = fetched
	}

	seed := DraftFromPost(post)
	seed.ID = s.opts.PostID

	s.mu.Lock()
	s.original = seed
	s.draft = seed.Clone()
	s.state = stateReady
	s.mu.Unlock()
	s.setStatus("正在编辑")
	return nil
}

func (s *Session) initNew(ctx context.Context) error {
	local, err := s.store.Load(s.key)
	if err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("key", s.key).Msg("local draft unreadable")
		local = nil
	}

	remote, err := s.svc.LatestDraft(ctx)
	if err != nil {
		// No server draft is a soft condition, not an init failure
		pkglogger.GetLogger().Warn().Err(err).Msg("server draft fetch failed")
		remote = nil
	}

	var chosen *Draft
	status := ""
	switch {
	case local != nil && (remote == nil || local.UpdatedAt.After(remote.UpdatedAt)):
		chosen = local
		status = "已恢复本地草稿"
	case remote != nil:
		chosen = remote
		status = "已恢复云端草稿"
	}

	s.mu.Lock()
	if chosen != nil {
		s.draft = chosen.Clone()
	}
	if s.opts.Topic != "" && !containsTag(s.draft.Tags, s.opts.Topic) {
		s.draft.Tags = append(s.draft.Tags, s.opts.Topic)
	}
	s.state = stateReady
	s.mu.Unlock()

	if status != "" {
		s.setStatus(status)
	}

	go s.run()
	return nil
}

// run drives the periodic cloud sync and reacts to connectivity changes.
// Only new-post sessions run it.
func (s *Session) run() {
	ticker := time.NewTicker(s.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cloudSync()
		case online, ok := <-s.monitor.Events():
			if !ok {
				return
			}
			if online {
				// Reconnect syncs immediately instead of waiting for
				// the next tick.
				s.cloudSync()
			} else {
				s.setStatus("离线状态")
			}
		}
	}
}

// Draft returns a snapshot of the current state
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// DraftID returns the server post id backing the draft, zero when unsynced
func (s *Session) DraftID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.ID
}

// Status returns the current user-facing status text
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Editing reports whether the session edits an existing post
func (s *Session) Editing() bool {
	return s.opts.Mode == ModeEdit
}

// SetContent replaces the rich-text markup
func (s *Session) SetContent(content string) {
	s.mutate(func(d *Draft) { d.Content = content })
}

// SetImages replaces the image URL list
func (s *Session) SetImages(images []string) {
	s.mutate(func(d *Draft) { d.Images = append([]string(nil), images...) })
}

// SetTags replaces the tag list
func (s *Session) SetTags(tags []string) {
	s.mutate(func(d *Draft) { d.Tags = append([]string(nil), tags...) })
}

// AddTag appends a tag unless already present
func (s *Session) AddTag(tag string) {
	s.mutate(func(d *Draft) {
		if !containsTag(d.Tags, tag) {
			d.Tags = append(d.Tags, tag)
		}
	})
}

// mutate applies a change synchronously and schedules local persistence.
// An empty draft deletes the local entry immediately instead of saving.
func (s *Session) mutate(apply func(*Draft)) {
	s.mu.Lock()
	if s.state != stateReady {
		s.mu.Unlock()
		return
	}
	apply(&s.draft)
	s.draft.UpdatedAt = time.Now()

	if s.draft.IsEmpty() {
		if s.debounce != nil {
			s.debounce.Stop()
		}
		s.gen++
		key := s.key
		s.mu.Unlock()

		if err := s.store.Delete(key); err != nil {
			pkglogger.GetLogger().Warn().Err(err).Str("key", key).Msg("draft delete failed")
		}
		s.setStatus("内容已清空")
		return
	}

	s.flushGen = s.gen
	if s.debounce == nil {
		s.debounce = time.AfterFunc(s.opts.Debounce, s.flushLocal)
	} else {
		s.debounce.Reset(s.opts.Debounce)
	}
	s.mu.Unlock()
	s.setStatus("输入中...")
}

// flushLocal writes the full current draft after the debounce quiet period
func (s *Session) flushLocal() {
	select {
	case <-s.done:
		return
	default:
	}

	s.mu.Lock()
	if s.state != stateReady || s.draft.IsEmpty() || s.flushGen != s.gen {
		s.mu.Unlock()
		return
	}
	snapshot := s.draft.Clone()
	key := s.key
	s.mu.Unlock()

	if err := s.store.Save(key, &snapshot); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("key", key).Msg("local save failed")
		s.setStatus("本地保存失败")
		return
	}
	s.setStatus("更改已保存至本地")
}

// SyncNow forces one cloud sync attempt, the same path the interval takes
func (s *Session) SyncNow() {
	s.cloudSync()
}

// cloudSync pushes the draft as a status=draft post. Edit sessions never
// sync; published posts are only touched on explicit submit. An empty
// draft with a server id deletes the remote draft instead.
func (s *Session) cloudSync() {
	s.mu.Lock()
	if s.opts.Mode == ModeEdit || s.state != stateReady {
		s.mu.Unlock()
		return
	}
	if !s.monitor.Online() {
		s.mu.Unlock()
		s.setStatus("离线状态")
		return
	}
	snapshot := s.draft.Clone()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if snapshot.IsEmpty() {
		if snapshot.ID == 0 {
			return
		}
		if err := s.svc.DeletePost(ctx, snapshot.ID); err != nil && !NotFound(err) {
			pkglogger.GetLogger().Warn().Err(err).Uint("draft_id", snapshot.ID).
				Msg("remote draft delete failed")
			return
		}
		s.mu.Lock()
		if s.draft.ID == snapshot.ID {
			s.draft.ID = 0
		}
		s.mu.Unlock()
		return
	}

	s.setStatus("正在同步至云端...")

	var saved *domain.Post
	var err error
	if snapshot.ID != 0 {
		saved, err = s.svc.UpdatePost(ctx, snapshot.ID, snapshot, domain.StatusDraft)
	} else {
		saved, err = s.svc.CreatePost(ctx, snapshot, domain.StatusDraft)
	}
	if err != nil {
		pkglogger.GetLogger().Warn().Err(err).Msg("cloud sync failed")
		s.setStatus("云端同步失败")
		return
	}

	if snapshot.ID == 0 && saved != nil {
		s.mu.Lock()
		if s.draft.ID == 0 {
			s.draft.ID = saved.ID
		}
		s.mu.Unlock()
	}
	s.setStatus("所有更改已同步至云端")
}

// Clear asks for confirmation, then removes the local entry and any remote
// draft. Edit sessions reset to the originally fetched post; new sessions
// wipe to empty. Returns false when the user declines.
func (s *Session) Clear(ctx context.Context) bool {
	message := "确定要清空当前内容吗？"
	if s.opts.Mode == ModeEdit {
		message = "确定要重置为原帖内容吗？"
	}
	if s.opts.Confirm != nil && !s.opts.Confirm(message) {
		return false
	}

	s.mu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.gen++
	draftID := s.draft.ID
	edit := s.opts.Mode == ModeEdit
	s.mu.Unlock()

	if err := s.store.Delete(s.key); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("key", s.key).Msg("draft delete failed")
	}

	if !edit && draftID != 0 {
		if err := s.svc.DeletePost(ctx, draftID); err != nil && !NotFound(err) {
			pkglogger.GetLogger().Warn().Err(err).Uint("draft_id", draftID).
				Msg("remote draft delete failed")
		}
	}

	s.mu.Lock()
	if edit && s.original != nil {
		s.draft = s.original.Clone()
	} else {
		s.draft = Draft{}
	}
	s.mu.Unlock()

	if edit {
		s.setStatus("已重置为原帖内容")
	} else {
		s.setStatus("内容已清空")
	}
	return true
}

// Submit publishes the draft. Edit sessions update the existing post; new
// sessions create a published post and then delete the superseded server
// draft best-effort. On success the local entry is purged, the feed is
// force-refreshed and the session is done.
func (s *Session) Submit(ctx context.Context) (*domain.Post, error) {
	s.mu.Lock()
	if s.state != stateReady {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	if s.draft.IsEmpty() {
		s.mu.Unlock()
		return nil, ErrEmptyDraft
	}
	if s.uploads != nil && s.uploads.Pending() {
		s.mu.Unlock()
		return nil, ErrUploadsPending
	}
	snapshot := s.draft.Clone()
	edit := s.opts.Mode == ModeEdit
	s.state = stateSubmitting
	s.mu.Unlock()

	// The submitting flag always clears, success flips the state to done
	// first so the reset is a no-op there.
	defer func() {
		s.mu.Lock()
		if s.state == stateSubmitting {
			s.state = stateReady
		}
		s.mu.Unlock()
	}()

	var post *domain.Post
	var err error
	if edit {
		post, err = s.svc.UpdatePost(ctx, s.opts.PostID, snapshot, domain.StatusPublished)
		if err != nil {
			return nil, err
		}
		if post.User == nil && s.opts.Author != nil {
			post.User = &domain.User{
				ID:       s.opts.Author.ID,
				Username: s.opts.Author.Username,
				Avatar:   s.opts.Author.Avatar,
			}
		}
		if s.feed != nil {
			s.feed.UpdatePost(*post)
		}
	} else {
		post, err = s.svc.CreatePost(ctx, snapshot, domain.StatusPublished)
		if err != nil {
			return nil, err
		}
		if snapshot.ID != 0 && snapshot.ID != post.ID {
			if derr := s.svc.DeletePost(ctx, snapshot.ID); derr != nil && !NotFound(derr) {
				pkglogger.GetLogger().Warn().Err(derr).Uint("draft_id", snapshot.ID).
					Msg("superseded draft delete failed")
			}
		}
	}

	if err := s.store.Delete(s.key); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("key", s.key).Msg("draft delete failed")
	}
	if s.feed != nil {
		if _, ferr := s.feed.Fetch(ctx, true); ferr != nil {
			pkglogger.GetLogger().Warn().Err(ferr).Msg("feed refresh failed")
		}
	}

	s.mu.Lock()
	s.state = stateDone
	s.mu.Unlock()
	s.Close()
	return post, nil
}

// Close cancels pending timers; no writes happen afterwards. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.debounce != nil {
			s.debounce.Stop()
		}
		s.mu.Unlock()
	})
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	cb := s.opts.OnStatus
	s.mu.Unlock()
	if cb != nil {
		cb(status)
	}
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
