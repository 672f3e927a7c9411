package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/moments-social/moments-backend/internal/ai"
	"github.com/moments-social/moments-backend/internal/common"
	"github.com/moments-social/moments-backend/internal/domain"
	"github.com/moments-social/moments-backend/internal/repository"
	"github.com/moments-social/moments-backend/pkg/cache"
	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
	"gorm.io/gorm"
)

const maxGeneratedTags = 5

// TagGenerator produces keyword tags for a post; implemented by ai.Client
type TagGenerator interface {
	GenerateTags(ctx context.Context, content string, images []string) ([]string, error)
}

// PostService handles feed, post and draft operations
type PostService struct {
	postRepo repository.PostRepository
	cache    cache.Service
	tagger   TagGenerator
}

// NewPostService creates a new PostService. tagger may be nil to disable
// background tag generation.
func NewPostService(postRepo repository.PostRepository, cacheService cache.Service, tagger TagGenerator) *PostService {
	return &PostService{
		postRepo: postRepo,
		cache:    cacheService,
		tagger:   tagger,
	}
}

// List returns a page of the public feed, newest first, served from the
// page cache when warm
func (s *PostService) List(ctx context.Context, page, pageSize int) ([]*domain.Post, error) {
	if data, err := s.cache.GetFeedPage(ctx, page, pageSize); err == nil && len(data) > 0 {
		var cached []*domain.Post
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	posts, err := s.postRepo.ListPublished(page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	if err := s.cache.SetFeedPage(ctx, page, pageSize, posts); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Msg("failed to cache feed page")
	}
	return posts, nil
}

// Get returns a post with its author
func (s *PostService) Get(id uint) (*domain.Post, error) {
	post, err := s.postRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrPostNotFound
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return post, nil
}

// LatestDraft returns the user's most recent draft, or nil when none exists
func (s *PostService) LatestDraft(userID uint) (*domain.Post, error) {
	draft, err := s.postRepo.LatestDraftByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // not an error: the user simply has no draft
		}
		return nil, fmt.Errorf("find draft: %w", err)
	}
	return draft, nil
}

// Create stores a new post or draft for the user
func (s *PostService) Create(ctx context.Context, userID uint, req *domain.SavePostRequest) (*domain.Post, error) {
	content := ""
	if req.Content != nil {
		content = *req.Content
	}
	if content == "" && len(req.Images) == 0 {
		return nil, common.ErrEmptyContent
	}

	status := domain.StatusPublished
	if req.Status != nil && *req.Status != "" {
		status = *req.Status
	}

	post := &domain.Post{
		UserID:  userID,
		Content: content,
		Images:  domain.StringList(req.Images),
		Tags:    domain.StringList(req.Tags),
		Status:  status,
	}
	if post.Images == nil {
		post.Images = domain.StringList{}
	}
	if post.Tags == nil {
		post.Tags = domain.StringList{}
	}

	if err := s.postRepo.Create(post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	if status == domain.StatusPublished {
		s.invalidateFeed(ctx)
		go s.processTagsInBackground(post.ID, post.Content, post.Images, post.Status)
	}

	return post, nil
}

// Update applies the provided fields to a post owned by the user
func (s *PostService) Update(ctx context.Context, userID, postID uint, req *domain.SavePostRequest) (*domain.Post, error) {
	post, err := s.postRepo.FindByID(postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrPostNotFound
		}
		return nil, fmt.Errorf("find post: %w", err)
	}

	if post.UserID != userID {
		return nil, common.ErrForbidden
	}

	if req.Content != nil {
		post.Content = *req.Content
	}
	if req.Images != nil {
		post.Images = domain.StringList(req.Images)
	}
	if req.Tags != nil {
		post.Tags = domain.StringList(req.Tags)
	}
	if req.Status != nil && *req.Status != "" {
		post.Status = *req.Status
	}

	if err := s.postRepo.Update(post); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}

	if post.Status == domain.StatusPublished {
		s.invalidateFeed(ctx)
		go s.processTagsInBackground(post.ID, post.Content, post.Images, post.Status)
	}

	return post, nil
}

// Delete removes a post owned by the user
func (s *PostService) Delete(ctx context.Context, userID, postID uint) error {
	post, err := s.postRepo.FindByID(postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.ErrPostNotFound
		}
		return fmt.Errorf("find post: %w", err)
	}

	if post.UserID != userID {
		return common.ErrForbidden
	}

	if err := s.postRepo.Delete(postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	if post.Status == domain.StatusPublished {
		s.invalidateFeed(ctx)
	}
	return nil
}

func (s *PostService) invalidateFeed(ctx context.Context) {
	if err := s.cache.InvalidateFeed(ctx); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Msg("failed to invalidate feed cache")
	}
}

// processTagsInBackground merges AI-generated tags into a published post.
// Failures are logged only; tag generation never blocks or fails a save.
func (s *PostService) processTagsInBackground(postID uint, content string, images []string, status string) {
	if s.tagger == nil {
		return
	}
	if status != domain.StatusPublished {
		return
	}
	if ai.StripHTML(content) == "" && len(images) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	generated, err := s.tagger.GenerateTags(ctx, content, images)
	if err != nil {
		pkglogger.GetLogger().Error().Err(err).Uint("post_id", postID).Msg("background tag generation failed")
		return
	}
	if len(generated) == 0 {
		return
	}

	// Re-read so we merge against the latest tags, not the snapshot
	post, err := s.postRepo.FindByID(postID)
	if err != nil {
		pkglogger.GetLogger().Error().Err(err).Uint("post_id", postID).Msg("post vanished before tag merge")
		return
	}

	merged := mergeTags(post.Tags, generated, maxGeneratedTags)
	if err := s.postRepo.UpdateTags(postID, merged); err != nil {
		pkglogger.GetLogger().Error().Err(err).Uint("post_id", postID).Msg("failed to store generated tags")
		return
	}

	pkglogger.GetLogger().Info().Uint("post_id", postID).Strs("tags", merged).Msg("tags processed")
}

// mergeTags unions existing and generated tags, preserving insertion order
// and capping the result
func mergeTags(existing domain.StringList, generated []string, limit int) domain.StringList {
	seen := make(map[string]bool, len(existing)+len(generated))
	merged := make(domain.StringList, 0, limit)
	for _, t := range append(append([]string{}, existing...), generated...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		merged = append(merged, t)
		if len(merged) == limit {
			break
		}
	}
	return merged
}
