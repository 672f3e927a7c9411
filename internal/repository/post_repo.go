package repository

import (
	"github.com/moments-social/moments-backend/internal/domain"
	"gorm.io/gorm"
)

// PostRepository handles post and draft data access
type PostRepository interface {
	FindByID(id uint) (*domain.Post, error)
	ListPublished(page, pageSize int) ([]*domain.Post, error)
	LatestDraftByUser(userID uint) (*domain.Post, error)
	Create(post *domain.Post) error
	Update(post *domain.Post) error
	UpdateTags(id uint, tags domain.StringList) error
	Delete(id uint) error
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new PostRepository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// FindByID returns a post with its author preloaded
func (r *postRepository) FindByID(id uint) (*domain.Post, error) {
	var post domain.Post
	err := r.db.Preload("User").First(&post, id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPublished returns a page of the public feed, newest first
func (r *postRepository) ListPublished(page, pageSize int) ([]*domain.Post, error) {
	var posts []*domain.Post
	offset := (page - 1) * pageSize
	err := r.db.Preload("User").
		Where("status = ?", domain.StatusPublished).
		Order("created_at DESC").
		Offset(offset).Limit(pageSize).
		Find(&posts).Error
	return posts, err
}

// LatestDraftByUser returns the most recently touched draft, or
// gorm.ErrRecordNotFound when the user has none
func (r *postRepository) LatestDraftByUser(userID uint) (*domain.Post, error) {
	var post domain.Post
	err := r.db.Where("user_id = ? AND status = ?", userID, domain.StatusDraft).
		Order("updated_at DESC").
		First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Create(post *domain.Post) error {
	return r.db.Create(post).Error
}

func (r *postRepository) Update(post *domain.Post) error {
	return r.db.Save(post).Error
}

// UpdateTags writes only the tags column, used by background tag generation
// so it cannot clobber concurrent content edits
func (r *postRepository) UpdateTags(id uint, tags domain.StringList) error {
	return r.db.Model(&domain.Post{}).Where("id = ?", id).
		UpdateColumn("tags", tags).Error
}

func (r *postRepository) Delete(id uint) error {
	return r.db.Delete(&domain.Post{}, id).Error
}
