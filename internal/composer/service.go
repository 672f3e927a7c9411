package composer

import (
	"context"

	"github.com/moments-social/moments-backend/internal/domain"
	"github.com/moments-social/moments-backend/pkg/storage"
)

// Service is the remote draft collaborator. LatestDraft returns (nil, nil)
// when the user has no server draft. Create/Update push the full draft
// state with the given post status; they are overwrites, not patches.
type Service interface {
	LatestDraft(ctx context.Context) (*Draft, error)
	GetPost(ctx context.Context, id uint) (*domain.Post, error)
	CreatePost(ctx context.Context, draft Draft, status string) (*domain.Post, error)
	UpdatePost(ctx context.Context, id uint, draft Draft, status string) (*domain.Post, error)
	DeletePost(ctx context.Context, id uint) error
}

// FeedService is the paginated feed collaborator consumed by FeedStore
type FeedService interface {
	ListPosts(ctx context.Context, page, pageSize int) ([]domain.Post, bool, error)
}

// PresignService issues direct-upload grants for the upload queue
type PresignService interface {
	PresignUpload(ctx context.Context, fileName, fileType string) (*storage.PresignedUpload, error)
}

// DraftFromPost maps a server post onto the local draft shape
func DraftFromPost(p *domain.Post) *Draft {
	if p == nil {
		return nil
	}
	return &Draft{
		ID:        p.ID,
		Content:   p.Content,
		Images:    append([]string(nil), p.Images...),
		Tags:      append([]string(nil), p.Tags...),
		UpdatedAt: p.UpdatedAt,
	}
}
