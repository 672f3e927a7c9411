package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/moments-social/moments-backend/internal/common"
	"github.com/moments-social/moments-backend/internal/domain"
	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
)

// TopicSuggester produces topic suggestions; implemented by ai.Client
type TopicSuggester interface {
	GenerateTopics(ctx context.Context, content string, images []string) ([]string, error)
}

// AIHandler handles AI suggestion endpoints
type AIHandler struct {
	suggester TopicSuggester
}

// NewAIHandler creates a new AIHandler
func NewAIHandler(suggester TopicSuggester) *AIHandler {
	return &AIHandler{suggester: suggester}
}

// SuggestTopics handles POST /api/ai/suggest-topics
// @Summary 生成话题建议
// @Description 根据帖子内容生成话题标签；失败或无内容时返回空列表
// @Tags ai
// @Accept json
// @Produce json
// @Param request body domain.SuggestTopicsRequest true "帖子内容"
// @Success 200 {object} common.APIResponse{data=domain.SuggestTopicsResponse}
// @Router /ai/suggest-topics [post]
func (h *AIHandler) SuggestTopics(c *gin.Context) {
	var req domain.SuggestTopicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.SuccessResponse(c, domain.SuggestTopicsResponse{Topics: []string{}}, nil)
		return
	}

	if req.Content == "" && len(req.Images) == 0 {
		common.SuccessResponse(c, domain.SuggestTopicsResponse{Topics: []string{}}, nil)
		return
	}

	topics, err := h.suggester.GenerateTopics(c.Request.Context(), req.Content, req.Images)
	if err != nil {
		// Suggestions are decorative: never surface generation failures
		pkglogger.GetLogger().Error().Err(err).Msg("topic generation failed")
		topics = nil
	}
	if topics == nil {
		topics = []string{}
	}

	common.SuccessResponse(c, domain.SuggestTopicsResponse{Topics: topics}, nil)
}
