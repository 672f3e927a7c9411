package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moments-social/moments-backend/internal/common"
	"github.com/moments-social/moments-backend/internal/domain"
	"github.com/moments-social/moments-backend/internal/middleware"
	"github.com/moments-social/moments-backend/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 50
)

// PostHandler handles feed, post and draft endpoints
type PostHandler struct {
	postService *service.PostService
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(postService *service.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

// List handles GET /api/posts
// @Summary 获取帖子列表
// @Description 分页获取已发布的帖子，按发布时间倒序
// @Tags posts
// @Produce json
// @Param page query int false "页码" default(1)
// @Param pageSize query int false "每页数量" default(10)
// @Success 200 {object} common.APIResponse{data=[]domain.Post}
// @Router /posts [get]
func (h *PostHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))
	if page < 1 {
		page = defaultPage
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	posts, err := h.postService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "获取列表失败", err)
		return
	}

	common.SuccessResponse(c, posts, &common.Meta{
		Page:     page,
		PageSize: pageSize,
		HasMore:  len(posts) == pageSize,
	})
}

// LatestDraft handles GET /api/posts/draft
// @Summary 获取当前用户最新草稿
// @Description 没有草稿时返回 data=null，不视为错误
// @Tags posts
// @Produce json
// @Success 200 {object} common.APIResponse{data=domain.Post}
// @Security BearerAuth
// @Router /posts/draft [get]
func (h *PostHandler) LatestDraft(c *gin.Context) {
	userID := middleware.GetUserID(c)

	draft, err := h.postService.LatestDraft(userID)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "服务器错误", err)
		return
	}

	// draft may be nil: 200 with null data
	common.SuccessResponse(c, draft, nil)
}

// Get handles GET /api/posts/:id
// @Summary 获取帖子详情
// @Tags posts
// @Produce json
// @Param id path int true "帖子 ID"
// @Success 200 {object} common.APIResponse{data=domain.Post}
// @Failure 404 {object} common.APIResponse
// @Router /posts/{id} [get]
func (h *PostHandler) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "帖子 ID 无效", err)
		return
	}

	post, err := h.postService.Get(id)
	if err != nil {
		if errors.Is(err, common.ErrPostNotFound) {
			common.ErrorResponse(c, http.StatusNotFound, "帖子不存在", err)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "服务器错误", err)
		return
	}

	common.SuccessResponse(c, post, nil)
}

// Create handles POST /api/posts
// @Summary 发布帖子或保存草稿
// @Tags posts
// @Accept json
// @Produce json
// @Param request body domain.SavePostRequest true "帖子内容"
// @Success 201 {object} common.APIResponse{data=domain.Post}
// @Failure 400 {object} common.APIResponse
// @Security BearerAuth
// @Router /posts [post]
func (h *PostHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req domain.SavePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	post, err := h.postService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, common.ErrEmptyContent) {
			common.ErrorResponse(c, http.StatusBadRequest, "内容不能为空", err)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "服务器错误", err)
		return
	}

	common.CreatedResponse(c, post)
}

// Update handles PUT /api/posts/:id
// @Summary 更新帖子
// @Tags posts
// @Accept json
// @Produce json
// @Param id path int true "帖子 ID"
// @Param request body domain.SavePostRequest true "帖子内容"
// @Success 200 {object} common.APIResponse{data=domain.Post}
// @Failure 403 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Security BearerAuth
// @Router /posts/{id} [put]
func (h *PostHandler) Update(c *gin.Context) {
	userID := middleware.GetUserID(c)

	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "帖子 ID 无效", err)
		return
	}

	var req domain.SavePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	post, err := h.postService.Update(c.Request.Context(), userID, id, &req)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrPostNotFound):
			common.ErrorResponse(c, http.StatusNotFound, "帖子不存在", err)
		case errors.Is(err, common.ErrForbidden):
			common.ErrorResponse(c, http.StatusForbidden, "无权编辑此帖子", err)
		default:
			common.ErrorResponse(c, http.StatusInternalServerError, "更新失败", err)
		}
		return
	}

	common.SuccessResponse(c, post, nil)
}

// Delete handles DELETE /api/posts/:id
// @Summary 删除帖子
// @Tags posts
// @Produce json
// @Param id path int true "帖子 ID"
// @Success 200 {object} common.APIResponse
// @Failure 403 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Security BearerAuth
// @Router /posts/{id} [delete]
func (h *PostHandler) Delete(c *gin.Context) {
	userID := middleware.GetUserID(c)

	id, err := parseID(c)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "帖子 ID 无效", err)
		return
	}

	if err := h.postService.Delete(c.Request.Context(), userID, id); err != nil {
		switch {
		case errors.Is(err, common.ErrPostNotFound):
			common.ErrorResponse(c, http.StatusNotFound, "帖子不存在", err)
		case errors.Is(err, common.ErrForbidden):
			common.ErrorResponse(c, http.StatusForbidden, "无权删除此帖子", err)
		default:
			common.ErrorResponse(c, http.StatusInternalServerError, "删除失败", err)
		}
		return
	}

	common.SuccessResponse(c, gin.H{"message": "删除成功"}, nil)
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}
