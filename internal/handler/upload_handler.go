package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moments-social/moments-backend/internal/common"
	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
	"github.com/moments-social/moments-backend/pkg/storage"
)

// Presigned PUT URLs stay valid long enough for slow mobile uploads
const presignExpiry = 50 * time.Minute

// UploadHandler issues direct-upload grants and deletes stored objects
type UploadHandler struct {
	storage *storage.S3Client
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(s3 *storage.S3Client) *UploadHandler {
	return &UploadHandler{storage: s3}
}

type deleteUploadRequest struct {
	URL string `json:"url" binding:"required"`
}

// Presign handles GET /api/upload/presign
// @Summary 获取直传预签名 URL
// @Description 客户端凭 uploadUrl 直接 PUT 到对象存储，publicUrl 为最终访问地址
// @Tags upload
// @Produce json
// @Param fileName query string true "文件名"
// @Param fileType query string false "MIME 类型"
// @Success 200 {object} common.APIResponse{data=storage.PresignedUpload}
// @Security BearerAuth
// @Router /upload/presign [get]
func (h *UploadHandler) Presign(c *gin.Context) {
	if h.storage == nil {
		common.ErrorResponse(c, http.StatusServiceUnavailable, "对象存储未配置", nil)
		return
	}

	fileName := c.Query("fileName")
	if fileName == "" {
		common.ErrorResponse(c, http.StatusBadRequest, "缺少文件名", nil)
		return
	}
	fileType := c.Query("fileType")

	key := storage.GenerateKey(fileName)
	grant, err := h.storage.PresignPut(c.Request.Context(), key, fileType, presignExpiry)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "签名生成失败", err)
		return
	}

	common.SuccessResponse(c, grant, nil)
}

// Delete handles DELETE /api/upload
// @Summary 删除已上传的文件
// @Tags upload
// @Accept json
// @Produce json
// @Param request body deleteUploadRequest true "文件公开 URL"
// @Success 200 {object} common.APIResponse
// @Security BearerAuth
// @Router /upload [delete]
func (h *UploadHandler) Delete(c *gin.Context) {
	if h.storage == nil {
		common.ErrorResponse(c, http.StatusServiceUnavailable, "对象存储未配置", nil)
		return
	}

	var req deleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "缺少 URL 参数", err)
		return
	}

	key, err := h.storage.KeyFromURL(req.URL)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "URL 无效", err)
		return
	}

	if err := h.storage.Delete(c.Request.Context(), key); err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "删除失败", err)
		return
	}

	pkglogger.GetLogger().Info().Str("key", key).Msg("object deleted")
	common.SuccessResponse(c, gin.H{"message": "删除成功"}, nil)
}
