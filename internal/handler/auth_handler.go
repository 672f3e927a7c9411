package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moments-social/moments-backend/internal/common"
	"github.com/moments-social/moments-backend/internal/domain"
	"github.com/moments-social/moments-backend/internal/middleware"
	"github.com/moments-social/moments-backend/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register handles POST /api/auth/register
// @Summary 用户注册
// @Description 使用邮箱验证码注册新账号
// @Tags auth
// @Accept json
// @Produce json
// @Param request body domain.RegisterRequest true "注册信息"
// @Success 201 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "用户名和密码不能为空", err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidVerifyCode):
			common.ErrorResponse(c, http.StatusBadRequest, "验证码错误或已过期", err)
		case errors.Is(err, common.ErrUserAlreadyExists):
			common.ErrorResponse(c, http.StatusBadRequest, "用户名已存在", err)
		case errors.Is(err, common.ErrEmailAlreadyUsed):
			common.ErrorResponse(c, http.StatusBadRequest, "该邮箱已被注册", err)
		default:
			common.ErrorResponse(c, http.StatusInternalServerError, "服务器错误", err)
		}
		return
	}

	common.CreatedResponse(c, gin.H{
		"message": "注册成功！",
		"user":    user.AuthorView(),
	})
}

// Login handles POST /api/auth/login
// @Summary 用户登录
// @Description 用户名密码登录，或 type=email_code 时邮箱验证码登录
// @Tags auth
// @Accept json
// @Produce json
// @Param request body domain.LoginRequest true "登录信息"
// @Success 200 {object} common.APIResponse{data=domain.LoginResponse}
// @Failure 401 {object} common.APIResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	var (
		resp *domain.LoginResponse
		err  error
	)
	if req.Type == "email_code" {
		resp, err = h.authService.LoginWithEmailCode(c.Request.Context(), req.Email, req.Code)
	} else {
		resp, err = h.authService.LoginWithPassword(req.Username, req.Password)
	}

	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidVerifyCode):
			common.ErrorResponse(c, http.StatusUnauthorized, "验证码错误或已过期", err)
		case errors.Is(err, common.ErrUserNotFound), errors.Is(err, common.ErrInvalidCredentials):
			common.ErrorResponse(c, http.StatusUnauthorized, "用户不存在或密码错误", err)
		default:
			common.ErrorResponse(c, http.StatusInternalServerError, "服务器错误", err)
		}
		return
	}

	common.SuccessResponse(c, resp, nil)
}

// GetMe handles GET /api/auth/me
// @Summary 获取当前用户信息
// @Tags auth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Failure 401 {object} common.APIResponse
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		common.ErrorResponse(c, http.StatusUnauthorized, "未登录", nil)
		return
	}

	user, err := h.authService.GetCurrentUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			common.ErrorResponse(c, http.StatusUnauthorized, "用户不存在", err)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "服务器错误", err)
		return
	}

	common.SuccessResponse(c, user, nil)
}

// CheckEmail handles POST /api/auth/check-email
// @Summary 检查邮箱是否已注册
// @Tags auth
// @Accept json
// @Produce json
// @Param request body domain.CheckEmailRequest true "邮箱"
// @Success 200 {object} common.APIResponse
// @Router /auth/check-email [post]
func (h *AuthHandler) CheckEmail(c *gin.Context) {
	var req domain.CheckEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "邮箱格式错误", err)
		return
	}

	exists, err := h.authService.CheckEmail(req.Email)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "服务器错误", err)
		return
	}

	common.SuccessResponse(c, gin.H{"exists": exists}, nil)
}

// SendCode handles POST /api/auth/send-code
// @Summary 发送邮箱验证码
// @Tags auth
// @Accept json
// @Produce json
// @Param request body domain.SendCodeRequest true "邮箱"
// @Success 200 {object} common.APIResponse
// @Failure 429 {object} common.APIResponse
// @Router /auth/send-code [post]
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req domain.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "邮箱格式错误", err)
		return
	}

	if err := h.authService.SendCode(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, common.ErrResendTooSoon) {
			common.ErrorResponse(c, http.StatusTooManyRequests, "验证码发送过于频繁，请稍后再试", err)
			return
		}
		common.ErrorResponse(c, http.StatusInternalServerError, "验证码发送失败", err)
		return
	}

	common.SuccessResponse(c, gin.H{"message": "验证码已发送"}, nil)
}

// UpdateProfile handles PUT /api/auth/profile
// @Summary 更新个人资料
// @Description 更新头像、用户名，或凭邮箱验证码修改密码
// @Tags auth
// @Accept json
// @Produce json
// @Param request body domain.UpdateProfileRequest true "资料变更"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Security BearerAuth
// @Router /auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		common.ErrorResponse(c, http.StatusUnauthorized, "未登录", nil)
		return
	}

	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidVerifyCode):
			common.ErrorResponse(c, http.StatusBadRequest, "验证码错误或已过期", err)
		case errors.Is(err, common.ErrUserAlreadyExists):
			common.ErrorResponse(c, http.StatusBadRequest, "用户名已存在", err)
		default:
			common.ErrorResponse(c, http.StatusInternalServerError, "服务器错误", err)
		}
		return
	}

	common.SuccessResponse(c, user, nil)
}
