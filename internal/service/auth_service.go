package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"

	"github.com/moments-social/moments-backend/internal/common"
	"github.com/moments-social/moments-backend/internal/domain"
	"github.com/moments-social/moments-backend/internal/email"
	"github.com/moments-social/moments-backend/internal/repository"
	pkgauth "github.com/moments-social/moments-backend/pkg/auth"
	"github.com/moments-social/moments-backend/pkg/cache"
	pkgjwt "github.com/moments-social/moments-backend/pkg/jwt"
	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
	"gorm.io/gorm"
)

// AuthService handles registration, login and profile updates
type AuthService struct {
	userRepo   repository.UserRepository
	jwtManager *pkgjwt.Manager
	cache      cache.Service
	mailer     email.Mailer
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo repository.UserRepository, jwtManager *pkgjwt.Manager, cacheService cache.Service, mailer email.Mailer) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		cache:      cacheService,
		mailer:     mailer,
	}
}

// SendCode issues a 6-digit verification code to the address, throttled to
// one send per minute
func (s *AuthService) SendCode(ctx context.Context, emailAddr string) error {
	ok, err := s.cache.CanResendCode(ctx, emailAddr)
	if err != nil {
		return fmt.Errorf("resend check: %w", err)
	}
	if !ok {
		return common.ErrResendTooSoon
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	if err := s.cache.SetVerifyCode(ctx, emailAddr, code); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	if err := s.mailer.SendVerificationCode(ctx, emailAddr, code); err != nil {
		return fmt.Errorf("send code: %w", err)
	}

	// Best-effort: a failed gate write only weakens throttling
	if err := s.cache.MarkCodeSent(ctx, emailAddr); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Str("email", emailAddr).Msg("failed to mark code sent")
	}
	return nil
}

// verifyCode checks a code and consumes it on success
func (s *AuthService) verifyCode(ctx context.Context, emailAddr, code string) error {
	stored, err := s.cache.GetVerifyCode(ctx, emailAddr)
	if err != nil || stored == "" || stored != code {
		return common.ErrInvalidVerifyCode
	}
	if err := s.cache.DeleteVerifyCode(ctx, emailAddr); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Msg("failed to consume verification code")
	}
	return nil
}

// Register creates an account after verifying the email code
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	if err := s.verifyCode(ctx, req.Email, req.Code); err != nil {
		return nil, err
	}

	exists, err := s.userRepo.ExistsByUsername(req.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, common.ErrUserAlreadyExists
	}

	exists, err = s.userRepo.ExistsByEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, common.ErrEmailAlreadyUsed
	}

	hashed, err := pkgauth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username: req.Username,
		Email:    req.Email,
		Password: hashed,
		Avatar:   defaultAvatarURL(req.Username),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	pkglogger.GetLogger().Info().Str("username", user.Username).Msg("user registered")
	return user, nil
}

// LoginWithPassword authenticates by username and password
func (s *AuthService) LoginWithPassword(username, password string) (*domain.LoginResponse, error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		// Do not reveal whether the account exists
		return nil, common.ErrInvalidCredentials
	}

	if !pkgauth.CheckPassword(password, user.Password) {
		return nil, common.ErrInvalidCredentials
	}

	return s.issueToken(user)
}

// LoginWithEmailCode authenticates by email verification code
func (s *AuthService) LoginWithEmailCode(ctx context.Context, emailAddr, code string) (*domain.LoginResponse, error) {
	if err := s.verifyCode(ctx, emailAddr, code); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByEmail(emailAddr)
	if err != nil {
		return nil, common.ErrUserNotFound
	}

	return s.issueToken(user)
}

func (s *AuthService) issueToken(user *domain.User) (*domain.LoginResponse, error) {
	token, err := s.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &domain.LoginResponse{
		Message: "登录成功",
		Token:   token,
		User:    user.AuthorView(),
	}, nil
}

// GetCurrentUser returns the user for the given ID, cache first
func (s *AuthService) GetCurrentUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// CheckEmail reports whether an account with this email exists
func (s *AuthService) CheckEmail(emailAddr string) (bool, error) {
	return s.userRepo.ExistsByEmail(emailAddr)
}

// UpdateProfile applies a partial profile change: avatar, username, or
// password (which requires a fresh email code)
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, req *domain.UpdateProfileRequest) (*domain.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, common.ErrUserNotFound
	}

	fields := make(map[string]interface{})

	if req.Avatar != nil {
		fields["avatar"] = *req.Avatar
	}

	if req.Username != nil && *req.Username != user.Username {
		exists, err := s.userRepo.ExistsByUsername(*req.Username)
		if err != nil {
			return nil, fmt.Errorf("check username: %w", err)
		}
		if exists {
			return nil, common.ErrUserAlreadyExists
		}
		fields["username"] = *req.Username
	}

	if req.Password != nil {
		if err := s.verifyCode(ctx, user.Email, req.Code); err != nil {
			return nil, err
		}
		hashed, err := pkgauth.HashPassword(*req.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		fields["password"] = hashed
	}

	if len(fields) == 0 {
		return user, nil
	}

	if err := s.userRepo.UpdateFields(userID, fields); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Uint("user_id", userID).Msg("failed to invalidate user cache")
	}

	return s.userRepo.FindByID(userID)
}

// generateCode produces a 6-digit numeric code
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// defaultAvatarURL builds the generated avatar for new accounts
func defaultAvatarURL(username string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(username) + "&background=random"
}
