package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/moments-social/moments-backend/internal/domain"
	"github.com/moments-social/moments-backend/internal/email"
	"github.com/moments-social/moments-backend/internal/handler"
	"github.com/moments-social/moments-backend/internal/repository"
	"github.com/moments-social/moments-backend/internal/routes"
	"github.com/moments-social/moments-backend/internal/service"
	pkgjwt "github.com/moments-social/moments-backend/pkg/jwt"
)

// memCache is an in-memory stand-in for the Redis cache service
type memCache struct {
	codes  map[string]string
	resent map[string]bool
}

func newMemCache() *memCache {
	return &memCache{codes: make(map[string]string), resent: make(map[string]bool)}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	return fmt.Errorf("miss")
}
func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
func (c *memCache) Delete(ctx context.Context, keys ...string) error     { return nil }
func (c *memCache) Exists(ctx context.Context, key string) (bool, error) { return false, nil }

func (c *memCache) GetFeedPage(ctx context.Context, page, pageSize int) ([]byte, error) {
	return nil, fmt.Errorf("miss")
}
func (c *memCache) SetFeedPage(ctx context.Context, page, pageSize int, data interface{}) error {
	return nil
}
func (c *memCache) InvalidateFeed(ctx context.Context) error { return nil }

func (c *memCache) GetUser(ctx context.Context, userID uint) ([]byte, error) {
	return nil, fmt.Errorf("miss")
}
func (c *memCache) SetUser(ctx context.Context, userID uint, data interface{}) error { return nil }
func (c *memCache) InvalidateUser(ctx context.Context, userID uint) error            { return nil }

func (c *memCache) SetVerifyCode(ctx context.Context, addr, code string) error {
	c.codes[addr] = code
	return nil
}
func (c *memCache) GetVerifyCode(ctx context.Context, addr string) (string, error) {
	code, ok := c.codes[addr]
	if !ok {
		return "", fmt.Errorf("miss")
	}
	return code, nil
}
func (c *memCache) DeleteVerifyCode(ctx context.Context, addr string) error {
	delete(c.codes, addr)
	return nil
}
func (c *memCache) MarkCodeSent(ctx context.Context, addr string) error {
	c.resent[addr] = true
	return nil
}
func (c *memCache) CanResendCode(ctx context.Context, addr string) (bool, error) {
	return !c.resent[addr], nil
}
func (c *memCache) IsAvailable() bool              { return true }
func (c *memCache) Ping(ctx context.Context) error { return nil }

// stubSuggester returns fixed topics
type stubSuggester struct{}

func (stubSuggester) GenerateTopics(ctx context.Context, content string, images []string) ([]string, error) {
	return []string{"日常", "生活"}, nil
}

// APISuite drives the full HTTP stack against an in-memory database
type APISuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
	cache  *memCache
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupSuite() {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	s.Require().NoError(err)
	s.db = db

	// Raw DDL keeps SQLite happy with the MySQL-flavored model tags
	for _, ddl := range []string{
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username VARCHAR(255) UNIQUE,
			email VARCHAR(255) UNIQUE,
			password VARCHAR(255) NOT NULL,
			avatar VARCHAR(512) DEFAULT '',
			created_at DATETIME)`,
		`CREATE TABLE posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			content TEXT NOT NULL,
			images TEXT,
			tags TEXT,
			status TEXT DEFAULT 'published',
			created_at DATETIME,
			updated_at DATETIME)`,
	} {
		s.Require().NoError(db.Exec(ddl).Error)
	}

	s.cache = newMemCache()
	jwtManager := pkgjwt.NewManager("test_secret", 3)

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)

	authService := service.NewAuthService(userRepo, jwtManager, s.cache, email.LogMailer{})
	postService := service.NewPostService(postRepo, s.cache, nil)

	s.router = gin.New()
	routes.Setup(s.router, &routes.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Post:   handler.NewPostHandler(postService),
		Upload: handler.NewUploadHandler(nil),
		AI:     handler.NewAIHandler(stubSuggester{}),
	}, jwtManager)
}

func (s *APISuite) request(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *APISuite) decodeData(w *httptest.ResponseRecorder, out interface{}) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env))
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		s.Require().NoError(json.Unmarshal(env.Data, out))
	}
}

// signup registers and logs a fresh user in, returning the bearer token
func (s *APISuite) signup(username string) string {
	addr := username + "@example.com"
	s.cache.codes[addr] = "123456"

	w := s.request(http.MethodPost, "/api/auth/register", gin.H{
		"email": addr, "code": "123456", "username": username, "password": "secret123",
	}, "")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.request(http.MethodPost, "/api/auth/login", gin.H{
		"username": username, "password": "secret123",
	}, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp domain.LoginResponse
	s.decodeData(w, &resp)
	s.Require().NotEmpty(resp.Token)
	return resp.Token
}

func (s *APISuite) TestRegisterRejectsWrongCode() {
	s.cache.codes["wrong@example.com"] = "123456"
	w := s.request(http.MethodPost, "/api/auth/register", gin.H{
		"email": "wrong@example.com", "code": "999999", "username": "wrongcode", "password": "secret123",
	}, "")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APISuite) TestLoginWrongPassword() {
	s.signup("loginuser")
	w := s.request(http.MethodPost, "/api/auth/login", gin.H{
		"username": "loginuser", "password": "nope",
	}, "")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *APISuite) TestMeRequiresToken() {
	w := s.request(http.MethodGet, "/api/auth/me", nil, "")
	s.Equal(http.StatusUnauthorized, w.Code)

	token := s.signup("meuser")
	w = s.request(http.MethodGet, "/api/auth/me", nil, token)
	s.Equal(http.StatusOK, w.Code)

	var user domain.User
	s.decodeData(w, &user)
	s.Equal("meuser", user.Username)
}

func (s *APISuite) TestPostLifecycle() {
	token := s.signup("author1")

	w := s.request(http.MethodPost, "/api/posts", gin.H{
		"content": "<p>第一篇</p>", "images": []string{}, "tags": []string{"测试"},
	}, token)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var created domain.Post
	s.decodeData(w, &created)
	s.Require().NotZero(created.ID)
	s.Equal(domain.StatusPublished, created.Status)

	// The published post shows up in the public feed with its author
	w = s.request(http.MethodGet, "/api/posts?page=1&pageSize=10", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var feed []domain.Post
	s.decodeData(w, &feed)
	s.Require().NotEmpty(feed)
	found := false
	for _, p := range feed {
		if p.ID == created.ID {
			found = true
			s.Require().NotNil(p.User)
			s.Equal("author1", p.User.Username)
		}
	}
	s.True(found)

	w = s.request(http.MethodPut, fmt.Sprintf("/api/posts/%d", created.ID), gin.H{
		"content": "<p>改过了</p>",
	}, token)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var updated domain.Post
	s.decodeData(w, &updated)
	s.Equal("<p>改过了</p>", updated.Content)
	s.Equal(domain.StringList{"测试"}, updated.Tags)

	w = s.request(http.MethodDelete, fmt.Sprintf("/api/posts/%d", created.ID), nil, token)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, fmt.Sprintf("/api/posts/%d", created.ID), nil, "")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *APISuite) TestDraftFlow() {
	token := s.signup("drafter")

	// No draft yet: 200 with null data
	w := s.request(http.MethodGet, "/api/posts/draft", nil, token)
	s.Require().Equal(http.StatusOK, w.Code)
	var draft *domain.Post
	s.decodeData(w, &draft)
	s.Nil(draft)

	w = s.request(http.MethodPost, "/api/posts", gin.H{
		"content": "<p>草稿</p>", "status": "draft",
	}, token)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var created domain.Post
	s.decodeData(w, &created)
	s.Equal(domain.StatusDraft, created.Status)

	w = s.request(http.MethodGet, "/api/posts/draft", nil, token)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decodeData(w, &draft)
	s.Require().NotNil(draft)
	s.Equal(created.ID, draft.ID)

	// Drafts never leak into the public feed
	w = s.request(http.MethodGet, "/api/posts?page=1&pageSize=50", nil, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var feed []domain.Post
	s.decodeData(w, &feed)
	for _, p := range feed {
		s.NotEqual(created.ID, p.ID)
	}
}

func (s *APISuite) TestCreateRequiresAuth() {
	w := s.request(http.MethodPost, "/api/posts", gin.H{"content": "<p>匿名</p>"}, "")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *APISuite) TestCreateRejectsEmptyBody() {
	token := s.signup("emptyposter")
	w := s.request(http.MethodPost, "/api/posts", gin.H{"content": ""}, token)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *APISuite) TestUpdateForbiddenForNonOwner() {
	ownerToken := s.signup("owner1")
	otherToken := s.signup("intruder1")

	w := s.request(http.MethodPost, "/api/posts", gin.H{"content": "<p>我的</p>"}, ownerToken)
	s.Require().Equal(http.StatusCreated, w.Code)
	var created domain.Post
	s.decodeData(w, &created)

	w = s.request(http.MethodPut, fmt.Sprintf("/api/posts/%d", created.ID), gin.H{
		"content": "<p>篡改</p>",
	}, otherToken)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodDelete, fmt.Sprintf("/api/posts/%d", created.ID), nil, otherToken)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *APISuite) TestSendCodeThrottled() {
	w := s.request(http.MethodPost, "/api/auth/send-code", gin.H{"email": "codes@example.com"}, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodPost, "/api/auth/send-code", gin.H{"email": "codes@example.com"}, "")
	s.Equal(http.StatusTooManyRequests, w.Code)
}

func (s *APISuite) TestSuggestTopics() {
	w := s.request(http.MethodPost, "/api/ai/suggest-topics", gin.H{
		"content": "<p>今天去了海边</p>",
	}, "")
	s.Require().Equal(http.StatusOK, w.Code)

	var resp domain.SuggestTopicsResponse
	s.decodeData(w, &resp)
	s.Equal([]string{"日常", "生活"}, resp.Topics)
}

func (s *APISuite) TestUpdateProfile() {
	token := s.signup("profileuser")

	w := s.request(http.MethodPut, "/api/auth/profile", gin.H{
		"avatar": "https://cdn.example.com/new.png",
	}, token)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var user domain.User
	s.decodeData(w, &user)
	s.Equal("https://cdn.example.com/new.png", user.Avatar)
}

func (s *APISuite) TestCheckEmail() {
	s.signup("probeuser")

	w := s.request(http.MethodPost, "/api/auth/check-email", gin.H{"email": "probeuser@example.com"}, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Exists bool `json:"exists"`
	}
	s.decodeData(w, &resp)
	s.True(resp.Exists)

	w = s.request(http.MethodPost, "/api/auth/check-email", gin.H{"email": "ghost@example.com"}, "")
	s.Require().Equal(http.StatusOK, w.Code)
	s.decodeData(w, &resp)
	s.False(resp.Exists)
}

func (s *APISuite) TestUploadUnconfigured() {
	token := s.signup("uploader")

	w := s.request(http.MethodGet, "/api/upload/presign?fileName=a.jpg&fileType=image/jpeg", nil, token)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}
