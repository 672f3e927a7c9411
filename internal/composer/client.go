package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/moments-social/moments-backend/internal/common"
	"github.com/moments-social/moments-backend/internal/domain"
	"github.com/moments-social/moments-backend/pkg/storage"
)

// APIClient talks to the REST API and implements Service, FeedService and
// PresignService. The token is guarded so the session's sync goroutine can
// share one client with its caller.
type APIClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// NewAPIClient expects baseURL without a trailing slash, e.g.
// "http://localhost:3000/api"
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken installs the bearer token used on subsequent requests
func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token
func (c *APIClient) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

type envelope struct {
	Data    json.RawMessage   `json:"data"`
	Meta    *common.Meta      `json:"meta"`
	Error   *common.ErrorInfo `json:"error"`
	Message string            `json:"message"`
}

// APIError is a non-2xx response decoded from the envelope
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (%d)", e.Message, e.Status)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

// NotFound reports whether the error is a 404 API response
func NotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}

func (c *APIClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) (*common.Meta, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Sliding token refresh: the server hands back a fresh token when the
	// current one is near expiry.
	if newToken := resp.Header.Get("X-New-Token"); newToken != "" {
		c.SetToken(newToken)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			if apiErr.Message == "" {
				apiErr.Message = env.Error.Message
			}
		}
		return nil, apiErr
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	}
	return env.Meta, nil
}

// Login authenticates with username/password and installs the token
func (c *APIClient) Login(ctx context.Context, username, password string) (*domain.Author, error) {
	var out domain.LoginResponse
	_, err := c.do(ctx, http.MethodPost, "/auth/login", domain.LoginRequest{
		Username: username,
		Password: password,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return out.User, nil
}

// Me returns the authenticated user
func (c *APIClient) Me(ctx context.Context) (*domain.User, error) {
	var out domain.User
	if _, err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestDraft fetches the newest server draft, (nil, nil) when none exists
func (c *APIClient) LatestDraft(ctx context.Context) (*Draft, error) {
	var post *domain.Post
	if _, err := c.do(ctx, http.MethodGet, "/posts/draft", nil, &post); err != nil {
		return nil, err
	}
	return DraftFromPost(post), nil
}

// GetPost fetches a post by id
func (c *APIClient) GetPost(ctx context.Context, id uint) (*domain.Post, error) {
	var post domain.Post
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/posts/%d", id), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func saveRequest(draft Draft, status string) domain.SavePostRequest {
	content := draft.Content
	images := draft.Images
	if images == nil {
		images = []string{}
	}
	tags := draft.Tags
	if tags == nil {
		tags = []string{}
	}
	return domain.SavePostRequest{
		Content: &content,
		Images:  images,
		Tags:    tags,
		Status:  &status,
	}
}

// CreatePost creates a post carrying the full draft state
func (c *APIClient) CreatePost(ctx context.Context, draft Draft, status string) (*domain.Post, error) {
	var post domain.Post
	if _, err := c.do(ctx, http.MethodPost, "/posts", saveRequest(draft, status), &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost overwrites a post with the full draft state
func (c *APIClient) UpdatePost(ctx context.Context, id uint, draft Draft, status string) (*domain.Post, error) {
	var post domain.Post
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/posts/%d", id), saveRequest(draft, status), &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a post; callers treat failures as best-effort
func (c *APIClient) DeletePost(ctx context.Context, id uint) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/posts/%d", id), nil, nil)
	return err
}

// ListPosts returns one feed page and whether more pages remain
func (c *APIClient) ListPosts(ctx context.Context, page, pageSize int) ([]domain.Post, bool, error) {
	var posts []domain.Post
	meta, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/posts?page=%d&pageSize=%d", page, pageSize), nil, &posts)
	if err != nil {
		return nil, false, err
	}
	hasMore := meta != nil && meta.HasMore
	return posts, hasMore, nil
}

// PresignUpload requests a direct-upload grant for a file
func (c *APIClient) PresignUpload(ctx context.Context, fileName, fileType string) (*storage.PresignedUpload, error) {
	var grant storage.PresignedUpload
	path := "/upload/presign?fileName=" + url.QueryEscape(fileName)
	if fileType != "" {
		path += "&fileType=" + url.QueryEscape(fileType)
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// SuggestTopics asks the AI endpoint for topic suggestions
func (c *APIClient) SuggestTopics(ctx context.Context, content string, images []string) ([]string, error) {
	var out domain.SuggestTopicsResponse
	req := domain.SuggestTopicsRequest{Content: content, Images: images}
	if _, err := c.do(ctx, http.MethodPost, "/ai/suggest-topics", req, &out); err != nil {
		return nil, err
	}
	return out.Topics, nil
}
