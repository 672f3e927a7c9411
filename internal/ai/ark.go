package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
)

const (
	tagsPrompt = "你是一个标签提取助手。请根据用户提供的文本和图片内容，提取 10 到 15 个**中文**关键词标签。" +
		"无论原始内容是什么语言，都请输出中文标签。直接返回标签，用英文逗号分隔，不要包含任何解释、序号或额外标点符号。例如：风景,旅行,摄影"

	topicsPrompt = "你是一个社交媒体话题助手。请根据用户提供的内容，生成 3 到 5 个**中文话题标签**。" +
		"标签应具有社交属性和讨论价值，简短有力，适合作为微博或朋友圈的话题。" +
		"直接返回标签文本（不需要带#号），用英文逗号分隔，不要包含任何解释、序号或额外标点符号。例如：周末去哪儿玩,我的美食日记,今日份快乐"

	maxItemRunes = 20
)

var (
	imgSrcRegex  = regexp.MustCompile(`<img[^>]+src="([^">]+)"`)
	htmlTagRegex = regexp.MustCompile(`<[^>]+>`)
	splitRegex   = regexp.MustCompile(`[,，\n\s]+`)
)

// Client calls an Ark-compatible chat-completions endpoint for tag and
// topic generation
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a tagging client. An empty apiKey or model disables
// generation (all calls return empty results).
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// GenerateTags extracts keyword tags from post content and images
func (c *Client) GenerateTags(ctx context.Context, content string, images []string) ([]string, error) {
	return c.generate(ctx, content, images, tagsPrompt, "tags")
}

// GenerateTopics produces shareable topic suggestions from post content
func (c *Client) GenerateTopics(ctx context.Context, content string, images []string) ([]string, error) {
	return c.generate(ctx, content, images, topicsPrompt, "topics")
}

// chat-completions wire types (multimodal user content)
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []contentPart for user
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) generate(ctx context.Context, content string, images []string, systemPrompt, label string) ([]string, error) {
	if c.apiKey == "" || c.model == "" {
		pkglogger.GetLogger().Warn().Str("label", label).Msg("AI tagging not configured, skipping")
		return nil, nil
	}

	parts := buildUserContent(content, images)
	if len(parts) == 0 {
		return nil, nil
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: parts},
		},
		Temperature: 0.8,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completion status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return nil, nil
	}

	return splitItems(parsed.Choices[0].Message.Content), nil
}

// buildUserContent merges plain text with explicit and inline image URLs
func buildUserContent(content string, images []string) []contentPart {
	// Images referenced inside the rich-text markup count too
	var contentImages []string
	for _, m := range imgSrcRegex.FindAllStringSubmatch(content, -1) {
		if m[1] != "" {
			contentImages = append(contentImages, m[1])
		}
	}

	plainText := strings.TrimSpace(StripHTML(content))

	all := append(append([]string{}, images...), contentImages...)
	seen := make(map[string]bool, len(all))

	var parts []contentPart
	if plainText != "" {
		parts = append(parts, contentPart{Type: "text", Text: plainText})
	}
	for _, u := range all {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		// Downscale through the image proxy so the model never fetches originals
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: u + sep + "x-tos-process=image/resize,l_2048"},
		})
	}
	return parts
}

// splitItems splits the model reply on commas and whitespace, dropping
// overlong fragments
func splitItems(raw string) []string {
	var items []string
	for _, item := range splitRegex.Split(strings.TrimSpace(raw), -1) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if len([]rune(item)) >= maxItemRunes {
			continue
		}
		items = append(items, item)
	}
	return items
}

// StripHTML removes markup and decodes the common entities, leaving the
// readable text of a rich-text document
func StripHTML(html string) string {
	text := htmlTagRegex.ReplaceAllString(html, "")
	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
	)
	return replacer.Replace(text)
}
