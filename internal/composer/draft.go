package composer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Mode selects the composer context: a brand-new post or editing a
// published one
type Mode string

const (
	ModeNew  Mode = "new"
	ModeEdit Mode = "edit"
)

// Draft is the unit of persistence, local or remote. ID is the server-side
// post row backing this draft, zero for a never-synced draft. UpdatedAt is
// a last-writer-wins comparator only.
type Draft struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	Images    []string  `json:"images"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty reports whether the draft has neither visible text nor images.
// Empty drafts are never persisted.
func (d Draft) IsEmpty() bool {
	return isContentEmpty(d.Content) && len(d.Images) == 0
}

// Clone returns an independent copy so callers can hold snapshots without
// racing the engine
func (d *Draft) Clone() Draft {
	c := *d
	c.Images = append([]string(nil), d.Images...)
	c.Tags = append([]string(nil), d.Tags...)
	return c
}

// Key builds the local store key for a composer context. Edit sessions are
// keyed per post so drafts never leak across posts.
func Key(userID uint, mode Mode, postID uint) string {
	if mode == ModeEdit {
		return fmt.Sprintf("draft_edit_%d_%d", userID, postID)
	}
	return fmt.Sprintf("draft_new_%d", userID)
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
)

// PlainText strips markup and decodes common entities
func PlainText(html string) string {
	return entityReplacer.Replace(tagPattern.ReplaceAllString(html, ""))
}

// isContentEmpty reports whether rich-text markup contains no visible text
func isContentEmpty(html string) bool {
	if html == "" {
		return true
	}
	return strings.TrimSpace(PlainText(html)) == ""
}
