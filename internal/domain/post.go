package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Post status values
const (
	StatusPublished = "published"
	StatusDraft     = "draft"
)

// StringList is a JSON-encoded string array column (image URLs, tags)
type StringList []string

// Value serializes the list for storage
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

// Scan deserializes the list from storage
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}

	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(data, l)
}

// Post is a feed entry; status distinguishes published posts from drafts
type Post struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint       `gorm:"column:user_id;index" json:"user_id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	Images    StringList `gorm:"type:json" json:"images"`
	Tags      StringList `gorm:"type:json" json:"tags"`
	Status    string     `gorm:"type:enum('published','draft');default:'published'" json:"status"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"User,omitempty"`
}

// TableName maps to the posts table
func (Post) TableName() string {
	return "posts"
}

// SavePostRequest create/update payload. Pointer/nil fields distinguish
// "absent" from "set to empty" so partial updates leave columns untouched.
// Status defaults to published on create.
type SavePostRequest struct {
	Content *string  `json:"content"`
	Images  []string `json:"images"`
	Tags    []string `json:"tags"`
	Status  *string  `json:"status"`
}

// SuggestTopicsRequest AI topic suggestion payload
type SuggestTopicsRequest struct {
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

// SuggestTopicsResponse AI topic suggestion result
type SuggestTopicsResponse struct {
	Topics []string `json:"topics"`
}
