package domain

import "time"

// User is a registered account
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"size:255;uniqueIndex" json:"username"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Avatar    string    `gorm:"size:512;default:''" json:"avatar"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName maps to the users table
func (User) TableName() string {
	return "users"
}

// Author is the embedded author view on feed entries
type Author struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// AuthorView converts a user to its public author form
func (u *User) AuthorView() *Author {
	return &Author{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
	}
}

// RegisterRequest registration payload
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest password or email-code login payload
type LoginRequest struct {
	Type     string `json:"type"` // "" (password) or "email_code"
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Code     string `json:"code"`
}

// LoginResponse login result
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    *Author `json:"user"`
}

// CheckEmailRequest email existence probe
type CheckEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SendCodeRequest verification code request
type SendCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// UpdateProfileRequest partial profile update. Exactly one concern per call:
// avatar, username, or password (+code).
type UpdateProfileRequest struct {
	Avatar   *string `json:"avatar"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	Code     string  `json:"code"`
}
