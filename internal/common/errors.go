package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")

	// Post errors
	ErrPostNotFound = errors.New("post not found")
	ErrEmptyContent = errors.New("content is empty")

	// Auth errors
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrEmailAlreadyUsed   = errors.New("email already registered")
	ErrInvalidVerifyCode  = errors.New("invalid verification code")
	ErrResendTooSoon      = errors.New("verification code requested too soon")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)
