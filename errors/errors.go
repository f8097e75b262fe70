package errors

import "fmt"

var (
	// Connection lifecycle
	ErrInvalidHandshake = fmt.Errorf("missing or invalid identity at handshake")
	ErrWorkerPanic      = fmt.Errorf("worker panic")

	// Message operations
	ErrEmptyMessage      = fmt.Errorf("message needs text or image content")
	ErrPersistenceFailed = fmt.Errorf("persistence unavailable")
	ErrMediaUploadFailed = fmt.Errorf("media upload failed")
	ErrNotFound          = fmt.Errorf("not found")
	ErrForbidden         = fmt.Errorf("forbidden")

	// Accounts
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("email already registered")
	ErrInvalidSignup      = fmt.Errorf("invalid signup request")
	ErrEmptyProfilePic    = fmt.Errorf("profile picture is required")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	// Moderation
	ErrEmptyWords = fmt.Errorf("no censored words have been found")
)
