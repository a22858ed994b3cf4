package domain

import "errors"

var (
	ErrViewerNotFound      = errors.New("viewer not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrTokenNotFound       = errors.New("provider token not found")
	ErrInvalidState        = errors.New("invalid or expired oauth state")
	ErrVerificationExpired = errors.New("verification session expired")
)
