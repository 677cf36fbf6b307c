package mealchat

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrAuthenticationMissing is returned when an operation needs a user identity and none was supplied.
	ErrAuthenticationMissing = errors.New("authentication missing")

	// ErrPersistenceWriteFailed marks a failed write to the plan store. It is reported, never fatal.
	ErrPersistenceWriteFailed = errors.New("persistence write failed")
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier delivers short user-facing notices (toasts, chat-ops messages) without blocking the caller's state.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
