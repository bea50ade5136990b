// Package store provides local persistence for the data assistant: settings,
// the last catalog snapshot and the transcript log.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/data-assistant/internal/model"
)

// ErrNotFound is returned when a settings key has no value.
var ErrNotFound = errors.New("not found")

// IdentityKey is the settings key holding the active identity.
const IdentityKey = "db_assistant_user_id"

// ListMessagesParams holds parameters for reading the transcript log.
type ListMessagesParams struct {
	SessionID string
	Limit     int
}

// SessionSummary describes one recorded session.
type SessionSummary struct {
	ID        string `json:"id"`
	Messages  int    `json:"messages"`
	StartedAt string `json:"started_at"`
	LastAt    string `json:"last_at"`
}

// Store defines the local storage interface.
type Store interface {
	// Get returns the value of a settings key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes a settings key.
	Set(ctx context.Context, key, value string) error

	// ReplaceDatasets replaces the cached catalog snapshot.
	ReplaceDatasets(ctx context.Context, snap model.Snapshot) error

	// LoadDatasets returns the cached catalog snapshot in catalog order.
	LoadDatasets(ctx context.Context) (model.Snapshot, error)

	// AppendMessage records a transcript entry. Entries are never updated.
	AppendMessage(ctx context.Context, sessionID string, m model.ChatMessage) error

	// ListMessages returns transcript entries in append order.
	ListMessages(ctx context.Context, p ListMessagesParams) ([]model.ChatMessage, error)

	// ListSessions returns recorded sessions, newest first.
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)

	// Close closes the store.
	Close() error
}
