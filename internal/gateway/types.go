package gateway

import (
	"context"
	"time"
)

// Adapter publishes posts to one chat platform.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Post(ctx context.Context, p *Post) error
	Close() error
}

// Post is a platform-neutral message.
type Post struct {
	ID       string    `json:"id"`
	RunID    string    `json:"run_id"`
	Round    int       `json:"round"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Username string    `json:"username,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// AdapterStatus reports an adapter's connection state.
type AdapterStatus struct {
	Platform    string     `json:"platform"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Details     string     `json:"details,omitempty"`
}

// StatusReporter is implemented by adapters that track their connection.
type StatusReporter interface {
	Status() AdapterStatus
}
