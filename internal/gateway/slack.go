package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackAdapter posts to one Slack channel with the Web API.
type SlackAdapter struct {
	channel     string
	client      *slack.Client
	connected   bool
	connectedAt time.Time
	lastError   string
	botName     string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewSlackAdapter creates a Slack adapter. botToken is the Bot User OAuth
// Token (xoxb-...).
func NewSlackAdapter(botToken, channel string, logger *zap.Logger, opts ...slack.Option) *SlackAdapter {
	return &SlackAdapter{
		channel: channel,
		client:  slack.New(botToken, opts...),
		logger:  logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

// Connect verifies the token.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	auth, err := a.client.AuthTestContext(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.lastError = err.Error()
		return fmt.Errorf("slack auth: %w", err)
	}
	a.connected = true
	a.connectedAt = time.Now()
	a.botName = auth.User
	a.lastError = ""
	a.logger.Info("slack adapter connected", zap.String("user", auth.User), zap.String("team", auth.Team))
	return nil
}

// Post sends the post to the configured channel.
func (a *SlackAdapter) Post(ctx context.Context, p *Post) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(fmt.Sprintf("*%s*\n%s", p.Title, p.Content), false),
	}
	if p.Username != "" {
		opts = append(opts, slack.MsgOptionUsername(p.Username))
	}
	if _, _, err := a.client.PostMessageContext(ctx, a.channel, opts...); err != nil {
		a.mu.Lock()
		a.lastError = err.Error()
		a.mu.Unlock()
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// Close is a no-op; the Web API client holds no connection.
func (a *SlackAdapter) Close() error { return nil }

func (a *SlackAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{Platform: "slack", Connected: a.connected, Error: a.lastError}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = fmt.Sprintf("bot=%s, channel=%s", a.botName, a.channel)
	}
	return s
}
