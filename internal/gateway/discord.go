package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Discord limits message content to 2000 characters.
const discordMaxContent = 2000

// DiscordAdapter posts to one Discord channel as a bot.
type DiscordAdapter struct {
	token       string
	channel     string
	session     *discordgo.Session
	connected   bool
	connectedAt time.Time
	lastError   string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewDiscordAdapter creates a Discord adapter.
func NewDiscordAdapter(token, channel string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{token: token, channel: channel, logger: logger}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

// Connect creates the session and checks the bot can see the channel.
func (a *DiscordAdapter) Connect(ctx context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.setError(fmt.Sprintf("session create: %v", err))
		return fmt.Errorf("discord session: %w", err)
	}
	ch, err := session.Channel(a.channel, discordgo.WithContext(ctx))
	if err != nil {
		a.setError(fmt.Sprintf("channel lookup: %v", err))
		return fmt.Errorf("discord channel %s: %w", a.channel, err)
	}

	a.mu.Lock()
	a.session = session
	a.connected = true
	a.connectedAt = time.Now()
	a.lastError = ""
	a.mu.Unlock()

	a.logger.Info("discord adapter connected", zap.String("channel", ch.Name))
	return nil
}

// Post sends the post to the configured channel.
func (a *DiscordAdapter) Post(ctx context.Context, p *Post) error {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session == nil {
		return fmt.Errorf("discord: not connected")
	}

	content := truncate(fmt.Sprintf("**%s**\n%s", p.Title, p.Content), discordMaxContent)
	if _, err := session.ChannelMessageSend(a.channel, content, discordgo.WithContext(ctx)); err != nil {
		a.setError(err.Error())
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func (a *DiscordAdapter) setError(msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.mu.Unlock()
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

func (a *DiscordAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{Platform: "discord", Connected: a.connected, Error: a.lastError}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = fmt.Sprintf("channel=%s", a.channel)
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
