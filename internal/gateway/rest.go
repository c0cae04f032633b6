package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RESTAdapter keeps recent posts in memory for HTTP polling clients.
type RESTAdapter struct {
	posts  []Post
	limit  int
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewRESTAdapter creates a REST adapter retaining up to limit posts.
func NewRESTAdapter(limit int, logger *zap.Logger) *RESTAdapter {
	if limit <= 0 {
		limit = maxHistory
	}
	return &RESTAdapter{limit: limit, logger: logger}
}

func (a *RESTAdapter) Platform() string { return "rest" }

func (a *RESTAdapter) Connect(_ context.Context) error { return nil }

func (a *RESTAdapter) Close() error { return nil }

// Post stores the post.
func (a *RESTAdapter) Post(_ context.Context, p *Post) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.posts = append(a.posts, *p)
	if len(a.posts) > a.limit {
		a.posts = a.posts[len(a.posts)-a.limit:]
	}
	return nil
}

// Posts returns stored posts, optionally only those of one run.
func (a *RESTAdapter) Posts(runID string) []Post {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Post, 0, len(a.posts))
	for _, p := range a.posts {
		if runID == "" || p.RunID == runID {
			out = append(out, p)
		}
	}
	return out
}

// Routes returns a chi router with REST gateway endpoints.
func (a *RESTAdapter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/posts", a.handlePosts)
	return r
}

func (a *RESTAdapter) handlePosts(w http.ResponseWriter, r *http.Request) {
	posts := a.Posts(r.URL.Query().Get("run"))
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n < len(posts) {
		posts = posts[len(posts)-n:]
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(posts); err != nil {
		a.logger.Warn("encode posts", zap.Error(err))
	}
}
