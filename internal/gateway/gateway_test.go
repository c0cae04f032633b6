package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nidhogg/tiny-world/internal/agent"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

type failingAdapter struct{ connectErr, postErr error }

func (f failingAdapter) Platform() string                { return "broken" }
func (f failingAdapter) Connect(context.Context) error   { return f.connectErr }
func (f failingAdapter) Post(context.Context, *Post) error { return f.postErr }
func (f failingAdapter) Close() error                    { return nil }

func sampleRound() agent.RoundRecord {
	return agent.RoundRecord{Round: 2, Results: []agent.TurnResult{
		{Agent: "A", Round: 2, Speech: "S2-A", Action: "Act2-A"},
		{Agent: "B", Round: 2, Speech: "S2-B", Action: "Act2-B"},
	}}
}

func TestDigest(t *testing.T) {
	p := Digest("run-1", "a harbor", sampleRound())
	if p.Title != "Round 2: a harbor" || p.RunID != "run-1" || p.Round != 2 {
		t.Errorf("post = %+v", p)
	}
	want := "A says: S2-A\nA does: Act2-A\nB says: S2-B\nB does: Act2-B"
	if p.Content != want {
		t.Errorf("content = %q, want %q", p.Content, want)
	}

	rec := sampleRound()
	rec.Aborted = true
	if !strings.HasSuffix(Digest("r", "", rec).Content, "(round aborted)") {
		t.Error("aborted round not marked")
	}
}

func TestBroadcasterPostsRoundDigests(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	rest := NewRESTAdapter(10, zap.NewNop())
	gw.Register(rest)
	if err := gw.ConnectAll(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	b := NewBroadcaster(gw, zap.NewNop())
	b.Track("run-1", "a harbor")
	if err := b.TurnCompleted(context.Background(), "run-1", agent.TurnResult{}); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if err := b.RoundCompleted(context.Background(), "run-1", sampleRound()); err != nil {
		t.Fatalf("round: %v", err)
	}
	if err := b.RoundCompleted(context.Background(), "run-2", sampleRound()); err != nil {
		t.Fatalf("round: %v", err)
	}

	if got := rest.Posts("run-1"); len(got) != 1 || got[0].Title != "Round 2: a harbor" {
		t.Errorf("posts = %+v", got)
	}
	if len(b.History()) != 2 {
		t.Errorf("history = %d", len(b.History()))
	}

	srv := httptest.NewServer(rest.Routes())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/posts?run=run-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var posts []Post
	json.NewDecoder(resp.Body).Decode(&posts)
	if len(posts) != 1 || posts[0].RunID != "run-2" || posts[0].Title != "Round 2" {
		t.Errorf("http posts = %+v", posts)
	}
}

func TestGatewayDropsFailedAdapters(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	gw.Register(failingAdapter{connectErr: errors.New("bad token")})
	gw.Register(NewRESTAdapter(0, zap.NewNop()))

	if err := gw.ConnectAll(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if names := gw.Adapters(); len(names) != 1 || names[0] != "rest" {
		t.Errorf("adapters = %v", names)
	}
}

func TestGatewayBroadcastError(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	gw.Register(failingAdapter{postErr: errors.New("rate limited")})
	b := NewBroadcaster(gw, zap.NewNop())
	if err := b.RoundCompleted(context.Background(), "r", sampleRound()); err == nil {
		t.Fatal("expected broadcast error")
	}
	if len(b.History()) != 0 {
		t.Error("failed digest recorded in history")
	}
}

func TestSlackAdapterPost(t *testing.T) {
	var channel, text string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth.test", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"user":"tinyworld","team":"lab"}`))
	})
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		channel = r.FormValue("channel")
		text = r.FormValue("text")
		w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1.0"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewSlackAdapter("xoxb-test", "C1", zap.NewNop(), slack.OptionAPIURL(srv.URL+"/"))
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := a.Post(context.Background(), Digest("r", "dock", sampleRound())); err != nil {
		t.Fatalf("post: %v", err)
	}
	if channel != "C1" || !strings.HasPrefix(text, "*Round 2: dock*") {
		t.Errorf("channel=%q text=%q", channel, text)
	}
	if st := a.Status(); !st.Connected || !strings.Contains(st.Details, "tinyworld") {
		t.Errorf("status = %+v", st)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 10); got != "héllo" {
		t.Errorf("short = %q", got)
	}
	if got := truncate("héllo world", 5); got != "héll…" {
		t.Errorf("long = %q", got)
	}
}
