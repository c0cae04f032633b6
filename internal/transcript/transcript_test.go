package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nidhogg/tiny-world/internal/agent"
)

type fakeSource struct {
	scene   string
	rounds  int
	history []agent.RoundRecord
}

func (f fakeSource) Scene() string                { return f.scene }
func (f fakeSource) Rounds() int                  { return f.rounds }
func (f fakeSource) History() []agent.RoundRecord { return f.history }

func sample() fakeSource {
	return fakeSource{
		scene:  "a rooftop garden",
		rounds: 1,
		history: []agent.RoundRecord{
			{Round: 1, Results: []agent.TurnResult{
				{Agent: "A", Round: 1, Thought: "T1-A", Speech: "S1-A", Action: "Act1-A"},
				{Agent: "B", Round: 1, Thought: "T1-B", Speech: "S1-B", Action: "Act1-B"},
			}},
			{Round: 2, Aborted: true, Results: []agent.TurnResult{
				{Agent: "A", Round: 2, Thought: "T2-A", Speech: "S2-A", Action: "Act2-A"},
			}},
		},
	}
}

func TestRender(t *testing.T) {
	out := String(sample())
	for _, want := range []string{
		"Scene: a rooftop garden\n",
		"Completed rounds: 1\n",
		"Round 1",
		"[A thinks]\nT1-A\n",
		"[B says]\nS1-B\n",
		"[B does]\nAct1-B\n",
		"(round aborted)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "T1-A") > strings.Index(out, "T1-B") {
		t.Error("turns out of roster order")
	}
	if strings.Index(out, "[A thinks]") > strings.Index(out, "[A says]") ||
		strings.Index(out, "[A says]") > strings.Index(out, "[A does]") {
		t.Error("capabilities out of order")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation_log.txt")
	if err := WriteFile(path, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != String(sample()) {
		t.Error("file content differs from rendered transcript")
	}

	if err := WriteFile(filepath.Join(t.TempDir(), "missing", "x.txt"), sample()); err == nil {
		t.Error("expected error for missing directory")
	}
}
