// Package transcript renders a simulation's history as plain text.
package transcript

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nidhogg/tiny-world/internal/agent"
)

// Source is the read side of a simulation.
type Source interface {
	Scene() string
	Rounds() int
	History() []agent.RoundRecord
}

var rule = strings.Repeat("=", 20)

// Render writes the scene, the completed round count and every round's
// turns to w.
func Render(w io.Writer, src Source) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Scene: %s\n", src.Scene())
	fmt.Fprintf(bw, "Completed rounds: %d\n\n", src.Rounds())

	for _, rec := range src.History() {
		fmt.Fprintf(bw, "%s Round %d %s\n", rule, rec.Round, rule)
		for _, r := range rec.Results {
			fmt.Fprintf(bw, "[%s thinks]\n%s\n", r.Agent, r.Thought)
			fmt.Fprintf(bw, "[%s says]\n%s\n\n", r.Agent, r.Speech)
			fmt.Fprintf(bw, "[%s does]\n%s\n\n", r.Agent, r.Action)
		}
		if rec.Aborted {
			bw.WriteString("(round aborted)\n")
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// String renders the transcript into a string.
func String(src Source) string {
	var b strings.Builder
	_ = Render(&b, src)
	return b.String()
}

// WriteFile renders the transcript to path, replacing any existing file.
func WriteFile(path string, src Source) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create transcript %s: %w", path, err)
	}
	if err := Render(f, src); err != nil {
		f.Close()
		return fmt.Errorf("write transcript %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close transcript %s: %w", path, err)
	}
	return nil
}
