package render

import (
	"strings"
	"testing"
)

func TestSplit_ShortTextUnsplit(t *testing.T) {
	got := Split("hello", 100, 8)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("Split = %v", got)
	}
}

func TestSplit_ChunkSizeBound(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("line of ordinary prose content\n")
	}
	text := b.String()

	chunks := Split(text, 200, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 200 {
			t.Errorf("chunk %d has %d chars, want <= 200", i, len(c))
		}
	}
	if joined := strings.Join(chunks, "\n"); joined != text {
		t.Errorf("reassembled text differs from input")
	}
}

func TestSplit_OversizedAtomicLinePassedThrough(t *testing.T) {
	long := strings.Repeat("x", 500)
	text := "short\n" + long + "\nshort again"

	chunks := Split(text, 100, 0)
	found := false
	for _, c := range chunks {
		if strings.Contains(c, long) {
			found = true
		}
	}
	if !found {
		t.Fatal("oversized atomic line was split or dropped")
	}
}

func TestSplit_FenceNeverSplitSilently(t *testing.T) {
	var code strings.Builder
	code.WriteString("intro paragraph\n\n```go\n")
	for i := 0; i < 30; i++ {
		code.WriteString("fmt.Println(\"a reasonably long statement\")\n")
	}
	code.WriteString("```\ntrailing text")
	text := code.String()

	chunks := Split(text, 300, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d chunks", len(chunks))
	}

	// Every chunk must contain balanced fences.
	for i, c := range chunks {
		if strings.Count(c, "```")%2 != 0 {
			t.Errorf("chunk %d has unbalanced fences:\n%s", i, c)
		}
	}

	// Continuation chunks reopen with the original marker.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		if strings.HasSuffix(prev, "```") && !strings.HasPrefix(chunks[i], "```go") {
			t.Errorf("chunk %d does not reopen fence with original marker: %q", i, firstLine(chunks[i]))
		}
	}
}

func TestSplit_FenceRoundTrip(t *testing.T) {
	var code strings.Builder
	code.WriteString("```python\n")
	for i := 0; i < 40; i++ {
		code.WriteString("print('row', 1234567890)\n")
	}
	code.WriteString("```")
	text := code.String()

	chunks := Split(text, 250, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d chunks", len(chunks))
	}

	// Remove synthetic terminators/openers inserted at split points and
	// reassemble: the result must reproduce the input exactly.
	var parts []string
	for i, c := range chunks {
		lines := strings.Split(c, "\n")
		if i > 0 && lines[0] == "```python" {
			lines = lines[1:] // synthetic reopen
		}
		if i < len(chunks)-1 && lines[len(lines)-1] == "```" {
			lines = lines[:len(lines)-1] // synthetic close
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	if got := strings.Join(parts, "\n"); got != text {
		t.Errorf("round trip mismatch:\ngot:  %q\nwant: %q", got, text)
	}
}

func TestSplit_ParagraphBoundaryPreferred(t *testing.T) {
	para := strings.Repeat("word ", 18) // ~90 chars
	text := para + "\n\n" + para + "\n\n" + para

	chunks := Split(text, 120, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d", len(chunks))
	}
	// First chunk should end at the paragraph break, not mid-paragraph.
	if !strings.HasSuffix(chunks[0], "\n") && strings.Contains(chunks[0], "\n\n") {
		t.Errorf("first chunk did not break at paragraph boundary: %q", chunks[0])
	}
}

func TestSplit_MaxChunksCeilingLeavesUnsplit(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("a line of content that adds up quickly\n")
	}
	text := b.String()

	chunks := Split(text, 100, 3)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("expected unsplit oversized text, got %d chunks", len(chunks))
	}
}
