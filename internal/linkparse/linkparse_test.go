package linkparse

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestParse_RunsCommandWithURLAndMaxChars(t *testing.T) {
	p := New(Config{Command: []string{"echo"}, MaxChars: 500}, nil)
	out, err := p.Parse(context.Background(), "https://example.com/page")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(out, "https://example.com/page") {
		t.Errorf("url not passed through: %q", out)
	}
	if !strings.Contains(out, "--max-chars 500") {
		t.Errorf("--max-chars not passed: %q", out)
	}
}

func TestParse_RejectsNonHTTPSchemes(t *testing.T) {
	p := New(Config{Command: []string{"echo"}}, nil)
	for _, raw := range []string{"ftp://host/file", "file:///etc/passwd", "javascript:alert(1)"} {
		if _, err := p.Parse(context.Background(), raw); err == nil {
			t.Errorf("Parse(%q) accepted a non-http url", raw)
		}
	}
}

func TestParse_Timeout(t *testing.T) {
	// Appended argv (url, --max-chars) lands in the shell's positional
	// parameters and is ignored.
	p := New(Config{Command: []string{"sh", "-c", "sleep 5"}, Timeout: 50 * time.Millisecond}, nil)
	_, err := p.Parse(context.Background(), "https://example.com")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestParse_FailureWithPartialOutputWins(t *testing.T) {
	// The parser script reports fetch errors as Markdown on stdout and
	// may still exit non-zero; stdout is preferred.
	p := New(Config{Command: []string{"sh", "-c", `echo "## 抓取失败"; exit 1; #`}}, nil)
	out, err := p.Parse(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(out, "抓取失败") {
		t.Errorf("stdout lost: %q", out)
	}
}

func TestParse_NoCommandConfigured(t *testing.T) {
	p := New(Config{}, nil)
	if _, err := p.Parse(context.Background(), "https://example.com"); err == nil {
		t.Error("expected error with empty command")
	}
}
