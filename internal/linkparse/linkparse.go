// Package linkparse shells out to the configured link-parser command,
// which fetches a URL and prints a Markdown digest on stdout.
package linkparse

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Config selects the external parser invocation.
type Config struct {
	// Command is the argv prefix; the URL and --max-chars flag are
	// appended per call.
	Command  []string
	MaxChars int
	Timeout  time.Duration
}

// Parser runs the external command once per URL.
type Parser struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{cfg: cfg, log: logger.With("component", "linkparse")}
}

// Parse fetches one URL's digest. Only http(s) URLs are accepted.
// The parser's stdout is returned as Markdown; the script reports its
// own fetch failures as Markdown too, so a non-empty stdout wins over
// a non-zero exit.
func (p *Parser) Parse(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if len(p.cfg.Command) == 0 {
		return "", fmt.Errorf("link parser command not configured")
	}

	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{}, p.cfg.Command[1:]...)
	args = append(args, rawURL)
	if p.cfg.MaxChars > 0 {
		args = append(args, "--max-chars", strconv.Itoa(p.cfg.MaxChars))
	}

	cmd := exec.CommandContext(ctx, p.cfg.Command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	p.log.Debug("link parser finished",
		"url", rawURL,
		"duration", time.Since(start),
		"stdout_bytes", stdout.Len(),
		"error", err,
	)

	out := strings.TrimSpace(stdout.String())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("link parser timed out after %s", timeout)
		}
		if out != "" {
			return out, nil
		}
		return "", fmt.Errorf("link parser failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	if out == "" {
		return "", fmt.Errorf("link parser produced no output for %s", rawURL)
	}
	return out, nil
}
