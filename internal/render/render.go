// Package render converts agent reply text into chat-ready payloads:
// plain text, a structured card with extracted tables, or a sequence of
// size-bounded chunks. The transformation is deterministic: identical
// input and config always produce the same payload.
package render

import (
	"regexp"
	"strings"
)

// Render modes. ModeAuto sniffs the text for markdown; the force modes
// override the sniff in priority order text > card > post.
const (
	ModeAuto = "auto"
	ModeText = "text"
	ModeCard = "card"
	ModePost = "post"
)

// Config drives rendering decisions.
type Config struct {
	Mode      string
	MaxTables int
	ChunkSize int
	MaxChunks int
}

// PayloadKind tags the rendered form.
type PayloadKind string

const (
	PayloadText   PayloadKind = "text"
	PayloadCard   PayloadKind = "card"
	PayloadChunks PayloadKind = "chunks"
)

// Payload is the rendered reply. Exactly one of Text/Card/Chunks is
// populated, selected by Kind. Oversized reports that the text exceeded
// the chunk budget and was left unsplit; the caller must fall back (e.g.
// deliver as a file).
type Payload struct {
	Kind      PayloadKind
	Text      string
	Card      *Card
	Chunks    []string
	Oversized bool
}

var (
	inlineCodePattern  = regexp.MustCompile("`[^`\n]+`")
	emphasisPattern    = regexp.MustCompile(`\*\*[^*\n]+\*\*|(?:^|\s)\*[^*\n]+\*|__[^_\n]+__|(?:^|\s)_[^_\n]+_`)
	mdLinkPattern      = regexp.MustCompile(`\[[^\]\n]+\]\([^)\n]+\)`)
	headingLinePattern = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	listLinePattern    = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+\S`)
)

// Render converts reply text into a payload under the given config.
func Render(text string, cfg Config) Payload {
	text = strings.TrimSpace(text)

	switch cfg.Mode {
	case ModeText:
		return renderText(text, cfg)
	case ModeCard:
		return Payload{Kind: PayloadCard, Card: BuildCard(text, cfg.MaxTables)}
	case ModePost:
		// Post keeps the markdown inline; structurally it is the plain
		// text path and the channel builds a rich-text post from it.
		return renderText(text, cfg)
	}

	if looksRich(text) {
		return Payload{Kind: PayloadCard, Card: BuildCard(text, cfg.MaxTables)}
	}
	return renderText(text, cfg)
}

// renderText returns a plain payload, chunked when over the size
// threshold. When even chunking cannot fit the budget the original text
// comes back whole with Oversized set.
func renderText(text string, cfg Config) Payload {
	if cfg.ChunkSize > 0 && len(text) > cfg.ChunkSize {
		chunks := Split(text, cfg.ChunkSize, cfg.MaxChunks)
		if len(chunks) == 1 && len(chunks[0]) > cfg.ChunkSize {
			return Payload{Kind: PayloadText, Text: text, Oversized: true}
		}
		if len(chunks) > 1 {
			return Payload{Kind: PayloadChunks, Chunks: chunks}
		}
	}
	return Payload{Kind: PayloadText, Text: text}
}

// looksRich reports whether the text carries markdown that benefits from
// card rendering: fenced or inline code, emphasis, links, headings, or
// list items.
func looksRich(text string) bool {
	return strings.Contains(text, "```") ||
		inlineCodePattern.MatchString(text) ||
		emphasisPattern.MatchString(text) ||
		mdLinkPattern.MatchString(text) ||
		headingLinePattern.MatchString(text) ||
		listLinePattern.MatchString(text)
}
