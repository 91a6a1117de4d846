package router

import (
	"os"
	"regexp"
	"strings"
)

// searchDirective is prepended to heuristic-triggered queries so the agent
// actually reaches for its search tool instead of answering from memory.
const searchDirective = "请使用联网搜索回答，并给出来源链接。\n"

// searchIntentWords trigger the search route without an explicit prefix.
var searchIntentWords = []string{
	"search", "look up", "lookup", "research", "sources",
	"搜索", "搜一下", "查一下", "检索", "调研", "来源",
}

var projectDirPattern = regexp.MustCompile(`(?i)(?:path|dir)[:：]\s*(\S+)`)

// Config drives classification. BotIDs holds platform identifiers for the
// bot (Lark open_id); BotNames holds display names matched case-insensitively.
type Config struct {
	BotIDs         []string
	BotNames       []string
	CodePrefixes   []string
	SearchPrefixes []string
	LinkPrefixes   []string
	WakeWords      []string
	MentionOnly    bool
	AutoLinkP2P    bool
	MaxLinks       int
}

// Classifier decides how an admitted message is handled.
type Classifier struct {
	cfg Config

	// pathExists is swappable in tests; classification must not depend
	// on the test machine's filesystem.
	pathExists func(string) bool
}

// New creates a classifier from config.
func New(cfg Config) *Classifier {
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 3
	}
	return &Classifier{
		cfg: cfg,
		pathExists: func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		},
	}
}

// Classify inspects the message and returns its route.
// Matchers run in priority order: group gate, link, code, search,
// conversation.
func (c *Classifier) Classify(text string, chatType ChatType, mentions []Mention) Route {
	text = stripMentionKeys(text, mentions)

	if chatType == ChatGroup && !c.admitGroup(text, mentions) {
		return Route{Kind: KindIgnore}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Route{Kind: KindIgnore}
	}

	if r, ok := c.matchLink(text, chatType); ok {
		return r
	}
	if r, ok := c.matchCode(text); ok {
		return r
	}
	if r, ok := c.matchSearch(text); ok {
		return r
	}
	return Route{Kind: KindConversation, Text: text}
}

// admitGroup applies the group admission gate: the bot must be mentioned,
// or the text must carry a routing prefix, or a wake word must open a line.
// In mention-only mode only the mention check applies.
func (c *Classifier) admitGroup(text string, mentions []Mention) bool {
	if c.botMentioned(mentions) {
		return true
	}
	if c.cfg.MentionOnly {
		return false
	}

	trimmed := strings.TrimSpace(text)
	if hasAnyPrefix(trimmed, c.cfg.CodePrefixes) ||
		hasAnyPrefix(trimmed, c.cfg.SearchPrefixes) ||
		hasAnyPrefix(trimmed, c.cfg.LinkPrefixes) {
		return true
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, wake := range c.cfg.WakeWords {
			if wake != "" && hasPrefixFold(line, wake) {
				return true
			}
		}
	}
	return false
}

func (c *Classifier) botMentioned(mentions []Mention) bool {
	for _, m := range mentions {
		for _, id := range c.cfg.BotIDs {
			if id != "" && m.ID == id {
				return true
			}
		}
		for _, name := range c.cfg.BotNames {
			if name != "" && strings.EqualFold(m.Name, name) {
				return true
			}
		}
	}
	return false
}

// matchLink handles the explicit link prefix, plus bare-URL messages in
// P2P chats when auto-link is on.
func (c *Classifier) matchLink(text string, chatType ChatType) (Route, bool) {
	if rest, ok := trimAnyPrefix(text, c.cfg.LinkPrefixes); ok {
		urls := ExtractURLs(rest, c.cfg.MaxLinks)
		if len(urls) > 0 {
			return Route{Kind: KindLink, URLs: urls}, true
		}
		return Route{}, false
	}

	if chatType == ChatP2P && c.cfg.AutoLinkP2P {
		urls := ExtractURLs(text, c.cfg.MaxLinks)
		if len(urls) > 0 && onlyURLsAndPunct(text) {
			return Route{Kind: KindLink, URLs: urls}, true
		}
	}
	return Route{}, false
}

func (c *Classifier) matchCode(text string) (Route, bool) {
	rest, ok := trimAnyPrefix(text, c.cfg.CodePrefixes)
	if !ok {
		return Route{}, false
	}
	task := strings.TrimSpace(rest)
	return Route{Kind: KindCode, Task: task, ProjectDir: c.extractProjectDir(task)}, true
}

// extractProjectDir pulls a project path out of the task: an explicit
// "path:"/"dir:" marker wins, otherwise the first token that names an
// existing filesystem path.
func (c *Classifier) extractProjectDir(task string) string {
	if m := projectDirPattern.FindStringSubmatch(task); m != nil {
		return m[1]
	}
	for _, tok := range strings.Fields(task) {
		if !strings.ContainsAny(tok, "/~") {
			continue
		}
		if c.pathExists(tok) {
			return tok
		}
	}
	return ""
}

func (c *Classifier) matchSearch(text string) (Route, bool) {
	if rest, ok := trimAnyPrefix(text, c.cfg.SearchPrefixes); ok {
		return Route{Kind: KindSearch, Query: strings.TrimSpace(rest)}, true
	}
	if hasSearchIntent(text) {
		return Route{Kind: KindSearch, Query: searchDirective + text}, true
	}
	return Route{}, false
}

func hasSearchIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range searchIntentWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// --- helpers ---

func stripMentionKeys(text string, mentions []Mention) string {
	for _, m := range mentions {
		if m.Key != "" {
			text = strings.ReplaceAll(text, m.Key, "")
		}
	}
	return text
}

func hasAnyPrefix(text string, prefixes []string) bool {
	_, ok := trimAnyPrefix(text, prefixes)
	return ok
}

// trimAnyPrefix returns the text after the first matching prefix.
// Matching is case-insensitive.
func trimAnyPrefix(text string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if p != "" && hasPrefixFold(text, p) {
			return text[len(p):], true
		}
	}
	return "", false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// onlyURLsAndPunct reports whether the text is nothing but URLs plus
// whitespace and punctuation.
func onlyURLsAndPunct(text string) bool {
	stripped := urlPattern.ReplaceAllString(text, "")
	for _, r := range stripped {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		case strings.ContainsRune(",.;:!?()[]{}<>\"'，。！？：；、（）【】「」《》", r):
		default:
			return false
		}
	}
	return true
}
