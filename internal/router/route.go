// Package router classifies inbound chat messages into handling routes.
// The classifier is an ordered list of pure matchers evaluated in priority
// order; the first match wins. Classification is stable for identical
// inputs so routing behavior stays unit-testable.
package router

// Kind identifies a handling route.
type Kind string

const (
	KindIgnore       Kind = "ignore"
	KindCode         Kind = "code"
	KindSearch       Kind = "search"
	KindLink         Kind = "link"
	KindConversation Kind = "conversation"
)

// Route is the classification outcome for one admitted message.
// Only the fields relevant to Kind are populated.
type Route struct {
	Kind       Kind
	Text       string   // conversation: cleaned message text
	Task       string   // code: task description
	ProjectDir string   // code: opportunistically extracted project path
	Query      string   // search: query, possibly with a forced directive
	URLs       []string // link: deduplicated absolute URLs, capped
}

// ChatType distinguishes direct from group chats.
type ChatType string

const (
	ChatP2P   ChatType = "p2p"
	ChatGroup ChatType = "group"
)

// Mention is one @-mention attached to a message. Key is the inline
// placeholder token (e.g. "@_user_1") that appears in the raw text.
type Mention struct {
	Key  string
	ID   string
	Name string
}
