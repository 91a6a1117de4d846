// Package sessions derives the backend session keys that scope
// conversational memory. Keys follow the OpenClaw canonical format:
//
//	agent:{agentId}:{channel}:{kind}:{chatId}
//
// Code runs are namespaced under an extra "code" segment so coding
// context never bleeds into regular conversation sessions for the
// same chat:
//
//	agent:{agentId}:{channel}:code:{kind}:{chatId}
//
// An optional version label is appended (":v{label}") for busting
// stale backend sessions after incompatible changes.
package sessions

import (
	"fmt"
	"strings"
)

// Channel is the fixed channel segment for this bridge.
const Channel = "feishu"

// PeerKind distinguishes DM from group conversations.
type PeerKind string

const (
	PeerDirect PeerKind = "direct"
	PeerGroup  PeerKind = "group"
)

// PeerKindFromChatType maps the platform chat_type field.
func PeerKindFromChatType(chatType string) PeerKind {
	if chatType == "group" {
		return PeerGroup
	}
	return PeerDirect
}

// Derive builds the session key for one admitted message. The same
// chatId, kind, code flag, and version always produce the same key.
func Derive(agentID, chatID string, kind PeerKind, code bool, version string) string {
	var b strings.Builder
	if code {
		fmt.Fprintf(&b, "agent:%s:%s:code:%s:%s", agentID, Channel, kind, chatID)
	} else {
		fmt.Fprintf(&b, "agent:%s:%s:%s:%s", agentID, Channel, kind, chatID)
	}
	if version != "" {
		fmt.Fprintf(&b, ":v%s", version)
	}
	return b.String()
}

// Parse extracts the agentID and the remainder from a canonical key.
// Returns ("", "") for keys not in the expected format.
func Parse(key string) (agentID, rest string) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[0] != "agent" {
		return "", ""
	}
	return parts[1], parts[2]
}

// IsCodeSession reports whether a key belongs to the code namespace.
func IsCodeSession(key string) bool {
	_, rest := Parse(key)
	return strings.HasPrefix(rest, Channel+":code:")
}
