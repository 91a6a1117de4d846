package feishu

// Event schema for im.message.receive_v1 callbacks, shared by the
// WebSocket and webhook intake paths.

const EventTypeMessageReceive = "im.message.receive_v1"

// MessageEvent is the envelope Lark delivers for message callbacks.
type MessageEvent struct {
	Schema string      `json:"schema"`
	Header EventHeader `json:"header"`
	Event  EventBody   `json:"event"`
}

type EventHeader struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Token      string `json:"token"`
	AppID      string `json:"app_id"`
	TenantKey  string `json:"tenant_key"`
}

type EventBody struct {
	Sender  EventSender  `json:"sender"`
	Message EventMessage `json:"message"`
}

type EventSender struct {
	SenderID   SenderID `json:"sender_id"`
	SenderType string   `json:"sender_type"`
}

type SenderID struct {
	OpenID  string `json:"open_id"`
	UserID  string `json:"user_id"`
	UnionID string `json:"union_id"`
}

type EventMessage struct {
	MessageID   string         `json:"message_id"`
	RootID      string         `json:"root_id"`
	ParentID    string         `json:"parent_id"`
	ChatID      string         `json:"chat_id"`
	ChatType    string         `json:"chat_type"` // "p2p" or "group"
	MessageType string         `json:"message_type"`
	Content     string         `json:"content"` // JSON-encoded, shape depends on MessageType
	Mentions    []EventMention `json:"mentions"`
}

type EventMention struct {
	Key  string    `json:"key"` // @_user_N placeholder inside Content
	ID   MentionID `json:"id"`
	Name string    `json:"name"`
}

type MentionID struct {
	OpenID  string `json:"open_id"`
	UserID  string `json:"user_id"`
	UnionID string `json:"union_id"`
}
