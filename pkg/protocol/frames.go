// Package protocol defines the JSON wire frames exchanged with an
// OpenClaw-style agent gateway. Every WebSocket message carries exactly
// one frame; the "type" field selects the shape.
package protocol

import "encoding/json"

// ProtocolVersion bounds advertised during the connect handshake.
const (
	MinProtocolVersion = 1
	ProtocolVersion    = 3
)

// Frame type discriminators.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// RequestFrame is a client→server RPC call.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame answers a RequestFrame with the matching ID.
type ResponseFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

// EventFrame is a server→client push.
type EventFrame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorInfo carries a machine code and a human message.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ConnectParams is the payload of the "connect" request.
type ConnectParams struct {
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
	Client      string      `json:"client"`
	Role        string      `json:"role"`
	Scopes      []string    `json:"scopes"`
	Auth        ConnectAuth `json:"auth"`
	Locale      string      `json:"locale,omitempty"`
	UserAgent   string      `json:"userAgent,omitempty"`
}

// ConnectAuth wraps the shared-secret token.
type ConnectAuth struct {
	Token string `json:"token"`
}

// AgentParams is the payload of the "agent" request.
type AgentParams struct {
	Message        string `json:"message"`
	AgentID        string `json:"agentId"`
	SessionKey     string `json:"sessionKey"`
	Deliver        bool   `json:"deliver"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// AgentAccepted is the payload of a successful "agent" response.
type AgentAccepted struct {
	RunID string `json:"runId"`
}

// AgentEventPayload is the payload of "event/agent" frames.
type AgentEventPayload struct {
	RunID  string          `json:"runId"`
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// AssistantData carries streamed assistant output: either a full-text
// snapshot or an incremental delta. A non-empty Text replaces the
// accumulated buffer; Delta appends to it.
type AssistantData struct {
	Text  string `json:"text,omitempty"`
	Delta string `json:"delta,omitempty"`
}

// LifecycleData terminates a run.
type LifecycleData struct {
	Phase   string `json:"phase"`
	Message string `json:"message,omitempty"`
}

// ParseFrameType extracts the "type" field without decoding the full frame.
func ParseFrameType(raw []byte) (string, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", err
	}
	return probe.Type, nil
}
