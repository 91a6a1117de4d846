// Package gateway implements the WebSocket client side of the agent
// gateway protocol: connect handshake, agent invocation, and streamed
// assistant output. Each Invoke owns one connection; there is no
// reconnect logic, the caller decides whether to try again.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/larkbridge/pkg/protocol"
)

// connState tracks where a connection is in the handshake/stream
// sequence. Frames that do not fit the current state are rejected.
type connState int

const (
	stateConnecting connState = iota
	stateAwaitingChallenge
	stateAuthenticating
	stateReady
	stateStreaming
	stateClosed
	stateFailed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAwaitingChallenge:
		return "awaiting-challenge"
	case stateAuthenticating:
		return "authenticating"
	case stateReady:
		return "ready"
	case stateStreaming:
		return "streaming"
	case stateClosed:
		return "closed"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds connection parameters for the gateway.
type Config struct {
	URL       string
	Token     string
	Locale    string
	UserAgent string
}

// Client dials the gateway per invocation. Safe for concurrent use;
// concurrent Invoke calls each get their own connection.
type Client struct {
	cfg    Config
	log    *slog.Logger
	dialer *websocket.Dialer
}

// New builds a Client. logger may be nil.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = protocol.ClientName
	}
	return &Client{
		cfg: cfg,
		log: logger.With("component", "gateway"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

// InvokeRequest describes one agent run.
type InvokeRequest struct {
	Message    string
	AgentID    string
	SessionKey string
}

// StreamEvent is one update from a running invocation. Intermediate
// events carry the accumulated text so far; the terminal event has
// either Done set with the final text or Err set.
type StreamEvent struct {
	Text string
	Done bool
	Err  error
}

// conn wraps the socket so Close is idempotent. The watchdog and the
// stream loop may both try to close it.
type conn struct {
	ws   *websocket.Conn
	once sync.Once
}

func (c *conn) Close() {
	c.once.Do(func() { _ = c.ws.Close() })
}

// Invoke runs the full handshake synchronously, then returns a channel
// of stream events for the accepted run. Handshake failures (dial,
// auth, rejected agent request) are returned directly; failures after
// acceptance arrive on the channel. The channel is closed after the
// terminal event.
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (<-chan StreamEvent, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("dial %s: %w", c.cfg.URL, err)}
	}
	cn := &conn{ws: ws}

	// Closes the socket if the caller gives up mid-handshake or
	// mid-stream. done is closed when the invocation finishes on its own.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cn.Close()
		case <-done:
		}
	}()

	runID, err := c.handshake(ctx, cn, req)
	if err != nil {
		cn.Close()
		close(done)
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(done)
		defer cn.Close()
		defer close(events)
		c.stream(ctx, cn, runID, events)
	}()
	return events, nil
}

// handshake takes the connection from dial through challenge, connect
// auth, and the agent request. Returns the accepted run ID.
func (c *Client) handshake(ctx context.Context, cn *conn, req InvokeRequest) (string, error) {
	state := stateAwaitingChallenge

	// Challenge arrives as the first event after the socket opens.
	// Unrelated broadcast events before it are skipped.
	for {
		frame, raw, err := readFrame(cn)
		if err != nil {
			return "", wrapTransport(ctx, err)
		}
		if frame != protocol.FrameTypeEvent {
			return "", &ProtocolError{State: state.String(), Detail: fmt.Sprintf("expected event frame, got %q", frame)}
		}
		var ev protocol.EventFrame
		if err := json.Unmarshal(raw, &ev); err != nil {
			return "", &ProtocolError{State: state.String(), Detail: fmt.Sprintf("decode event: %v", err)}
		}
		if ev.Event == protocol.EventConnectChallenge {
			break
		}
		c.log.Debug("skipping pre-auth event", "event", ev.Event)
	}

	state = stateAuthenticating
	connectID := uuid.NewString()[:8]
	params, _ := json.Marshal(protocol.ConnectParams{
		MinProtocol: protocol.MinProtocolVersion,
		MaxProtocol: protocol.ProtocolVersion,
		Client:      protocol.ClientName,
		Role:        protocol.ClientRole,
		Scopes:      protocol.DefaultScopes,
		Auth:        protocol.ConnectAuth{Token: c.cfg.Token},
		Locale:      c.cfg.Locale,
		UserAgent:   c.cfg.UserAgent,
	})
	if err := cn.ws.WriteJSON(protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     connectID,
		Method: protocol.MethodConnect,
		Params: params,
	}); err != nil {
		return "", wrapTransport(ctx, err)
	}

	resp, err := c.awaitResponse(ctx, cn, state, connectID)
	if err != nil {
		return "", err
	}
	if !resp.OK {
		msg := "connect rejected"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", &AuthError{Message: msg}
	}

	state = stateReady
	agentID := uuid.NewString()[:8]
	agentParams, _ := json.Marshal(protocol.AgentParams{
		Message:        req.Message,
		AgentID:        req.AgentID,
		SessionKey:     req.SessionKey,
		Deliver:        false,
		IdempotencyKey: uuid.NewString(),
	})
	if err := cn.ws.WriteJSON(protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     agentID,
		Method: protocol.MethodAgent,
		Params: agentParams,
	}); err != nil {
		return "", wrapTransport(ctx, err)
	}

	resp, err = c.awaitResponse(ctx, cn, state, agentID)
	if err != nil {
		return "", err
	}
	if !resp.OK {
		msg := "agent request rejected"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", &RunFailedError{Message: msg}
	}

	var accepted protocol.AgentAccepted
	if err := json.Unmarshal(resp.Payload, &accepted); err != nil || accepted.RunID == "" {
		return "", &ProtocolError{State: state.String(), Detail: "agent response missing runId"}
	}
	return accepted.RunID, nil
}

// awaitResponse reads frames until the response matching reqID
// arrives. Events received meanwhile are logged and skipped.
func (c *Client) awaitResponse(ctx context.Context, cn *conn, state connState, reqID string) (*protocol.ResponseFrame, error) {
	for {
		frame, raw, err := readFrame(cn)
		if err != nil {
			return nil, wrapTransport(ctx, err)
		}
		switch frame {
		case protocol.FrameTypeResponse:
			var resp protocol.ResponseFrame
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, &ProtocolError{State: state.String(), Detail: fmt.Sprintf("decode response: %v", err)}
			}
			if resp.ID != reqID {
				return nil, &ProtocolError{State: state.String(), Detail: fmt.Sprintf("response for unknown request %q", resp.ID)}
			}
			return &resp, nil
		case protocol.FrameTypeEvent:
			var ev protocol.EventFrame
			if err := json.Unmarshal(raw, &ev); err == nil {
				c.log.Debug("skipping event while awaiting response", "event", ev.Event, "state", state.String())
			}
		default:
			return nil, &ProtocolError{State: state.String(), Detail: fmt.Sprintf("unexpected frame type %q", frame)}
		}
	}
}

// stream reads agent events for runID until a lifecycle terminal,
// emitting the accumulated text after each update.
func (c *Client) stream(ctx context.Context, cn *conn, runID string, events chan<- StreamEvent) {
	state := stateStreaming
	var buf strings.Builder

	for {
		frame, raw, err := readFrame(cn)
		if err != nil {
			events <- StreamEvent{Err: wrapTransport(ctx, err)}
			return
		}
		if frame != protocol.FrameTypeEvent {
			events <- StreamEvent{Err: &ProtocolError{State: state.String(), Detail: fmt.Sprintf("unexpected frame type %q", frame)}}
			return
		}
		var ev protocol.EventFrame
		if err := json.Unmarshal(raw, &ev); err != nil {
			events <- StreamEvent{Err: &ProtocolError{State: state.String(), Detail: fmt.Sprintf("decode event: %v", err)}}
			return
		}
		if ev.Event == protocol.EventShutdown {
			events <- StreamEvent{Err: &TransportError{Err: errors.New("gateway shutting down")}}
			return
		}
		if ev.Event != protocol.EventAgent {
			c.log.Debug("ignoring event during stream", "event", ev.Event)
			continue
		}

		var payload protocol.AgentEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			events <- StreamEvent{Err: &ProtocolError{State: state.String(), Detail: fmt.Sprintf("decode agent payload: %v", err)}}
			return
		}
		if payload.RunID != runID {
			c.log.Debug("ignoring event for other run", "runId", payload.RunID)
			continue
		}

		switch payload.Stream {
		case protocol.StreamAssistant:
			var data protocol.AssistantData
			if err := json.Unmarshal(payload.Data, &data); err != nil {
				events <- StreamEvent{Err: &ProtocolError{State: state.String(), Detail: fmt.Sprintf("decode assistant data: %v", err)}}
				return
			}
			if data.Text != "" {
				buf.Reset()
				buf.WriteString(data.Text)
			} else if data.Delta != "" {
				buf.WriteString(data.Delta)
			} else {
				continue
			}
			events <- StreamEvent{Text: buf.String()}
		case protocol.StreamLifecycle:
			var data protocol.LifecycleData
			if err := json.Unmarshal(payload.Data, &data); err != nil {
				events <- StreamEvent{Err: &ProtocolError{State: state.String(), Detail: fmt.Sprintf("decode lifecycle data: %v", err)}}
				return
			}
			switch data.Phase {
			case protocol.PhaseEnd:
				events <- StreamEvent{Text: strings.TrimSpace(buf.String()), Done: true}
				return
			case protocol.PhaseError:
				msg := data.Message
				if msg == "" {
					msg = "run ended in error phase"
				}
				events <- StreamEvent{Err: &RunFailedError{Message: msg}}
				return
			default:
				c.log.Debug("ignoring lifecycle phase", "phase", data.Phase)
			}
		default:
			c.log.Debug("ignoring stream", "stream", payload.Stream)
		}
	}
}

// Handshake dials and authenticates without starting a run, then
// closes the connection. Used by the doctor command.
func (c *Client) Handshake(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("dial %s: %w", c.cfg.URL, err)}
	}
	cn := &conn{ws: ws}
	defer cn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cn.Close()
		case <-done:
		}
	}()

	state := stateAwaitingChallenge
	for {
		frame, raw, err := readFrame(cn)
		if err != nil {
			return wrapTransport(ctx, err)
		}
		if frame != protocol.FrameTypeEvent {
			return &ProtocolError{State: state.String(), Detail: fmt.Sprintf("expected event frame, got %q", frame)}
		}
		var ev protocol.EventFrame
		if err := json.Unmarshal(raw, &ev); err != nil {
			return &ProtocolError{State: state.String(), Detail: fmt.Sprintf("decode event: %v", err)}
		}
		if ev.Event == protocol.EventConnectChallenge {
			break
		}
	}

	state = stateAuthenticating
	connectID := uuid.NewString()[:8]
	params, _ := json.Marshal(protocol.ConnectParams{
		MinProtocol: protocol.MinProtocolVersion,
		MaxProtocol: protocol.ProtocolVersion,
		Client:      protocol.ClientName,
		Role:        protocol.ClientRole,
		Scopes:      protocol.DefaultScopes,
		Auth:        protocol.ConnectAuth{Token: c.cfg.Token},
		Locale:      c.cfg.Locale,
		UserAgent:   c.cfg.UserAgent,
	})
	if err := cn.ws.WriteJSON(protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     connectID,
		Method: protocol.MethodConnect,
		Params: params,
	}); err != nil {
		return wrapTransport(ctx, err)
	}
	resp, err := c.awaitResponse(ctx, cn, state, connectID)
	if err != nil {
		return err
	}
	if !resp.OK {
		msg := "connect rejected"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return &AuthError{Message: msg}
	}
	return nil
}

// Collect drains an invocation's event channel, calling onDelta with
// the accumulated text after each update, and returns the final text.
// A panicking callback never takes down the run.
func Collect(events <-chan StreamEvent, onDelta func(string)) (string, error) {
	var final string
	for ev := range events {
		if ev.Err != nil {
			return "", ev.Err
		}
		if ev.Done {
			final = ev.Text
			continue
		}
		if onDelta != nil {
			safeDelta(onDelta, ev.Text)
		}
	}
	return final, nil
}

func safeDelta(fn func(string), text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("stream callback panicked", "panic", r)
		}
	}()
	fn(text)
}

func readFrame(cn *conn) (string, []byte, error) {
	_, raw, err := cn.ws.ReadMessage()
	if err != nil {
		return "", nil, err
	}
	frame, err := protocol.ParseFrameType(raw)
	if err != nil {
		return "", nil, &ProtocolError{State: "any", Detail: fmt.Sprintf("parse frame: %v", err)}
	}
	return frame, raw, nil
}

// wrapTransport prefers the context error when the read failed because
// the watchdog closed the socket. Already-typed protocol errors pass
// through untouched.
func wrapTransport(ctx context.Context, err error) error {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr
	}
	if ctx.Err() != nil {
		return &TransportError{Err: ctx.Err()}
	}
	return &TransportError{Err: err}
}
