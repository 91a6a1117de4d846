package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	wsEndpointPath   = "/callback/ws/endpoint"
	wsReadLimit      = 1 << 20 // 1MB
	wsBackoffInitial = 1 * time.Second
	wsBackoffMax     = 30 * time.Second

	// wsBackoffStable is how long a connection must live for the next
	// reconnect to start the backoff ladder over.
	wsBackoffStable = 1 * time.Minute
)

// EventHandler receives the raw payload of each pushed event.
type EventHandler interface {
	HandleEvent(ctx context.Context, payload []byte) error
}

// WSClient maintains the event long connection to the Lark open
// platform: it fetches a per-app endpoint, dials it, dispatches event
// frames, and reconnects with backoff when the connection drops.
type WSClient struct {
	appID     string
	appSecret string
	baseURL   string
	handler   EventHandler
	log       *slog.Logger

	cancel context.CancelFunc
}

func NewWSClient(appID, appSecret, domain string, handler EventHandler) *WSClient {
	return &WSClient{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   ResolveDomain(domain),
		handler:   handler,
		log:       slog.Default().With("component", "feishu-ws"),
	}
}

// wsFrame is one message on the event connection.
type wsFrame struct {
	Type    string          `json:"type"` // "event", "ping", "pong", "ack"
	EventID string          `json:"event_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Start runs the connect/read loop until ctx is cancelled or Stop is
// called. Connection failures are retried with exponential backoff.
func (c *WSClient) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	var backoff time.Duration

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		backoff = reconnectDelay(backoff, time.Since(started))
		c.log.Warn("event connection lost, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// reconnectDelay picks the wait before redialing. A session that
// survived past wsBackoffStable restarts the ladder; otherwise the
// previous delay escalates up to wsBackoffMax.
func reconnectDelay(prev, session time.Duration) time.Duration {
	if session >= wsBackoffStable {
		return wsBackoffInitial
	}
	next := prev * 2
	if next < wsBackoffInitial {
		next = wsBackoffInitial
	}
	if next > wsBackoffMax {
		next = wsBackoffMax
	}
	return next
}

// Stop cancels the connection loop.
func (c *WSClient) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// runOnce establishes one connection and reads until it fails.
func (c *WSClient) runOnce(ctx context.Context) error {
	endpoint, err := c.fetchEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("fetch ws endpoint: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)
	defer conn.Close(websocket.StatusNormalClosure, "")

	c.log.Info("event connection established")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("ws read: %w", err)
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Debug("skipping unparseable ws frame", "error", err)
			continue
		}

		switch frame.Type {
		case "ping":
			pong, _ := json.Marshal(wsFrame{Type: "pong"})
			if err := conn.Write(ctx, websocket.MessageText, pong); err != nil {
				return fmt.Errorf("ws pong: %w", err)
			}
		case "event":
			if err := c.handler.HandleEvent(ctx, frame.Payload); err != nil {
				c.log.Warn("event handler failed", "event_id", frame.EventID, "error", err)
			}
			if frame.EventID != "" {
				ack, _ := json.Marshal(wsFrame{Type: "ack", EventID: frame.EventID})
				if err := conn.Write(ctx, websocket.MessageText, ack); err != nil {
					return fmt.Errorf("ws ack: %w", err)
				}
			}
		default:
			c.log.Debug("ignoring ws frame", "type", frame.Type)
		}
	}
}

// fetchEndpoint asks the open platform for this app's ws URL.
func (c *WSClient) fetchEndpoint(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"AppID":     c.appID,
		"AppSecret": c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+wsEndpointPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			URL string `json:"URL"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode endpoint response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("endpoint error: code=%d msg=%s", result.Code, result.Msg)
	}
	if result.Data.URL == "" {
		return "", fmt.Errorf("endpoint response missing URL")
	}
	return result.Data.URL, nil
}
