package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/larkbridge/internal/bus"
	"github.com/nextlevelbuilder/larkbridge/internal/config"
	"github.com/nextlevelbuilder/larkbridge/internal/render"
)

const (
	// thinkingText is the placeholder shown while a run is in flight.
	thinkingText = "🤔 思考中..."

	// streamPreviewWidth caps the display width of streaming updates
	// pushed into the placeholder before the final reply.
	streamPreviewWidth = 3800

	// tablePageSize caps rows shown per card table page.
	tablePageSize = 10
)

// Channel connects the bridge to Lark: event intake on one side,
// rendered-payload delivery on the other.
type Channel struct {
	cfg    config.FeishuConfig
	client *LarkClient
	msgBus *bus.MessageBus
	log    *slog.Logger

	botOpenID  atomic.Value // string
	running    atomic.Bool
	wsClient   *WSClient
	httpServer *http.Server
}

// NewChannel builds the channel. The bot identity is probed at Start.
func NewChannel(cfg config.FeishuConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("feishu app_id and app_secret are required")
	}
	return &Channel{
		cfg:    cfg,
		client: NewLarkClient(cfg.AppID, cfg.AppSecret, cfg.Domain),
		msgBus: msgBus,
		log:    slog.Default().With("component", "feishu"),
	}, nil
}

// BotOpenID returns the probed bot identity, or "" before Start.
func (c *Channel) BotOpenID() string {
	if v, ok := c.botOpenID.Load().(string); ok {
		return v
	}
	return ""
}

// Start probes the bot identity and begins receiving events over the
// configured connection mode.
func (c *Channel) Start(ctx context.Context) error {
	c.log.Info("starting feishu channel", "mode", c.connectionMode())

	if openID, err := c.client.GetBotInfo(ctx); err != nil {
		c.log.Warn("bot identity probe failed, mention detection degraded", "error", err)
	} else {
		c.botOpenID.Store(openID)
		c.log.Info("bot identity resolved", "bot_open_id", openID)
	}

	c.running.Store(true)

	if c.connectionMode() == "webhook" {
		return c.startWebhook()
	}
	return c.startWebSocket(ctx)
}

// Stop shuts down event intake.
func (c *Channel) Stop(ctx context.Context) error {
	c.log.Info("stopping feishu channel")
	c.running.Store(false)
	if c.wsClient != nil {
		c.wsClient.Stop()
	}
	if c.httpServer != nil {
		return c.httpServer.Shutdown(ctx)
	}
	return nil
}

func (c *Channel) connectionMode() string {
	if c.cfg.ConnectionMode == "webhook" {
		return "webhook"
	}
	return "websocket"
}

// --- Event intake ---

// wsEventAdapter feeds WebSocket event payloads into the channel.
type wsEventAdapter struct {
	ch *Channel
}

func (a *wsEventAdapter) HandleEvent(ctx context.Context, payload []byte) error {
	var event MessageEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		a.ch.log.Debug("unparseable event payload", "error", err)
		return nil
	}
	if event.Header.EventType == EventTypeMessageReceive {
		a.ch.handleMessageEvent(&event)
	}
	return nil
}

func (c *Channel) startWebSocket(ctx context.Context) error {
	c.wsClient = NewWSClient(c.cfg.AppID, c.cfg.AppSecret, c.cfg.Domain, &wsEventAdapter{ch: c})
	go func() {
		if err := c.wsClient.Start(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("event connection terminated", "error", err)
		}
	}()
	return nil
}

func (c *Channel) startWebhook() error {
	port := c.cfg.WebhookPort
	if port <= 0 {
		port = 3000
	}
	path := c.cfg.WebhookPath
	if path == "" {
		path = "/feishu/events"
	}

	handler := NewWebhookHandler(c.cfg.VerificationToken, c.cfg.EncryptKey, c.cfg.WebhookRateRPM, func(event *MessageEvent) {
		c.handleMessageEvent(event)
	})

	mux := http.NewServeMux()
	mux.HandleFunc(path, handler)
	c.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := c.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.log.Error("webhook server error", "error", err)
		}
	}()

	c.log.Info("webhook server listening", "port", port, "path", path)
	return nil
}

// handleMessageEvent parses one inbound event and publishes it to the
// bus. Admission and routing decisions belong to the orchestrator.
func (c *Channel) handleMessageEvent(event *MessageEvent) {
	if event == nil || !c.running.Load() {
		return
	}
	msg := &event.Event.Message
	if msg.MessageID == "" {
		return
	}

	content := ParseContent(msg.Content, msg.MessageType)

	mentions := make([]bus.Mention, 0, len(msg.Mentions))
	for _, m := range msg.Mentions {
		mentions = append(mentions, bus.Mention{Key: m.Key, OpenID: m.ID.OpenID, Name: m.Name})
	}

	c.log.Debug("message received",
		"message_id", msg.MessageID,
		"chat_id", msg.ChatID,
		"chat_type", msg.ChatType,
		"message_type", msg.MessageType,
		"preview", Preview(content.Text, 50),
	)

	c.msgBus.PublishInbound(bus.InboundMessage{
		MessageID:   msg.MessageID,
		ChatID:      msg.ChatID,
		ChatType:    msg.ChatType,
		SenderID:    event.Event.Sender.SenderID.OpenID,
		MessageType: msg.MessageType,
		Text:        content.Text,
		ImageKey:    content.ImageKey,
		FileKey:     content.FileKey,
		FileName:    content.FileName,
		Duration:    content.Duration,
		Mentions:    mentions,
	})
}

// --- Outbound delivery ---

// Deliver sends one rendered payload to a chat. Chunked payloads go
// out as sequential messages in order.
func (c *Channel) Deliver(ctx context.Context, chatID string, p render.Payload) error {
	switch p.Kind {
	case render.PayloadCard:
		return c.sendCard(ctx, chatID, p.Card)
	case render.PayloadChunks:
		for _, chunk := range p.Chunks {
			if err := c.sendPost(ctx, chatID, chunk); err != nil {
				return err
			}
		}
		return nil
	default:
		return c.sendPost(ctx, chatID, p.Text)
	}
}

// DeliverUpdate finalizes into an existing placeholder message.
// Only a single text payload can be edited in place (the message type
// is fixed once sent); card and chunked payloads recall the
// placeholder and go out fresh.
func (c *Channel) DeliverUpdate(ctx context.Context, chatID, messageID string, p render.Payload) error {
	if p.Kind == render.PayloadText {
		return c.client.UpdateMessage(ctx, messageID, "post", buildPostContent(p.Text))
	}
	if err := c.client.DeleteMessage(ctx, messageID); err != nil {
		c.log.Debug("placeholder recall failed", "message_id", messageID, "error", err)
	}
	return c.Deliver(ctx, chatID, p)
}

// SendText sends a plain text message outside the renderer path
// (failure replies, side-route notices, the degraded fallback after a
// rejected rich payload). No markdown wrapping is applied.
func (c *Channel) SendText(ctx context.Context, chatID, text string) error {
	if text == "" {
		return nil
	}
	_, err := c.client.SendMessage(ctx, resolveReceiveIDType(chatID), chatID, "text", buildTextContent(text))
	if err != nil {
		return fmt.Errorf("feishu send text: %w", err)
	}
	return nil
}

// SendImage uploads image bytes and sends them as an image message.
func (c *Channel) SendImage(ctx context.Context, chatID string, data io.Reader) error {
	imageKey, err := c.client.UploadImage(ctx, data)
	if err != nil {
		return fmt.Errorf("feishu send image: %w", err)
	}
	content, _ := json.Marshal(map[string]string{"image_key": imageKey})
	_, err = c.client.SendMessage(ctx, resolveReceiveIDType(chatID), chatID, "image", string(content))
	if err != nil {
		return fmt.Errorf("feishu send image: %w", err)
	}
	return nil
}

// SendFile uploads bytes and sends them as a file attachment.
func (c *Channel) SendFile(ctx context.Context, chatID, fileName string, data io.Reader) error {
	fileKey, err := c.client.UploadFile(ctx, data, fileName, "stream", 0)
	if err != nil {
		return fmt.Errorf("feishu send file: %w", err)
	}
	content, _ := json.Marshal(map[string]string{"file_key": fileKey})
	_, err = c.client.SendMessage(ctx, resolveReceiveIDType(chatID), chatID, "file", string(content))
	if err != nil {
		return fmt.Errorf("feishu send file: %w", err)
	}
	return nil
}

// DownloadResource fetches inbound media bytes by message and key.
func (c *Channel) DownloadResource(ctx context.Context, messageID, fileKey, resourceType string) ([]byte, string, error) {
	return c.client.DownloadMessageResource(ctx, messageID, fileKey, resourceType)
}

// --- progress.Notifier ---

// SendPlaceholder posts the thinking indicator and returns its id.
func (c *Channel) SendPlaceholder(ctx context.Context, chatID string) (string, error) {
	resp, err := c.client.SendMessage(ctx, resolveReceiveIDType(chatID), chatID, "post", buildPostContent(thinkingText))
	if err != nil {
		return "", fmt.Errorf("feishu send placeholder: %w", err)
	}
	return resp.MessageID, nil
}

// UpdatePlaceholder pushes accumulated streaming text into the
// placeholder, truncated to a display-width budget.
func (c *Channel) UpdatePlaceholder(ctx context.Context, messageID, text string) error {
	preview := runewidth.Truncate(text, streamPreviewWidth, "…")
	return c.client.UpdateMessage(ctx, messageID, "post", buildPostContent(preview))
}

// --- Send helpers ---

func (c *Channel) sendPost(ctx context.Context, chatID, text string) error {
	if text == "" {
		return nil
	}
	_, err := c.client.SendMessage(ctx, resolveReceiveIDType(chatID), chatID, "post", buildPostContent(text))
	if err != nil {
		return fmt.Errorf("feishu send post: %w", err)
	}
	return nil
}

func (c *Channel) sendCard(ctx context.Context, chatID string, card *render.Card) error {
	content, err := json.Marshal(buildCardContent(card))
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}
	_, err = c.client.SendMessage(ctx, resolveReceiveIDType(chatID), chatID, "interactive", string(content))
	if err != nil {
		return fmt.Errorf("feishu send card: %w", err)
	}
	return nil
}

// --- Content builders ---

// buildPostContent wraps Markdown text in a rich-text post body.
func buildTextContent(text string) string {
	data, _ := json.Marshal(map[string]string{"text": text})
	return string(data)
}

func buildPostContent(text string) string {
	content := map[string]interface{}{
		"zh_cn": map[string]interface{}{
			"content": [][]map[string]interface{}{
				{
					{
						"tag":  "md",
						"text": text,
					},
				},
			},
		},
	}
	data, _ := json.Marshal(content)
	return string(data)
}

// buildCardContent converts a rendered card into the interactive card
// schema: markdown blocks plus structured table elements.
func buildCardContent(card *render.Card) map[string]interface{} {
	elements := make([]map[string]interface{}, 0, len(card.Elements))
	for _, el := range card.Elements {
		if el.Table != nil {
			elements = append(elements, buildTableElement(el.Table))
			continue
		}
		if el.Markdown != "" {
			elements = append(elements, map[string]interface{}{
				"tag":     "markdown",
				"content": el.Markdown,
			})
		}
	}

	content := map[string]interface{}{
		"schema": "2.0",
		"config": map[string]interface{}{
			"wide_screen_mode": true,
		},
		"body": map[string]interface{}{
			"elements": elements,
		},
	}
	if card.Title != "" {
		content["header"] = map[string]interface{}{
			"title": map[string]interface{}{
				"tag":     "plain_text",
				"content": card.Title,
			},
			"template": "blue",
		}
	}
	return content
}

func buildTableElement(t *render.Table) map[string]interface{} {
	columns := make([]map[string]interface{}, len(t.Columns))
	for i, col := range t.Columns {
		columns[i] = map[string]interface{}{
			"name":         col.Name,
			"display_name": col.Header,
			"data_type":    "text",
		}
	}
	rows := make([]map[string]string, len(t.Rows))
	copy(rows, t.Rows)

	pageSize := len(rows)
	if pageSize > tablePageSize {
		pageSize = tablePageSize
	}
	if pageSize == 0 {
		pageSize = 1
	}
	return map[string]interface{}{
		"tag":       "table",
		"page_size": pageSize,
		"columns":   columns,
		"rows":      rows,
	}
}

// --- Misc ---

func resolveReceiveIDType(id string) string {
	if strings.HasPrefix(id, "ou_") {
		return "open_id"
	}
	if strings.HasPrefix(id, "on_") {
		return "union_id"
	}
	return "chat_id"
}

// Preview truncates text to a display width for log lines, collapsing
// newlines.
func Preview(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, width, "…")
}
