// Package orchestrator runs the per-message pipeline: admission,
// classification, side routes, the gateway invocation with progress,
// rendering, and delivery. Every failure is converted into at most one
// user-visible failure reply; nothing propagates into the dispatch
// loop.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-runewidth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/larkbridge/internal/bus"
	"github.com/nextlevelbuilder/larkbridge/internal/config"
	"github.com/nextlevelbuilder/larkbridge/internal/dedup"
	"github.com/nextlevelbuilder/larkbridge/internal/gateway"
	"github.com/nextlevelbuilder/larkbridge/internal/progress"
	"github.com/nextlevelbuilder/larkbridge/internal/render"
	"github.com/nextlevelbuilder/larkbridge/internal/router"
	"github.com/nextlevelbuilder/larkbridge/internal/sessions"
	"github.com/nextlevelbuilder/larkbridge/internal/tracing"
)

const (
	// failureMarker prefixes every user-visible failure reply.
	failureMarker = "⚠️ "

	// failureMessageWidth caps how much of a backend error message is
	// surfaced to the user.
	failureMessageWidth = 300

	genericFailureText = failureMarker + "处理失败，请稍后重试。"
	audioFailureText   = failureMarker + "语音识别失败，请用文字重试。"
	emptyReplyText     = failureMarker + "代理未返回内容。"
)

// Channel is the outbound platform surface the pipeline needs.
type Channel interface {
	progress.Notifier
	Deliver(ctx context.Context, chatID string, p render.Payload) error
	DeliverUpdate(ctx context.Context, chatID, messageID string, p render.Payload) error
	SendText(ctx context.Context, chatID, text string) error
	SendImage(ctx context.Context, chatID string, data io.Reader) error
	SendFile(ctx context.Context, chatID, fileName string, data io.Reader) error
	DownloadResource(ctx context.Context, messageID, fileKey, resourceType string) ([]byte, string, error)
}

// Invoker runs one agent request against the gateway.
type Invoker interface {
	Invoke(ctx context.Context, req gateway.InvokeRequest) (<-chan gateway.StreamEvent, error)
}

// LinkParser digests one URL into Markdown.
type LinkParser interface {
	Parse(ctx context.Context, url string) (string, error)
}

// ImageGenerator renders a prompt into image bytes.
type ImageGenerator interface {
	Enabled() bool
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Transcriber converts audio bytes to text.
type Transcriber interface {
	Enabled() bool
	Transcribe(ctx context.Context, audio []byte, fileName string) (string, error)
}

// Orchestrator consumes the inbound bus and drives one pipeline run
// per admitted message.
type Orchestrator struct {
	cfg     atomic.Pointer[config.Config]
	ledger  *dedup.Ledger
	channel Channel
	gw      Invoker
	links   LinkParser
	images  ImageGenerator
	stt     Transcriber
	botID   func() string
	tracer  trace.Tracer
	log     *slog.Logger
}

// New wires the pipeline. botID returns the platform identity of the
// bot, resolved lazily because it is probed at channel start.
func New(cfg *config.Config, ledger *dedup.Ledger, channel Channel, gw Invoker, links LinkParser, images ImageGenerator, stt Transcriber, botID func() string) *Orchestrator {
	o := &Orchestrator{
		ledger:  ledger,
		channel: channel,
		gw:      gw,
		links:   links,
		images:  images,
		stt:     stt,
		botID:   botID,
		tracer:  tracing.Tracer("orchestrator"),
		log:     slog.Default().With("component", "orchestrator"),
	}
	o.cfg.Store(cfg)
	return o
}

// UpdateConfig swaps in a new configuration. In-flight runs keep the
// snapshot they started with.
func (o *Orchestrator) UpdateConfig(cfg *config.Config) {
	o.cfg.Store(cfg)
	o.log.Info("configuration updated")
}

// maxConcurrentRuns bounds in-flight pipeline goroutines so an event
// burst cannot open unbounded gateway connections.
const maxConcurrentRuns = 32

// Run consumes the bus until ctx ends. Each message gets its own
// goroutine; runs for different chats proceed concurrently up to
// maxConcurrentRuns.
func (o *Orchestrator) Run(ctx context.Context, msgBus *bus.MessageBus) {
	sem := semaphore.NewWeighted(maxConcurrentRuns)
	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer sem.Release(1)
			o.Process(ctx, msg)
		}()
	}
}

// Process runs the pipeline for one inbound message.
func (o *Orchestrator) Process(ctx context.Context, msg bus.InboundMessage) {
	cfg := o.cfg.Load()

	if o.ledger.Admit(msg.MessageID, admissionContent(msg)) {
		o.log.Debug("duplicate suppressed", "message_id", msg.MessageID)
		return
	}
	defer o.ledger.Done(msg.MessageID)

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("chat.id", msg.ChatID),
		attribute.String("chat.type", msg.ChatType),
		attribute.String("message.type", msg.MessageType),
	))
	defer span.End()

	text, ok := o.resolveText(ctx, msg)
	if !ok {
		return
	}

	route := o.classify(cfg, text, msg)
	span.SetAttributes(attribute.String("route.kind", string(route.Kind)))
	if route.Kind == router.KindIgnore {
		return
	}

	o.log.Info("message admitted",
		"message_id", msg.MessageID,
		"chat_id", msg.ChatID,
		"route", string(route.Kind),
	)

	switch route.Kind {
	case router.KindLink:
		o.handleLinks(ctx, cfg, msg.ChatID, route.URLs)
		return
	case router.KindConversation:
		if prompt, ok := matchPrefix(route.Text, cfg.Router.ImageGenPrefixes); ok {
			o.handleImageGen(ctx, span, msg.ChatID, prompt)
			return
		}
	}

	o.handleAgentRun(ctx, span, cfg, msg, route)
}

// resolveText produces the classifiable text for a message,
// transcribing audio first. Returns ok=false when the message carries
// nothing actionable.
func (o *Orchestrator) resolveText(ctx context.Context, msg bus.InboundMessage) (string, bool) {
	switch msg.MessageType {
	case "audio":
		if o.stt == nil || !o.stt.Enabled() {
			o.log.Debug("audio message ignored, stt not configured", "message_id", msg.MessageID)
			return "", false
		}
		audio, fileName, err := o.channel.DownloadResource(ctx, msg.MessageID, msg.FileKey, "file")
		if err != nil {
			o.log.Warn("audio download failed", "message_id", msg.MessageID, "error", err)
			o.sendBestEffort(ctx, msg.ChatID, audioFailureText)
			return "", false
		}
		text, err := o.stt.Transcribe(ctx, audio, fileName)
		if err != nil {
			o.log.Warn("transcription failed", "message_id", msg.MessageID, "error", err)
			o.sendBestEffort(ctx, msg.ChatID, audioFailureText)
			return "", false
		}
		o.log.Debug("audio transcribed", "message_id", msg.MessageID, "duration_ms", msg.Duration)
		return text, true
	case "text", "post":
		return msg.Text, true
	default:
		// Bare media without text carries no routable intent.
		o.log.Debug("message type ignored", "message_id", msg.MessageID, "message_type", msg.MessageType)
		return "", false
	}
}

func (o *Orchestrator) classify(cfg *config.Config, text string, msg bus.InboundMessage) router.Route {
	var botIDs []string
	if id := o.botID(); id != "" {
		botIDs = []string{id}
	}
	cls := router.New(router.Config{
		BotIDs:         botIDs,
		BotNames:       cfg.Router.BotNames,
		CodePrefixes:   cfg.Router.CodePrefixes,
		SearchPrefixes: cfg.Router.SearchPrefixes,
		LinkPrefixes:   cfg.Router.LinkPrefixes,
		WakeWords:      cfg.Router.WakeWords,
		MentionOnly:    cfg.Router.MentionOnly,
		AutoLinkP2P:    cfg.Router.AutoLinkP2P == nil || *cfg.Router.AutoLinkP2P,
		MaxLinks:       cfg.Router.MaxLinks,
	})

	mentions := make([]router.Mention, 0, len(msg.Mentions))
	for _, m := range msg.Mentions {
		mentions = append(mentions, router.Mention{Key: m.Key, ID: m.OpenID, Name: m.Name})
	}
	return cls.Classify(text, router.ChatType(msg.ChatType), mentions)
}

// handleAgentRun invokes the gateway and delivers the rendered reply.
func (o *Orchestrator) handleAgentRun(ctx context.Context, span trace.Span, cfg *config.Config, msg bus.InboundMessage, route router.Route) {
	message, forceFile := buildAgentMessage(cfg, route)
	agentID := cfg.Gateway.AgentID
	if route.Kind == router.KindCode && cfg.Gateway.CodeAgentID != "" {
		agentID = cfg.Gateway.CodeAgentID
	}
	sessionKey := sessions.Derive(
		agentID,
		msg.ChatID,
		sessions.PeerKindFromChatType(msg.ChatType),
		route.Kind == router.KindCode,
		cfg.Gateway.SessionVersion,
	)
	span.SetAttributes(attribute.String("session.key", sessionKey))

	tracker := progress.NewTracker(progressConfig(cfg), o.channel, msg.ChatID, o.log)
	tracker.Start(ctx)

	timeout := time.Duration(cfg.Gateway.InvokeTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runCtx, invokeSpan := o.tracer.Start(runCtx, "gateway.invoke", trace.WithAttributes(
		attribute.String("agent.id", agentID),
	))
	events, err := o.gw.Invoke(runCtx, gateway.InvokeRequest{
		Message:    message,
		AgentID:    agentID,
		SessionKey: sessionKey,
	})
	if err != nil {
		invokeSpan.RecordError(err)
		invokeSpan.SetStatus(codes.Error, "invoke failed")
		invokeSpan.End()
		tracker.Finish()
		o.sendFailure(ctx, msg.ChatID, err)
		return
	}

	final, err := gateway.Collect(events, tracker.OnDelta)
	if err != nil {
		invokeSpan.RecordError(err)
		invokeSpan.SetStatus(codes.Error, "run failed")
		invokeSpan.End()
		tracker.Finish()
		o.sendFailure(ctx, msg.ChatID, err)
		return
	}
	invokeSpan.End()

	placeholderID := tracker.Finish()
	if final == "" {
		o.sendBestEffort(ctx, msg.ChatID, emptyReplyText)
		return
	}

	o.deliverReply(ctx, cfg, msg.ChatID, placeholderID, final, forceFile)
}

// deliverReply renders the final text and sends it, degrading once to
// a plain-text send if the structured send fails.
func (o *Orchestrator) deliverReply(ctx context.Context, cfg *config.Config, chatID, placeholderID, final string, forceFile bool) {
	payload := render.Render(final, render.Config{
		Mode:      cfg.Render.Mode,
		MaxTables: cfg.Render.MaxTables,
		ChunkSize: cfg.Render.ChunkSize,
		MaxChunks: cfg.Render.MaxChunks,
	})

	fileFallback := cfg.Render.FileFallback == nil || *cfg.Render.FileFallback
	if forceFile || (payload.Oversized && fileFallback) {
		err := o.channel.SendFile(ctx, chatID, "reply.md", bytes.NewReader([]byte(final)))
		if err == nil {
			return
		}
		o.log.Warn("file send failed, falling back to text", "chat_id", chatID, "error", err)
	}
	if payload.Oversized && !fileFallback {
		// Hard-capped delivery: keep the head and mark the cut.
		payload = render.Payload{Kind: render.PayloadText, Text: truncateWidth(final, cfg.Render.ChunkSize) + "\n…（内容过长，已截断）"}
	}

	var err error
	if placeholderID != "" {
		err = o.channel.DeliverUpdate(ctx, chatID, placeholderID, payload)
	} else {
		err = o.channel.Deliver(ctx, chatID, payload)
	}
	if err == nil {
		return
	}

	// One plain-text fallback; a second failure is logged and dropped
	// to avoid error loops.
	o.log.Warn("structured send failed, degrading to plain text", "chat_id", chatID, "error", err)
	if err := o.channel.SendText(ctx, chatID, final); err != nil {
		o.log.Error("plain-text fallback failed, reply dropped", "chat_id", chatID, "error", err)
	}
}

// handleLinks digests each URL through the external parser and sends
// one rendered reply per link.
func (o *Orchestrator) handleLinks(ctx context.Context, cfg *config.Config, chatID string, urls []string) {
	for _, u := range urls {
		digest, err := o.links.Parse(ctx, u)
		if err != nil {
			o.log.Warn("link parse failed", "url", u, "error", err)
			o.sendBestEffort(ctx, chatID, fmt.Sprintf("%s链接解析失败：%s", failureMarker, u))
			continue
		}
		o.deliverReply(ctx, cfg, chatID, "", digest, false)
	}
}

// handleImageGen runs the draw side route.
func (o *Orchestrator) handleImageGen(ctx context.Context, span trace.Span, chatID, prompt string) {
	span.SetAttributes(attribute.String("route.side", "image_gen"))
	if o.images == nil || !o.images.Enabled() {
		o.sendBestEffort(ctx, chatID, failureMarker+"图片生成未配置。")
		return
	}
	data, err := o.images.Generate(ctx, prompt)
	if err != nil {
		o.log.Warn("image generation failed", "error", err)
		o.sendBestEffort(ctx, chatID, failureMarker+"图片生成失败，请稍后重试。")
		return
	}
	if err := o.channel.SendImage(ctx, chatID, bytes.NewReader(data)); err != nil {
		o.log.Error("image send failed", "chat_id", chatID, "error", err)
	}
}

// sendFailure converts an invocation error into one user-visible
// reply. Backend-reported run failures surface their message verbatim
// (truncated); everything else gets the generic text.
func (o *Orchestrator) sendFailure(ctx context.Context, chatID string, err error) {
	var runErr *gateway.RunFailedError
	if errors.As(err, &runErr) {
		o.sendBestEffort(ctx, chatID, failureMarker+truncateWidth(runErr.Message, failureMessageWidth))
		return
	}
	o.log.Warn("agent run failed", "chat_id", chatID, "error", err)
	o.sendBestEffort(ctx, chatID, genericFailureText)
}

func (o *Orchestrator) sendBestEffort(ctx context.Context, chatID, text string) {
	if err := o.channel.SendText(ctx, chatID, text); err != nil {
		o.log.Error("failure reply send failed", "chat_id", chatID, "error", err)
	}
}

// buildAgentMessage assembles the gateway message for a route and
// reports whether the reply was requested as a file.
func buildAgentMessage(cfg *config.Config, route router.Route) (message string, forceFile bool) {
	switch route.Kind {
	case router.KindCode:
		message = route.Task
		if route.ProjectDir != "" {
			message = fmt.Sprintf("项目目录: %s\n%s", route.ProjectDir, route.Task)
		}
	case router.KindSearch:
		message = route.Query
	default:
		message = route.Text
	}
	if stripped, ok := matchPrefix(message, cfg.Router.FileSendPrefixes); ok {
		return stripped, true
	}
	return message, false
}

// admissionContent is the content keyed by the ledger's near-duplicate
// fingerprint. Media messages carry a constant placeholder text, so the
// resource key disambiguates distinct uploads.
func admissionContent(msg bus.InboundMessage) string {
	if msg.FileKey != "" {
		return msg.Text + "\n" + msg.FileKey
	}
	if msg.ImageKey != "" {
		return msg.Text + "\n" + msg.ImageKey
	}
	return msg.Text
}

// matchPrefix strips the first matching prefix case-insensitively.
func matchPrefix(text string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if len(text) >= len(p) && strings.EqualFold(text[:len(p)], p) {
			return strings.TrimSpace(text[len(p):]), true
		}
	}
	return text, false
}

func progressConfig(cfg *config.Config) progress.Config {
	return progress.Config{
		Enabled:       cfg.Progress.Enabled == nil || *cfg.Progress.Enabled,
		Immediate:     cfg.Progress.Immediate,
		Delay:         time.Duration(cfg.Progress.DelayMs) * time.Millisecond,
		UpdateEvery:   time.Duration(cfg.Progress.UpdateEveryMs) * time.Millisecond,
		UpdateInPlace: cfg.Progress.UpdateInPlace == nil || *cfg.Progress.UpdateInPlace,
	}
}

// truncateWidth caps text at a display width, appending an ellipsis
// when cut.
func truncateWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
