// Package config holds the larkbridge configuration: a JSON5 file overlaid
// with LARKBRIDGE_* environment variables. Only a subset of settings is
// dynamic (see Watch); credentials and connection modes require a restart.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config is the root configuration object.
type Config struct {
	Feishu    FeishuConfig    `json:"feishu"`
	Gateway   GatewayConfig   `json:"gateway"`
	Router    RouterConfig    `json:"router"`
	Render    RenderConfig    `json:"render"`
	Progress  ProgressConfig  `json:"progress"`
	LinkParse LinkParseConfig `json:"link_parse"`
	ImageGen  ImageGenConfig  `json:"image_gen"`
	STT       STTConfig       `json:"stt"`
	Tracing   TracingConfig   `json:"tracing"`
}

// FeishuConfig configures the Lark/Feishu side of the bridge.
type FeishuConfig struct {
	AppID             string `json:"app_id"`
	AppSecret         string `json:"app_secret"`
	Domain            string `json:"domain,omitempty"`             // "lark" (default), "feishu", or full URL
	ConnectionMode    string `json:"connection_mode,omitempty"`    // "websocket" (default), "webhook"
	WebhookPort       int    `json:"webhook_port,omitempty"`       // default 3000
	WebhookPath       string `json:"webhook_path,omitempty"`       // default "/feishu/events"
	VerificationToken string `json:"verification_token,omitempty"` // webhook mode only
	EncryptKey        string `json:"encrypt_key,omitempty"`        // webhook payload decryption, optional
	WebhookRateRPM    int    `json:"webhook_rate_rpm,omitempty"`   // webhook rate limit, default 60
}

// GatewayConfig configures the backend agent gateway connection.
type GatewayConfig struct {
	URL            string `json:"url"`                          // e.g. "ws://127.0.0.1:18790/ws"
	Token          string `json:"token,omitempty"`              // connect auth token
	AgentID        string `json:"agent_id,omitempty"`           // default "default"
	CodeAgentID    string `json:"code_agent_id,omitempty"`      // agent for the code route (default AgentID)
	Locale         string `json:"locale,omitempty"`             // default "zh-CN"
	SessionVersion string `json:"session_version,omitempty"`    // session key suffix for cache busting
	InvokeTimeout  int    `json:"invoke_timeout_sec,omitempty"` // default 600
}

// RouterConfig drives message classification.
type RouterConfig struct {
	BotNames         []string `json:"bot_names,omitempty"`     // display names matched as explicit mentions
	CodePrefixes     []string `json:"code_prefixes,omitempty"` // default ["coding:", "code:"]
	SearchPrefixes   []string `json:"search_prefixes,omitempty"`
	LinkPrefixes     []string `json:"link_prefixes,omitempty"`
	WakeWords        []string `json:"wake_words,omitempty"` // line-start wake patterns for groups
	MentionOnly      bool     `json:"mention_only,omitempty"`
	AutoLinkP2P      *bool    `json:"auto_link_p2p,omitempty"`      // default true
	MaxLinks         int      `json:"max_links,omitempty"`          // default 3
	ImageGenPrefixes []string `json:"image_gen_prefixes,omitempty"` // e.g. ["draw:", "画图"]
	FileSendPrefixes []string `json:"file_send_prefixes,omitempty"` // e.g. ["file:"]
}

// RenderConfig drives reply rendering.
type RenderConfig struct {
	Mode         string `json:"mode,omitempty"`          // "auto" (default), "text", "card", "post"
	MaxTables    int    `json:"max_tables,omitempty"`    // tables converted per message, default 3
	ChunkSize    int    `json:"chunk_size,omitempty"`    // default 4000
	MaxChunks    int    `json:"max_chunks,omitempty"`    // default 8
	FileFallback *bool  `json:"file_fallback,omitempty"` // send oversized replies as a file, default true
}

// ProgressConfig drives the thinking placeholder.
type ProgressConfig struct {
	Enabled       *bool `json:"enabled,omitempty"`         // default true
	Immediate     bool  `json:"immediate,omitempty"`       // show placeholder without delay
	DelayMs       int   `json:"delay_ms,omitempty"`        // default 2500
	UpdateEveryMs int   `json:"update_every_ms,omitempty"` // min interval for live updates, default 1500
	UpdateInPlace *bool `json:"update_in_place,omitempty"` // finalize by editing placeholder, default true
}

// LinkParseConfig wraps the external link-parser command.
type LinkParseConfig struct {
	Command    []string `json:"command,omitempty"` // argv; URL appended, default ["parse-link"]
	MaxChars   int      `json:"max_chars,omitempty"`
	TimeoutSec int      `json:"timeout_sec,omitempty"` // default 180
}

// ImageGenConfig wraps the image-generation HTTP endpoint.
type ImageGenConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
}

// STTConfig wraps the speech-to-text HTTP endpoint for audio messages.
type STTConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
}

// TracingConfig enables OTLP span export for pipeline runs.
type TracingConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // "localhost:4317" (grpc) or "localhost:4318" (http)
	Protocol string `json:"protocol,omitempty"` // "http" (default) or "grpc"
	Insecure bool   `json:"insecure,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	yes := true
	return &Config{
		Feishu: FeishuConfig{
			Domain:         "lark",
			ConnectionMode: "websocket",
			WebhookPort:    3000,
			WebhookPath:    "/feishu/events",
			WebhookRateRPM: 60,
		},
		Gateway: GatewayConfig{
			URL:           "ws://127.0.0.1:18790/ws",
			AgentID:       "default",
			Locale:        "zh-CN",
			InvokeTimeout: 600,
		},
		Router: RouterConfig{
			CodePrefixes:   []string{"coding:", "code:", "写代码:"},
			SearchPrefixes: []string{"search:", "搜索:"},
			LinkPrefixes:   []string{"link:", "解析:"},
			AutoLinkP2P:    &yes,
			MaxLinks:       3,
		},
		Render: RenderConfig{
			Mode:         "auto",
			MaxTables:    3,
			ChunkSize:    4000,
			MaxChunks:    8,
			FileFallback: &yes,
		},
		Progress: ProgressConfig{
			Enabled:       &yes,
			DelayMs:       2500,
			UpdateEveryMs: 1500,
			UpdateInPlace: &yes,
		},
		LinkParse: LinkParseConfig{
			Command:    []string{"parse-link"},
			MaxChars:   16000,
			TimeoutSec: 180,
		},
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
