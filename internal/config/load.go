package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("LARKBRIDGE_APP_ID", &c.Feishu.AppID)
	envStr("LARKBRIDGE_APP_SECRET", &c.Feishu.AppSecret)
	envStr("LARKBRIDGE_DOMAIN", &c.Feishu.Domain)
	envStr("LARKBRIDGE_VERIFICATION_TOKEN", &c.Feishu.VerificationToken)
	envStr("LARKBRIDGE_ENCRYPT_KEY", &c.Feishu.EncryptKey)
	envStr("LARKBRIDGE_GATEWAY_URL", &c.Gateway.URL)
	envStr("LARKBRIDGE_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("LARKBRIDGE_AGENT_ID", &c.Gateway.AgentID)
	envStr("LARKBRIDGE_SESSION_VERSION", &c.Gateway.SessionVersion)
	envStr("LARKBRIDGE_IMAGE_GEN_API_KEY", &c.ImageGen.APIKey)
	envStr("LARKBRIDGE_STT_API_KEY", &c.STT.APIKey)
	envStr("LARKBRIDGE_OTLP_ENDPOINT", &c.Tracing.Endpoint)
}

// Validate checks the settings required to start the bridge.
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return fmt.Errorf("feishu app_id and app_secret are required")
	}
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway url is required")
	}
	switch c.Feishu.ConnectionMode {
	case "", "websocket", "webhook":
	default:
		return fmt.Errorf("unknown connection_mode %q", c.Feishu.ConnectionMode)
	}
	return nil
}
