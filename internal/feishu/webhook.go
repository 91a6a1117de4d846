package feishu

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

const webhookBodyLimit = 1 << 20 // 1MB

// NewWebhookHandler returns the HTTP handler for event callbacks:
// answers url_verification challenges, checks the verification token,
// decrypts when an encrypt key is configured, and hands message
// events to onEvent. ratePerMinute <= 0 disables rate limiting.
func NewWebhookHandler(verificationToken, encryptKey string, ratePerMinute int, onEvent func(*MessageEvent)) http.HandlerFunc {
	log := slog.Default().With("component", "feishu-webhook")

	var limiter *rate.Limiter
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if limiter != nil && !limiter.Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}

		// Encrypted payloads arrive as {"encrypt": "<base64>"}.
		var encrypted struct {
			Encrypt string `json:"encrypt"`
		}
		if err := json.Unmarshal(body, &encrypted); err == nil && encrypted.Encrypt != "" {
			if encryptKey == "" {
				log.Warn("encrypted event received but no encrypt key configured")
				http.Error(w, "cannot decrypt", http.StatusBadRequest)
				return
			}
			body, err = decryptEvent(encryptKey, encrypted.Encrypt)
			if err != nil {
				log.Warn("event decrypt failed", "error", err)
				http.Error(w, "decrypt failed", http.StatusBadRequest)
				return
			}
		}

		// url_verification is the subscription handshake.
		var probe struct {
			Type      string `json:"type"`
			Token     string `json:"token"`
			Challenge string `json:"challenge"`
		}
		if err := json.Unmarshal(body, &probe); err == nil && probe.Type == "url_verification" {
			if verificationToken != "" && probe.Token != verificationToken {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"challenge": probe.Challenge})
			return
		}

		var event MessageEvent
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "bad event", http.StatusBadRequest)
			return
		}
		if verificationToken != "" && event.Header.Token != verificationToken {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if event.Header.EventType == EventTypeMessageReceive {
			// Ack fast; processing happens off the request goroutine.
			go onEvent(&event)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))
	}
}

// decryptEvent decodes an AES-256-CBC encrypted event body. The key is
// sha256(encryptKey); the IV is the first block of the ciphertext.
func decryptEvent(encryptKey, data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	// The IV consumes the first block; at least one ciphertext block
	// must follow it.
	if len(raw) <= aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d invalid", len(raw))
	}

	key := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	// Strip PKCS#7 padding.
	pad := int(plain[len(plain)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(plain) {
		return nil, fmt.Errorf("bad padding")
	}
	return plain[:len(plain)-pad], nil
}
