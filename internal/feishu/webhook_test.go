package feishu

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// encryptBody mirrors the platform's AES-256-CBC event encryption:
// key is sha256 of the configured secret, a random IV leads the
// ciphertext, PKCS#7 padding.
func encryptBody(t *testing.T, encryptKey string, plain []byte) string {
	t.Helper()
	key := sha256.Sum256([]byte(encryptKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	raw := make([]byte, aes.BlockSize+len(padded))
	if _, err := rand.Read(raw[:aes.BlockSize]); err != nil {
		t.Fatalf("rand iv: %v", err)
	}
	cipher.NewCBCEncrypter(block, raw[:aes.BlockSize]).CryptBlocks(raw[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestWebhook_URLVerification(t *testing.T) {
	handler := NewWebhookHandler("tok", "", 0, func(*MessageEvent) {
		t.Error("onEvent called for verification request")
	})

	body := `{"type":"url_verification","token":"tok","challenge":"c-123"}`
	req := httptest.NewRequest(http.MethodPost, "/feishu/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["challenge"] != "c-123" {
		t.Errorf("challenge = %q", resp["challenge"])
	}
}

func TestWebhook_VerificationTokenRejected(t *testing.T) {
	handler := NewWebhookHandler("tok", "", 0, func(*MessageEvent) {
		t.Error("onEvent called with wrong token")
	})

	body := `{"type":"url_verification","token":"wrong","challenge":"c"}`
	req := httptest.NewRequest(http.MethodPost, "/feishu/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWebhook_EncryptedVerificationDecrypted(t *testing.T) {
	handler := NewWebhookHandler("tok", "secret-key", 0, func(*MessageEvent) {
		t.Error("onEvent called for verification request")
	})

	inner := `{"type":"url_verification","token":"tok","challenge":"c-enc"}`
	body := fmt.Sprintf(`{"encrypt":%q}`, encryptBody(t, "secret-key", []byte(inner)))
	req := httptest.NewRequest(http.MethodPost, "/feishu/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["challenge"] != "c-enc" {
		t.Errorf("challenge = %q", resp["challenge"])
	}
}

func TestWebhook_TruncatedCiphertextRejected(t *testing.T) {
	handler := NewWebhookHandler("tok", "secret-key", 0, func(*MessageEvent) {
		t.Error("onEvent called for rejected payload")
	})

	// IV only, no ciphertext blocks. Must be rejected, not panic.
	payload := base64.StdEncoding.EncodeToString(make([]byte, aes.BlockSize))
	body := fmt.Sprintf(`{"encrypt":%q}`, payload)
	req := httptest.NewRequest(http.MethodPost, "/feishu/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhook_MessageEventDispatched(t *testing.T) {
	got := make(chan *MessageEvent, 1)
	handler := NewWebhookHandler("tok", "", 0, func(ev *MessageEvent) {
		got <- ev
	})

	body := `{
		"schema": "2.0",
		"header": {"event_id": "e1", "event_type": "im.message.receive_v1", "token": "tok"},
		"event": {
			"sender": {"sender_id": {"open_id": "ou_alice"}},
			"message": {
				"message_id": "om_1", "chat_id": "oc_1", "chat_type": "p2p",
				"message_type": "text", "content": "{\"text\":\"hi\"}"
			}
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/feishu/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case ev := <-got:
		if ev.Event.Message.MessageID != "om_1" {
			t.Errorf("message_id = %q", ev.Event.Message.MessageID)
		}
		if ev.Event.Sender.SenderID.OpenID != "ou_alice" {
			t.Errorf("sender = %q", ev.Event.Sender.SenderID.OpenID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestWebhook_NonMessageEventIgnored(t *testing.T) {
	handler := NewWebhookHandler("", "", 0, func(*MessageEvent) {
		t.Error("onEvent called for non-message event")
	})

	body := `{"header":{"event_type":"im.chat.updated_v1"},"event":{}}`
	req := httptest.NewRequest(http.MethodPost, "/feishu/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	time.Sleep(20 * time.Millisecond)
}

func TestWebhook_RateLimit(t *testing.T) {
	handler := NewWebhookHandler("", "", 60, func(*MessageEvent) {})

	body := `{"header":{"event_type":"other"},"event":{}}`
	limited := false
	// Burst is the per-minute budget; exhausting it must yield 429.
	for i := 0; i < 70; i++ {
		req := httptest.NewRequest(http.MethodPost, "/feishu/events", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("no request was rate limited")
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	handler := NewWebhookHandler("", "", 0, func(*MessageEvent) {})
	req := httptest.NewRequest(http.MethodGet, "/feishu/events", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
