package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerate(t *testing.T) {
	imageBytes := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("auth header = %q", got)
		}
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["prompt"] != "a red panda" {
			t.Errorf("prompt = %v", req["prompt"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString(imageBytes)},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, APIKey: "key-1", Model: "img-model"})
	got, err := c.Generate(context.Background(), "a red panda")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(got) != string(imageBytes) {
		t.Errorf("bytes mismatch: %v", got)
	}
}

func TestGenerate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "prompt rejected"},
		})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.Generate(context.Background(), "x")
	if err == nil || err.Error() != "image generation failed: prompt rejected" {
		t.Errorf("err = %v", err)
	}
}

func TestGenerate_NotConfigured(t *testing.T) {
	c := New(Config{})
	if c.Enabled() {
		t.Error("Enabled() = true with empty endpoint")
	}
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Error("expected error when not configured")
	}
}
