package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "voice.opus" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fake-audio" {
			t.Errorf("audio bytes = %q", data)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "明天的天气怎么样"})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "whisper-1"})
	got, err := c.Transcribe(context.Background(), []byte("fake-audio"), "voice.opus")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "明天的天气怎么样" {
		t.Errorf("text = %q", got)
	}
}

func TestTranscribe_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported format", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	_, err := c.Transcribe(context.Background(), []byte("x"), "")
	if err == nil || !strings.Contains(err.Error(), "status 422") {
		t.Errorf("err = %v", err)
	}
}

func TestTranscribe_NotConfigured(t *testing.T) {
	c := New(Config{})
	if _, err := c.Transcribe(context.Background(), nil, ""); err == nil {
		t.Error("expected error when not configured")
	}
}
