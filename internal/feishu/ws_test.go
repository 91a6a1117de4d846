package feishu

import (
	"testing"
	"time"
)

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		name    string
		prev    time.Duration
		session time.Duration
		want    time.Duration
	}{
		{"first failure", 0, time.Second, wsBackoffInitial},
		{"escalates", time.Second, time.Second, 2 * time.Second},
		{"caps at max", 16 * time.Second, time.Second, wsBackoffMax},
		{"stays at max", wsBackoffMax, time.Second, wsBackoffMax},
		{"stable session resets", wsBackoffMax, 2 * time.Minute, wsBackoffInitial},
		{"short session keeps escalating", 4 * time.Second, 10 * time.Second, 8 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconnectDelay(tt.prev, tt.session); got != tt.want {
				t.Errorf("reconnectDelay(%v, %v) = %v, want %v", tt.prev, tt.session, got, tt.want)
			}
		})
	}
}
