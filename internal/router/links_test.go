package router

import (
	"reflect"
	"testing"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "order dedup and trailing period",
			text: "see https://a.com/1 and https://a.com/1 again, also https://b.com/x.",
			max:  3,
			want: []string{"https://a.com/1", "https://b.com/x"},
		},
		{
			name: "cap applies after dedup",
			text: "https://a.com https://b.com https://c.com",
			max:  2,
			want: []string{"https://a.com", "https://b.com"},
		},
		{
			name: "no urls",
			text: "just words here",
			max:  3,
			want: nil,
		},
		{
			name: "cjk punctuation stripped",
			text: "看这个 https://example.com/p。",
			max:  3,
			want: []string{"https://example.com/p"},
		},
		{
			name: "query strings survive",
			text: "https://a.com/watch?v=abc&t=10s works",
			max:  3,
			want: []string{"https://a.com/watch?v=abc&t=10s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.text, tt.max)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractURLs(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
