package feishu

import "testing"

func TestParseContent(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		messageType string
		want        Content
	}{
		{
			name: "text",
			raw:  `{"text":"hello world"}`, messageType: "text",
			want: Content{Text: "hello world"},
		},
		{
			name: "text with invalid json falls back to raw",
			raw:  `not json`, messageType: "text",
			want: Content{Text: "not json"},
		},
		{
			name: "image carries key",
			raw:  `{"image_key":"img_v2_abc"}`, messageType: "image",
			want: Content{Text: "[image]", ImageKey: "img_v2_abc"},
		},
		{
			name: "audio carries key and duration",
			raw:  `{"file_key":"file_v3_x","duration":2150}`, messageType: "audio",
			want: Content{Text: "[audio]", FileKey: "file_v3_x", Duration: 2150},
		},
		{
			name: "file carries key and name",
			raw:  `{"file_key":"file_v3_y","file_name":"report.pdf"}`, messageType: "file",
			want: Content{Text: "[file: report.pdf]", FileKey: "file_v3_y", FileName: "report.pdf"},
		},
		{
			name: "unknown type",
			raw:  `{}`, messageType: "sticker",
			want: Content{Text: "[sticker message]"},
		},
		{
			name: "empty",
			raw:  "", messageType: "text",
			want: Content{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseContent(tt.raw, tt.messageType)
			if got != tt.want {
				t.Errorf("ParseContent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseContent_Post(t *testing.T) {
	raw := `{"zh_cn":{"title":"","content":[` +
		`[{"tag":"text","text":"first line "},{"tag":"a","text":"docs","href":"https://example.com"}],` +
		`[{"tag":"at","user_name":"alice"},{"tag":"text","text":" please review"}]` +
		`]}}`
	got := ParseContent(raw, "post")
	want := "first line [docs](https://example.com)\n@alice please review"
	if got.Text != want {
		t.Errorf("post text = %q, want %q", got.Text, want)
	}
}
