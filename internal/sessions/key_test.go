package sessions

import "testing"

func TestDerive(t *testing.T) {
	tests := []struct {
		name    string
		agentID string
		chatID  string
		kind    PeerKind
		code    bool
		version string
		want    string
	}{
		{
			name:    "direct conversation",
			agentID: "default", chatID: "oc_123", kind: PeerDirect,
			want: "agent:default:feishu:direct:oc_123",
		},
		{
			name:    "group conversation",
			agentID: "default", chatID: "oc_456", kind: PeerGroup,
			want: "agent:default:feishu:group:oc_456",
		},
		{
			name:    "code namespace",
			agentID: "coder", chatID: "oc_123", kind: PeerDirect, code: true,
			want: "agent:coder:feishu:code:direct:oc_123",
		},
		{
			name:    "version suffix",
			agentID: "default", chatID: "oc_123", kind: PeerDirect, version: "2",
			want: "agent:default:feishu:direct:oc_123:v2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.agentID, tt.chatID, tt.kind, tt.code, tt.version)
			if got != tt.want {
				t.Errorf("Derive() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDerive_CodeAndConversationDistinct(t *testing.T) {
	conv := Derive("default", "oc_123", PeerDirect, false, "")
	code := Derive("default", "oc_123", PeerDirect, true, "")
	if conv == code {
		t.Errorf("code and conversation keys must differ, both %q", conv)
	}
}

func TestParse(t *testing.T) {
	agentID, rest := Parse("agent:default:feishu:direct:oc_123")
	if agentID != "default" || rest != "feishu:direct:oc_123" {
		t.Errorf("Parse() = (%q, %q)", agentID, rest)
	}
	if id, r := Parse("not-a-key"); id != "" || r != "" {
		t.Errorf("Parse(invalid) = (%q, %q), want empty", id, r)
	}
}

func TestIsCodeSession(t *testing.T) {
	if !IsCodeSession(Derive("default", "oc_1", PeerGroup, true, "")) {
		t.Error("code key not detected")
	}
	if IsCodeSession(Derive("default", "oc_1", PeerGroup, false, "")) {
		t.Error("conversation key misdetected as code")
	}
}
