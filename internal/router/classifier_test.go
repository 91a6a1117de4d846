package router

import (
	"strings"
	"testing"
)

func testClassifier() *Classifier {
	c := New(Config{
		BotIDs:         []string{"ou_bot"},
		BotNames:       []string{"Helper"},
		CodePrefixes:   []string{"coding:", "code:"},
		SearchPrefixes: []string{"search:"},
		LinkPrefixes:   []string{"link:"},
		WakeWords:      []string{"hey helper"},
		AutoLinkP2P:    true,
		MaxLinks:       3,
	})
	c.pathExists = func(p string) bool { return p == "/srv/app" }
	return c
}

func TestClassify_CodeRoutePriority(t *testing.T) {
	c := testClassifier()
	r := c.Classify("coding: fix bug", ChatP2P, nil)
	if r.Kind != KindCode {
		t.Fatalf("Kind = %q, want %q", r.Kind, KindCode)
	}
	if r.Task != "fix bug" {
		t.Errorf("Task = %q, want %q", r.Task, "fix bug")
	}
}

func TestClassify_CodeProjectDir(t *testing.T) {
	c := testClassifier()

	t.Run("explicit dir marker", func(t *testing.T) {
		r := c.Classify("coding: dir: /opt/proj refactor the parser", ChatP2P, nil)
		if r.ProjectDir != "/opt/proj" {
			t.Errorf("ProjectDir = %q, want /opt/proj", r.ProjectDir)
		}
	})

	t.Run("existing path token", func(t *testing.T) {
		r := c.Classify("coding: fix the tests in /srv/app please", ChatP2P, nil)
		if r.ProjectDir != "/srv/app" {
			t.Errorf("ProjectDir = %q, want /srv/app", r.ProjectDir)
		}
	})

	t.Run("no path", func(t *testing.T) {
		r := c.Classify("coding: fix bug", ChatP2P, nil)
		if r.ProjectDir != "" {
			t.Errorf("ProjectDir = %q, want empty", r.ProjectDir)
		}
	})
}

func TestClassify_GroupGating(t *testing.T) {
	c := testClassifier()

	t.Run("no mention no prefix ignored", func(t *testing.T) {
		r := c.Classify("today's weather?", ChatGroup, nil)
		if r.Kind != KindIgnore {
			t.Fatalf("Kind = %q, want ignore", r.Kind)
		}
	})

	t.Run("bot mention by id admits", func(t *testing.T) {
		mentions := []Mention{{Key: "@_user_1", ID: "ou_bot", Name: "Helper"}}
		r := c.Classify("@_user_1 today's weather?", ChatGroup, mentions)
		if r.Kind != KindConversation {
			t.Fatalf("Kind = %q, want conversation", r.Kind)
		}
		if strings.Contains(r.Text, "@_user_1") {
			t.Errorf("mention token not stripped: %q", r.Text)
		}
	})

	t.Run("other user mention does not admit", func(t *testing.T) {
		mentions := []Mention{{Key: "@_user_1", ID: "ou_somebody", Name: "Alice"}}
		r := c.Classify("@_user_1 hello", ChatGroup, mentions)
		if r.Kind != KindIgnore {
			t.Fatalf("Kind = %q, want ignore", r.Kind)
		}
	})

	t.Run("code prefix admits without mention", func(t *testing.T) {
		r := c.Classify("coding: add tests", ChatGroup, nil)
		if r.Kind != KindCode {
			t.Fatalf("Kind = %q, want code", r.Kind)
		}
	})

	t.Run("wake word at line start admits", func(t *testing.T) {
		r := c.Classify("hey helper what's up", ChatGroup, nil)
		if r.Kind != KindConversation {
			t.Fatalf("Kind = %q, want conversation", r.Kind)
		}
	})

	t.Run("mention only mode ignores prefixes", func(t *testing.T) {
		cfg := c.cfg
		cfg.MentionOnly = true
		strict := New(cfg)
		r := strict.Classify("coding: add tests", ChatGroup, nil)
		if r.Kind != KindIgnore {
			t.Fatalf("Kind = %q, want ignore", r.Kind)
		}
	})
}

func TestClassify_LinkRoute(t *testing.T) {
	c := testClassifier()

	t.Run("explicit prefix", func(t *testing.T) {
		r := c.Classify("link: https://example.com/a", ChatGroup, []Mention{{Key: "@_user_1", ID: "ou_bot"}})
		if r.Kind != KindLink {
			t.Fatalf("Kind = %q, want link", r.Kind)
		}
		if len(r.URLs) != 1 || r.URLs[0] != "https://example.com/a" {
			t.Errorf("URLs = %v", r.URLs)
		}
	})

	t.Run("bare url in p2p", func(t *testing.T) {
		r := c.Classify("https://example.com/article 。", ChatP2P, nil)
		if r.Kind != KindLink {
			t.Fatalf("Kind = %q, want link", r.Kind)
		}
	})

	t.Run("url with commentary stays conversation", func(t *testing.T) {
		r := c.Classify("what do you think about https://example.com/article", ChatP2P, nil)
		if r.Kind != KindConversation {
			t.Fatalf("Kind = %q, want conversation", r.Kind)
		}
	})

	t.Run("bare url in group without admission ignored", func(t *testing.T) {
		r := c.Classify("https://example.com/article", ChatGroup, nil)
		if r.Kind != KindIgnore {
			t.Fatalf("Kind = %q, want ignore", r.Kind)
		}
	})
}

func TestClassify_SearchRoute(t *testing.T) {
	c := testClassifier()

	t.Run("explicit prefix", func(t *testing.T) {
		r := c.Classify("search: go 1.25 release notes", ChatP2P, nil)
		if r.Kind != KindSearch {
			t.Fatalf("Kind = %q, want search", r.Kind)
		}
		if r.Query != "go 1.25 release notes" {
			t.Errorf("Query = %q", r.Query)
		}
	})

	t.Run("intent heuristic forces directive", func(t *testing.T) {
		r := c.Classify("please research the latest otel spec", ChatP2P, nil)
		if r.Kind != KindSearch {
			t.Fatalf("Kind = %q, want search", r.Kind)
		}
		if !strings.HasPrefix(r.Query, searchDirective) {
			t.Errorf("Query missing directive prefix: %q", r.Query)
		}
	})

	t.Run("code beats search", func(t *testing.T) {
		r := c.Classify("coding: research why the test fails", ChatP2P, nil)
		if r.Kind != KindCode {
			t.Fatalf("Kind = %q, want code", r.Kind)
		}
	})
}

func TestClassify_EmptyAfterGating(t *testing.T) {
	c := testClassifier()
	mentions := []Mention{{Key: "@_user_1", ID: "ou_bot"}}
	r := c.Classify("@_user_1   ", ChatGroup, mentions)
	if r.Kind != KindIgnore {
		t.Fatalf("Kind = %q, want ignore", r.Kind)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := testClassifier()
	first := c.Classify("coding: fix bug in /srv/app", ChatP2P, nil)
	for i := 0; i < 5; i++ {
		got := c.Classify("coding: fix bug in /srv/app", ChatP2P, nil)
		if got.Kind != first.Kind || got.Task != first.Task || got.ProjectDir != first.ProjectDir {
			t.Fatalf("classification unstable on call %d: %+v vs %+v", i, got, first)
		}
	}
}
