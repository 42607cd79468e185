package main

import (
	"flag"
	"reflect"
	"testing"

	"github.com/convault/convault/internal/vault"
)

func TestNormalizeArgs(t *testing.T) {
	newFS := func() *flag.FlagSet {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.Bool("json", false, "")
		fs.String("f", "", "")
		fs.Int("limit", 0, "")
		return fs
	}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "flags already first",
			args: []string{"--json", "chat-42"},
			want: []string{"--json", "chat-42"},
		},
		{
			name: "trailing bool flag moves forward",
			args: []string{"chat-42", "--json"},
			want: []string{"--json", "chat-42"},
		},
		{
			name: "value flag keeps its value",
			args: []string{"chat-42", "-f", "body.json"},
			want: []string{"-f", "body.json", "chat-42"},
		},
		{
			name: "equals form",
			args: []string{"chat-42", "--limit=5"},
			want: []string{"--limit=5", "chat-42"},
		},
		{
			name: "double dash stops processing",
			args: []string{"--json", "--", "--not-a-flag"},
			want: []string{"--json", "--not-a-flag"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeArgs(newFS(), tt.args)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("normalizeArgs(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

func TestExtractProfileFlag(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantProfile string
		wantRest    []string
	}{
		{"no profile", []string{"list"}, "", []string{"list"}},
		{"short flag", []string{"-p", "work", "list"}, "work", []string{"list"}},
		{"long flag", []string{"--profile", "work", "sync"}, "work", []string{"sync"}},
		{"short equals", []string{"-p=work", "list"}, "work", []string{"list"}},
		{"long equals", []string{"--profile=work"}, "work", nil},
		{"flag after command", []string{"list", "-p", "work"}, "work", []string{"list"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, rest := extractProfileFlag(tt.args)
			if profile != tt.wantProfile {
				t.Errorf("profile = %q, want %q", profile, tt.wantProfile)
			}
			if !reflect.DeepEqual(rest, tt.wantRest) {
				t.Errorf("rest = %v, want %v", rest, tt.wantRest)
			}
		})
	}
}

func TestResolveConversation(t *testing.T) {
	metas := []vault.Meta{
		{ID: "chat-aaaa-1111", Title: "Budget review"},
		{ID: "chat-aaaa-2222", Title: "Trip planning"},
		{ID: "note-bbbb-3333", Title: "Trip planning"},
	}

	t.Run("exact id", func(t *testing.T) {
		meta, errMsg, _ := ResolveConversation("chat-aaaa-1111", metas)
		if errMsg != "" || meta.ID != "chat-aaaa-1111" {
			t.Fatalf("got %+v, %q", meta, errMsg)
		}
	})

	t.Run("unique prefix", func(t *testing.T) {
		meta, errMsg, _ := ResolveConversation("note", metas)
		if errMsg != "" || meta.ID != "note-bbbb-3333" {
			t.Fatalf("got %+v, %q", meta, errMsg)
		}
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, errMsg, code := ResolveConversation("chat-aaaa", metas)
		if code != ErrCodeAmbiguous {
			t.Fatalf("expected AMBIGUOUS, got %q (%s)", code, errMsg)
		}
	})

	t.Run("unique title", func(t *testing.T) {
		meta, errMsg, _ := ResolveConversation("Budget review", metas)
		if errMsg != "" || meta.ID != "chat-aaaa-1111" {
			t.Fatalf("got %+v, %q", meta, errMsg)
		}
	})

	t.Run("ambiguous title", func(t *testing.T) {
		_, _, code := ResolveConversation("Trip planning", metas)
		if code != ErrCodeAmbiguous {
			t.Fatalf("expected AMBIGUOUS for duplicate title, got %q", code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, _, code := ResolveConversation("missing", metas)
		if code != ErrCodeNotFound {
			t.Fatalf("expected NOT_FOUND, got %q", code)
		}
	})

	t.Run("empty identifier", func(t *testing.T) {
		_, _, code := ResolveConversation("", metas)
		if code != ErrCodeNotFound {
			t.Fatalf("expected NOT_FOUND for empty id, got %q", code)
		}
	})
}

func TestTruncateID(t *testing.T) {
	if got := TruncateID("short"); got != "short" {
		t.Errorf("TruncateID(short) = %q", got)
	}
	if got := TruncateID("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("TruncateID long = %q", got)
	}
}

func TestTruncateTitle(t *testing.T) {
	if got := truncateTitle("short", 10); got != "short" {
		t.Errorf("expected no truncation, got %q", got)
	}
	got := truncateTitle("a much longer title than fits", 10)
	if len([]rune(got)) != 10 {
		t.Errorf("expected 10 runes, got %q (%d)", got, len([]rune(got)))
	}
}

func TestFormatEpoch(t *testing.T) {
	if got := formatEpoch(nil); got != "-" {
		t.Errorf("formatEpoch(nil) = %q, want -", got)
	}
	epoch := float64(1700000000)
	if got := formatEpoch(&epoch); got == "-" || got == "" {
		t.Errorf("expected formatted timestamp, got %q", got)
	}
}
