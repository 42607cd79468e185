package clipboard

import (
	"encoding/base64"
	"testing"
)

func TestCopy_EmptyContent(t *testing.T) {
	_, err := Copy("")
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	if err.Error() != "no content to copy" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCountLines_SingleLine(t *testing.T) {
	n := countLines("hello world")
	if n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
}

func TestCountLines_MultipleLines(t *testing.T) {
	n := countLines("line1\nline2\nline3\n")
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}

func TestCountLines_NoTrailingNewline(t *testing.T) {
	n := countLines("line1\nline2\nline3")
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}

func TestCountLines_Empty(t *testing.T) {
	n := countLines("")
	if n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestCountLines_OnlyNewlines(t *testing.T) {
	n := countLines("\n\n\n")
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}

func TestGenerateOSC52_Plain(t *testing.T) {
	text := "hello"
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	seq := generateOSC52(encoded, false)

	expected := "\x1b]52;c;" + encoded + "\x07"
	if seq != expected {
		t.Errorf("expected %q, got %q", expected, seq)
	}
}

func TestGenerateOSC52_Passthrough(t *testing.T) {
	text := "hello"
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	seq := generateOSC52(encoded, true)

	// Should wrap in DCS passthrough
	expected := "\x1bPtmux;\x1b\x1b]52;c;" + encoded + "\x07\x1b\\"
	if seq != expected {
		t.Errorf("expected %q, got %q", expected, seq)
	}
}

func TestSupportsOSC52_TermProgram(t *testing.T) {
	t.Setenv("TERM_PROGRAM", "WezTerm")
	if !supportsOSC52() {
		t.Error("expected WezTerm to support OSC 52")
	}
}

func TestSupportsOSC52_Xterm(t *testing.T) {
	t.Setenv("TERM_PROGRAM", "")
	t.Setenv("KITTY_WINDOW_ID", "")
	t.Setenv("ALACRITTY_WINDOW_ID", "")
	t.Setenv("TERM", "xterm-256color")
	if !supportsOSC52() {
		t.Error("expected xterm-256color to support OSC 52")
	}
}

func TestSupportsOSC52_Dumb(t *testing.T) {
	t.Setenv("TERM_PROGRAM", "")
	t.Setenv("KITTY_WINDOW_ID", "")
	t.Setenv("ALACRITTY_WINDOW_ID", "")
	t.Setenv("TERM", "dumb")
	if supportsOSC52() {
		t.Error("expected dumb terminal to not support OSC 52")
	}
}

func TestCopy_ByteSize(t *testing.T) {
	result, err := Copy("hello world")
	if err != nil {
		t.Skipf("clipboard not available: %v", err)
	}
	if result.ByteSize != 11 {
		t.Errorf("expected ByteSize=11, got %d", result.ByteSize)
	}
}

func TestCopy_LineCount(t *testing.T) {
	result, err := Copy("line1\nline2\nline3\n")
	if err != nil {
		t.Skipf("clipboard not available: %v", err)
	}
	if result.LineCount != 3 {
		t.Errorf("expected LineCount=3, got %d", result.LineCount)
	}
}

func TestCopy_NativeMethod(t *testing.T) {
	result, err := Copy("test content")
	if err != nil {
		t.Skipf("clipboard not available: %v", err)
	}
	if result.Method == "" {
		t.Error("expected non-empty method")
	}
}
