package encoder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatSRT(t *testing.T) {
	got := FormatSRT([]Caption{
		{StartMS: 0, EndMS: 5000, Text: "Great forecheck"},
		{StartMS: 3_725_042, EndMS: 3_730_042, Text: "Breakaway"},
	})
	want := "1\n00:00:00,000 --> 00:00:05,000\nGreat forecheck\n\n" +
		"2\n01:02:05,042 --> 01:02:10,042\nBreakaway\n\n"
	if got != want {
		t.Fatalf("srt mismatch:\n%q\nwant\n%q", got, want)
	}
}

func TestSRTTimestampClampsNegative(t *testing.T) {
	if got := srtTimestamp(-50); got != "00:00:00,000" {
		t.Fatalf("timestamp = %q", got)
	}
}

func TestFormatSRTTrimsCaptionText(t *testing.T) {
	got := FormatSRT([]Caption{{StartMS: 0, EndMS: 1000, Text: "  spaced out \n"}})
	if !strings.Contains(got, "\nspaced out\n") {
		t.Fatalf("text not trimmed: %q", got)
	}
}

func TestWriteConcatListEscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "it's a clip.mp4")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	listPath := filepath.Join(dir, "list.txt")
	if err := writeConcatList(listPath, []string{input}); err != nil {
		t.Fatalf("write list: %v", err)
	}
	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, "file '") {
		t.Fatalf("list line = %q", line)
	}
	if !strings.Contains(line, `it'\''s a clip.mp4`) {
		t.Fatalf("quote not escaped: %q", line)
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := escapeFilterPath(`C:\tmp\captions's.srt`)
	if !strings.Contains(got, `\:`) || !strings.Contains(got, `\\`) || !strings.Contains(got, `\'`) {
		t.Fatalf("escaped = %q", got)
	}
}
