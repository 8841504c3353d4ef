package segmenter_test

import (
	"testing"

	"rinkreel/internal/segmenter"
	"rinkreel/internal/store"
)

func comments(timestamps ...int64) []store.Comment {
	out := make([]store.Comment, len(timestamps))
	for i, ts := range timestamps {
		out[i] = store.Comment{
			ID:          string(rune('a' + i)),
			TimestampMS: ts,
			Text:        "note",
		}
	}
	return out
}

func TestBuildGroupsCommentsWithinWindow(t *testing.T) {
	segments, err := segmenter.Build("s1", comments(0, 10_000, 40_000), 30_000)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(segments))
	}

	first := segments[0]
	if first.StartMS != 0 || first.EndMS != 30_000 {
		t.Fatalf("first window = [%d,%d]", first.StartMS, first.EndMS)
	}
	if len(first.Comments) != 2 {
		t.Fatalf("first comments = %d, want 2", len(first.Comments))
	}

	second := segments[1]
	if second.StartMS != 40_000 || second.EndMS != 70_000 {
		t.Fatalf("second window = [%d,%d]", second.StartMS, second.EndMS)
	}
	if len(second.Comments) != 1 {
		t.Fatalf("second comments = %d, want 1", len(second.Comments))
	}
}

func TestBuildCommentAtWindowBoundaryJoinsSegment(t *testing.T) {
	segments, err := segmenter.Build("s1", comments(0, 30_000), 30_000)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(segments))
	}
	if len(segments[0].Comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(segments[0].Comments))
	}
}

func TestBuildSortsUnorderedComments(t *testing.T) {
	segments, err := segmenter.Build("s1", comments(40_000, 0, 10_000), 30_000)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(segments))
	}
	if segments[0].StartMS != 0 {
		t.Fatalf("first segment starts at %d, want 0", segments[0].StartMS)
	}
	if segments[1].StartMS >= segments[1].EndMS {
		t.Fatal("segment window inverted")
	}
}

func TestBuildTieBreaksByInsertionOrder(t *testing.T) {
	input := []store.Comment{
		{ID: "first", TimestampMS: 1000, Text: "a"},
		{ID: "second", TimestampMS: 1000, Text: "b"},
	}
	segments, err := segmenter.Build("s1", input, 30_000)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(segments))
	}
	got := segments[0].Comments
	if got[0].ID != "first" || got[1].ID != "second" {
		t.Fatalf("tie order = %s,%s", got[0].ID, got[1].ID)
	}
}

func TestBuildEmptyAndInvalid(t *testing.T) {
	segments, err := segmenter.Build("s1", nil, 30_000)
	if err != nil {
		t.Fatalf("build empty: %v", err)
	}
	if segments != nil {
		t.Fatalf("expected no segments, got %d", len(segments))
	}

	if _, err := segmenter.Build("s1", comments(0), 0); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestTotalDurationMS(t *testing.T) {
	segments, err := segmenter.Build("s1", comments(0, 50_000), 30_000)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := segmenter.TotalDurationMS(segments); got != 60_000 {
		t.Fatalf("total = %d, want 60000", got)
	}
}
