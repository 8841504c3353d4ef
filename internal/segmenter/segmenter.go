// Package segmenter groups session comments into time windows that drive
// segment downloads. Comments within the window length of the first comment
// in a group share one segment; a comment past the window opens a new one.
package segmenter

import (
	"fmt"
	"sort"

	"rinkreel/internal/store"
)

// SegmentStatus tracks a segment through the fetch stage.
type SegmentStatus string

const (
	SegmentPending     SegmentStatus = "pending"
	SegmentDownloading SegmentStatus = "downloading"
	SegmentDownloaded  SegmentStatus = "downloaded"
	SegmentFailed      SegmentStatus = "failed"
)

// Segment is one contiguous window of feed time to download, along with the
// comments that fall inside it.
type Segment struct {
	ID        string
	SessionID string
	StartMS   int64
	EndMS     int64
	Comments  []store.Comment
	Status    SegmentStatus
	FilePath  string
}

// DurationMS returns the segment's length on the feed timeline.
func (s *Segment) DurationMS() int64 {
	return s.EndMS - s.StartMS
}

// Build derives segments from a session's comments. Comments are ordered by
// timestamp first (ties keep insertion order) and walked once: each segment
// starts at its first comment's timestamp and spans windowMS. A comment at or
// before the current segment's end joins it; otherwise it opens the next
// segment. An empty comment list yields no segments.
func Build(sessionID string, comments []store.Comment, windowMS int64) ([]*Segment, error) {
	if windowMS <= 0 {
		return nil, fmt.Errorf("segment window must be positive, got %d", windowMS)
	}
	if len(comments) == 0 {
		return nil, nil
	}

	ordered := make([]store.Comment, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TimestampMS < ordered[j].TimestampMS
	})

	var segments []*Segment
	var current *Segment
	for i := range ordered {
		c := ordered[i]
		if current != nil && c.TimestampMS <= current.EndMS {
			current.Comments = append(current.Comments, c)
			continue
		}
		current = &Segment{
			ID:        fmt.Sprintf("seg-%s", c.ID),
			SessionID: sessionID,
			StartMS:   c.TimestampMS,
			EndMS:     c.TimestampMS + windowMS,
			Comments:  []store.Comment{c},
			Status:    SegmentPending,
		}
		segments = append(segments, current)
	}
	return segments, nil
}

// TotalDurationMS sums the lengths of all segments.
func TotalDurationMS(segments []*Segment) int64 {
	var total int64
	for _, seg := range segments {
		total += seg.DurationMS()
	}
	return total
}
