// Package encoder wraps the ffmpeg and ffprobe binaries for stitching
// segment files and burning caption overlays.
package encoder

import "context"

// Caption is a single overlay entry on the output timeline.
type Caption struct {
	StartMS int64
	EndMS   int64
	Text    string
}

// ProbeResult summarizes a media file.
type ProbeResult struct {
	DurationMS int64
	Width      int
	Height     int
	SizeBytes  int64
}

// Encoder performs the media operations the assembly stage needs.
type Encoder interface {
	// Concat joins the input files in order into a single MP4 at outputPath.
	Concat(ctx context.Context, inputs []string, outputPath string) error
	// BurnCaptions renders captions onto the input video at outputPath.
	BurnCaptions(ctx context.Context, inputPath string, captions []Caption, outputPath string) error
	// Probe inspects a media file.
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}
