// Package assembler stitches downloaded segments into one video and burns
// comment captions onto it.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"rinkreel/internal/fetcher"
	"rinkreel/internal/logging"
	"rinkreel/internal/media/encoder"
	"rinkreel/internal/segmenter"
)

// Assembler produces the stitched and final artifacts for a session.
type Assembler struct {
	enc              encoder.Encoder
	outputDir        string
	captionDisplayMS int64
	logger           *slog.Logger
}

// New builds an assembler writing artifacts into outputDir. Each caption
// stays on screen for captionDisplayMS.
func New(enc encoder.Encoder, outputDir string, captionDisplayMS int64, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Assembler{
		enc:              enc,
		outputDir:        outputDir,
		captionDisplayMS: captionDisplayMS,
		logger:           logger.With(logging.String(logging.FieldComponent, "assembler")),
	}
}

// StitchedPath returns where the stitched artifact for a session lives.
func (a *Assembler) StitchedPath(sessionID string) string {
	return filepath.Join(a.outputDir, fmt.Sprintf("session_%s_stitched.mp4", sessionID))
}

// FinalPath returns where the final captioned artifact for a session lives.
func (a *Assembler) FinalPath(sessionID string) string {
	return filepath.Join(a.outputDir, fmt.Sprintf("session_%s_final.mp4", sessionID))
}

// Stitch concatenates the downloaded segments in order and returns the
// stitched file path.
func (a *Assembler) Stitch(ctx context.Context, sessionID string, segments []*segmenter.Segment) (string, error) {
	files, err := fetcher.SegmentFiles(segments)
	if err != nil {
		return "", err
	}
	output := a.StitchedPath(sessionID)
	if err := a.enc.Concat(ctx, files, output); err != nil {
		return "", err
	}
	a.logger.Info("segments stitched",
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("segments", len(files)))
	return output, nil
}

// Overlay burns the session's comment captions onto the stitched video and
// returns the final file path. When no comments carry text the stitched file
// path is returned unchanged.
func (a *Assembler) Overlay(ctx context.Context, sessionID, stitchedPath string, segments []*segmenter.Segment) (string, error) {
	captions := RemapCaptions(segments, a.captionDisplayMS)
	if len(captions) == 0 {
		return stitchedPath, nil
	}
	output := a.FinalPath(sessionID)
	if err := a.enc.BurnCaptions(ctx, stitchedPath, captions, output); err != nil {
		return "", err
	}
	a.logger.Info("captions rendered",
		logging.String(logging.FieldSessionID, sessionID),
		logging.Int("captions", len(captions)))
	return output, nil
}

// Inspect probes a finished artifact and returns its duration, resolution
// and size.
func (a *Assembler) Inspect(ctx context.Context, path string) (*encoder.ProbeResult, error) {
	return a.enc.Probe(ctx, path)
}

// RemapCaptions translates comment timestamps from the feed timeline onto
// the stitched output timeline. Segments are laid end to end, so a caption's
// start is its offset within its segment plus the duration of all earlier
// segments. Captions are clamped to their segment so they never bleed past a
// cut.
func RemapCaptions(segments []*segmenter.Segment, displayMS int64) []encoder.Caption {
	var captions []encoder.Caption
	var offset int64
	for _, seg := range segments {
		for _, c := range seg.Comments {
			start := offset + (c.TimestampMS - seg.StartMS)
			end := start + displayMS
			if max := offset + seg.DurationMS(); end > max {
				end = max
			}
			if end <= start {
				end = start + 1
			}
			captions = append(captions, encoder.Caption{
				StartMS: start,
				EndMS:   end,
				Text:    c.Text,
			})
		}
		offset += seg.DurationMS()
	}
	return captions
}
