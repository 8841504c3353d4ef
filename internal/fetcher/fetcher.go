// Package fetcher downloads segment files from the feed provider with
// bounded concurrency.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"rinkreel/internal/logging"
	"rinkreel/internal/segmenter"
	"rinkreel/internal/services"
	"rinkreel/internal/services/feedprovider"
)

// RangeFetcher streams a feed range into a writer.
type RangeFetcher interface {
	FetchRange(ctx context.Context, feed *feedprovider.FeedHandle, startMS, endMS int64, dst io.Writer) (int64, error)
}

// Fetcher downloads the segment windows of a session into the staging
// directory.
type Fetcher struct {
	provider    RangeFetcher
	stagingDir  string
	concurrency int
	logger      *slog.Logger
}

// New builds a fetcher. concurrency caps simultaneous downloads.
func New(provider RangeFetcher, stagingDir string, concurrency int, logger *slog.Logger) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fetcher{
		provider:    provider,
		stagingDir:  stagingDir,
		concurrency: concurrency,
		logger:      logger.With(logging.String(logging.FieldComponent, "fetcher")),
	}
}

// FetchAll downloads every pending segment and returns the total bytes
// written. Already-downloaded segments with an intact file are skipped, so a
// retried job does not refetch. onProgress, when set, is called after each
// completed segment with the running count. Segment FilePath and Status are
// updated in place; the first failure stops remaining downloads and is
// returned.
func (f *Fetcher) FetchAll(ctx context.Context, feed *feedprovider.FeedHandle, segments []*segmenter.Segment, onProgress func(done, total int)) (int64, error) {
	total := len(segments)
	if total == 0 {
		return 0, nil
	}

	dir := filepath.Join(f.stagingDir, segments[0].SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, services.Wrap(services.ErrInternal, "fetch", "staging", "creating staging directory", err)
	}

	var done atomic.Int32
	var bytes atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.concurrency)

	for _, seg := range segments {
		group.Go(func() error {
			written, err := f.fetchOne(groupCtx, feed, seg, dir)
			if err != nil {
				seg.Status = segmenter.SegmentFailed
				return err
			}
			bytes.Add(written)
			if onProgress != nil {
				onProgress(int(done.Add(1)), total)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	return bytes.Load(), nil
}

func (f *Fetcher) fetchOne(ctx context.Context, feed *feedprovider.FeedHandle, seg *segmenter.Segment, dir string) (int64, error) {
	target := filepath.Join(dir, seg.ID+".mp4")
	if seg.Status == segmenter.SegmentDownloaded {
		if info, err := os.Stat(target); err == nil && info.Size() > 0 {
			seg.FilePath = target
			return info.Size(), nil
		}
	}

	seg.Status = segmenter.SegmentDownloading
	tmp := target + ".partial"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, services.Wrap(services.ErrInternal, "fetch", "staging", "creating segment file", err)
	}

	written, fetchErr := f.provider.FetchRange(ctx, feed, seg.StartMS, seg.EndMS, file)
	closeErr := file.Close()
	if fetchErr != nil {
		os.Remove(tmp)
		return 0, fetchErr
	}
	if closeErr != nil {
		os.Remove(tmp)
		return 0, services.Wrap(services.ErrInternal, "fetch", "staging", "closing segment file", closeErr)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return 0, services.Wrap(services.ErrInternal, "fetch", "staging", "finalizing segment file", err)
	}

	seg.FilePath = target
	seg.Status = segmenter.SegmentDownloaded
	f.logger.Debug("segment downloaded",
		logging.String("segment", seg.ID),
		logging.Int64("bytes", written))
	return written, nil
}

// SegmentFiles returns the downloaded file paths in segment order, failing
// if any segment is not downloaded.
func SegmentFiles(segments []*segmenter.Segment) ([]string, error) {
	files := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Status != segmenter.SegmentDownloaded || seg.FilePath == "" {
			return nil, services.Wrap(services.ErrInternal, "fetch", "collect",
				fmt.Sprintf("segment %s is not downloaded", seg.ID), nil)
		}
		files = append(files, seg.FilePath)
	}
	return files, nil
}
