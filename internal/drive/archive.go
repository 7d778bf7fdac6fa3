package drive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

const archiveBufferSize = 32 * 1024

// ArchiveStats summarizes a finished archive.
type ArchiveStats struct {
	Entries int
	Bytes   int64
}

// ArchiveName is the download filename for a folder archive.
func ArchiveName(prefix string) string {
	if n := name(prefix); n != "" {
		return n + ".zip"
	}
	return "download.zip"
}

// Archive streams every object under prefix into a zip written to w.
// Entries are named by their key relative to prefix. Objects are read one
// at a time through a fixed buffer. The first error aborts the archive;
// whatever was already written to w is not valid zip.
func (s *Service) Archive(ctx context.Context, prefix string, w io.Writer) (*ArchiveStats, error) {
	prefix = normalizeFolder(strings.TrimPrefix(strings.TrimSpace(prefix), "/"))
	if prefix == "" {
		return nil, invalidArgument("folder is required")
	}
	if isHidden(prefix) {
		return nil, invalidArgument("%q is reserved", prefix)
	}

	start := time.Now()
	zw := zip.NewWriter(w)
	buf := make([]byte, archiveBufferSize)
	stats := &ArchiveStats{}

	_, err := s.eachPage(ctx, prefix, "", func(page *storage.ListPage) error {
		for _, o := range page.Objects {
			if isFolder(o.Key) || isHidden(o.Key) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, ok := archiveEntryName(prefix, o.Key)
			if !ok {
				logging.WithContext(ctx).Warn("skipping object with unsafe archive path", logging.Key(o.Key))
				continue
			}
			n, err := s.archiveEntry(ctx, zw, entry, o, buf)
			if err != nil {
				return err
			}
			stats.Entries++
			stats.Bytes += n
			metrics.RecordArchiveEntry(n)
		}
		return nil
	})
	if err == nil {
		err = zw.Close()
	}

	metrics.RecordOperation("archive", time.Since(start), err == nil)
	if err != nil {
		logging.WithContext(ctx).Error("archive aborted",
			logging.Prefix(prefix), zap.Int("entries", stats.Entries), logging.Err(err))
		return stats, err
	}

	logging.WithContext(ctx).Info("archive complete",
		logging.Prefix(prefix),
		zap.Int("entries", stats.Entries),
		zap.Int64("bytes", stats.Bytes),
		zap.Duration("duration", time.Since(start)))
	return stats, nil
}

// archiveEntryName is key relative to prefix, cleaned so it can neither be
// absolute nor climb out of the extraction directory.
func archiveEntryName(prefix, key string) (string, bool) {
	rel := strings.TrimLeft(strings.TrimPrefix(key, prefix), delimiter)
	if rel == "" {
		return "", false
	}
	rel = path.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func (s *Service) archiveEntry(ctx context.Context, zw *zip.Writer, entry string, o storage.ObjectInfo, buf []byte) (int64, error) {
	rc, _, err := s.store.GetObject(ctx, o.Key, 0, 0)
	if err != nil {
		return 0, storeError("read "+o.Key, err)
	}
	defer rc.Close()

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entry,
		Method:   zip.Deflate,
		Modified: o.LastModified,
	})
	if err != nil {
		return 0, fmt.Errorf("archive entry %s: %w", o.Key, err)
	}

	n, err := io.CopyBuffer(fw, rc, buf)
	if err != nil {
		return n, storeError("stream "+o.Key, err)
	}
	return n, nil
}
