package drive

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/cache"
	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

const statsCacheKey = "stats"

// Category is a usage bucket.
type Category string

const (
	CategoryImages    Category = "Images"
	CategoryDocuments Category = "Documents"
	CategoryVideos    Category = "Videos"
	CategoryOthers    Category = "Others"
)

var categoryOrder = []Category{CategoryImages, CategoryDocuments, CategoryVideos, CategoryOthers}

var categoryColors = map[Category]string{
	CategoryImages:    "#3b82f6",
	CategoryDocuments: "#8b5cf6",
	CategoryVideos:    "#ec4899",
	CategoryOthers:    "#94a3b8",
}

var extensionCategories = map[string]Category{
	"jpg": CategoryImages, "jpeg": CategoryImages, "png": CategoryImages,
	"gif": CategoryImages, "svg": CategoryImages, "webp": CategoryImages,

	"pdf": CategoryDocuments, "doc": CategoryDocuments, "docx": CategoryDocuments,
	"txt": CategoryDocuments, "csv": CategoryDocuments, "xlsx": CategoryDocuments,
	"pptx": CategoryDocuments,

	"mp4": CategoryVideos, "mov": CategoryVideos, "avi": CategoryVideos,
	"mkv": CategoryVideos, "webm": CategoryVideos,
}

func categoryOf(key string) Category {
	if c, ok := extensionCategories[extension(key)]; ok {
		return c
	}
	return CategoryOthers
}

// BreakdownItem is one category's share of total bytes.
type BreakdownItem struct {
	Label   Category `json:"label"`
	Percent int      `json:"percent"`
	Color   string   `json:"color"`
	Bytes   int64    `json:"bytes"`
}

// Usage aggregates the whole drive, trash included.
type Usage struct {
	TotalBytes  int64           `json:"totalBytes"`
	FileCount   int             `json:"fileCount"`
	FolderCount int             `json:"folderCount"`
	Breakdown   []BreakdownItem `json:"breakdown"`
	QuotaBytes  int64           `json:"quotaBytes"`
}

func percent(part, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// StorageUsage walks every key once and totals files, folders and bytes
// per category. Hidden keys are not counted.
func (s *Service) StorageUsage(ctx context.Context) (*Usage, error) {
	if u, ok := cache.Lookup[*Usage](s.cache, statsCacheKey); ok {
		return u.clone(), nil
	}

	start := time.Now()
	u := &Usage{QuotaBytes: s.opts.StorageCapacity}
	bytesBy := make(map[Category]int64, len(categoryOrder))

	_, err := s.eachPage(ctx, "", "", func(page *storage.ListPage) error {
		for _, o := range page.Objects {
			switch {
			case isHidden(o.Key):
			case isFolder(o.Key):
				u.FolderCount++
			default:
				u.FileCount++
				u.TotalBytes += o.Size
				bytesBy[categoryOf(o.Key)] += o.Size
			}
		}
		return nil
	})
	metrics.RecordOperation("usage", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}

	u.Breakdown = make([]BreakdownItem, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		u.Breakdown = append(u.Breakdown, BreakdownItem{
			Label:   c,
			Percent: percent(bytesBy[c], u.TotalBytes),
			Color:   categoryColors[c],
			Bytes:   bytesBy[c],
		})
	}

	logging.WithContext(ctx).Debug("storage usage computed",
		zap.Int("files", u.FileCount),
		zap.Int("folders", u.FolderCount),
		zap.Int64("bytes", u.TotalBytes))

	s.cache.Put(statsCacheKey, u)
	return u.clone(), nil
}

func (u *Usage) clone() *Usage {
	c := *u
	c.Breakdown = append([]BreakdownItem(nil), u.Breakdown...)
	return &c
}

// Percent returns the breakdown percentage of c.
func (u *Usage) Percent(c Category) int {
	for _, b := range u.Breakdown {
		if b.Label == c {
			return b.Percent
		}
	}
	return 0
}
