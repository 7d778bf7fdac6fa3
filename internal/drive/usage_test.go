package drive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageUsageBreakdown(t *testing.T) {
	env := newTestEnv(t, 1)
	env.put(t, "pics/", "")
	env.put(t, "pics/cat.jpg", string(make([]byte, 100)))
	env.put(t, "docs/cv.pdf", string(make([]byte, 50)))
	env.put(t, starsKey, `["pics/cat.jpg"]`)

	u, err := env.svc.StorageUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, u.FileCount)
	assert.Equal(t, 1, u.FolderCount)
	assert.Equal(t, int64(150), u.TotalBytes)
	assert.Equal(t, 67, u.Percent(CategoryImages))
	assert.Equal(t, 33, u.Percent(CategoryDocuments))
	assert.Equal(t, 0, u.Percent(CategoryVideos))
	assert.Equal(t, 0, u.Percent(CategoryOthers))
	assert.Equal(t, defaultCapacity, u.QuotaBytes)

	require.Len(t, u.Breakdown, 4)
	assert.Equal(t, BreakdownItem{Label: CategoryImages, Percent: 67, Color: "#3b82f6", Bytes: 100}, u.Breakdown[0])
}

func TestStorageUsageEmpty(t *testing.T) {
	env := newTestEnv(t, 0)
	u, err := env.svc.StorageUsage(context.Background())
	require.NoError(t, err)
	assert.Zero(t, u.TotalBytes)
	for _, b := range u.Breakdown {
		assert.Zero(t, b.Percent)
	}
}

func TestStorageUsageCountsTrash(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "trash/movie.MKV", "1234")
	env.put(t, "song.mp3", "12")

	u, err := env.svc.StorageUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, u.FileCount)
	assert.Equal(t, 67, u.Percent(CategoryVideos))
	assert.Equal(t, 33, u.Percent(CategoryOthers))
}

func TestStorageUsageCached(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "a.txt", "a")
	ctx := context.Background()

	u, err := env.svc.StorageUsage(ctx)
	require.NoError(t, err)
	u.Breakdown[0].Percent = 99

	env.put(t, "b.txt", "b")
	cached, err := env.svc.StorageUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.FileCount)
	assert.Equal(t, 0, cached.Breakdown[0].Percent, "callers get copies")

	env.clock.Advance(5 * time.Second)
	fresh, err := env.svc.StorageUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.FileCount)
}

func TestCategoryOf(t *testing.T) {
	for key, want := range map[string]Category{
		"a.jpeg":      CategoryImages,
		"b/c.WEBP":    CategoryImages,
		"d.xlsx":      CategoryDocuments,
		"e.webm":      CategoryVideos,
		"f.zip":       CategoryOthers,
		"Makefile":    CategoryOthers,
		"g.tar.gz":    CategoryOthers,
		"slides.pptx": CategoryDocuments,
	} {
		assert.Equal(t, want, categoryOf(key), key)
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, 0, func(o *Options) { o.StorageCapacity = 100 })
	env.put(t, "a.txt", string(make([]byte, 40)))
	env.put(t, "trash/b.txt", string(make([]byte, 80)))

	d, err := env.svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DashboardStats{
		TotalFiles:     2,
		TotalFolders:   0,
		StorageUsed:    120,
		StorageQuota:   100,
		UsedPercentage: 100,
	}, d.Stats)
	require.Len(t, d.Activities, 2)
	assert.Equal(t, "trash/b.txt", d.Activities[0].ID)
	assert.Equal(t, "delete", d.Activities[0].Type)
	assert.Equal(t, "Deleted", d.Activities[0].Status)
	assert.Equal(t, "b.txt", d.Activities[0].FileName)
	assert.Equal(t, "upload", d.Activities[1].Type)
	assert.Equal(t, "Modified", d.Activities[1].Status)
	assert.Equal(t, "S3 Storage", d.Activities[1].UserName)
	assert.Len(t, d.Breakdown, 4)
}
