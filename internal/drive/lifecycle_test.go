package drive

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/bucketdrive/internal/events"
)

func TestDeleteFolderThenListIsEmpty(t *testing.T) {
	env := newTestEnv(t, 3)
	env.put(t, "docs/", "")
	for i := 0; i < 8; i++ {
		env.put(t, fmt.Sprintf("docs/sub%d/file.txt", i%3), fmt.Sprint(i))
	}
	env.put(t, "docs2/keep.txt", "keep")
	ctx := context.Background()

	require.NoError(t, env.svc.Delete(ctx, "docs/"))

	res, err := env.svc.List(ctx, ListOptions{Prefix: "docs/", Recursive: true})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, []string{"docs2/keep.txt"}, env.store.Keys())
}

func TestDeleteFolderBatchesByThousand(t *testing.T) {
	env := newTestEnv(t, 0)
	for i := 0; i < 2500; i++ {
		require.NoError(t, env.store.Backend.PutObject(context.Background(), fmt.Sprintf("big/%04d", i), strings.NewReader("x"), 1, ""))
	}

	require.NoError(t, env.svc.Delete(context.Background(), "big/"))
	assert.Equal(t, []int{1000, 1000, 500}, env.store.batches())
	assert.Zero(t, env.store.Len())
}

func TestDeleteFileAndMissing(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "a.txt", "a")
	env.put(t, "a.txt.bak", "b")
	ctx := context.Background()

	require.NoError(t, env.svc.Delete(ctx, "a.txt"))
	assert.Equal(t, []string{"a.txt.bak"}, env.store.Keys())
	assert.Empty(t, env.store.batches())

	assert.NoError(t, env.svc.Delete(ctx, "a.txt"), "delete is idempotent")
	assert.ErrorIs(t, env.svc.Delete(ctx, ""), ErrInvalidArgument)
	assert.ErrorIs(t, env.svc.Delete(ctx, ".metadata/"), ErrInvalidArgument)
}

func TestBulkDeleteChunks(t *testing.T) {
	env := newTestEnv(t, 0)
	keys := make([]string, 1500)
	for i := range keys {
		keys[i] = fmt.Sprintf("k/%04d", i)
		require.NoError(t, env.store.Backend.PutObject(context.Background(), keys[i], strings.NewReader("x"), 1, ""))
	}
	env.put(t, "survivor", "s")

	require.NoError(t, env.svc.BulkDelete(context.Background(), keys))
	assert.Equal(t, []int{1000, 500}, env.store.batches())
	assert.Equal(t, []string{"survivor"}, env.store.Keys())
}

func TestBulkDeleteEdgeCases(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	require.NoError(t, env.svc.BulkDelete(ctx, nil))
	assert.Empty(t, env.store.batches())

	err := env.svc.BulkDelete(ctx, []string{"ok.txt", ".metadata/stars.json"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, env.store.batches(), "validated before any call")
}

func TestCreateFolder(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	key, err := env.svc.CreateFolder(ctx, "projects")
	require.NoError(t, err)
	assert.Equal(t, "projects/", key)

	key, err = env.svc.CreateFolder(ctx, "projects/")
	require.NoError(t, err)
	assert.Equal(t, "projects/", key)
	assert.Equal(t, []string{"projects/"}, env.store.Keys())
	assert.Equal(t, "", env.read(t, "projects/"))

	for _, bad := range []string{"", "  ", "/", ".metadata/x"} {
		_, err := env.svc.CreateFolder(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, bad)
	}
}

func TestTrashRestoreRoundTrip(t *testing.T) {
	env := newTestEnv(t, 2)
	env.put(t, "proj/", "")
	env.put(t, "proj/readme.md", "# readme")
	env.put(t, "proj/src/main.go", "package main")
	env.put(t, "proj/src/util/", "")
	env.put(t, "project.txt", "sibling")
	ctx := context.Background()

	before := env.contents(t, "proj/")

	trashKey, err := env.svc.MoveToTrash(ctx, "proj/")
	require.NoError(t, err)
	assert.Equal(t, "trash/proj/", trashKey)
	assert.Empty(t, env.contents(t, "proj/"))
	assert.Len(t, env.contents(t, "trash/proj/"), len(before))
	assert.Equal(t, "sibling", env.read(t, "project.txt"))

	original, err := env.svc.Restore(ctx, trashKey)
	require.NoError(t, err)
	assert.Equal(t, "proj/", original)
	assert.Equal(t, before, env.contents(t, "proj/"))
	assert.Empty(t, env.contents(t, "trash/"))
	assert.Empty(t, env.contents(t, journalPrefix))
}

func TestTrashFileLeavesSiblings(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "notes.txt", "n")
	env.put(t, "notes.txt.bak", "b")
	ctx := context.Background()

	_, err := env.svc.MoveToTrash(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt.bak", "trash/notes.txt"}, env.store.Keys())

	_, err = env.svc.Restore(ctx, "trash/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt", "notes.txt.bak"}, env.store.Keys())
}

func TestTrashAndRestoreErrors(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "trash/x.txt", "x")
	ctx := context.Background()

	_, err := env.svc.MoveToTrash(ctx, "missing/")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, env.contents(t, journalPrefix))

	_, err = env.svc.MoveToTrash(ctx, "trash/x.txt")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.svc.MoveToTrash(ctx, ".metadata/stars.json")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.svc.Restore(ctx, "x.txt")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.svc.Restore(ctx, "trash/")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.svc.Restore(ctx, "trash/nothing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHiddenNamespaceStaysOutOfTrashRoundTrips(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "secret.txt", "s")
	env.put(t, "trash/.metadata/sharing.json", `{"secret.txt":{"generalAccess":"public"}}`)
	env.put(t, "trash/.metadata/moves/x.json", `{"id":"x","kind":"trash","source":"docs/","phase":"deleting"}`)
	ctx := context.Background()

	for _, key := range []string{"trash/.metadata/sharing.json", "trash/.metadata/moves/x.json", "trash/.metadata/"} {
		_, err := env.svc.Restore(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidArgument, key)
	}
	assert.Empty(t, env.contents(t, MetadataPrefix))
	assert.Empty(t, env.contents(t, journalPrefix))

	_, err := env.svc.Upload(ctx, UploadInput{Prefix: "trash/.metadata", FileName: "sharing.json", Body: strings.NewReader("{}")})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = env.svc.UploadURL(ctx, "/trash/.metadata/moves/y.json", "application/json")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = env.svc.CreateFolder(ctx, "trash/.metadata/moves")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, env.svc.Delete(ctx, "trash/.metadata/sharing.json"))
	assert.Equal(t, []string{"secret.txt", "trash/.metadata/moves/x.json"}, env.store.Keys())
}

func TestResumeSkipsInvalidRecords(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "trash/.metadata/sharing.json", "{}")
	env.put(t, "trash/x/a.txt", "a")
	ctx := context.Background()

	for _, rec := range []*moveRecord{
		{ID: "r1", Kind: moveRestore, Source: "trash/.metadata/"},
		{ID: "r2", Kind: moveTrash, Source: "trash/x/"},
		{ID: "r3", Kind: moveTrash, Source: ".metadata/"},
		{ID: "r4", Kind: "rename", Source: "x/"},
	} {
		require.NoError(t, env.svc.saveMove(ctx, rec, phaseDeleting))
	}

	n, err := env.svc.ResumeMoves(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "{}", env.read(t, "trash/.metadata/sharing.json"))
	assert.Equal(t, "a", env.read(t, "trash/x/a.txt"))
}

func TestInterruptedTrashResumes(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "box/1.txt", "one")
	env.put(t, "box/2.txt", "two")
	env.put(t, "box/3.txt", "three")
	ctx := context.Background()

	env.store.failCopyAfter = 1
	_, err := env.svc.MoveToTrash(ctx, "box/")
	require.ErrorIs(t, err, ErrBackingStore)

	journal := env.contents(t, journalPrefix)
	require.Len(t, journal, 1)
	for _, raw := range journal {
		assert.Contains(t, raw, `"phase":"copying"`)
		assert.Contains(t, raw, `"source":"box/"`)
	}
	assert.Len(t, env.contents(t, "box/"), 3, "source untouched until copy completes")

	env.store.failCopyAfter = -1
	n, err := env.svc.ResumeMoves(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Empty(t, env.contents(t, "box/"))
	assert.Equal(t, map[string]string{
		"trash/box/1.txt": "one",
		"trash/box/2.txt": "two",
		"trash/box/3.txt": "three",
	}, env.contents(t, "trash/"))
	assert.Empty(t, env.contents(t, journalPrefix))
}

func TestResumeDeletingPhase(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "trash/keep/a.txt", "a")
	env.put(t, "keep/a.txt", "a")
	rec := &moveRecord{ID: "m1", Kind: moveRestore, Source: "trash/keep/", StartedAt: env.clock.Now()}
	require.NoError(t, env.svc.saveMove(context.Background(), rec, phaseDeleting))

	n, err := env.svc.ResumeMoves(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"keep/a.txt"}, env.store.Keys())
}

func TestResumeRetriesStoreErrors(t *testing.T) {
	env := newTestEnv(t, 0)
	env.put(t, "r/a.txt", "a")
	rec := &moveRecord{ID: "m2", Kind: moveTrash, Source: "r/", StartedAt: env.clock.Now()}
	require.NoError(t, env.svc.saveMove(context.Background(), rec, phaseCopying))

	env.store.failCopyAfter = 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		env.store.mu.Lock()
		env.store.failCopyAfter = -1
		env.store.mu.Unlock()
	}()

	env.svc.opts.Retry.Attempts = 0
	env.svc.opts.Retry.Base = 5 * time.Millisecond
	env.svc.opts.Retry.Cap = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := env.svc.ResumeMoves(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"trash/r/a.txt"}, env.store.Keys())
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	res, err := env.svc.Upload(ctx, UploadInput{
		Prefix:      "photos",
		FileName:    "C:\\Users\\me\\cat.png",
		ContentType: "image/png",
		Body:        strings.NewReader("meow"),
		Size:        4,
	})
	require.NoError(t, err)
	assert.Equal(t, "photos/cat.png", res.Key)
	assert.Equal(t, "mem:///photos/cat.png", res.Location)
	assert.Equal(t, "meow", env.read(t, "photos/cat.png"))

	res, err = env.svc.Upload(ctx, UploadInput{Body: strings.NewReader(""), Size: 0})
	require.NoError(t, err)
	assert.Equal(t, defaultUploadName, res.Key)

	for _, parent := range []string{"..", "a/.."} {
		res, err = env.svc.Upload(ctx, UploadInput{Prefix: "docs", FileName: parent, Body: strings.NewReader("p"), Size: 1})
		require.NoError(t, err)
		assert.Equal(t, "docs/"+defaultUploadName, res.Key, parent)
	}

	_, err = env.svc.Upload(ctx, UploadInput{Prefix: ".metadata/", FileName: "stars.json", Body: strings.NewReader("{}")})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	u, err := env.svc.UploadURL(ctx, "/photos/dog.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "photos/dog.png", u.Key)
	assert.Contains(t, u.URL, "method=PUT")
}

func TestMutationsInvalidateCacheAndPublish(t *testing.T) {
	b := events.NewBroadcaster()
	env := newTestEnv(t, 0, func(o *Options) { o.Events = b })
	ch, cancel := b.Subscribe()
	defer cancel()
	ctx := context.Background()

	env.put(t, "a.txt", "a")
	usage, err := env.svc.StorageUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.FileCount)

	_, err = env.svc.CreateFolder(ctx, "new")
	require.NoError(t, err)

	usage, err = env.svc.StorageUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.FolderCount, "cache dropped by mutation")

	select {
	case ev := <-ch:
		assert.Equal(t, events.EventCreateFolder, ev.Type)
		assert.Equal(t, "new/", ev.Key)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}
