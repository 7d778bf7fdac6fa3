package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/bucketdrive/internal/storage"
)

func put(t *testing.T, b *Backend, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, b.PutObject(context.Background(), k, strings.NewReader(k), int64(len(k)), ""))
	}
}

// listAll drains a listing and returns object keys and common prefixes.
func listAll(t *testing.T, b *Backend, in storage.ListInput) ([]string, []string, int) {
	t.Helper()
	var keys, prefixes []string
	pages := 0
	for {
		page, err := b.ListObjects(context.Background(), in)
		require.NoError(t, err)
		pages++
		for _, o := range page.Objects {
			keys = append(keys, o.Key)
		}
		prefixes = append(prefixes, page.CommonPrefixes...)
		if !page.IsTruncated {
			return keys, prefixes, pages
		}
		require.NotEmpty(t, page.NextContinuationToken)
		in.ContinuationToken = page.NextContinuationToken
	}
}

func TestGetPutDelete(t *testing.T) {
	ctx := context.Background()
	b := New()

	require.NoError(t, b.PutObject(ctx, "a.txt", strings.NewReader("hello world"), 11, "text/plain"))

	rc, size, err := b.GetObject(ctx, "a.txt", 0, 0)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(11), size)

	rc, size, err = b.GetObject(ctx, "a.txt", 6, 3)
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	assert.Equal(t, "wor", string(data))
	assert.Equal(t, int64(3), size)

	require.NoError(t, b.DeleteObject(ctx, "a.txt"))
	_, _, err = b.GetObject(ctx, "a.txt", 0, 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, b.DeleteObject(ctx, "a.txt"), "deleting a missing key succeeds")
}

func TestCopyObject(t *testing.T) {
	ctx := context.Background()
	b := New()
	put(t, b, "src")

	require.NoError(t, b.CopyObject(ctx, "src", "dst"))
	assert.Equal(t, []string{"dst", "src"}, b.Keys())

	err := b.CopyObject(ctx, "missing", "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListDelimiter(t *testing.T) {
	b := New()
	put(t, b, "a/", "a/b.txt", "a/c/d.txt", "a/c/e.txt", "z.txt", "trash/a/b.txt")

	keys, prefixes, _ := listAll(t, b, storage.ListInput{Prefix: "a/", Delimiter: "/"})
	assert.Equal(t, []string{"a/", "a/b.txt"}, keys)
	assert.Equal(t, []string{"a/c/"}, prefixes)

	keys, prefixes, _ = listAll(t, b, storage.ListInput{Delimiter: "/"})
	assert.Equal(t, []string{"z.txt"}, keys)
	assert.Equal(t, []string{"a/", "trash/"}, prefixes)

	keys, prefixes, _ = listAll(t, b, storage.ListInput{Prefix: "a/"})
	assert.Equal(t, []string{"a/", "a/b.txt", "a/c/d.txt", "a/c/e.txt"}, keys)
	assert.Empty(t, prefixes)
}

func TestListPagination(t *testing.T) {
	b := New(WithPageSize(3))
	var want []string
	for i := 0; i < 10; i++ {
		k := fmt.Sprintf("f/%02d", i)
		want = append(want, k)
	}
	put(t, b, want...)

	keys, _, pages := listAll(t, b, storage.ListInput{Prefix: "f/"})
	assert.Equal(t, want, keys)
	assert.Equal(t, 4, pages)
}

func TestListPaginationWithPrefixes(t *testing.T) {
	b := New(WithPageSize(2))
	put(t, b, "a/1", "a/2", "b", "c/1", "c/2", "c/3", "d", "e/1")

	keys, prefixes, _ := listAll(t, b, storage.ListInput{Delimiter: "/"})
	assert.Equal(t, []string{"b", "d"}, keys)
	assert.Equal(t, []string{"a/", "c/", "e/"}, prefixes)
}

func TestListMaxKeys(t *testing.T) {
	b := New()
	put(t, b, "1", "2", "3")

	page, err := b.ListObjects(context.Background(), storage.ListInput{MaxKeys: 2})
	require.NoError(t, err)
	assert.Len(t, page.Objects, 2)
	assert.True(t, page.IsTruncated)

	page, err = b.ListObjects(context.Background(), storage.ListInput{MaxKeys: 2, ContinuationToken: page.NextContinuationToken})
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "3", page.Objects[0].Key)
	assert.False(t, page.IsTruncated)
	assert.Empty(t, page.NextContinuationToken)
}

func TestListInvalidToken(t *testing.T) {
	_, err := New().ListObjects(context.Background(), storage.ListInput{ContinuationToken: "!!!"})
	assert.Error(t, err)
}

func TestDeleteObjectsBatchLimit(t *testing.T) {
	b := New()
	keys := make([]string, storage.MaxBatchDelete+1)
	assert.Error(t, b.DeleteObjects(context.Background(), keys))

	put(t, b, "x", "y", "z")
	require.NoError(t, b.DeleteObjects(context.Background(), []string{"x", "z", "nope"}))
	assert.Equal(t, []string{"y"}, b.Keys())
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().ListObjects(ctx, storage.ListInput{})
	assert.ErrorIs(t, err, context.Canceled)
}
