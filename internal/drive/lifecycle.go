package drive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/events"
	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

const defaultUploadName = "unnamed_file"

func checkMutableKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return invalidArgument("key is required")
	}
	if isHidden(key) {
		return invalidArgument("%q is reserved", key)
	}
	return nil
}

// checkWritableKey guards keys that new content is written to. Besides the
// hidden namespace it refuses a trashed copy of it, which Restore would
// otherwise be asked to put back.
func checkWritableKey(key string) error {
	if err := checkMutableKey(key); err != nil {
		return err
	}
	if isTrashed(key) {
		if _, err := restoredKeyOf(key); err != nil {
			return invalidArgument("%q is reserved", key)
		}
	}
	return nil
}

// deleteTree removes key. A folder key removes everything beneath it in
// batches, then the marker itself.
func (s *Service) deleteTree(ctx context.Context, key string) (int, error) {
	if !isFolder(key) {
		if err := s.store.DeleteObject(ctx, key); err != nil {
			return 0, storeError("delete "+key, err)
		}
		return 1, nil
	}

	keys, err := s.walkKeys(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := s.deleteBatches(ctx, keys); err != nil {
		return 0, err
	}
	if err := s.store.DeleteObject(ctx, key); err != nil {
		return 0, storeError("delete "+key, err)
	}
	return len(keys), nil
}

// deleteBatches issues one batch delete per storage.MaxBatchDelete keys.
func (s *Service) deleteBatches(ctx context.Context, keys []string) error {
	for i := 0; i < len(keys); i += storage.MaxBatchDelete {
		end := min(i+storage.MaxBatchDelete, len(keys))
		if err := s.store.DeleteObjects(ctx, keys[i:end]); err != nil {
			return storeError(fmt.Sprintf("delete batch of %d", end-i), err)
		}
	}
	return nil
}

// Delete permanently removes a file, or a folder and all its contents.
// Deleting a missing key succeeds.
func (s *Service) Delete(ctx context.Context, key string) error {
	start := time.Now()
	if err := checkMutableKey(key); err != nil {
		return err
	}

	n, err := s.deleteTree(ctx, key)
	metrics.RecordOperation("delete", time.Since(start), err == nil)
	if err != nil {
		logging.WithContext(ctx).Error("delete failed", logging.Key(key), logging.Err(err))
		return err
	}

	logging.WithContext(ctx).Info("deleted", logging.Key(key), zap.Int("objects", n))
	s.mutated(events.EventDelete, key, n)
	return nil
}

// BulkDelete removes the given keys as-is, in batches. A failed batch
// aborts the call; earlier batches stay deleted.
func (s *Service) BulkDelete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, k := range keys {
		if err := checkMutableKey(k); err != nil {
			return err
		}
	}

	start := time.Now()
	err := s.deleteBatches(ctx, keys)
	metrics.RecordOperation("bulk_delete", time.Since(start), err == nil)
	if err != nil {
		logging.WithContext(ctx).Error("bulk delete failed", zap.Int("count", len(keys)), logging.Err(err))
		return err
	}

	logging.WithContext(ctx).Info("bulk deleted", zap.Int("count", len(keys)))
	s.mutated(events.EventBulkDelete, "", len(keys))
	return nil
}

// CreateFolder writes an empty marker for folder and returns its key.
func (s *Service) CreateFolder(ctx context.Context, folder string) (string, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" || strings.Trim(folder, delimiter) == "" {
		return "", invalidArgument("folder name is required")
	}
	key := normalizeFolder(folder)
	if err := checkWritableKey(key); err != nil {
		return "", err
	}

	start := time.Now()
	err := s.store.PutObject(ctx, key, strings.NewReader(""), 0, "")
	metrics.RecordOperation("create_folder", time.Since(start), err == nil)
	if err != nil {
		return "", storeError("create folder "+key, err)
	}

	logging.WithContext(ctx).Info("folder created", logging.Key(key))
	s.mutated(events.EventCreateFolder, key, 0)
	return key, nil
}

// UploadInput is a single object upload.
type UploadInput struct {
	Prefix      string
	FileName    string
	ContentType string
	Body        io.Reader
	Size        int64
}

// UploadResult reports where an upload landed.
type UploadResult struct {
	Key      string `json:"key"`
	Location string `json:"location"`
}

// Upload stores in.Body at in.Prefix + in.FileName.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	fileName := path.Base(strings.ReplaceAll(strings.TrimSpace(in.FileName), "\\", "/"))
	if fileName == "" || fileName == "." || fileName == ".." || fileName == "/" {
		fileName = defaultUploadName
	}
	key := normalizeFolder(strings.TrimPrefix(in.Prefix, "/")) + fileName
	if err := checkWritableKey(key); err != nil {
		return nil, err
	}

	start := time.Now()
	err := s.store.PutObject(ctx, key, in.Body, in.Size, in.ContentType)
	metrics.RecordOperation("upload", time.Since(start), err == nil)
	if err != nil {
		return nil, storeError("upload "+key, err)
	}

	logging.WithContext(ctx).Info("uploaded", logging.Key(key), zap.Int64("size", in.Size))
	s.mutated(events.EventUpload, key, 0)
	return &UploadResult{Key: key, Location: s.signer.ObjectLocation(key)}, nil
}

// UploadURLResult is a presigned upload target.
type UploadURLResult struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// UploadURL presigns a direct upload of key.
func (s *Service) UploadURL(ctx context.Context, key, contentType string) (*UploadURLResult, error) {
	key = strings.TrimPrefix(key, "/")
	if err := checkWritableKey(key); err != nil {
		return nil, err
	}
	u, err := s.signer.UploadURL(ctx, key, contentType, s.opts.URLExpiry)
	if err != nil {
		return nil, storeError("sign upload "+key, err)
	}
	return &UploadURLResult{URL: u, Key: key}, nil
}

// MoveToTrash moves key (a file, or a folder with everything under it)
// beneath trash/ and returns the trash key.
func (s *Service) MoveToTrash(ctx context.Context, key string) (string, error) {
	if err := checkMutableKey(key); err != nil {
		return "", err
	}
	if isTrashed(key) {
		return "", invalidArgument("%q is already in trash", key)
	}

	start := time.Now()
	err := s.move(ctx, moveTrash, key)
	metrics.RecordOperation("trash", time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	s.mutated(events.EventTrash, key, 0)
	return trashKeyOf(key), nil
}

// Restore moves a trashed key back to its original path and returns it.
func (s *Service) Restore(ctx context.Context, trashKey string) (string, error) {
	original, err := restoredKeyOf(trashKey)
	if err != nil {
		return "", err
	}
	if strings.Trim(original, delimiter) == "" {
		return "", invalidArgument("cannot restore the trash root")
	}

	start := time.Now()
	err = s.move(ctx, moveRestore, trashKey)
	metrics.RecordOperation("restore", time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	s.mutated(events.EventRestore, original, 0)
	return original, nil
}
