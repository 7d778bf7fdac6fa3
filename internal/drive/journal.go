package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/retry"
	"github.com/fruitsalade/bucketdrive/internal/storage"
)

// Trash and restore have no atomic rename to lean on, so they copy every
// object first and delete the source afterwards. The journal records which
// phase a move reached so a restarted process can finish it.

const journalPrefix = MetadataPrefix + "moves/"

type moveKind string

const (
	moveTrash   moveKind = "trash"
	moveRestore moveKind = "restore"
)

type movePhase string

const (
	phaseCopying  movePhase = "copying"
	phaseDeleting movePhase = "deleting"
	phaseDone     movePhase = "done"
)

type moveRecord struct {
	ID        string    `json:"id"`
	Kind      moveKind  `json:"kind"`
	Source    string    `json:"source"`
	Phase     movePhase `json:"phase"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func journalKey(id string) string { return journalPrefix + id + ".json" }

// valid reports whether r names a source its kind may move.
func (r *moveRecord) valid() bool {
	if strings.Trim(r.Source, delimiter) == "" || isHidden(r.Source) {
		return false
	}
	switch r.Kind {
	case moveTrash:
		return !isTrashed(r.Source)
	case moveRestore:
		_, err := restoredKeyOf(r.Source)
		return err == nil
	}
	return false
}

// destination maps a source key to where a move puts it.
func (r *moveRecord) destination(key string) (string, error) {
	if r.Kind == moveRestore {
		return restoredKeyOf(key)
	}
	return trashKeyOf(key), nil
}

func (s *Service) saveMove(ctx context.Context, r *moveRecord, phase movePhase) error {
	r.Phase = phase
	r.UpdatedAt = s.now()
	if phase == phaseDone {
		if err := s.store.DeleteObject(ctx, journalKey(r.ID)); err != nil {
			return storeError("clear journal "+r.ID, err)
		}
		return nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode journal %s: %w", r.ID, err)
	}
	if err := s.store.PutObject(ctx, journalKey(r.ID), bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return storeError("write journal "+r.ID, err)
	}
	return nil
}

// moveSources returns the keys a move of source copies. A file moves only
// its own key, never siblings that merely share the prefix.
func (s *Service) moveSources(ctx context.Context, source string) ([]string, error) {
	keys, err := s.walkKeys(ctx, source)
	if err != nil {
		return nil, err
	}
	if isFolder(source) {
		return keys, nil
	}
	for _, k := range keys {
		if k == source {
			return []string{source}, nil
		}
	}
	return nil, nil
}

func (s *Service) copyAll(ctx context.Context, r *moveRecord, keys []string) error {
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst, err := r.destination(k)
		if err != nil {
			return err
		}
		if err := s.store.CopyObject(ctx, k, dst); err != nil {
			return storeError(fmt.Sprintf("copy %s -> %s", k, dst), err)
		}
	}
	return nil
}

// move runs a new two-phase move of source. A source with no objects is
// NotFound and leaves no journal behind.
func (s *Service) move(ctx context.Context, kind moveKind, source string) error {
	keys, err := s.moveSources(ctx, source)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return notFound("%q", source)
	}

	now := s.now()
	r := &moveRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    source,
		StartedAt: now,
	}
	if err := s.saveMove(ctx, r, phaseCopying); err != nil {
		return err
	}
	return s.finishMove(ctx, r, keys)
}

// finishMove continues r from its recorded phase. keys is the copy set
// when already known; nil re-walks the source.
func (s *Service) finishMove(ctx context.Context, r *moveRecord, keys []string) error {
	log := logging.WithContext(ctx).With(
		zap.String("move", r.ID),
		zap.String("kind", string(r.Kind)),
		logging.Key(r.Source))

	if r.Phase == phaseCopying {
		if keys == nil {
			var err error
			if keys, err = s.moveSources(ctx, r.Source); err != nil {
				return err
			}
		}
		if err := s.copyAll(ctx, r, keys); err != nil {
			log.Error("move copy phase failed", logging.Err(err))
			return err
		}
		if err := s.saveMove(ctx, r, phaseDeleting); err != nil {
			return err
		}
		log.Debug("move copied", zap.Int("objects", len(keys)))
	}

	if r.Phase == phaseDeleting {
		if _, err := s.deleteTree(ctx, r.Source); err != nil {
			log.Error("move delete phase failed", logging.Err(err))
			return err
		}
		if err := s.saveMove(ctx, r, phaseDone); err != nil {
			return err
		}
	}

	log.Info("move complete", zap.Int("objects", len(keys)))
	return nil
}

// pendingMoves reads the journal records of unfinished moves.
func (s *Service) pendingMoves(ctx context.Context) ([]*moveRecord, error) {
	keys, err := s.walkKeys(ctx, journalPrefix)
	if err != nil {
		return nil, err
	}

	var out []*moveRecord
	for _, k := range keys {
		if !strings.HasSuffix(k, ".json") {
			continue
		}
		rc, _, err := s.store.GetObject(ctx, k, 0, 0)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeError("read journal "+k, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, storeError("read journal "+k, err)
		}

		var r moveRecord
		if err := json.Unmarshal(data, &r); err != nil || r.ID == "" || !r.valid() {
			logging.WithContext(ctx).Warn("skipping invalid journal record", logging.Key(k))
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

// ResumeMoves finishes every move a previous process left incomplete.
// Store failures are retried with backoff; it returns the number of moves
// completed.
func (s *Service) ResumeMoves(ctx context.Context) (int, error) {
	policy := s.opts.Retry.WithTransient(isStoreFailure)
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		logging.WithContext(ctx).Warn("retrying move journal",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			logging.Err(err))
	}

	pending, err := retry.Value(ctx, policy, func() ([]*moveRecord, error) {
		return s.pendingMoves(ctx)
	})
	if err != nil {
		return 0, err
	}

	done := 0
	for _, r := range pending {
		err := retry.Do(ctx, policy, func() error {
			return s.finishMove(ctx, r, nil)
		})
		if err != nil {
			return done, fmt.Errorf("resume move %s: %w", r.ID, err)
		}
		done++
		s.cache.InvalidateAll()
	}

	if done > 0 {
		logging.WithContext(ctx).Info("resumed pending moves", zap.Int("count", done))
	}
	return done, nil
}

func isStoreFailure(err error) bool { return errors.Is(err, ErrBackingStore) }
