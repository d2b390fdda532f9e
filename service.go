package filedock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPresignTTL     = 300 * time.Second
	DefaultCleanupTimeout = 30 * time.Second
	DefaultConcurrency    = 8

	DefaultListLimit = 50
	MaxListLimit     = 1000

	DefaultContentType = "application/octet-stream"
)

// deletableStatuses are the statuses LockOwned considers when deleting.
// DELETED and FAILED records are treated as nonexistent.
var deletableStatuses = []Status{StatusPending, StatusAvailable, StatusDeleting}

// ServiceConfig holds configuration options for FileService.
type ServiceConfig struct {
	PresignTTL     time.Duration // Lifetime of issued URLs (default: 300s)
	CleanupTimeout time.Duration // Timeout for post-commit object deletes (default: 30s)
	Concurrency    int           // Max concurrent object store calls per request (default: 8)

	// Now overrides the clock used for lifecycle timestamps.
	Now func() time.Time
}

// FileService orchestrates uploads, deletions and the read path over a
// RecordStore and an ObjectStore.
type FileService struct {
	records        RecordStore
	objects        ObjectStore
	presignTTL     time.Duration
	cleanupTimeout time.Duration
	concurrency    int
	now            func() time.Time
	logger         *slog.Logger

	// cleanups tracks object deletes still running after Delete returned.
	cleanups sync.WaitGroup
}

func NewFileService(records RecordStore, objects ObjectStore, cfg ServiceConfig, logger *slog.Logger) (*FileService, error) {
	if records == nil {
		return nil, errors.New("new file service: record store is required")
	}
	if objects == nil {
		return nil, errors.New("new file service: object store is required")
	}
	if cfg.PresignTTL < 0 {
		return nil, fmt.Errorf("new file service: invalid presign ttl: %s", cfg.PresignTTL)
	}

	presignTTL := cfg.PresignTTL
	if presignTTL == 0 {
		presignTTL = DefaultPresignTTL
	}
	cleanupTimeout := cfg.CleanupTimeout
	if cleanupTimeout <= 0 {
		cleanupTimeout = DefaultCleanupTimeout
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FileService{
		records:        records,
		objects:        objects,
		presignTTL:     presignTTL,
		cleanupTimeout: cleanupTimeout,
		concurrency:    concurrency,
		now:            now,
		logger:         logger.With(slog.String("component", "files")),
	}, nil
}

// CreateUploads registers one PENDING record per request and returns a
// presigned write URL for each.
//
// All records are inserted in a single transaction: either every record is
// created or none is. URLs are issued after the commit, concurrently. A URL
// that cannot be issued is reported on its slot through UploadSlot.Err and
// does not roll back the record; the sweep eventually marks it FAILED.
//
// The returned slots are in request order.
//
// Error types returned:
//   - ErrInvalidRequest: empty list, invalid owner, blank filename, negative size
//   - ErrStorageUnavailable: the transaction failed, nothing was created
func (s *FileService) CreateUploads(ctx context.Context, ownerID string, reqs []UploadRequest) ([]UploadSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create uploads: %w", err)
	}

	if !IsValidOwnerID(ownerID) {
		return nil, fmt.Errorf("create uploads: %w: invalid owner", ErrInvalidRequest)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("create uploads: %w: no files requested", ErrInvalidRequest)
	}

	now := s.now().UTC()
	records := make([]FileRecord, len(reqs))
	for i, req := range reqs {
		if strings.TrimSpace(req.Filename) == "" {
			return nil, fmt.Errorf("create uploads: %w: file %d: filename cannot be empty", ErrInvalidRequest, i)
		}
		if req.Size < 0 {
			return nil, fmt.Errorf("create uploads: %w: file %d: size cannot be negative", ErrInvalidRequest, i)
		}

		contentType := req.ContentType
		if contentType == "" {
			contentType = DefaultContentType
		}

		records[i] = FileRecord{
			ID:          uuid.New(),
			OwnerID:     ownerID,
			Filename:    req.Filename,
			ContentType: contentType,
			Size:        req.Size,
			Status:      InitialStatus(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	err := s.records.Transact(ctx, func(tx Tx) error {
		for _, rec := range records {
			if err := tx.Insert(ctx, rec); err != nil {
				return fmt.Errorf("insert %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create uploads: %w: %w", ErrStorageUnavailable, err)
	}
	uploadsCreatedTotal.Add(float64(len(records)))

	slots := make([]UploadSlot, len(records))
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, rec := range records {
		slots[i] = UploadSlot{ID: rec.ID, Filename: rec.Filename}

		g.Go(func() error {
			url, presignErr := s.objects.Presign(ctx, rec.ObjectKey(), IntentWrite, s.presignTTL, PresignOptions{ContentType: rec.ContentType})
			if presignErr != nil {
				presignFailuresTotal.WithLabelValues(string(IntentWrite)).Inc()
				s.logger.Warn("issue upload url failed",
					slog.String("id", rec.ID.String()),
					slog.String("owner", ownerID),
					slog.Any("error", presignErr),
				)
				slots[i].Err = fmt.Errorf("presign %s: %w: %w", rec.ID, ErrStorageUnavailable, presignErr)
				return nil
			}
			slots[i].UploadURL = url
			return nil
		})
	}
	_ = g.Wait()

	return slots, nil
}

// Delete requests deletion of the given records on behalf of ownerID.
//
// The method performs the following steps:
//  1. Collapses duplicate ids
//  2. Locks every requested row that the owner holds and that is not
//     already DELETED or FAILED
//  3. Fails the whole request with ErrPermissionDenied if any id was not
//     locked; no record changes
//  4. Moves each locked row to DELETING; rows already DELETING are left as is
//  5. After commit, starts the object deletes of the rows this call
//     transitioned and returns without waiting for them
//
// Object deletes run in the background on a context detached from ctx,
// bounded by the cleanup timeout. Their failures are logged and counted,
// never returned: the record stays DELETING until a removal notification or
// the sweep confirms it. Use Wait or Close to drain them.
//
// Error types returned:
//   - ErrInvalidRequest: no ids or an invalid owner
//   - ErrPermissionDenied: an id is missing, not owned, deleted or failed
//   - ErrStorageUnavailable: the transaction failed
func (s *FileService) Delete(ctx context.Context, ownerID string, ids []uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}

	if !IsValidOwnerID(ownerID) {
		return fmt.Errorf("delete files: %w: invalid owner", ErrInvalidRequest)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return fmt.Errorf("delete files: %w: no file ids", ErrInvalidRequest)
	}

	var transitioned []FileRecord
	err := s.records.Transact(ctx, func(tx Tx) error {
		transitioned = transitioned[:0]

		locked, err := tx.LockOwned(ctx, ownerID, ids, deletableStatuses)
		if err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		if len(locked) != len(ids) {
			return fmt.Errorf("%w: %d of %d files not deletable", ErrPermissionDenied, len(ids)-len(locked), len(ids))
		}

		now := s.now().UTC()
		for _, rec := range locked {
			t, nextErr := Next(rec.Status, EventDeleteRequested)
			if nextErr != nil {
				// already DELETING: a concurrent request won
				continue
			}

			n, updateErr := tx.Update(ctx, rec.ID, ownerID, []Status{rec.Status}, t.Patch(now, rec.Size))
			if updateErr != nil {
				return fmt.Errorf("update %s: %w", rec.ID, updateErr)
			}
			if n == 1 {
				rec.Status = t.To
				transitioned = append(transitioned, rec)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return fmt.Errorf("delete files: %w", err)
		}
		return fmt.Errorf("delete files: %w: %w", ErrStorageUnavailable, err)
	}
	deletesRequestedTotal.Add(float64(len(transitioned)))

	if len(transitioned) > 0 {
		cleanupCtx := context.WithoutCancel(ctx)
		s.cleanups.Add(1)
		go func() {
			defer s.cleanups.Done()
			s.deleteObjects(cleanupCtx, transitioned)
		}()
	}
	return nil
}

// Wait blocks until every object delete started by Delete has finished.
func (s *FileService) Wait() {
	s.cleanups.Wait()
}

// Close waits for in-flight object deletes, giving up when ctx ends.
// Call it after the last Delete has returned.
func (s *FileService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.cleanups.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close file service: %w", ctx.Err())
	}
}

// deleteObjects issues one best-effort delete per record. ctx must already
// be detached from the request.
func (s *FileService) deleteObjects(ctx context.Context, records []FileRecord) {
	if len(records) == 0 {
		return
	}

	cleanupCtx, cancel := context.WithTimeout(ctx, s.cleanupTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, rec := range records {
		g.Go(func() error {
			err := s.objects.Delete(cleanupCtx, rec.ObjectKey())
			if err != nil && !errors.Is(err, ErrNotFound) {
				objectDeleteFailuresTotal.WithLabelValues("delete").Inc()
				s.logger.Warn("object delete failed, record stays DELETING",
					slog.String("id", rec.ID.String()),
					slog.String("key", rec.ObjectKey()),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// List returns the owner's AVAILABLE records, newest first.
func (s *FileService) List(ctx context.Context, ownerID string, q ListQuery) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, fmt.Errorf("list files: %w", err)
	}

	if !IsValidOwnerID(ownerID) {
		return ListResult{}, fmt.Errorf("list files: %w: invalid owner", ErrInvalidRequest)
	}

	q.Limit = clampLimit(q.Limit)

	result, err := s.records.ListAvailable(ctx, ownerID, q)
	if err != nil {
		return ListResult{}, fmt.Errorf("list files: %w", classifyStoreErr(err))
	}

	return result, nil
}

// ViewURL returns a presigned read URL for an AVAILABLE record owned by
// ownerID. Any other record, including one that does not exist, yields
// ErrPermissionDenied.
func (s *FileService) ViewURL(ctx context.Context, ownerID string, id uuid.UUID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("view file: %w", err)
	}

	if !IsValidOwnerID(ownerID) {
		return "", fmt.Errorf("view file: %w: invalid owner", ErrInvalidRequest)
	}

	rec, err := s.records.GetOwned(ctx, ownerID, id, []Status{StatusAvailable})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("view file %s: %w", id, ErrPermissionDenied)
		}
		return "", fmt.Errorf("view file %s: %w", id, classifyStoreErr(err))
	}

	url, err := s.objects.Presign(ctx, rec.ObjectKey(), IntentRead, s.presignTTL, PresignOptions{})
	if err != nil {
		presignFailuresTotal.WithLabelValues(string(IntentRead)).Inc()
		return "", fmt.Errorf("view file %s: %w: %w", id, ErrStorageUnavailable, err)
	}

	return url, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// classifyStoreErr keeps request errors as they are and reports everything
// else from the record store as ErrStorageUnavailable.
func classifyStoreErr(err error) error {
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrPermissionDenied) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
