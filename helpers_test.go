package filedock_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/filedock"
	"github.com/sagarc03/filedock/database/sqlite"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// t0 is the fixed clock used by every component under test.
var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var allStatuses = []filedock.Status{
	filedock.StatusPending,
	filedock.StatusAvailable,
	filedock.StatusDeleting,
	filedock.StatusDeleted,
	filedock.StatusFailed,
}

// failContentType makes memObjects refuse to presign a write URL.
const failContentType = "application/x-fail"

func clock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// newStore returns a migrated in-memory SQLite record store.
func newStore(t *testing.T) filedock.RecordStore {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Connect(ctx, ":memory:", filedock.Tables{Files: "files"})
	require.NoError(t, err, "connect")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx), "migrate")
	return db.GetRepo()
}

// memObjects is an in-memory ObjectStore that records every call.
type memObjects struct {
	mu        sync.Mutex
	presigned []string
	deletes   map[string]int
	deleteErr error
}

func newMemObjects() *memObjects {
	return &memObjects{deletes: make(map[string]int)}
}

func (m *memObjects) Presign(ctx context.Context, key string, intent filedock.Intent, ttl time.Duration, opts filedock.PresignOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.ContentType == failContentType {
		return "", errors.New("signer offline")
	}
	url := fmt.Sprintf("https://objects.test/%s?intent=%s&ttl=%d&n=%d", key, intent, int(ttl.Seconds()), len(m.presigned))
	m.presigned = append(m.presigned, url)
	return url, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes[key]++
	return m.deleteErr
}

func (m *memObjects) deleteCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes[key]
}

func (m *memObjects) totalDeletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.deletes {
		total += n
	}
	return total
}

func (m *memObjects) failDeletes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// SpyRecordStore is a mock RecordStore for failure paths.
type SpyRecordStore struct {
	mock.Mock
}

func (s *SpyRecordStore) Transact(ctx context.Context, fn func(tx filedock.Tx) error) error {
	args := s.Called(ctx)
	return args.Error(0)
}

func (s *SpyRecordStore) ConditionalUpdate(ctx context.Context, id uuid.UUID, ownerID string, from []filedock.Status, patch filedock.Patch) (int64, error) {
	args := s.Called(ctx, id, ownerID, from, patch)
	return args.Get(0).(int64), args.Error(1)
}

func (s *SpyRecordStore) GetOwned(ctx context.Context, ownerID string, id uuid.UUID, statuses []filedock.Status) (filedock.FileRecord, error) {
	args := s.Called(ctx, ownerID, id, statuses)
	return args.Get(0).(filedock.FileRecord), args.Error(1)
}

func (s *SpyRecordStore) ListAvailable(ctx context.Context, ownerID string, q filedock.ListQuery) (filedock.ListResult, error) {
	args := s.Called(ctx, ownerID, q)
	return args.Get(0).(filedock.ListResult), args.Error(1)
}

func (s *SpyRecordStore) ListStale(ctx context.Context, q filedock.StaleQuery) (filedock.ListResult, error) {
	args := s.Called(ctx, q)
	return args.Get(0).(filedock.ListResult), args.Error(1)
}

func newService(t *testing.T, store filedock.RecordStore, objects filedock.ObjectStore) *filedock.FileService {
	t.Helper()
	svc, err := filedock.NewFileService(store, objects, filedock.ServiceConfig{Now: clock(t0)}, nil)
	require.NoError(t, err, "new file service")
	t.Cleanup(svc.Wait)
	return svc
}

func newReconciler(t *testing.T, store filedock.RecordStore, at time.Time) *filedock.Reconciler {
	t.Helper()
	r, err := filedock.NewReconciler(store, filedock.ReconcilerConfig{Bucket: "files", Now: clock(at)}, nil)
	require.NoError(t, err, "new reconciler")
	return r
}

func getRecord(t *testing.T, store filedock.RecordStore, owner string, id uuid.UUID) filedock.FileRecord {
	t.Helper()
	rec, err := store.GetOwned(context.Background(), owner, id, allStatuses)
	require.NoError(t, err, "get record %s", id)
	return rec
}

// upload creates one PENDING record per filename and returns the slots.
func upload(t *testing.T, svc *filedock.FileService, owner string, filenames ...string) []filedock.UploadSlot {
	t.Helper()
	reqs := make([]filedock.UploadRequest, len(filenames))
	for i, name := range filenames {
		reqs[i] = filedock.UploadRequest{Filename: name, Size: 100, ContentType: "text/plain"}
	}
	slots, err := svc.CreateUploads(context.Background(), owner, reqs)
	require.NoError(t, err)
	require.Len(t, slots, len(filenames))
	return slots
}

func created(owner string, id uuid.UUID, size int64) filedock.Notification {
	return filedock.Notification{
		Kind:      filedock.KindCreated,
		EventName: "s3:ObjectCreated:Put",
		Bucket:    "files",
		Key:       filedock.ObjectKey(owner, id),
		Size:      size,
	}
}

func removed(owner string, id uuid.UUID) filedock.Notification {
	return filedock.Notification{
		Kind:      filedock.KindRemoved,
		EventName: "s3:ObjectRemoved:Delete",
		Bucket:    "files",
		Key:       filedock.ObjectKey(owner, id),
	}
}

// confirm applies a created notification for every slot.
func confirm(t *testing.T, store filedock.RecordStore, owner string, slots ...filedock.UploadSlot) {
	t.Helper()
	batch := make([]filedock.Notification, len(slots))
	for i, s := range slots {
		batch[i] = created(owner, s.ID, 2048)
	}
	result, err := newReconciler(t, store, t0).Apply(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, len(slots), result.Applied)
}
