package filedock_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/filedock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewFileService(t *testing.T) {
	store := newStore(t)
	objects := newMemObjects()

	_, err := filedock.NewFileService(nil, objects, filedock.ServiceConfig{}, nil)
	assert.Error(t, err)

	_, err = filedock.NewFileService(store, nil, filedock.ServiceConfig{}, nil)
	assert.Error(t, err)

	_, err = filedock.NewFileService(store, objects, filedock.ServiceConfig{PresignTTL: -1}, nil)
	assert.Error(t, err)

	svc, err := filedock.NewFileService(store, objects, filedock.ServiceConfig{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestFileService_CreateUploads(t *testing.T) {
	t.Run("creates pending records with write urls in order", func(t *testing.T) {
		store := newStore(t)
		objects := newMemObjects()
		svc := newService(t, store, objects)
		ctx := context.Background()

		slots, err := svc.CreateUploads(ctx, "alice", []filedock.UploadRequest{
			{Filename: "a.txt", Size: 10, ContentType: "text/plain"},
			{Filename: "b.pdf", Size: 20, ContentType: "application/pdf"},
			{Filename: "c.bin", Size: 0},
		})
		require.NoError(t, err)
		require.Len(t, slots, 3)

		for i, name := range []string{"a.txt", "b.pdf", "c.bin"} {
			slot := slots[i]
			assert.Equal(t, name, slot.Filename)
			assert.NoError(t, slot.Err)
			assert.Contains(t, slot.UploadURL, filedock.ObjectKey("alice", slot.ID))
			assert.Contains(t, slot.UploadURL, "intent=write")
			assert.Contains(t, slot.UploadURL, "ttl=300")

			rec := getRecord(t, store, "alice", slot.ID)
			assert.Equal(t, filedock.StatusPending, rec.Status)
			assert.Equal(t, name, rec.Filename)
			assert.True(t, t0.Equal(rec.CreatedAt))
			assert.True(t, t0.Equal(rec.UpdatedAt))
			assert.Nil(t, rec.CompletedAt)
		}

		assert.Equal(t, "application/octet-stream", getRecord(t, store, "alice", slots[2].ID).ContentType)
		assert.Equal(t, int64(20), getRecord(t, store, "alice", slots[1].ID).Size)
	})

	t.Run("pending records are not listed", func(t *testing.T) {
		store := newStore(t)
		svc := newService(t, store, newMemObjects())

		upload(t, svc, "alice", "a.txt")

		result, err := svc.List(context.Background(), "alice", filedock.ListQuery{})
		require.NoError(t, err)
		assert.Empty(t, result.Items)
	})

	t.Run("presign failure is reported on its slot only", func(t *testing.T) {
		store := newStore(t)
		svc := newService(t, store, newMemObjects())

		slots, err := svc.CreateUploads(context.Background(), "alice", []filedock.UploadRequest{
			{Filename: "ok.txt", ContentType: "text/plain"},
			{Filename: "bad.txt", ContentType: failContentType},
		})
		require.NoError(t, err)
		require.Len(t, slots, 2)

		assert.NoError(t, slots[0].Err)
		assert.NotEmpty(t, slots[0].UploadURL)

		assert.ErrorIs(t, slots[1].Err, filedock.ErrStorageUnavailable)
		assert.Empty(t, slots[1].UploadURL)

		// the record stays; the sweep fails it later
		assert.Equal(t, filedock.StatusPending, getRecord(t, store, "alice", slots[1].ID).Status)
	})

	t.Run("invalid input", func(t *testing.T) {
		svc := newService(t, newStore(t), newMemObjects())
		ctx := context.Background()

		tests := []struct {
			name  string
			owner string
			reqs  []filedock.UploadRequest
		}{
			{name: "empty owner", owner: "", reqs: []filedock.UploadRequest{{Filename: "a"}}},
			{name: "owner with slash", owner: "a/b", reqs: []filedock.UploadRequest{{Filename: "a"}}},
			{name: "no files", owner: "alice"},
			{name: "blank filename", owner: "alice", reqs: []filedock.UploadRequest{{Filename: "a"}, {Filename: "  "}}},
			{name: "negative size", owner: "alice", reqs: []filedock.UploadRequest{{Filename: "a", Size: -1}}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.CreateUploads(ctx, tt.owner, tt.reqs)
				assert.ErrorIs(t, err, filedock.ErrInvalidRequest)
			})
		}
	})

	t.Run("invalid input creates nothing", func(t *testing.T) {
		store := newStore(t)
		svc := newService(t, store, newMemObjects())

		_, err := svc.CreateUploads(context.Background(), "alice", []filedock.UploadRequest{
			{Filename: "a.txt"},
			{Filename: ""},
		})
		require.ErrorIs(t, err, filedock.ErrInvalidRequest)

		page, err := store.ListStale(context.Background(), filedock.StaleQuery{
			Status: filedock.StatusPending, Before: t0.Add(time.Hour), Limit: 10,
		})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})

	t.Run("store failure creates nothing and issues no urls", func(t *testing.T) {
		store := new(SpyRecordStore)
		objects := newMemObjects()
		svc := newService(t, store, objects)

		store.On("Transact", mock.Anything).Return(errors.New("connection refused"))

		slots, err := svc.CreateUploads(context.Background(), "alice", []filedock.UploadRequest{{Filename: "a.txt"}})
		assert.ErrorIs(t, err, filedock.ErrStorageUnavailable)
		assert.Nil(t, slots)
		assert.Empty(t, objects.presigned)

		store.AssertExpectations(t)
	})

	t.Run("cancelled context", func(t *testing.T) {
		svc := newService(t, newStore(t), newMemObjects())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.CreateUploads(ctx, "alice", []filedock.UploadRequest{{Filename: "a.txt"}})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFileService_Delete(t *testing.T) {
	t.Run("moves records to deleting and removes objects", func(t *testing.T) {
		store := newStore(t)
		objects := newMemObjects()
		svc := newService(t, store, objects)
		ctx := context.Background()

		slots := upload(t, svc, "alice", "a.txt", "b.txt")
		confirm(t, store, "alice", slots[0])

		err := svc.Delete(ctx, "alice", []uuid.UUID{slots[0].ID, slots[1].ID})
		require.NoError(t, err)
		svc.Wait()

		for _, s := range slots {
			rec := getRecord(t, store, "alice", s.ID)
			assert.Equal(t, filedock.StatusDeleting, rec.Status)
			assert.Nil(t, rec.DeletedAt)
			assert.Equal(t, 1, objects.deleteCount(filedock.ObjectKey("alice", s.ID)))
		}
	})

	t.Run("duplicate ids collapse", func(t *testing.T) {
		store := newStore(t)
		objects := newMemObjects()
		svc := newService(t, store, objects)

		slots := upload(t, svc, "alice", "a.txt")
		id := slots[0].ID

		require.NoError(t, svc.Delete(context.Background(), "alice", []uuid.UUID{id, id, id}))
		svc.Wait()

		assert.Equal(t, 1, objects.deleteCount(filedock.ObjectKey("alice", id)))
	})

	t.Run("any foreign or missing id denies the whole request", func(t *testing.T) {
		store := newStore(t)
		objects := newMemObjects()
		svc := newService(t, store, objects)
		ctx := context.Background()

		mine := upload(t, svc, "alice", "a.txt")[0]
		theirs := upload(t, svc, "bob", "b.txt")[0]

		for _, ids := range [][]uuid.UUID{
			{mine.ID, theirs.ID},
			{mine.ID, uuid.New()},
			{theirs.ID},
		} {
			err := svc.Delete(ctx, "alice", ids)
			assert.ErrorIs(t, err, filedock.ErrPermissionDenied)
		}

		assert.Equal(t, filedock.StatusPending, getRecord(t, store, "alice", mine.ID).Status)
		assert.Equal(t, filedock.StatusPending, getRecord(t, store, "bob", theirs.ID).Status)
		assert.Zero(t, objects.totalDeletes())
	})

	t.Run("deleted and failed records are denied", func(t *testing.T) {
		store := newStore(t)
		objects := newMemObjects()
		svc := newService(t, store, objects)
		ctx := context.Background()

		slots := upload(t, svc, "alice", "gone.txt", "failed.txt")
		require.NoError(t, svc.Delete(ctx, "alice", []uuid.UUID{slots[0].ID}))
		svc.Wait()
		_, err := newReconciler(t, store, t0).Apply(ctx, []filedock.Notification{removed("alice", slots[0].ID)})
		require.NoError(t, err)
		require.Equal(t, filedock.StatusDeleted, getRecord(t, store, "alice", slots[0].ID).Status)

		n, err := store.ConditionalUpdate(ctx, slots[1].ID, "alice", []filedock.Status{filedock.StatusPending},
			filedock.Patch{Status: filedock.StatusFailed, UpdatedAt: t0})
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		assert.ErrorIs(t, svc.Delete(ctx, "alice", []uuid.UUID{slots[0].ID}), filedock.ErrPermissionDenied)
		assert.ErrorIs(t, svc.Delete(ctx, "alice", []uuid.UUID{slots[1].ID}), filedock.ErrPermissionDenied)
	})

	t.Run("repeat delete succeeds without another object delete", func(t *testing.T) {
		store := newStore(t)
		objects := newMemObjects()
		svc := newService(t, store, objects)
		ctx := context.Background()

		id := upload(t, svc, "alice", "a.txt")[0].ID

		require.NoError(t, svc.Delete(ctx, "alice", []uuid.UUID{id}))
		svc.Wait()

		require.NoError(t, svc.Delete(ctx, "alice", []uuid.UUID{id}))
		svc.Wait()

		assert.Equal(t, filedock.StatusDeleting, getRecord(t, store, "alice", id).Status)
		assert.Equal(t, 1, objects.deleteCount(filedock.ObjectKey("alice", id)))
	})

	t.Run("object delete failure is not returned", func(t *testing.T) {
		store := newStore(t)
		objects := newMemObjects()
		objects.failDeletes(errors.New("object store down"))
		svc := newService(t, store, objects)

		id := upload(t, svc, "alice", "a.txt")[0].ID

		require.NoError(t, svc.Delete(context.Background(), "alice", []uuid.UUID{id}))
		svc.Wait()

		assert.Equal(t, filedock.StatusDeleting, getRecord(t, store, "alice", id).Status)
		assert.Equal(t, 1, objects.deleteCount(filedock.ObjectKey("alice", id)))
	})

	t.Run("object delete survives caller cancellation", func(t *testing.T) {
		store := newStore(t)
		objects := &cancelObserver{memObjects: newMemObjects()}
		svc := newService(t, store, objects)

		id := upload(t, svc, "alice", "a.txt")[0].ID

		ctx, cancel := context.WithCancel(context.Background())
		objects.onDelete = cancel

		require.NoError(t, svc.Delete(ctx, "alice", []uuid.UUID{id}))
		cancel()
		svc.Wait()

		assert.NoError(t, objects.ctxErr)
	})

	t.Run("concurrent identical deletes transition once", func(t *testing.T) {
		store := newStore(t)
		objects := newMemObjects()
		svc := newService(t, store, objects)

		slots := upload(t, svc, "alice", "a.txt", "b.txt")
		ids := []uuid.UUID{slots[0].ID, slots[1].ID}

		var wg sync.WaitGroup
		errs := make([]error, 10)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = svc.Delete(context.Background(), "alice", ids)
			}()
		}
		wg.Wait()
		svc.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		for _, id := range ids {
			assert.Equal(t, filedock.StatusDeleting, getRecord(t, store, "alice", id).Status)
			assert.Equal(t, 1, objects.deleteCount(filedock.ObjectKey("alice", id)))
		}
	})

	t.Run("concurrent overlapping deletes transition each record once", func(t *testing.T) {
		store := newStore(t)
		objects := newMemObjects()
		svc := newService(t, store, objects)

		slots := upload(t, svc, "alice", "a.txt", "b.txt", "c.txt")

		var wg sync.WaitGroup
		for _, ids := range [][]uuid.UUID{
			{slots[0].ID, slots[1].ID},
			{slots[1].ID, slots[2].ID},
			{slots[2].ID, slots[0].ID},
		} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, svc.Delete(context.Background(), "alice", ids))
			}()
		}
		wg.Wait()
		svc.Wait()

		for _, s := range slots {
			assert.Equal(t, filedock.StatusDeleting, getRecord(t, store, "alice", s.ID).Status)
			assert.Equal(t, 1, objects.deleteCount(filedock.ObjectKey("alice", s.ID)))
		}
	})

	t.Run("returns before object deletes finish", func(t *testing.T) {
		store := newStore(t)
		objects := newGatedObjects()
		svc := newService(t, store, objects)

		slots := upload(t, svc, "alice", "a.txt", "b.txt")
		ids := []uuid.UUID{slots[0].ID, slots[1].ID}

		done := make(chan error, 1)
		go func() { done <- svc.Delete(context.Background(), "alice", ids) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			close(objects.release)
			t.Fatal("Delete waited for the object store")
		}

		for _, id := range ids {
			assert.Equal(t, filedock.StatusDeleting, getRecord(t, store, "alice", id).Status)
		}
		assert.Zero(t, objects.totalDeletes())

		close(objects.release)
		svc.Wait()

		for _, id := range ids {
			assert.Equal(t, 1, objects.deleteCount(filedock.ObjectKey("alice", id)))
		}
	})

	t.Run("close gives up when its context ends", func(t *testing.T) {
		store := newStore(t)
		objects := newGatedObjects()
		svc := newService(t, store, objects)

		id := upload(t, svc, "alice", "a.txt")[0].ID
		require.NoError(t, svc.Delete(context.Background(), "alice", []uuid.UUID{id}))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, svc.Close(ctx), context.DeadlineExceeded)

		close(objects.release)
		assert.NoError(t, svc.Close(context.Background()))
		assert.Equal(t, 1, objects.deleteCount(filedock.ObjectKey("alice", id)))
	})

	t.Run("invalid input", func(t *testing.T) {
		svc := newService(t, newStore(t), newMemObjects())
		ctx := context.Background()

		assert.ErrorIs(t, svc.Delete(ctx, "alice", nil), filedock.ErrInvalidRequest)
		assert.ErrorIs(t, svc.Delete(ctx, "", []uuid.UUID{uuid.New()}), filedock.ErrInvalidRequest)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(SpyRecordStore)
		objects := newMemObjects()
		svc := newService(t, store, objects)

		store.On("Transact", mock.Anything).Return(errors.New("deadlock detected"))

		err := svc.Delete(context.Background(), "alice", []uuid.UUID{uuid.New()})
		assert.ErrorIs(t, err, filedock.ErrStorageUnavailable)
		assert.Zero(t, objects.totalDeletes())
	})
}

// cancelObserver cancels the caller's context on the first delete and
// records the error of the context the delete actually ran with.
type cancelObserver struct {
	*memObjects
	onDelete func()
	ctxErr   error
}

func (c *cancelObserver) Delete(ctx context.Context, key string) error {
	c.onDelete()
	c.ctxErr = ctx.Err()
	return c.memObjects.Delete(ctx, key)
}

// gatedObjects holds every delete until release is closed.
type gatedObjects struct {
	*memObjects
	release chan struct{}
}

func newGatedObjects() *gatedObjects {
	return &gatedObjects{memObjects: newMemObjects(), release: make(chan struct{})}
}

func (g *gatedObjects) Delete(ctx context.Context, key string) error {
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.memObjects.Delete(ctx, key)
}

func TestFileService_List(t *testing.T) {
	t.Run("returns only available records of the owner", func(t *testing.T) {
		store := newStore(t)
		svc := newService(t, store, newMemObjects())
		ctx := context.Background()

		mine := upload(t, svc, "alice", "a.txt", "b.txt", "c.txt")
		theirs := upload(t, svc, "bob", "d.txt")
		confirm(t, store, "alice", mine[0], mine[1])
		confirm(t, store, "bob", theirs[0])
		require.NoError(t, svc.Delete(ctx, "alice", []uuid.UUID{mine[1].ID}))
		svc.Wait()

		result, err := svc.List(ctx, "alice", filedock.ListQuery{})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, mine[0].ID, result.Items[0].ID)
		assert.Equal(t, int64(2048), result.Items[0].Size)
		assert.Empty(t, result.NextCursor)
	})

	t.Run("paginates", func(t *testing.T) {
		store := newStore(t)
		svc := newService(t, store, newMemObjects())
		ctx := context.Background()

		slots := upload(t, svc, "alice", "a.txt", "b.txt", "c.txt")
		confirm(t, store, "alice", slots...)

		seen := map[uuid.UUID]bool{}
		cursor := ""
		pages := 0
		for {
			result, err := svc.List(ctx, "alice", filedock.ListQuery{Limit: 2, Cursor: cursor})
			require.NoError(t, err)
			pages++
			for _, item := range result.Items {
				assert.False(t, seen[item.ID], "duplicate %s", item.ID)
				seen[item.ID] = true
			}
			if result.NextCursor == "" {
				break
			}
			cursor = result.NextCursor
		}

		assert.Equal(t, 2, pages)
		assert.Len(t, seen, 3)
	})

	t.Run("malformed cursor", func(t *testing.T) {
		svc := newService(t, newStore(t), newMemObjects())

		_, err := svc.List(context.Background(), "alice", filedock.ListQuery{Cursor: "%%%"})
		assert.ErrorIs(t, err, filedock.ErrInvalidRequest)
	})

	t.Run("limit is clamped", func(t *testing.T) {
		store := new(SpyRecordStore)
		svc := newService(t, store, newMemObjects())
		ctx := context.Background()

		store.On("ListAvailable", ctx, "alice", filedock.ListQuery{Limit: filedock.DefaultListLimit}).
			Return(filedock.ListResult{}, nil).Once()
		store.On("ListAvailable", ctx, "alice", filedock.ListQuery{Limit: filedock.MaxListLimit}).
			Return(filedock.ListResult{}, nil).Once()

		_, err := svc.List(ctx, "alice", filedock.ListQuery{})
		require.NoError(t, err)
		_, err = svc.List(ctx, "alice", filedock.ListQuery{Limit: 1 << 20})
		require.NoError(t, err)

		store.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(SpyRecordStore)
		svc := newService(t, store, newMemObjects())

		store.On("ListAvailable", mock.Anything, "alice", mock.Anything).
			Return(filedock.ListResult{}, errors.New("connection reset"))

		_, err := svc.List(context.Background(), "alice", filedock.ListQuery{})
		assert.ErrorIs(t, err, filedock.ErrStorageUnavailable)
	})
}

func TestFileService_ViewURL(t *testing.T) {
	t.Run("available record gets a read url", func(t *testing.T) {
		store := newStore(t)
		svc := newService(t, store, newMemObjects())
		ctx := context.Background()

		slot := upload(t, svc, "alice", "a.txt")[0]
		confirm(t, store, "alice", slot)

		url, err := svc.ViewURL(ctx, "alice", slot.ID)
		require.NoError(t, err)
		assert.Contains(t, url, filedock.ObjectKey("alice", slot.ID))
		assert.Contains(t, url, "intent=read")

		again, err := svc.ViewURL(ctx, "alice", slot.ID)
		require.NoError(t, err)
		assert.NotEqual(t, url, again, "urls are issued fresh")
	})

	t.Run("anything else is denied", func(t *testing.T) {
		store := newStore(t)
		svc := newService(t, store, newMemObjects())
		ctx := context.Background()

		slots := upload(t, svc, "alice", "pending.txt", "deleting.txt")
		confirm(t, store, "alice", slots[1])
		require.NoError(t, svc.Delete(ctx, "alice", []uuid.UUID{slots[1].ID}))
		svc.Wait()
		theirs := upload(t, svc, "bob", "b.txt")[0]
		confirm(t, store, "bob", theirs)

		for _, id := range []uuid.UUID{slots[0].ID, slots[1].ID, theirs.ID, uuid.New()} {
			_, err := svc.ViewURL(ctx, "alice", id)
			assert.ErrorIs(t, err, filedock.ErrPermissionDenied)
		}
	})

	t.Run("presign failure", func(t *testing.T) {
		store := new(SpyRecordStore)
		id := uuid.New()

		store.On("GetOwned", mock.Anything, "alice", id, []filedock.Status{filedock.StatusAvailable}).
			Return(filedock.FileRecord{ID: id, OwnerID: "alice", Status: filedock.StatusAvailable}, nil)

		failing := &failingPresigner{memObjects: newMemObjects()}
		svc, err := filedock.NewFileService(store, failing, filedock.ServiceConfig{}, nil)
		require.NoError(t, err)

		_, err = svc.ViewURL(context.Background(), "alice", id)
		assert.ErrorIs(t, err, filedock.ErrStorageUnavailable)
		assert.False(t, strings.Contains(err.Error(), "permission"))
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(SpyRecordStore)
		svc := newService(t, store, newMemObjects())

		store.On("GetOwned", mock.Anything, "alice", mock.Anything, mock.Anything).
			Return(filedock.FileRecord{}, errors.New("connection reset"))

		_, err := svc.ViewURL(context.Background(), "alice", uuid.New())
		assert.ErrorIs(t, err, filedock.ErrStorageUnavailable)
	})
}

type failingPresigner struct {
	*memObjects
}

func (f *failingPresigner) Presign(context.Context, string, filedock.Intent, time.Duration, filedock.PresignOptions) (string, error) {
	return "", errors.New("signer offline")
}
