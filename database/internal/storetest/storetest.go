// Package storetest is a conformance suite for filedock.RecordStore
// implementations. Each backend's tests call Run with a constructor that
// returns an empty, migrated store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/filedock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base is truncated to microseconds so that every backend stores it exactly.
var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewRecord returns a PENDING record for ownerID created at createdAt.
func NewRecord(ownerID string, createdAt time.Time) filedock.FileRecord {
	return filedock.FileRecord{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Size:        1024,
		Status:      filedock.StatusPending,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// Insert stores recs in one transaction.
func Insert(t *testing.T, store filedock.RecordStore, recs ...filedock.FileRecord) {
	t.Helper()
	err := store.Transact(context.Background(), func(tx filedock.Tx) error {
		for _, rec := range recs {
			if err := tx.Insert(context.Background(), rec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// SetStatus forces rec into status with the given updated_at.
func SetStatus(t *testing.T, store filedock.RecordStore, rec filedock.FileRecord, status filedock.Status, at time.Time) {
	t.Helper()
	n, err := store.ConditionalUpdate(context.Background(), rec.ID, rec.OwnerID,
		[]filedock.Status{rec.Status}, filedock.Patch{Status: status, UpdatedAt: at})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

// Run executes the suite. newStore must return an empty store per call.
func Run(t *testing.T, newStore func(t *testing.T) filedock.RecordStore) {
	t.Run("insert and get owned", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord("alice", base)
		Insert(t, store, rec)

		got, err := store.GetOwned(ctx, "alice", rec.ID, []filedock.Status{filedock.StatusPending})
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "alice", got.OwnerID)
		assert.Equal(t, "report.pdf", got.Filename)
		assert.Equal(t, "application/pdf", got.ContentType)
		assert.Equal(t, int64(1024), got.Size)
		assert.Equal(t, filedock.StatusPending, got.Status)
		assert.True(t, base.Equal(got.CreatedAt))
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.DeletedAt)
	})

	t.Run("get owned hides other owners and statuses", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord("alice", base)
		Insert(t, store, rec)

		_, err := store.GetOwned(ctx, "bob", rec.ID, []filedock.Status{filedock.StatusPending})
		assert.ErrorIs(t, err, filedock.ErrNotFound)

		_, err = store.GetOwned(ctx, "alice", rec.ID, []filedock.Status{filedock.StatusAvailable})
		assert.ErrorIs(t, err, filedock.ErrNotFound)

		_, err = store.GetOwned(ctx, "alice", uuid.New(), []filedock.Status{filedock.StatusPending})
		assert.ErrorIs(t, err, filedock.ErrNotFound)
	})

	t.Run("transact rolls back on error", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord("alice", base)
		boom := errors.New("boom")

		err := store.Transact(ctx, func(tx filedock.Tx) error {
			if err := tx.Insert(ctx, rec); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = store.GetOwned(ctx, "alice", rec.ID, []filedock.Status{filedock.StatusPending})
		assert.ErrorIs(t, err, filedock.ErrNotFound)
	})

	t.Run("insert duplicate id fails", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord("alice", base)
		Insert(t, store, rec)

		err := store.Transact(ctx, func(tx filedock.Tx) error {
			return tx.Insert(ctx, rec)
		})
		assert.Error(t, err)
	})

	t.Run("conditional update is guarded by status and owner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord("alice", base)
		Insert(t, store, rec)

		completed := base.Add(time.Minute)
		size := int64(2048)
		patch := filedock.Patch{
			Status:      filedock.StatusAvailable,
			UpdatedAt:   completed,
			Size:        &size,
			CompletedAt: &completed,
		}
		pending := []filedock.Status{filedock.StatusPending}

		n, err := store.ConditionalUpdate(ctx, rec.ID, "bob", pending, patch)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n, "other owner must not match")

		n, err = store.ConditionalUpdate(ctx, rec.ID, "alice", pending, patch)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = store.ConditionalUpdate(ctx, rec.ID, "alice", pending, patch)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n, "replay must not match")

		got, err := store.GetOwned(ctx, "alice", rec.ID, []filedock.Status{filedock.StatusAvailable})
		require.NoError(t, err)
		assert.Equal(t, int64(2048), got.Size)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, completed.Equal(*got.CompletedAt))
		assert.True(t, completed.Equal(got.UpdatedAt))
		assert.Nil(t, got.DeletedAt)
	})

	t.Run("conditional update keeps unset columns", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord("alice", base)
		Insert(t, store, rec)

		n, err := store.ConditionalUpdate(ctx, rec.ID, "alice",
			[]filedock.Status{filedock.StatusPending},
			filedock.Patch{Status: filedock.StatusDeleting, UpdatedAt: base.Add(time.Second)})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := store.GetOwned(ctx, "alice", rec.ID, []filedock.Status{filedock.StatusDeleting})
		require.NoError(t, err)
		assert.Equal(t, int64(1024), got.Size)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("lock owned filters owner and status", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		mine := NewRecord("alice", base)
		deleted := NewRecord("alice", base)
		theirs := NewRecord("bob", base)
		Insert(t, store, mine, deleted, theirs)
		SetStatus(t, store, deleted, filedock.StatusDeleted, base)

		var locked []filedock.FileRecord
		err := store.Transact(ctx, func(tx filedock.Tx) error {
			var err error
			locked, err = tx.LockOwned(ctx, "alice",
				[]uuid.UUID{mine.ID, deleted.ID, theirs.ID, uuid.New()},
				[]filedock.Status{filedock.StatusPending, filedock.StatusAvailable, filedock.StatusDeleting})
			return err
		})
		require.NoError(t, err)
		require.Len(t, locked, 1)
		assert.Equal(t, mine.ID, locked[0].ID)
	})

	t.Run("lock owned blocks overlapping lockers until commit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := NewRecord("alice", base)
		shared := NewRecord("alice", base)
		second := NewRecord("alice", base)
		Insert(t, store, first, shared, second)

		deletable := []filedock.Status{filedock.StatusPending, filedock.StatusAvailable, filedock.StatusDeleting}
		markDeleting := func(tx filedock.Tx, recs []filedock.FileRecord) (int64, error) {
			var total int64
			for _, rec := range recs {
				if rec.Status != filedock.StatusPending {
					continue
				}
				n, err := tx.Update(ctx, rec.ID, "alice", []filedock.Status{filedock.StatusPending},
					filedock.Patch{Status: filedock.StatusDeleting, UpdatedAt: base.Add(time.Second)})
				if err != nil {
					return total, err
				}
				total += n
			}
			return total, nil
		}

		locked := make(chan struct{})
		release := make(chan struct{})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Transact(ctx, func(tx filedock.Tx) error {
				recs, err := tx.LockOwned(ctx, "alice", []uuid.UUID{first.ID, shared.ID}, deletable)
				if err != nil {
					return err
				}
				assert.Len(t, recs, 2)
				close(locked)
				<-release
				n, err := markDeleting(tx, recs)
				assert.Equal(t, int64(2), n)
				return err
			})
			assert.NoError(t, err)
		}()

		<-locked

		type outcome struct {
			seen        map[uuid.UUID]filedock.Status
			transitions int64
		}
		secondDone := make(chan outcome, 1)
		go func() {
			var out outcome
			err := store.Transact(ctx, func(tx filedock.Tx) error {
				recs, err := tx.LockOwned(ctx, "alice", []uuid.UUID{shared.ID, second.ID}, deletable)
				if err != nil {
					return err
				}
				out.seen = make(map[uuid.UUID]filedock.Status, len(recs))
				for _, rec := range recs {
					out.seen[rec.ID] = rec.Status
				}
				out.transitions, err = markDeleting(tx, recs)
				return err
			})
			assert.NoError(t, err)
			secondDone <- out
		}()

		select {
		case <-secondDone:
			close(release)
			wg.Wait()
			t.Fatal("overlapping locker must wait for the first transaction")
		case <-time.After(200 * time.Millisecond):
		}

		close(release)
		wg.Wait()

		select {
		case out := <-secondDone:
			require.Len(t, out.seen, 2)
			assert.Equal(t, filedock.StatusDeleting, out.seen[shared.ID], "committed status is visible")
			assert.Equal(t, filedock.StatusPending, out.seen[second.ID])
			assert.Equal(t, int64(1), out.transitions, "only the untouched record transitions")
		case <-time.After(5 * time.Second):
			t.Fatal("overlapping locker never acquired the lock")
		}

		for _, rec := range []filedock.FileRecord{first, shared, second} {
			_, err := store.GetOwned(ctx, "alice", rec.ID, []filedock.Status{filedock.StatusDeleting})
			assert.NoError(t, err)
		}
	})

	t.Run("update inside transaction", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord("alice", base)
		Insert(t, store, rec)

		err := store.Transact(ctx, func(tx filedock.Tx) error {
			n, err := tx.Update(ctx, rec.ID, "alice",
				[]filedock.Status{filedock.StatusPending},
				filedock.Patch{Status: filedock.StatusDeleting, UpdatedAt: base})
			assert.Equal(t, int64(1), n)
			return err
		})
		require.NoError(t, err)

		_, err = store.GetOwned(ctx, "alice", rec.ID, []filedock.Status{filedock.StatusDeleting})
		assert.NoError(t, err)
	})

	t.Run("list available newest first with pagination", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var available []filedock.FileRecord
		for i := range 5 {
			rec := NewRecord("alice", base.Add(time.Duration(i)*time.Second))
			Insert(t, store, rec)
			SetStatus(t, store, rec, filedock.StatusAvailable, rec.CreatedAt)
			available = append(available, rec)
		}
		// same created_at as the newest, tie broken by id
		tie := NewRecord("alice", available[4].CreatedAt)
		Insert(t, store, tie)
		SetStatus(t, store, tie, filedock.StatusAvailable, tie.CreatedAt)

		// still PENDING
		Insert(t, store, NewRecord("alice", base.Add(time.Hour)))

		other := NewRecord("bob", base.Add(time.Hour))
		Insert(t, store, other)
		SetStatus(t, store, other, filedock.StatusAvailable, other.CreatedAt)

		var seen []uuid.UUID
		cursor := ""
		pages := 0
		for {
			result, err := store.ListAvailable(ctx, "alice", filedock.ListQuery{Limit: 2, Cursor: cursor})
			require.NoError(t, err)
			pages++
			for _, item := range result.Items {
				assert.Equal(t, filedock.StatusAvailable, item.Status)
				assert.Equal(t, "alice", item.OwnerID)
				seen = append(seen, item.ID)
			}
			if result.NextCursor == "" {
				break
			}
			cursor = result.NextCursor
		}

		assert.Equal(t, 3, pages)
		require.Len(t, seen, 6)
		assert.ElementsMatch(t, []uuid.UUID{available[4].ID, tie.ID}, seen[:2])
		assert.Equal(t, available[3].ID, seen[2])
		assert.Equal(t, available[0].ID, seen[5])
	})

	t.Run("list available empty", func(t *testing.T) {
		store := newStore(t)

		result, err := store.ListAvailable(context.Background(), "alice", filedock.ListQuery{Limit: 10})
		require.NoError(t, err)
		assert.NotNil(t, result.Items)
		assert.Empty(t, result.Items)
		assert.Empty(t, result.NextCursor)
	})

	t.Run("list available rejects invalid cursor", func(t *testing.T) {
		store := newStore(t)

		_, err := store.ListAvailable(context.Background(), "alice", filedock.ListQuery{Limit: 10, Cursor: "!!!"})
		assert.ErrorIs(t, err, filedock.ErrInvalidRequest)
	})

	t.Run("list stale oldest first with pagination", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var stale []filedock.FileRecord
		for i := range 3 {
			rec := NewRecord("alice", base)
			Insert(t, store, rec)
			SetStatus(t, store, rec, filedock.StatusDeleting, base.Add(time.Duration(i)*time.Minute))
			stale = append(stale, rec)
		}
		fresh := NewRecord("alice", base)
		Insert(t, store, fresh)
		SetStatus(t, store, fresh, filedock.StatusDeleting, base.Add(time.Hour))
		Insert(t, store, NewRecord("alice", base)) // PENDING

		var seen []uuid.UUID
		cursor := ""
		for {
			result, err := store.ListStale(ctx, filedock.StaleQuery{
				Status: filedock.StatusDeleting,
				Before: base.Add(30 * time.Minute),
				Limit:  2,
				Cursor: cursor,
			})
			require.NoError(t, err)
			for _, item := range result.Items {
				seen = append(seen, item.ID)
			}
			if result.NextCursor == "" {
				break
			}
			cursor = result.NextCursor
		}

		assert.Equal(t, []uuid.UUID{stale[0].ID, stale[1].ID, stale[2].ID}, seen)
	})
}
