package filedock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotificationKind classifies a storage notification.
type NotificationKind string

const (
	KindCreated NotificationKind = "created"
	KindRemoved NotificationKind = "removed"
	KindOther   NotificationKind = "other"
)

// metricLabel keeps the kind label within the known kinds.
func (k NotificationKind) metricLabel() string {
	switch k {
	case KindCreated, KindRemoved:
		return string(k)
	default:
		return string(KindOther)
	}
}

// KindFromEventName maps an S3 event name such as "s3:ObjectCreated:Put"
// or "ObjectRemoved:Delete" to a NotificationKind.
func KindFromEventName(name string) NotificationKind {
	name = strings.TrimPrefix(name, "s3:")
	switch {
	case strings.HasPrefix(name, "ObjectCreated:"):
		return KindCreated
	case strings.HasPrefix(name, "ObjectRemoved:"):
		return KindRemoved
	default:
		return KindOther
	}
}

// Notification is one storage event, already decoded from its transport.
type Notification struct {
	Kind      NotificationKind
	EventName string
	Bucket    string
	Key       string
	Size      int64
}

// ReconcileResult summarizes one Apply call.
type ReconcileResult struct {
	CorrelationID string
	Applied       int
	Skipped       int
	Malformed     int
	Ignored       int
}

// ReconcilerConfig holds configuration options for Reconciler.
type ReconcilerConfig struct {
	// Bucket, when set, drops notifications for any other bucket.
	Bucket string
	Now    func() time.Time
}

// Reconciler applies storage notifications to file records. Every update is
// guarded by the status the event may transition from, so duplicated,
// reordered and stale notifications change nothing.
type Reconciler struct {
	records RecordStore
	bucket  string
	now     func() time.Time
	logger  *slog.Logger
}

func NewReconciler(records RecordStore, cfg ReconcilerConfig, logger *slog.Logger) (*Reconciler, error) {
	if records == nil {
		return nil, errors.New("new reconciler: record store is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		records: records,
		bucket:  cfg.Bucket,
		now:     now,
		logger:  logger.With(slog.String("component", "reconciler")),
	}, nil
}

// Apply processes a batch of notifications in order.
//
// Malformed keys, foreign buckets, unknown kinds and notifications that do
// not match the record's status are logged and counted, never returned as
// errors. A record store failure on one notification does not stop the
// batch; all such failures are joined and returned wrapped in
// ErrStorageUnavailable so the sender can redeliver.
func (r *Reconciler) Apply(ctx context.Context, batch []Notification) (ReconcileResult, error) {
	result := ReconcileResult{CorrelationID: uuid.NewString()}
	logger := r.logger.With(slog.String("correlation_id", result.CorrelationID))

	var errs []error
	for _, n := range batch {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		outcome, err := r.applyOne(ctx, logger, n)
		notificationsTotal.WithLabelValues(n.Kind.metricLabel(), outcome).Inc()

		switch outcome {
		case "applied":
			result.Applied++
		case "skipped":
			result.Skipped++
		case "malformed":
			result.Malformed++
		case "ignored":
			result.Ignored++
		case "error":
			errs = append(errs, err)
		}
	}

	logger.Info("notifications applied",
		slog.Int("received", len(batch)),
		slog.Int("applied", result.Applied),
		slog.Int("skipped", result.Skipped),
		slog.Int("malformed", result.Malformed),
		slog.Int("ignored", result.Ignored),
		slog.Int("errors", len(errs)),
	)

	if len(errs) > 0 {
		return result, fmt.Errorf("apply notifications: %w: %w", ErrStorageUnavailable, errors.Join(errs...))
	}
	return result, nil
}

func (r *Reconciler) applyOne(ctx context.Context, logger *slog.Logger, n Notification) (string, error) {
	var ev Event
	switch n.Kind {
	case KindCreated:
		ev = EventObjectConfirmedWritten
	case KindRemoved:
		ev = EventObjectConfirmedRemoved
	default:
		logger.Debug("ignoring notification",
			slog.String("event", n.EventName),
			slog.String("key", n.Key),
		)
		return "ignored", nil
	}

	if r.bucket != "" && n.Bucket != "" && n.Bucket != r.bucket {
		logger.Debug("ignoring notification for other bucket",
			slog.String("bucket", n.Bucket),
			slog.String("key", n.Key),
		)
		return "ignored", nil
	}

	ownerID, id, err := ParseObjectKey(n.Key)
	if err != nil {
		logger.Warn("skipping notification with malformed key",
			slog.String("key", n.Key),
			slog.Any("error", err),
		)
		return "malformed", nil
	}

	patch, err := PatchFor(ev, r.now().UTC(), n.Size)
	if err != nil {
		return "error", err
	}

	rows, err := r.records.ConditionalUpdate(ctx, id, ownerID, Sources(ev), patch)
	if err != nil {
		logger.Error("apply notification failed",
			slog.String("id", id.String()),
			slog.String("event", string(ev)),
			slog.Any("error", err),
		)
		return "error", fmt.Errorf("%s %s: %w", ev, id, err)
	}

	if rows == 0 {
		logger.Warn("notification did not match record status",
			slog.String("id", id.String()),
			slog.String("event", string(ev)),
			slog.Any("expected", Sources(ev)),
		)
		return "skipped", nil
	}

	logger.Debug("notification applied",
		slog.String("id", id.String()),
		slog.String("event", string(ev)),
		slog.String("status", string(patch.Status)),
	)
	return "applied", nil
}
