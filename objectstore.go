package filedock

import (
	"context"
	"fmt"
	"time"
)

// Intent is the single operation a presigned URL grants.
type Intent string

const (
	IntentRead  Intent = "read"
	IntentWrite Intent = "write"
)

// PresignOptions carries optional request attributes bound into a write URL.
type PresignOptions struct {
	ContentType string
}

// ObjectStore is the capability filedock needs from the external object
// store. It never answers questions about record status; only storage
// notifications do that.
type ObjectStore interface {
	// Presign returns a time-bounded URL granting intent on key.
	// A fresh URL is issued on every call.
	Presign(ctx context.Context, key string, intent Intent, ttl time.Duration, opts PresignOptions) (string, error)

	// Delete removes the object at key. Implementations return nil when the
	// object is already absent.
	Delete(ctx context.Context, key string) error
}

func (i Intent) IsValid() bool {
	switch i {
	case IntentRead, IntentWrite:
		return true
	default:
		return false
	}
}

func ParseIntent(s string) (Intent, error) {
	intent := Intent(s)
	if !intent.IsValid() {
		return "", fmt.Errorf("invalid intent: %s (valid intents: read, write)", s)
	}
	return intent, nil
}
