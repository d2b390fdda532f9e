package filedock

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// KeyPrefix is the first segment of every object key managed by filedock.
const KeyPrefix = "uploads"

// ObjectKey builds the object store key for a file: uploads/{ownerID}/{id}.
func ObjectKey(ownerID string, id uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s", KeyPrefix, ownerID, id)
}

// ParseObjectKey extracts the owner and file id from an object key.
// Keys arriving in storage notifications may be URL-encoded.
func ParseObjectKey(key string) (ownerID string, id uuid.UUID, err error) {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("parse object key %q: %w", key, err)
	}

	parts := strings.Split(decoded, "/")
	if len(parts) != 3 || parts[0] != KeyPrefix || parts[1] == "" {
		return "", uuid.Nil, fmt.Errorf("parse object key %q: unexpected key shape", key)
	}

	id, err = uuid.Parse(parts[2])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("parse object key %q: %w", key, err)
	}

	return parts[1], id, nil
}
