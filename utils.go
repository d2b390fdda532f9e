package filedock

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsValidOwnerID reports whether id can be embedded as a single segment of
// an object key and recovered unchanged by ParseObjectKey. It checks that id:
//   - is not empty, "." or ".."
//   - does not contain "/" (the key separator)
//   - does not contain "%" or "+", which notification keys decode
//   - does not contain invalid characters: \ ? # ~
//   - is valid UTF-8
//   - does not contain control characters, DEL or whitespace
func IsValidOwnerID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}

	if strings.ContainsAny(id, `/%+\?#~`) {
		return false
	}

	if !utf8.ValidString(id) {
		return false
	}

	for _, r := range id {
		if r < 0x20 || r == 0x7f || unicode.IsSpace(r) {
			return false
		}
	}

	return true
}
