// Package idx generates the identifiers used as primary keys: ULIDs, which
// sort by creation time so listings come out oldest first without an extra
// index.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID in its canonical 26 character form.
type ID string

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

// Monotonic entropy keeps IDs minted in the same millisecond ordered; it is
// not safe for concurrent use on its own.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns an ID for the current time.
func New() ID {
	return NewAt(time.Now())
}

// NewAt returns an ID stamped with t.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String())
}

// NewPrefixed returns a lowercase ULID with a readable type prefix, e.g.
// "cli_01hq7t3z1mz0jq3m6mzq1fq3zv", for identifiers people copy around.
func NewPrefixed(prefix string) string {
	return prefix + "_" + strings.ToLower(New().String())
}

// Parse validates s and returns it in canonical (uppercase) form.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalid
	}
	return ID(u.String()), nil
}

func (id ID) String() string { return string(id) }

// Time returns the creation time embedded in id, or the zero time when id
// is not a valid ULID.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time()).UTC()
}

// Compare orders IDs by creation time: -1 if a<b, 0 if equal, +1 if a>b.
func Compare(a, b ID) int {
	return strings.Compare(string(a), string(b))
}
