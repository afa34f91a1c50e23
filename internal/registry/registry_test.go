package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type nopWriter struct{}

func (nopWriter) Write(id string, names []string, content *string) error { return nil }

func TestAddRemove_PrunesEmptyBucket(t *testing.T) {
	r := New()
	sess := &Session{ID: "s1", UID: "user-1", Patterns: []string{"*"}, Writer: nopWriter{}}
	r.Add(sess)

	require.Equal(t, 1, r.Count())
	require.Equal(t, 1, r.UIDCount())
	require.Len(t, r.SessionsFor("user-1"), 1)

	r.Remove("user-1", "s1")

	require.Equal(t, 0, r.Count())
	require.Equal(t, 0, r.UIDCount(), "empty uid buckets must be pruned")
	require.Empty(t, r.SessionsFor("user-1"))
}

func TestMultipleSessionsPerUser(t *testing.T) {
	r := New()
	r.Add(&Session{ID: "s1", UID: "user-1", Writer: nopWriter{}})
	r.Add(&Session{ID: "s2", UID: "user-1", Writer: nopWriter{}})
	r.Add(&Session{ID: "s3", UID: "user-2", Writer: nopWriter{}})

	require.Len(t, r.SessionsFor("user-1"), 2)
	require.Len(t, r.SessionsFor("user-2"), 1)
	require.Equal(t, 3, r.Count())
	require.Equal(t, 2, r.UIDCount())

	r.Remove("user-1", "s1")
	require.Len(t, r.SessionsFor("user-1"), 1)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	r := New()
	r.Add(&Session{ID: "s1", UID: "user-1", Writer: nopWriter{}})

	r.Remove("user-1", "does-not-exist")
	r.Remove("no-such-user", "s1")

	require.Equal(t, 1, r.Count())
}

func TestNoCrossUserLeakage(t *testing.T) {
	r := New()
	r.Add(&Session{ID: "s1", UID: "user-A", Writer: nopWriter{}})
	r.Add(&Session{ID: "s2", UID: "user-B", Writer: nopWriter{}})

	for _, s := range r.SessionsFor("user-A") {
		require.Equal(t, "user-A", s.UID)
	}
}
