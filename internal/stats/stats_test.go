package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotResolve(t *testing.T) {
	snap := Snapshot{
		"badgeCount": 3,
		"stats": map[string]any{
			"score": 1250,
			"nested": map[string]any{
				"deep": "value",
			},
		},
	}

	v, ok := snap.Resolve("badgeCount")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = snap.Resolve("stats.score")
	assert.True(t, ok)
	assert.Equal(t, 1250, v)

	v, ok = snap.Resolve("stats.nested.deep")
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok = snap.Resolve("stats.missing")
	assert.False(t, ok)

	_, ok = snap.Resolve("missing.path")
	assert.False(t, ok)

	// Intermediate key resolves to a scalar, not an object.
	_, ok = snap.Resolve("badgeCount.deeper")
	assert.False(t, ok)

	_, ok = snap.Resolve("stats.score.deeper")
	assert.False(t, ok)
}
