package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	base := testPage(Section{Kind: "metrics-overview", Props: map[string]any{"metrics": map[string]any{"total": 5}}})

	t.Run("metadata does not change the fingerprint", func(t *testing.T) {
		a, err := Fingerprint(base)
		require.NoError(t, err)

		later := base.Clone()
		later.Metadata.GeneratedAt = base.Metadata.GeneratedAt + 60_000
		later.Metadata.TraceID = "other-trace"
		b, err := Fingerprint(later)
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("content changes the fingerprint", func(t *testing.T) {
		a, err := Fingerprint(base)
		require.NoError(t, err)

		changed := base.Clone()
		changed.Sections[0].Props["metrics"].(map[string]any)["total"] = 6
		b, err := Fingerprint(changed)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("key order does not matter", func(t *testing.T) {
		a, err := Fingerprint(testPage(Section{Kind: "k", Props: map[string]any{"a": 1, "b": 2}}))
		require.NoError(t, err)
		b, err := Fingerprint(testPage(Section{Kind: "k", Props: map[string]any{"b": 2, "a": 1}}))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}
