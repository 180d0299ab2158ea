package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedClockAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	c := NewFixed(start)
	require.Equal(t, time.UTC, c.Now().Location())
	require.True(t, c.Now().Equal(start))

	c.Advance(30 * time.Minute)
	require.True(t, c.Now().Equal(start.Add(30*time.Minute)))
}

func TestOrSystemDefaults(t *testing.T) {
	require.IsType(t, System{}, OrSystem(nil))
	fixed := NewFixed(time.Unix(0, 0))
	require.Same(t, fixed, OrSystem(fixed))
	require.Equal(t, time.UTC, System{}.Now().Location())
}
