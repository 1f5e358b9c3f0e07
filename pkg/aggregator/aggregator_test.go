package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// "" stands in for "nothing detected"
func detectionKind(s string) string {
	if s == "" {
		return "none"
	}
	return "object"
}

func TestAppendAndCheck(t *testing.T) {
	a := NewFrameCounter(5, detectionKind)
	items := []string{
		"", "1", "1", "1", "", "1", "", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "1", "", "1", "", "",
		"", "", "", "1", "1", "",
	}
	expectState := map[int][]string{
		0:  {""},
		3:  {"", "1", "1", "1"},
		6:  {"1", "1", "", "1", ""},
		11: {"1", "1", "1", "1", "1"},
		16: {"1", "1", "1", "1", "1"},
		19: {"1", "1", "1", "", "1"},
		24: {"", "", "", "", ""},
	}
	expectCheck := map[int][]string{
		11: {"1", "1", "1", "1", "1"},
		16: {"1", "1", "1", "1", "1"},
		24: {"", "", "", "", ""},
	}
	for i, item := range items {
		a.Append(item)
		state, ok := expectState[i]
		if !ok {
			continue
		}
		require.Equal(t, state, a.Items(), "index %v", i)
		batch, ok := a.Check(0)
		if want, isValid := expectCheck[i]; isValid {
			require.True(t, ok, "index %v", i)
			require.Equal(t, want, batch, "index %v", i)
		} else {
			require.False(t, ok, "index %v", i)
			require.Nil(t, batch)
		}
	}
}

func TestCheckLimit(t *testing.T) {
	a := NewFrameCounter(5, detectionKind)
	for _, item := range []string{"", "", "1", "1", "1"} {
		a.Append(item)
	}
	_, ok := a.Check(0)
	require.False(t, ok)
	batch, ok := a.Check(3)
	require.True(t, ok)
	require.Equal(t, []string{"1", "1", "1"}, batch)
	// A limit beyond the threshold can never be satisfied
	_, ok = a.Check(6)
	require.False(t, ok)
}

func TestReset(t *testing.T) {
	a := NewFrameCounter(5, detectionKind)
	a.Reset()
	_, ok := a.Check(0)
	require.False(t, ok)
	require.Empty(t, a.Items())

	for i, item := range []string{"1", "1", "1", "", "", "1", ""} {
		a.Append(item)
		if i == 5 {
			a.Reset()
			_, ok := a.Check(0)
			require.False(t, ok)
			require.Empty(t, a.Items())
			require.Equal(t, 0, a.Len())
		}
	}
	require.Equal(t, 1, a.Len())
}

func TestTimeGap(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewTimeGap(3, 2*time.Second, detectionKind)
	a.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		a.Append("1")
		now = now.Add(500 * time.Millisecond)
	}
	// Oldest item is 1.5 seconds old
	batch, ok := a.Check(0)
	require.True(t, ok)
	require.Equal(t, []string{"1", "1", "1"}, batch)

	now = now.Add(time.Second)
	_, ok = a.Check(0)
	require.False(t, ok)

	// The window slides forward, and becomes fresh again
	a.Append("1")
	batch, ok = a.Check(0)
	require.True(t, ok)
	require.Len(t, batch, 3)

	// Fresh, but not consistent
	a.Append("")
	_, ok = a.Check(0)
	require.False(t, ok)
}

func TestNew(t *testing.T) {
	_, err := New(ModeFrameCounter, 0, 0, detectionKind)
	require.Error(t, err)
	_, err = New(ModeTimeGap, 3, 0, detectionKind)
	require.Error(t, err)
	_, err = New(Mode("sliding"), 3, time.Second, detectionKind)
	require.Error(t, err)
	a, err := New(ModeTimeGap, 3, time.Second, detectionKind)
	require.NoError(t, err)
	require.Equal(t, ModeTimeGap, a.Mode())
}

func TestWindowHoldsExactlyThreshold(t *testing.T) {
	for _, threshold := range []int{1, 2, 3, 4, 5, 8, 100} {
		a := NewFrameCounter(threshold, detectionKind)
		for i := 0; i < threshold-1; i++ {
			a.Append("1")
		}
		_, ok := a.Check(0)
		require.False(t, ok, "threshold %v", threshold)

		a.Append("1")
		batch, ok := a.Check(0)
		require.True(t, ok, "threshold %v", threshold)
		require.Len(t, batch, threshold)

		// The oldest item is evicted, and the window stays full
		a.Append("")
		require.Equal(t, threshold, a.Len())
		items := a.Items()
		require.Equal(t, "", items[len(items)-1])
	}
}
