package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseQueueSpec(t *testing.T) {
	q, err := parseQueueSpec("front:35:19")
	require.NoError(t, err)
	require.Equal(t, "front", q.Name)
	require.Equal(t, 35, q.MaxSize)
	require.Equal(t, 19, q.MaxBatchSize)

	for _, bad := range []string{"front", "front:35", "front:x:19", "front:35:y", "a:1:2:3"} {
		_, err := parseQueueSpec(bad)
		require.Error(t, err, bad)
	}
}
